// Package apply validates parsed file records and commits them to the
// working tree as a single all-or-nothing batch.
package apply

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cmdr/internal/backup"
	"cmdr/internal/errdef"
	"cmdr/internal/model"
)

// stagePattern names the temp files used for staged writes. Staged files
// live in the target's directory so promotion is a same-filesystem rename.
const stagePattern = ".cmdr-stage-*"

// Engine applies batches against one project root. It assumes exclusive
// ownership of the working tree for the duration of an Apply call.
type Engine struct {
	root    string
	backups *backup.Manager
}

// New creates an Engine rooted at the given project directory.
func New(root string, backups *backup.Manager) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errdef.WrapPath(errdef.EValidation, root, "cannot resolve project root", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errdef.WrapPath(errdef.EValidation, root, "project root not accessible", err)
	}
	if !info.IsDir() {
		return nil, errdef.NewPath(errdef.EValidation, root, "project root is not a directory")
	}
	return &Engine{root: abs, backups: backups}, nil
}

// Root returns the absolute project root the engine writes under.
func (e *Engine) Root() string {
	return e.root
}

// Plan validates records and partitions them by their effect on the tree.
// Validation failures reject the whole batch: an invalid path in one record
// means nothing is applied. Later records for the same path override
// earlier ones.
func (e *Engine) Plan(records []model.FileRecord) (*model.ApplyPlan, error) {
	type slot struct {
		rec   model.FileRecord
		clean string
	}

	var order []string
	byPath := make(map[string]slot)
	byFold := make(map[string]string) // lower-cased path -> cleaned path

	for _, rec := range records {
		clean, err := e.cleanPath(rec.RelPath)
		if err != nil {
			return nil, err
		}

		fold := strings.ToLower(clean)
		if prev, ok := byFold[fold]; ok && prev != clean {
			return nil, errdef.NewPath(errdef.EValidation, rec.RelPath,
				"collides case-insensitively with "+prev)
		}
		byFold[fold] = clean

		if _, ok := byPath[clean]; !ok {
			order = append(order, clean)
		}
		rec.RelPath = filepath.ToSlash(clean)
		byPath[clean] = slot{rec: rec, clean: clean}
	}

	plan := &model.ApplyPlan{}
	for _, clean := range order {
		rec := byPath[clean].rec
		target := filepath.Join(e.root, clean)

		info, err := os.Lstat(target)
		switch {
		case os.IsNotExist(err):
			plan.ToCreate = append(plan.ToCreate, rec)
		case err != nil:
			return nil, errdef.WrapPath(errdef.EValidation, rec.RelPath, "cannot stat target", err)
		case info.IsDir():
			return nil, errdef.NewPath(errdef.EValidation, rec.RelPath, "target is a directory")
		default:
			existing, err := os.ReadFile(target)
			if err != nil {
				return nil, errdef.WrapPath(errdef.EValidation, rec.RelPath, "cannot read target", err)
			}
			if bytes.Equal(existing, []byte(rec.Content)) {
				plan.Unchanged = append(plan.Unchanged, rec)
			} else {
				plan.ToOverwrite = append(plan.ToOverwrite, rec)
			}
		}
	}

	sortByPath(plan.ToCreate)
	sortByPath(plan.ToOverwrite)
	sortByPath(plan.Unchanged)
	return plan, nil
}

// cleanPath normalizes a record path and rejects anything that is empty,
// absolute, or resolves outside the project root.
func (e *Engine) cleanPath(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errdef.New(errdef.EValidation, "record has an empty path")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == "." {
		return "", errdef.NewPath(errdef.EValidation, rel, "path must be relative to the project root")
	}
	target := filepath.Join(e.root, clean)
	inside, err := filepath.Rel(e.root, target)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", errdef.NewPath(errdef.EValidation, rel, "path resolves outside the project root")
	}
	return clean, nil
}

type stagedWrite struct {
	tmp   string
	final string
	rel   string
}

// Apply commits the plan: backups first, then every write staged to a temp
// file, then all staged files promoted by rename. Any backup or staging
// failure aborts the whole batch with zero final-path mutation and removes
// partial staging artifacts.
func (e *Engine) Apply(plan *model.ApplyPlan) (*model.ApplyReport, error) {
	report := &model.ApplyReport{}
	for _, rec := range plan.Unchanged {
		report.Unchanged = append(report.Unchanged, rec.RelPath)
	}

	// A failed backup must never be followed by a write to the original.
	for _, rec := range plan.ToOverwrite {
		target := filepath.Join(e.root, filepath.FromSlash(rec.RelPath))
		bak, err := e.backups.Backup(target)
		if err != nil {
			return nil, err
		}
		if bak != nil {
			report.Backups = append(report.Backups, *bak)
		}
	}

	var createdDirs []string
	var staged []stagedWrite
	abort := func() {
		for _, s := range staged {
			os.Remove(s.tmp)
		}
		// Remove directory trees created for this batch, deepest first.
		for i := len(createdDirs) - 1; i >= 0; i-- {
			os.RemoveAll(createdDirs[i])
		}
	}

	for _, rec := range plan.ToCreate {
		dir := filepath.Dir(filepath.Join(e.root, filepath.FromSlash(rec.RelPath)))
		made, err := e.ensureDir(dir)
		if err != nil {
			abort()
			return nil, errdef.WrapPath(errdef.EWrite, rec.RelPath, "cannot create directory", err)
		}
		if made != "" {
			createdDirs = append(createdDirs, made)
		}
	}

	for _, rec := range append(append([]model.FileRecord{}, plan.ToCreate...), plan.ToOverwrite...) {
		target := filepath.Join(e.root, filepath.FromSlash(rec.RelPath))
		tmp, err := stageWrite(target, rec.Content)
		if err != nil {
			abort()
			return nil, errdef.WrapPath(errdef.EWrite, rec.RelPath, "staging failed", err)
		}
		staged = append(staged, stagedWrite{tmp: tmp, final: target, rel: rec.RelPath})
	}

	// Promotion is the non-cancellable window; it is pure renames.
	created := make(map[string]bool, len(plan.ToCreate))
	for _, rec := range plan.ToCreate {
		created[rec.RelPath] = true
	}
	for i, s := range staged {
		if err := os.Rename(s.tmp, s.final); err != nil {
			for _, rest := range staged[i:] {
				os.Remove(rest.tmp)
			}
			return nil, errdef.WrapPath(errdef.EWrite, s.rel, "promotion failed", err)
		}
		if created[s.rel] {
			report.Created = append(report.Created, s.rel)
		} else {
			report.Overwritten = append(report.Overwritten, s.rel)
		}
	}

	return report, nil
}

// ensureDir creates dir and its missing ancestors. It returns the topmost
// directory that had to be created, so an aborted batch can remove exactly
// what it added.
func (e *Engine) ensureDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return "", nil
	}
	topMissing := dir
	for parent := filepath.Dir(dir); parent != e.root && parent != string(filepath.Separator); parent = filepath.Dir(parent) {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		topMissing = parent
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return topMissing, nil
}

// stageWrite writes content to a temp file next to target and returns the
// temp path. The temp file carries the permissions the final file should
// have: the original's mode for overwrites, 0644 for new files.
func stageWrite(target, content string) (string, error) {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(target); err == nil {
		perm = info.Mode().Perm()
	}

	f, err := os.CreateTemp(filepath.Dir(target), stagePattern)
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func sortByPath(records []model.FileRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].RelPath < records[j].RelPath
	})
}
