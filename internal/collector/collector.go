// Package collector discovers the input files that go into the outbound
// request bundle.
package collector

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"cmdr/internal/errdef"
	"cmdr/internal/model"
)

// SkipMarker is the file that excludes a directory (and, in recursive mode,
// its subtree) from collection.
const SkipMarker = ".skip-cmdr"

// extLang maps file extensions to the language tag used when fencing the
// file in the outbound prompt.
var extLang = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".html": "html",
	".css":  "css",
	".json": "json",
	".md":   "markdown",
	".yml":  "yaml",
	".yaml": "yaml",
	".xml":  "xml",
	".sql":  "sql",
	".sh":   "bash",
	".bash": "bash",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".java": "java",
	".php":  "php",
	".rb":   "ruby",
	".go":   "go",
	".rs":   "rust",
	".txt":  "",
}

// Collector finds files with the configured extensions under a project root.
type Collector struct {
	root      string
	recursive bool
	exts      map[string]bool
	skipped   []string
}

// New creates a Collector. Extensions are matched with or without a
// leading dot.
func New(root string, recursive bool, extensions []string) *Collector {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}
	return &Collector{root: root, recursive: recursive, exts: exts}
}

// SkippedDirs returns the directories excluded by a skip marker during the
// last Collect call.
func (c *Collector) SkippedDirs() []string {
	return c.skipped
}

// Collect walks the project root and reads every matching file into a
// FileRecord. Hidden directories, dependency caches, and directories with
// a skip marker are excluded.
func (c *Collector) Collect() ([]model.FileRecord, error) {
	c.skipped = nil

	if hasSkipMarker(c.root) {
		c.skipped = append(c.skipped, ".")
		log.Warn().Str("dir", c.root).Msg("project root has a skip marker, nothing to collect")
		return nil, nil
	}

	var records []model.FileRecord
	err := filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		rel, relErr := filepath.Rel(c.root, path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if !c.recursive || skipDirName(d.Name()) {
				return filepath.SkipDir
			}
			if hasSkipMarker(path) {
				c.skipped = append(c.skipped, filepath.ToSlash(rel))
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !c.exts[ext] {
			return nil
		}
		rec, readErr := c.read(rel)
		if readErr != nil {
			log.Warn().Err(readErr).Str("path", rel).Msg("could not read file, skipping")
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, errdef.Wrap(errdef.EUsage, "file discovery failed", err)
	}

	log.Info().Int("count", len(records)).Str("root", c.root).Msg("collected input files")
	return records, nil
}

// FromList reads an explicit set of project-relative files, failing when
// any of them is missing.
func (c *Collector) FromList(paths []string) ([]model.FileRecord, error) {
	records := make([]model.FileRecord, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		rec, err := c.read(p)
		if err != nil {
			return nil, errdef.WrapPath(errdef.EUsage, p, "listed file not readable", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Collector) read(rel string) (model.FileRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.root, rel))
	if err != nil {
		return model.FileRecord{}, err
	}
	return model.FileRecord{
		RelPath: filepath.ToSlash(rel),
		Lang:    LangForPath(rel),
		Content: string(data),
	}, nil
}

// LangForPath returns the fencing language tag for a file path, or "" for
// plain text and unknown extensions.
func LangForPath(path string) string {
	return extLang[strings.ToLower(filepath.Ext(path))]
}

func hasSkipMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SkipMarker))
	return err == nil
}

// skipDirName excludes hidden directories and common dependency caches
// from recursive walks.
func skipDirName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "__pycache__", "node_modules", "vendor":
		return true
	}
	return false
}
