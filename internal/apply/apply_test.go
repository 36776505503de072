package apply

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"cmdr/internal/backup"
	"cmdr/internal/errdef"
	"cmdr/internal/model"
)

func newEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	engine, err := New(root, backup.New(root))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine, root
}

func mustPlanAndApply(t *testing.T, engine *Engine, records []model.FileRecord) *model.ApplyReport {
	t.Helper()
	plan, err := engine.Plan(records)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	report, err := engine.Apply(plan)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return report
}

func TestApplyCreateRoundTrip(t *testing.T) {
	engine, root := newEngine(t)

	report := mustPlanAndApply(t, engine, []model.FileRecord{
		{RelPath: "a/b.txt", Content: "hello\n"},
	})

	data, err := os.ReadFile(filepath.Join(root, "a", "b.txt"))
	if err != nil {
		t.Fatalf("reading created file: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("content = %q, want %q", data, "hello\n")
	}
	if len(report.Created) != 1 || report.Created[0] != "a/b.txt" {
		t.Errorf("created = %v", report.Created)
	}
	if len(report.Backups) != 0 {
		t.Errorf("expected zero backups, got %d", len(report.Backups))
	}
}

func TestApplyOverwriteTakesBackup(t *testing.T) {
	engine, root := newEngine(t)
	target := filepath.Join(root, "x.py")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := mustPlanAndApply(t, engine, []model.FileRecord{
		{RelPath: "x.py", Content: "new"},
	})

	if len(report.Backups) != 1 {
		t.Fatalf("expected exactly one backup, got %d", len(report.Backups))
	}
	bak, err := os.ReadFile(report.Backups[0].BackupPath)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(bak) != "old" {
		t.Errorf("backup content = %q, want %q", bak, "old")
	}
	now, _ := os.ReadFile(target)
	if string(now) != "new" {
		t.Errorf("target content = %q, want %q", now, "new")
	}
}

func TestApplyIdempotent(t *testing.T) {
	engine, _ := newEngine(t)
	records := []model.FileRecord{{RelPath: "x.py", Content: "same\n"}}

	first := mustPlanAndApply(t, engine, records)
	if len(first.Created) != 1 {
		t.Fatalf("first run created = %v", first.Created)
	}

	second := mustPlanAndApply(t, engine, records)
	if len(second.Unchanged) != 1 {
		t.Errorf("second run unchanged = %v", second.Unchanged)
	}
	if len(second.Created) != 0 || len(second.Overwritten) != 0 {
		t.Errorf("second run mutated: %+v", second)
	}
	if len(second.Backups) != 0 {
		t.Errorf("second run took %d backups", len(second.Backups))
	}
}

func TestPlanRejectsPathEscape(t *testing.T) {
	engine, root := newEngine(t)

	_, err := engine.Plan([]model.FileRecord{
		{RelPath: "ok.txt", Content: "fine"},
		{RelPath: "../../etc/passwd", Content: "root::0:0"},
	})
	if errdef.GetCode(err) != errdef.EValidation {
		t.Fatalf("expected E_VALIDATION, got %v", err)
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("validation failure must not touch the tree, found %d entries", len(entries))
	}
}

func TestPlanRejectsEmptyAndAbsolutePaths(t *testing.T) {
	engine, _ := newEngine(t)
	for _, bad := range []string{"", "   ", "/etc/passwd", "."} {
		_, err := engine.Plan([]model.FileRecord{{RelPath: bad}})
		if errdef.GetCode(err) != errdef.EValidation {
			t.Errorf("path %q: expected E_VALIDATION, got %v", bad, err)
		}
	}
}

func TestPlanRejectsCaseInsensitiveAlias(t *testing.T) {
	engine, _ := newEngine(t)
	_, err := engine.Plan([]model.FileRecord{
		{RelPath: "Main.go", Content: "a"},
		{RelPath: "main.go", Content: "b"},
	})
	if errdef.GetCode(err) != errdef.EValidation {
		t.Fatalf("expected E_VALIDATION for case alias, got %v", err)
	}
}

func TestPlanDuplicateLastWins(t *testing.T) {
	engine, root := newEngine(t)
	report := mustPlanAndApply(t, engine, []model.FileRecord{
		{RelPath: "dup.txt", Content: "first\n"},
		{RelPath: "dup.txt", Content: "second\n"},
	})
	if len(report.Created) != 1 {
		t.Fatalf("created = %v", report.Created)
	}
	data, _ := os.ReadFile(filepath.Join(root, "dup.txt"))
	if string(data) != "second\n" {
		t.Errorf("content = %q, want the later record", data)
	}
}

func TestPlanClassifiesMixedBatch(t *testing.T) {
	engine, root := newEngine(t)
	os.WriteFile(filepath.Join(root, "same.txt"), []byte("same\n"), 0o644)
	os.WriteFile(filepath.Join(root, "diff.txt"), []byte("old\n"), 0o644)

	plan, err := engine.Plan([]model.FileRecord{
		{RelPath: "same.txt", Content: "same\n"},
		{RelPath: "diff.txt", Content: "new\n"},
		{RelPath: "fresh.txt", Content: "hi\n"},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.ToCreate) != 1 || plan.ToCreate[0].RelPath != "fresh.txt" {
		t.Errorf("toCreate = %v", plan.ToCreate)
	}
	if len(plan.ToOverwrite) != 1 || plan.ToOverwrite[0].RelPath != "diff.txt" {
		t.Errorf("toOverwrite = %v", plan.ToOverwrite)
	}
	if len(plan.Unchanged) != 1 || plan.Unchanged[0].RelPath != "same.txt" {
		t.Errorf("unchanged = %v", plan.Unchanged)
	}
}

func TestApplyStagingFailureLeavesTreeUntouched(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced the same way on windows")
	}
	engine, root := newEngine(t)

	lockedDir := filepath.Join(root, "locked")
	if err := os.Mkdir(lockedDir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(lockedDir, 0o755) })

	existing := filepath.Join(root, "keep.txt")
	os.WriteFile(existing, []byte("original\n"), 0o644)

	plan, err := engine.Plan([]model.FileRecord{
		{RelPath: "new1.txt", Content: "one\n"},
		{RelPath: "locked/denied.txt", Content: "two\n"},
		{RelPath: "keep.txt", Content: "changed\n"},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	_, err = engine.Apply(plan)
	if errdef.GetCode(err) != errdef.EWrite {
		t.Fatalf("expected E_WRITE, got %v", err)
	}

	// None of the three final paths may have been modified.
	if _, err := os.Stat(filepath.Join(root, "new1.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("new1.txt must not exist after aborted batch")
	}
	if _, err := os.Stat(filepath.Join(lockedDir, "denied.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("denied.txt must not exist after aborted batch")
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "original\n" {
		t.Errorf("keep.txt = %q, want untouched original", data)
	}

	// No staging temp files may be left anywhere in the tree.
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && strings.HasPrefix(filepath.Base(path), ".cmdr-stage-") {
			t.Errorf("leftover staging file: %s", path)
		}
		return nil
	})
}

func TestApplyEmptyContentFile(t *testing.T) {
	engine, root := newEngine(t)
	mustPlanAndApply(t, engine, []model.FileRecord{{RelPath: "empty.txt", Content: ""}})

	info, err := os.Stat(filepath.Join(root, "empty.txt"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestApplyPreservesExistingMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced the same way on windows")
	}
	engine, root := newEngine(t)
	script := filepath.Join(root, "run.sh")
	os.WriteFile(script, []byte("#!/bin/sh\necho old\n"), 0o755)

	mustPlanAndApply(t, engine, []model.FileRecord{
		{RelPath: "run.sh", Content: "#!/bin/sh\necho new\n"},
	})

	info, err := os.Stat(script)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}
