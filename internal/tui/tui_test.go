package tui

import (
	"bytes"
	"strings"
	"testing"

	"cmdr/internal/model"
)

func TestConfirmFromReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes uppercase", "Y\n", true},
		{"no", "n\n", false},
		{"enter declines", "\n", false},
		{"spelled out declines", "yes\n", false},
		{"eof declines", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirmFromReader(strings.NewReader(tt.input), &out, "Apply these changes?")
			if err != nil {
				t.Fatalf("confirmFromReader: %v", err)
			}
			if got != tt.want {
				t.Errorf("answer %q -> %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "(y/N)") {
				t.Errorf("prompt not written: %q", out.String())
			}
		})
	}
}

func TestRenderPlanSections(t *testing.T) {
	plan := &model.ApplyPlan{
		ToCreate:    []model.FileRecord{{RelPath: "new.go"}},
		ToOverwrite: []model.FileRecord{{RelPath: "old.go"}},
	}
	diags := []model.Diagnostic{{Kind: model.DiagDuplicatePath, Path: "old.go", Line: 7, Msg: "path appears more than once"}}

	out := RenderPlan(plan, diags)
	for _, want := range []string{"Create (1):", "Overwrite (1):", "new.go", "old.go", "warning:", "line 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReportListsBackups(t *testing.T) {
	report := &model.ApplyReport{
		Created:     []string{"a.go"},
		Overwritten: []string{"b.go"},
		Backups:     []model.BackupRecord{{OriginalPath: "/p/b.go", BackupPath: "/p/b.go.backup"}},
	}
	out := RenderReport(report)
	for _, want := range []string{"Created (1):", "Overwritten (1):", "b.go.backup"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}
}
