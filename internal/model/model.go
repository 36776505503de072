package model

import "time"

// FileRecord is a single file extracted from reply text, or collected from
// the working tree for the outbound bundle.
type FileRecord struct {
	// RelPath is the project-root-relative path as declared by the marker
	// line. It is validated against the project root by the apply engine.
	RelPath string
	// Lang is the canonical language tag. Display and fencing only.
	Lang string
	// Content is exactly the text between the opening and closing fences.
	Content string
}

// DiagnosticKind classifies non-fatal parse findings.
type DiagnosticKind string

const (
	DiagUnterminatedBlock DiagnosticKind = "unterminated-block"
	DiagEmptyPath         DiagnosticKind = "empty-path"
	DiagDuplicatePath     DiagnosticKind = "duplicate-path"
	DiagPathEscape        DiagnosticKind = "path-escape"
	DiagIgnoredBlock      DiagnosticKind = "ignored-block"
)

// Diagnostic is a non-fatal finding collected while parsing reply text.
// Diagnostics never stop the parse; they are surfaced in the final report.
type Diagnostic struct {
	Kind DiagnosticKind
	Path string // the path involved, when known
	Line int    // 1-based line in the reply text, 0 when not applicable
	Msg  string
}

// ParseResult is the ordered outcome of scanning one reply text.
// Record order is significant: a later record for the same path overrides
// an earlier one, and the override is diagnosed as a duplicate.
type ParseResult struct {
	Records     []FileRecord
	Diagnostics []Diagnostic
}

// BackupRecord describes one snapshot taken before an overwrite.
// Backups are never deleted by the tool; they are kept for manual recovery.
type BackupRecord struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// ApplyPlan partitions validated records by their effect on the working
// tree. It is built before any mutation so the confirmation step can show
// an exact preview.
type ApplyPlan struct {
	ToCreate    []FileRecord
	ToOverwrite []FileRecord
	Unchanged   []FileRecord
}

// Empty reports whether the plan would write anything.
func (p *ApplyPlan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToOverwrite) == 0
}

// ApplyReport summarizes one completed apply batch.
type ApplyReport struct {
	Created     []string
	Overwritten []string
	Unchanged   []string
	Backups     []BackupRecord
}
