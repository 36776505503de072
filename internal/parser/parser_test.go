package parser

import (
	"strings"
	"testing"

	"cmdr/internal/model"
)

func countDiags(result model.ParseResult, kind model.DiagnosticKind) int {
	n := 0
	for _, d := range result.Diagnostics {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func TestParseSingleFile(t *testing.T) {
	reply := "Here is the change you asked for.\n\n" +
		"---src/main.py---\n" +
		"```python\n" +
		"print(\"hello\")\n" +
		"```\n\n" +
		"Let me know if anything else is needed.\n"

	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	rec := result.Records[0]
	if rec.RelPath != "src/main.py" {
		t.Errorf("path = %q, want %q", rec.RelPath, "src/main.py")
	}
	if rec.Lang != "python" {
		t.Errorf("lang = %q, want %q", rec.Lang, "python")
	}
	if rec.Content != "print(\"hello\")\n" {
		t.Errorf("content = %q, want %q", rec.Content, "print(\"hello\")\n")
	}
}

func TestParseMarkerDrift(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		want   string
	}{
		{"plain", "---a/b.txt---", "a/b.txt"},
		{"extra dashes", "-----a/b.txt-----", "a/b.txt"},
		{"surrounding whitespace", "   --- a/b.txt ---   ", "a/b.txt"},
		{"backticks", "---`a/b.txt`---", "a/b.txt"},
		{"double quotes", `---"a/b.txt"---`, "a/b.txt"},
		{"two dashes", "--a/b.txt--", "a/b.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := tt.marker + "\n```\nx\n```\n"
			result := Parse(reply)
			if len(result.Records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(result.Records))
			}
			if result.Records[0].RelPath != tt.want {
				t.Errorf("path = %q, want %q", result.Records[0].RelPath, tt.want)
			}
		})
	}
}

func TestParseBlankLineBetweenMarkerAndFence(t *testing.T) {
	reply := "---x.go---\n\n\n```go\npackage x\n```\n"
	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].Content != "package x\n" {
		t.Errorf("content = %q", result.Records[0].Content)
	}
}

func TestParseMultipleFiles(t *testing.T) {
	reply := "---a.py---\n```python\na = 1\n```\n" +
		"Some commentary in between.\n" +
		"---b.py---\n```python\nb = 2\n```\n"

	result := Parse(reply)
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Records[0].RelPath != "a.py" || result.Records[1].RelPath != "b.py" {
		t.Errorf("unexpected order: %q, %q", result.Records[0].RelPath, result.Records[1].RelPath)
	}
}

// A block fenced with four backticks must only close on a run of at least
// four; three-backtick lines inside it are content. Grabbing the first
// closing fence anywhere later in the text would corrupt this case.
func TestParseNestedFences(t *testing.T) {
	inner := "# Usage\n\n```bash\ncmdr -r -x go\n```\n"
	reply := "---README.md---\n````markdown\n" + inner + "````\n"

	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].Content != inner {
		t.Errorf("content = %q, want %q", result.Records[0].Content, inner)
	}
	if n := countDiags(result, model.DiagUnterminatedBlock); n != 0 {
		t.Errorf("unexpected unterminated diagnostics: %d", n)
	}
}

func TestParseTildeFence(t *testing.T) {
	reply := "---x.txt---\n~~~\nbody\n~~~\n"
	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].Content != "body\n" {
		t.Errorf("content = %q", result.Records[0].Content)
	}
}

func TestParseFenceLikeContentNotStandalone(t *testing.T) {
	// A line with trailing text after the backticks is content, not a close.
	reply := "---x.md---\n```\n``` not a close\nreal line\n```\n"
	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	want := "``` not a close\nreal line\n"
	if result.Records[0].Content != want {
		t.Errorf("content = %q, want %q", result.Records[0].Content, want)
	}
}

func TestParseUnterminatedBlock(t *testing.T) {
	reply := "---x.py---\n```python\nprint(1)\n"
	result := Parse(reply)
	if len(result.Records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(result.Records))
	}
	if n := countDiags(result, model.DiagUnterminatedBlock); n != 1 {
		t.Fatalf("expected 1 unterminated diagnostic, got %d", n)
	}
}

func TestParseUnterminatedDoesNotPoisonEarlierRecords(t *testing.T) {
	reply := "---a.py---\n```python\na = 1\n```\n" +
		"---b.py---\n```python\nb = 2\n"
	result := Parse(reply)
	if len(result.Records) != 1 || result.Records[0].RelPath != "a.py" {
		t.Fatalf("expected only a.py, got %v", result.Records)
	}
	if n := countDiags(result, model.DiagUnterminatedBlock); n != 1 {
		t.Errorf("expected 1 unterminated diagnostic, got %d", n)
	}
}

func TestParseNoPairs(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"prose only", "I could not find anything to change.\n"},
		{"marker without fence", "---a.py---\nNo block follows here.\n"},
		{"fence without marker", "```python\nprint(1)\n```\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.reply)
			if len(result.Records) != 0 {
				t.Errorf("expected 0 records, got %d", len(result.Records))
			}
			if n := countDiags(result, model.DiagUnterminatedBlock); n != 0 {
				t.Errorf("spurious unterminated diagnostics: %d", n)
			}
		})
	}
}

// Marker-shaped lines inside an orphan fenced block are content of that
// commentary block, never the start of a record.
func TestParseMarkerInsideCommentaryBlock(t *testing.T) {
	reply := "```\n---evil.py---\n```\n"
	result := Parse(reply)
	if len(result.Records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(result.Records))
	}
}

func TestParseOrphanBlockAudited(t *testing.T) {
	reply := "Example invocation:\n\n```bash\ncmdr -y\n```\n\n---a.txt---\n```\nok\n```\n"
	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if n := countDiags(result, model.DiagIgnoredBlock); n != 1 {
		t.Errorf("expected 1 ignored-block diagnostic, got %d", n)
	}
}

func TestParseDuplicatePathLastWins(t *testing.T) {
	reply := "---a.py---\n```python\nfirst\n```\n" +
		"---a.py---\n```python\nsecond\n```\n"
	result := Parse(reply)
	if len(result.Records) != 2 {
		t.Fatalf("expected both records kept in order, got %d", len(result.Records))
	}
	if result.Records[1].Content != "second\n" {
		t.Errorf("later record content = %q", result.Records[1].Content)
	}
	if n := countDiags(result, model.DiagDuplicatePath); n != 1 {
		t.Errorf("expected 1 duplicate diagnostic, got %d", n)
	}
}

func TestParseEmptyPathMarker(t *testing.T) {
	reply := "------\n```python\nx = 1\n```\n"
	result := Parse(reply)
	if len(result.Records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(result.Records))
	}
	if n := countDiags(result, model.DiagEmptyPath); n != 1 {
		t.Errorf("expected 1 empty-path diagnostic, got %d", n)
	}
	// The block already got its empty-path diagnostic; the commentary audit
	// must not warn about it a second time.
	if n := countDiags(result, model.DiagIgnoredBlock); n != 0 {
		t.Errorf("expected 0 ignored-block diagnostics, got %d", n)
	}
	if len(result.Diagnostics) != 1 {
		t.Errorf("expected exactly 1 diagnostic, got %d: %v", len(result.Diagnostics), result.Diagnostics)
	}
}

func TestParsePathEscapeDiagnosed(t *testing.T) {
	reply := "---../../etc/passwd---\n```\nroot::0:0\n```\n"
	result := Parse(reply)
	// The record is kept so the apply engine can reject the whole batch.
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if n := countDiags(result, model.DiagPathEscape); n != 1 {
		t.Errorf("expected 1 path-escape diagnostic, got %d", n)
	}
}

func TestParseEmptyBlock(t *testing.T) {
	reply := "---empty.txt---\n```\n```\n"
	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].Content != "" {
		t.Errorf("content = %q, want empty", result.Records[0].Content)
	}
}

func TestParsePreservesCRLF(t *testing.T) {
	reply := "---win.txt---\n```\nline1\r\nline2\r\n```\n"
	result := Parse(reply)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].Content != "line1\r\nline2\r\n" {
		t.Errorf("content = %q", result.Records[0].Content)
	}
}

func TestParseDeterministic(t *testing.T) {
	reply := "---a.py---\n```python\na = 1\n```\n```\norphan\n```\n---b.py---\n```python\n"
	first := Parse(reply)
	for i := 0; i < 5; i++ {
		again := Parse(reply)
		if len(again.Records) != len(first.Records) ||
			len(again.Diagnostics) != len(first.Diagnostics) {
			t.Fatalf("parse not deterministic on run %d", i)
		}
		for j := range first.Records {
			if again.Records[j] != first.Records[j] {
				t.Fatalf("record %d differs on run %d", j, i)
			}
		}
	}
}

func TestCanonicalTag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"py", "python"},
		{"Python", "python"},
		{"js", "javascript"},
		{"golang", "go"},
		{"sh", "bash"},
		{"yml", "yaml"},
		{"", ""},
		{"rust", "rust"},
		{"  Go  ", "go"},
	}
	for _, tt := range tests {
		if got := CanonicalTag(tt.in); got != tt.want {
			t.Errorf("CanonicalTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLargeReplyOrderStable(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("---file")
		b.WriteByte(byte('a' + i%26))
		b.WriteString(".txt---\n```\nbody\n```\n")
	}
	result := Parse(b.String())
	if len(result.Records) != 50 {
		t.Fatalf("expected 50 records, got %d", len(result.Records))
	}
}
