// Package parser extracts file records from reply text.
//
// The wire convention is a path marker line such as
//
//	---src/main.go---
//
// followed by a fenced block whose opening fence declares a language tag
// and whose body is the verbatim file content. Everything outside a
// (marker, fence) pair is commentary.
package parser

import (
	"regexp"
	"strings"

	"cmdr/internal/model"
)

// scanState tracks the scanner's position within the (marker, fence) grammar.
type scanState int

const (
	scanMarker scanState = iota // looking for a path marker line
	scanFence                   // marker seen, awaiting the opening fence
	inBlock                     // inside a fenced block
)

var markerRegex = regexp.MustCompile(`^\s*-{2,}\s*(.*?)\s*-{2,}\s*$`)

var fenceOpenRegex = regexp.MustCompile("^\\s*(`{3,}|~{3,})\\s*([A-Za-z0-9_+.#-]*)\\s*$")

// scanner is the tokenizer state for one Parse call.
type scanner struct {
	state scanState

	// pending marker, waiting for its opening fence
	pendingPath string
	pendingLine int

	// current fenced block
	fenceChar rune
	fenceLen  int
	lang      string
	body      []string // raw lines, terminators included
	blockLine int
	discard   bool // block has no usable path; consume it as commentary

	seen   map[string]bool
	result model.ParseResult
}

// Parse scans reply text and returns the ordered file records plus
// diagnostics. It is pure: identical input always yields an identical
// result, and no filesystem or network access happens here.
func Parse(reply string) model.ParseResult {
	s := &scanner{seen: make(map[string]bool)}

	lineNo := 0
	for _, raw := range splitAfterNewlines(reply) {
		lineNo++
		s.line(lineNo, raw)
	}
	s.finish()

	s.result.Diagnostics = append(s.result.Diagnostics, auditIgnoredBlocks(reply)...)
	return s.result
}

func (s *scanner) line(n int, raw string) {
	text := strings.TrimRight(raw, "\r\n")

	switch s.state {
	case scanMarker:
		if ch, length, lang, ok := openFence(text); ok {
			// A fence with no preceding marker is commentary. It still has
			// to be consumed as a block so that marker-shaped lines inside
			// it are never mistaken for real markers.
			s.enterBlock(n, ch, length, lang, "", true)
			return
		}
		if path, ok := markerPath(text); ok {
			s.pendingPath = path
			s.pendingLine = n
			s.state = scanFence
		}

	case scanFence:
		if strings.TrimSpace(text) == "" {
			return // blank lines between marker and fence are tolerated
		}
		if ch, length, lang, ok := openFence(text); ok {
			discard := false
			if s.pendingPath == "" {
				s.diag(model.DiagEmptyPath, "", s.pendingLine, "marker line declares an empty path")
				discard = true
			}
			s.enterBlock(n, ch, length, lang, s.pendingPath, discard)
			return
		}
		if path, ok := markerPath(text); ok {
			// A newer marker supersedes the pending one.
			s.pendingPath = path
			s.pendingLine = n
			return
		}
		// Any other text breaks the (marker, fence) pairing; the pending
		// marker was commentary after all.
		s.pendingPath = ""
		s.state = scanMarker

	case inBlock:
		if closesFence(text, s.fenceChar, s.fenceLen) {
			s.closeBlock()
			return
		}
		s.body = append(s.body, raw)
	}
}

func (s *scanner) enterBlock(n int, ch rune, length int, lang, path string, discard bool) {
	s.state = inBlock
	s.fenceChar = ch
	s.fenceLen = length
	s.lang = lang
	s.body = nil
	s.blockLine = n
	s.pendingPath = path
	s.discard = discard
}

func (s *scanner) closeBlock() {
	if !s.discard {
		path := s.pendingPath
		if s.seen[path] {
			s.diag(model.DiagDuplicatePath, path, s.blockLine,
				"path appears more than once; the later record wins")
		}
		if escapesLexically(path) {
			s.diag(model.DiagPathEscape, path, s.blockLine,
				"path points outside the project root")
		}
		s.seen[path] = true
		s.result.Records = append(s.result.Records, model.FileRecord{
			RelPath: path,
			Lang:    CanonicalTag(s.lang),
			Content: strings.Join(s.body, ""),
		})
	}
	s.pendingPath = ""
	s.body = nil
	s.state = scanMarker
}

// finish handles end-of-input. An open block that never closed is dropped
// with a diagnostic rather than aborting the parse.
func (s *scanner) finish() {
	if s.state == inBlock && !s.discard {
		s.diag(model.DiagUnterminatedBlock, s.pendingPath, s.blockLine,
			"opening fence has no matching close before end of input")
	}
}

func (s *scanner) diag(kind model.DiagnosticKind, path string, line int, msg string) {
	s.result.Diagnostics = append(s.result.Diagnostics, model.Diagnostic{
		Kind: kind,
		Path: path,
		Line: line,
		Msg:  msg,
	})
}

// markerPath extracts the declared path from a marker line. Minor drift is
// tolerated: surrounding whitespace, two or more dashes on either side, and
// one layer of quote or backtick wrapping.
func markerPath(text string) (string, bool) {
	m := markerRegex.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(unquote(m[1])), true
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '`' || first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func openFence(text string) (ch rune, length int, lang string, ok bool) {
	m := fenceOpenRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, "", false
	}
	return rune(m[1][0]), len(m[1]), m[2], true
}

// closesFence reports whether text is a standalone closing fence for the
// specific opening fence: the same fence character, a run at least as long
// as the opening run, and nothing else on the line. Matching by token is
// what keeps fence-like sequences inside file content from terminating the
// block early.
func closesFence(text string, ch rune, minLen int) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minLen {
		return false
	}
	for _, r := range trimmed {
		if r != ch {
			return false
		}
	}
	return true
}

// escapesLexically flags paths that cannot be project-root-relative: an
// absolute path or any ".." segment. The apply engine re-validates against
// the real root; the parser only diagnoses.
func escapesLexically(path string) bool {
	p := strings.ReplaceAll(path, "\\", "/")
	if strings.HasPrefix(p, "/") || strings.Contains(p, ":") {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// splitAfterNewlines splits text into lines keeping each line's terminator,
// so block content can be reassembled byte-for-byte.
func splitAfterNewlines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
