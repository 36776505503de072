package parser

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"cmdr/internal/model"
)

// auditIgnoredBlocks runs a markdown AST pass over the reply and reports
// fenced code blocks that carry no path marker. Such blocks are commentary
// by contract and are skipped by the scanner; the audit makes the skip
// visible instead of silent.
func auditIgnoredBlocks(reply string) []model.Diagnostic {
	source := []byte(reply)
	lines := strings.Split(reply, "\n")
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var diags []model.Diagnostic
	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		fenceLine := openFenceLine(fenced, source)
		// Blocks the scanner already paired with a marker line are records
		// (or were diagnosed by the scanner itself), not ignored commentary.
		// A dashes-only marker is a thematic break to goldmark, so the raw
		// preceding line is checked, not just the AST sibling.
		if hasMarkerBefore(fenced, source) || markerPrecedesFence(lines, fenceLine) {
			return ast.WalkSkipChildren, nil
		}
		if fenceLine == 0 {
			// An empty bare block cannot be located in the source and holds
			// nothing worth warning about.
			return ast.WalkSkipChildren, nil
		}

		lang := ""
		if fenced.Info != nil {
			lang = string(fenced.Info.Text(source))
		}
		msg := "fenced block has no path marker; treated as commentary"
		if lang != "" {
			msg = fmt.Sprintf("fenced %s block has no path marker; treated as commentary", lang)
		}
		diags = append(diags, model.Diagnostic{
			Kind: model.DiagIgnoredBlock,
			Line: fenceLine,
			Msg:  msg,
		})
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		// The walker never returns an error; keep the parse result intact
		// if goldmark ever changes that.
		return diags
	}
	return diags
}

// hasMarkerBefore reports whether the paragraph immediately preceding a
// fenced block ends with a path marker line.
func hasMarkerBefore(node ast.Node, source []byte) bool {
	prev := node.PreviousSibling()
	if prev == nil {
		return false
	}
	p, ok := prev.(*ast.Paragraph)
	if !ok {
		return false
	}
	textContent := strings.TrimSpace(string(p.Text(source)))
	lines := strings.Split(textContent, "\n")
	last := lines[len(lines)-1]
	_, isMarker := markerPath(last)
	return isMarker && last != ""
}

// markerPrecedesFence mirrors the scanner's pairing rule on the raw source:
// the nearest non-blank line above the opening fence must be a marker.
func markerPrecedesFence(lines []string, fenceLine int) bool {
	for i := fenceLine - 1; i >= 1; i-- {
		line := strings.TrimRight(lines[i-1], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		_, ok := markerPath(line)
		return ok
	}
	return false
}

// openFenceLine returns the 1-based source line of the block's opening
// fence, or 0 when the block has neither content nor an info string to
// anchor on.
func openFenceLine(fenced *ast.FencedCodeBlock, source []byte) int {
	if l := fenced.Lines(); l.Len() > 0 {
		return lineAt(source, l.At(0).Start) - 1
	}
	if fenced.Info != nil {
		return lineAt(source, fenced.Info.Segment.Start)
	}
	return 0
}

func lineAt(source []byte, offset int) int {
	line := 1
	for i := 0; i < offset && i < len(source); i++ {
		if source[i] == '\n' {
			line++
		}
	}
	return line
}
