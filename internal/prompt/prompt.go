// Package prompt assembles the outbound request from the instruction files
// and the collected file bundle.
package prompt

import (
	"os"
	"path/filepath"
	"strings"

	"cmdr/internal/errdef"
	"cmdr/internal/model"
)

const (
	// DefaultInstructionsFile holds the editing instructions for one run.
	DefaultInstructionsFile = "cmdr.txt"
	// DefaultSystemFile holds standing instructions; '#' lines are comments.
	DefaultSystemFile = "system.txt"
)

const header = `You are a skilled developer tasked with modifying multiple files according to specific instructions.

INSTRUCTIONS:
`

const trailer = `

RESPONSE FORMAT:
For any files you wish to return in your reply, they must have this format:

---<full-file-spec>---
` + "```<filetype>\n" + `< file contents here >
` + "```" + `

Only return files that need to be changed. If a file doesn't need modification, don't include it in your response.
Ensure all code is syntactically correct and follows best practices for the respective language.
`

// Builder holds the instruction text for one request.
type Builder struct {
	System       string
	Instructions string
}

// Load reads the instruction files from the project root. The instructions
// file is required; the system file is optional and has '#' comment lines
// stripped.
func Load(root, instructionsFile, systemFile string) (*Builder, error) {
	if instructionsFile == "" {
		instructionsFile = DefaultInstructionsFile
	}
	if systemFile == "" {
		systemFile = DefaultSystemFile
	}

	data, err := os.ReadFile(filepath.Join(root, instructionsFile))
	if err != nil {
		return nil, errdef.WrapPath(errdef.EUsage, instructionsFile,
			"instructions file not readable; create it with your editing instructions", err)
	}
	instructions := strings.TrimSpace(string(data))
	if instructions == "" {
		return nil, errdef.NewPath(errdef.EUsage, instructionsFile, "instructions file is empty")
	}

	b := &Builder{Instructions: instructions}
	if sys, err := os.ReadFile(filepath.Join(root, systemFile)); err == nil {
		b.System = stripComments(string(sys))
	}
	return b, nil
}

// Build produces the full user prompt: instructions, then each file fenced
// in the same wire format the reply is expected to use.
func (b *Builder) Build(files []model.FileRecord) string {
	var sb strings.Builder
	sb.WriteString(header)
	if b.System != "" {
		sb.WriteString(b.System)
		sb.WriteString("\n\n")
	}
	sb.WriteString(b.Instructions)
	sb.WriteString("\n\nFILES TO PROCESS:\n")

	for _, f := range files {
		sb.WriteString("\n---")
		sb.WriteString(f.RelPath)
		sb.WriteString("---\n```")
		sb.WriteString(f.Lang)
		sb.WriteString("\n")
		sb.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n")
	}

	sb.WriteString(trailer)
	return sb.String()
}

// SystemPrompt is the fixed system message sent alongside the user prompt.
func (b *Builder) SystemPrompt() string {
	return "You are an expert developer who carefully modifies code according to instructions."
}

// stripComments drops lines whose first non-space character is '#'.
func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
