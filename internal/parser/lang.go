package parser

import "strings"

// tagAliases maps language tags that generators commonly emit to the
// canonical identifier used for display and logging.
var tagAliases = map[string]string{
	"py":        "python",
	"python3":   "python",
	"js":        "javascript",
	"node":      "javascript",
	"ts":        "typescript",
	"rb":        "ruby",
	"golang":    "go",
	"sh":        "bash",
	"shell":     "bash",
	"zsh":       "bash",
	"yml":       "yaml",
	"md":        "markdown",
	"c++":       "cpp",
	"cs":        "csharp",
	"rs":        "rust",
	"kt":        "kotlin",
	"plaintext": "text",
	"txt":       "text",
	"plain":     "text",
}

// CanonicalTag normalizes a declared language tag. The tag is informational
// only; it never influences how content is written.
func CanonicalTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if canonical, ok := tagAliases[tag]; ok {
		return canonical
	}
	return tag
}
