// Package source retrieves saved reply text for apply-only runs.
package source

import (
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"

	"cmdr/internal/errdef"
)

// Provider reads reply text from a file, a stdin pipe, or the clipboard.
type Provider struct {
	// Path is a file to read, "-" for stdin, or "" to pick automatically:
	// stdin when piped, clipboard otherwise.
	Path string
}

// Get returns the reply text. An empty string with a nil error means there
// is nothing to process.
func (p *Provider) Get() (string, error) {
	switch {
	case p.Path == "-":
		return readStdin()
	case p.Path != "":
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return "", errdef.WrapPath(errdef.EUsage, p.Path, "cannot read reply file", err)
		}
		log.Info().Str("file", p.Path).Int("bytes", len(data)).Msg("read reply from file")
		return string(data), nil
	}

	if stdinPiped() {
		return readStdin()
	}

	content, err := clipboard.ReadAll()
	if err != nil {
		return "", errdef.Wrap(errdef.EUsage, "cannot read clipboard", err)
	}
	if strings.TrimSpace(content) == "" {
		log.Warn().Msg("clipboard is empty, nothing to process")
		return "", nil
	}
	log.Info().Int("bytes", len(content)).Msg("read reply from clipboard")
	return content, nil
}

func stdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", errdef.Wrap(errdef.EUsage, "cannot read stdin", err)
	}
	log.Info().Int("bytes", len(data)).Msg("read reply from stdin")
	return string(data), nil
}
