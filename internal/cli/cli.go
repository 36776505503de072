// Package cli parses command-line flags.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"cmdr/internal/errdef"
)

// Options holds the parsed command-line flag values.
type Options struct {
	Root       string
	Recursive  bool
	Extensions []string
	Files      []string
	Yes        bool
	DryRun     bool

	// Apply consumes saved reply text instead of calling a provider:
	// a file path, "-" for stdin, or "" with ApplySet for auto-detection.
	Apply    string
	ApplySet bool

	Revert bool

	Git       bool
	CommitMsg string
	Verbose   bool
}

// Parse defines and parses the flags.
func Parse(args []string) (*Options, error) {
	opts := &Options{}
	flags := pflag.NewFlagSet("cmdr", pflag.ContinueOnError)

	flags.StringVarP(&opts.Root, "root", "C", ".", "Project root to operate on.")
	flags.BoolVarP(&opts.Recursive, "recursive", "r", false, "Collect files recursively through subdirectories.")
	flags.StringSliceVarP(&opts.Extensions, "extensions", "x", nil, "Comma-separated file extensions to collect (default from config, e.g. 'py,go,md').")
	flags.StringSliceVarP(&opts.Files, "files", "f", nil, "Explicit comma-separated list of files instead of directory discovery.")
	flags.BoolVarP(&opts.Yes, "yes", "y", false, "Apply changes without the confirmation prompt.")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Show the plan and stop before writing anything.")
	flags.StringVar(&opts.Apply, "apply", "", "Apply a saved reply instead of calling the provider: a file, or '-' for stdin; with no value, stdin pipe or clipboard.")
	flags.Lookup("apply").NoOptDefVal = "auto"
	flags.BoolVar(&opts.Revert, "revert", false, "Revert the most recent apply batch from its backups.")
	flags.BoolVar(&opts.Git, "git", false, "After a successful apply, stage, commit, and push the changes.")
	flags.StringVarP(&opts.CommitMsg, "message", "m", "", "Commit message for --git (default derived from the instructions).")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging.")

	flags.Usage = func() {
		fmt.Println("Usage: cmdr [flags]")
		fmt.Println("\nBundle project files with the instructions in cmdr.txt, send them to a")
		fmt.Println("generation service, and safely apply the files returned in the reply.")
		fmt.Println("\nFlags:")
		fmt.Println(flags.FlagUsages())
	}

	if err := flags.Parse(args); err != nil {
		return nil, errdef.Wrap(errdef.EUsage, "invalid flags", err)
	}

	if flags.Changed("apply") {
		opts.ApplySet = true
		if opts.Apply == "auto" {
			opts.Apply = ""
		}
	}
	if opts.Revert && opts.ApplySet {
		return nil, errdef.New(errdef.EUsage, "--revert and --apply are mutually exclusive")
	}

	opts.Extensions = normalizeExtensions(opts.Extensions)
	return opts, nil
}

// normalizeExtensions lower-cases entries and drops leading dots and blanks.
func normalizeExtensions(exts []string) []string {
	out := exts[:0]
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}
