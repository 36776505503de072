// Package app drives one invocation end to end. The apply side runs as an
// explicit state machine so every exit path names the phase it stopped in.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"cmdr/internal/apply"
	"cmdr/internal/backup"
	"cmdr/internal/cli"
	"cmdr/internal/collector"
	"cmdr/internal/config"
	"cmdr/internal/errdef"
	"cmdr/internal/git"
	"cmdr/internal/llm"
	"cmdr/internal/model"
	"cmdr/internal/parser"
	"cmdr/internal/prompt"
	"cmdr/internal/source"
	"cmdr/internal/tui"
)

// Phase names where an apply run is in its lifecycle.
type Phase string

const (
	PhaseParsed    Phase = "parsed"
	PhasePlanned   Phase = "planned"
	PhaseAwaiting  Phase = "awaiting-confirmation"
	PhaseConfirmed Phase = "confirmed"
	PhaseApplied   Phase = "applied"
	PhaseAborted   Phase = "aborted"
)

// App wires the packages together for one run. The function fields default
// to the interactive implementations and exist so tests can substitute them.
type App struct {
	Opts *cli.Options
	Cfg  *config.Config

	// Confirm asks the user to approve the plan. Defaults to tui.Confirm.
	Confirm func(question string) (bool, error)
	// Generate produces reply text from a prompt. Defaults to the
	// configured provider wrapped in a spinner.
	Generate func(ctx context.Context, system, user string) (string, error)
	// GitRun executes git commands. Defaults to git.ExecRunner.
	GitRun git.Runner
	// Out receives the plan preview and apply summary. Defaults to stdout.
	Out io.Writer

	lastPhase Phase
}

// New creates an App with the interactive defaults.
func New(opts *cli.Options, cfg *config.Config) *App {
	return &App{
		Opts:    opts,
		Cfg:     cfg,
		Confirm: tui.Confirm,
		GitRun:  git.ExecRunner{},
		Out:     os.Stdout,
	}
}

// LastPhase reports where the most recent apply run ended.
func (a *App) LastPhase() Phase {
	return a.lastPhase
}

// Run dispatches on the requested mode: revert, apply a saved reply, or the
// full collect-generate-apply round trip.
func (a *App) Run(ctx context.Context) error {
	switch {
	case a.Opts.Revert:
		return a.revert()
	case a.Opts.ApplySet:
		return a.applySaved(ctx)
	default:
		return a.generateAndApply(ctx)
	}
}

// generateAndApply collects the project files, sends them with the
// instructions to the provider, saves the raw reply, and applies it.
func (a *App) generateAndApply(ctx context.Context) error {
	files, err := a.collect()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errdef.New(errdef.EUsage, "no input files collected; check -x and -r")
	}

	builder, err := prompt.Load(a.Opts.Root, a.Cfg.InstructionsFile, a.Cfg.SystemFile)
	if err != nil {
		return err
	}
	user := builder.Build(files)
	system := builder.SystemPrompt()

	generate := a.Generate
	if generate == nil {
		provider, err := llm.New(a.Cfg)
		if err != nil {
			return err
		}
		log.Info().Str("provider", provider.Name()).Int("files", len(files)).Msg("sending request")
		generate = func(ctx context.Context, system, user string) (string, error) {
			return tui.Spin("waiting for "+provider.Name(), func() (string, error) {
				return provider.Generate(ctx, system, user)
			})
		}
	}

	reply, err := generate(ctx, system, user)
	if err != nil {
		return err
	}

	if err := a.saveReply(reply); err != nil {
		return err
	}
	return a.applyReply(reply)
}

// applySaved reads a previously saved reply and applies it.
func (a *App) applySaved(ctx context.Context) error {
	src := &source.Provider{Path: a.Opts.Apply}
	reply, err := src.Get()
	if err != nil {
		return err
	}
	if reply == "" {
		a.lastPhase = PhaseAborted
		fmt.Fprintln(a.Out, "No reply text to apply.")
		return nil
	}
	return a.applyReply(reply)
}

// applyReply is the state machine shared by both modes: parse, plan,
// preview, confirm, apply, record.
func (a *App) applyReply(reply string) error {
	result := parser.Parse(reply)
	a.lastPhase = PhaseParsed
	log.Debug().Int("records", len(result.Records)).
		Int("diagnostics", len(result.Diagnostics)).Msg("parsed reply")

	if len(result.Records) == 0 {
		a.lastPhase = PhaseAborted
		fmt.Fprintln(a.Out, tui.RenderPlan(&model.ApplyPlan{}, result.Diagnostics))
		fmt.Fprintln(a.Out, "The reply contains no file records.")
		return nil
	}

	backups := backup.New(a.Opts.Root)
	engine, err := apply.New(a.Opts.Root, backups)
	if err != nil {
		return err
	}

	plan, err := engine.Plan(result.Records)
	if err != nil {
		a.lastPhase = PhaseAborted
		return err
	}
	a.lastPhase = PhasePlanned

	fmt.Fprint(a.Out, tui.RenderPlan(plan, result.Diagnostics))

	if plan.Empty() {
		a.lastPhase = PhaseApplied
		return nil
	}
	if a.Opts.DryRun {
		fmt.Fprintln(a.Out, "Dry run, nothing written.")
		return nil
	}

	if !a.Opts.Yes && !a.Cfg.AutoConfirm {
		a.lastPhase = PhaseAwaiting
		ok, err := a.Confirm("Apply these changes?")
		if err != nil {
			return err
		}
		if !ok {
			a.lastPhase = PhaseAborted
			fmt.Fprintln(a.Out, "Aborted, nothing written.")
			return nil
		}
	}
	a.lastPhase = PhaseConfirmed

	report, err := engine.Apply(plan)
	if err != nil {
		a.lastPhase = PhaseAborted
		return err
	}
	a.lastPhase = PhaseApplied

	if err := a.recordBatch(engine.Root(), report); err != nil {
		log.Warn().Err(err).Msg("apply succeeded but the history ledger was not updated")
	}

	fmt.Fprint(a.Out, tui.RenderReport(report))

	if a.Opts.Git {
		return a.runGit(report)
	}
	return nil
}

// recordBatch appends the batch to the revert ledger.
func (a *App) recordBatch(root string, report *model.ApplyReport) error {
	h, err := backup.LoadHistory(root)
	if err != nil {
		return err
	}
	entry := backup.BatchEntry{Timestamp: time.Now().UTC()}
	for _, rel := range report.Created {
		entry.Created = append(entry.Created, filepath.Join(root, filepath.FromSlash(rel)))
	}
	entry.Overwritten = report.Backups
	return h.Append(root, entry)
}

// runGit stages, commits, and pushes the applied changes.
func (a *App) runGit(report *model.ApplyReport) error {
	msg := a.Opts.CommitMsg
	if msg == "" {
		msg = fmt.Sprintf("apply %d generated file(s)", len(report.Created)+len(report.Overwritten))
	}
	pipeline := &git.Pipeline{Root: a.Opts.Root, Message: msg, Run: a.GitRun}
	results, err := pipeline.Execute(context.Background())
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(a.Out, "git %s: %s\n", r.Name, r.Status)
	}
	return nil
}

// revert undoes the most recent apply batch.
func (a *App) revert() error {
	entry, err := backup.Revert(a.Opts.Root)
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Fprintln(a.Out, "Nothing to revert.")
		return nil
	}
	fmt.Fprintf(a.Out, "Reverted batch from %s: %d restored, %d removed.\n",
		entry.Timestamp.Format(time.RFC3339), len(entry.Overwritten), len(entry.Created))
	return nil
}

// collect gathers the input files, either from an explicit list or by
// walking the project root.
func (a *App) collect() ([]model.FileRecord, error) {
	exts := a.Opts.Extensions
	if len(exts) == 0 {
		exts = a.Cfg.Extensions
	}
	recursive := a.Opts.Recursive || a.Cfg.Recursive

	c := collector.New(a.Opts.Root, recursive, exts)
	if len(a.Opts.Files) > 0 {
		return c.FromList(a.Opts.Files)
	}
	return c.Collect()
}

// saveReply dumps the raw reply so a rejected or failed apply can be
// retried with --apply.
func (a *App) saveReply(reply string) error {
	path := filepath.Join(a.Opts.Root, config.ReplyLogFile)
	if err := os.WriteFile(path, []byte(reply), 0o644); err != nil {
		return errdef.WrapPath(errdef.EWrite, config.ReplyLogFile, "cannot save reply", err)
	}
	log.Info().Str("file", config.ReplyLogFile).Msg("saved raw reply")
	return nil
}
