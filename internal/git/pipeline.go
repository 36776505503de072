// Package git runs the post-apply version-control choreography as a single
// state machine with named, idempotent phases.
package git

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"cmdr/internal/errdef"
)

// Runner executes one external command and returns its combined output.
// It exists so the pipeline can be tested without a real repository.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// PhaseStatus is the outcome of one pipeline phase.
type PhaseStatus string

const (
	PhaseDone    PhaseStatus = "done"
	PhaseSkipped PhaseStatus = "skipped"
)

// PhaseResult reports what one named phase did.
type PhaseResult struct {
	Name   string
	Status PhaseStatus
	Detail string
}

// Pipeline stages, commits, and pushes the working tree. Each phase checks
// whether its work is already done, so a failed run can be re-entered
// without duplicating effort.
type Pipeline struct {
	Root    string
	Message string
	Run     Runner
}

type phase struct {
	name string
	fn   func(ctx context.Context) (PhaseResult, error)
}

// Execute runs the phases in order and stops at the first failure. The
// results of completed phases are returned either way.
func (p *Pipeline) Execute(ctx context.Context) ([]PhaseResult, error) {
	if _, err := p.Run.Run(ctx, p.Root, "git", "rev-parse", "--git-dir"); err != nil {
		return nil, errdef.Wrap(errdef.EGit, "not a git repository", err)
	}

	phases := []phase{
		{"stage", p.stage},
		{"commit", p.commit},
		{"push", p.push},
	}

	var results []PhaseResult
	for _, ph := range phases {
		result, err := ph.fn(ctx)
		if err != nil {
			return results, err
		}
		log.Info().Str("phase", result.Name).Str("status", string(result.Status)).Msg("git phase")
		results = append(results, result)
	}
	return results, nil
}

// stage adds all changes; a clean tree makes this a no-op.
func (p *Pipeline) stage(ctx context.Context) (PhaseResult, error) {
	status, err := p.Run.Run(ctx, p.Root, "git", "status", "--porcelain")
	if err != nil {
		return PhaseResult{}, errdef.Wrap(errdef.EGit, "git status failed", err)
	}
	if status == "" {
		return PhaseResult{Name: "stage", Status: PhaseSkipped, Detail: "working tree clean"}, nil
	}
	if out, err := p.Run.Run(ctx, p.Root, "git", "add", "-A"); err != nil {
		return PhaseResult{}, errdef.Wrap(errdef.EGit, "git add failed: "+out, err)
	}
	return PhaseResult{Name: "stage", Status: PhaseDone}, nil
}

// commit commits staged changes; nothing staged makes this a no-op.
func (p *Pipeline) commit(ctx context.Context) (PhaseResult, error) {
	if _, err := p.Run.Run(ctx, p.Root, "git", "diff", "--cached", "--quiet"); err == nil {
		return PhaseResult{Name: "commit", Status: PhaseSkipped, Detail: "nothing staged"}, nil
	}
	msg := p.Message
	if msg == "" {
		msg = "apply generated changes"
	}
	if out, err := p.Run.Run(ctx, p.Root, "git", "commit", "-m", msg); err != nil {
		return PhaseResult{}, errdef.Wrap(errdef.EGit, "git commit failed: "+out, err)
	}
	return PhaseResult{Name: "commit", Status: PhaseDone, Detail: msg}, nil
}

// push pushes the current branch; no origin remote makes this a no-op.
func (p *Pipeline) push(ctx context.Context) (PhaseResult, error) {
	if _, err := p.Run.Run(ctx, p.Root, "git", "config", "--get", "remote.origin.url"); err != nil {
		return PhaseResult{Name: "push", Status: PhaseSkipped, Detail: "no origin remote"}, nil
	}
	if out, err := p.Run.Run(ctx, p.Root, "git", "push"); err != nil {
		return PhaseResult{}, errdef.Wrap(errdef.EGit, "git push failed: "+out, err)
	}
	return PhaseResult{Name: "push", Status: PhaseDone}, nil
}
