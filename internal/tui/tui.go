// Package tui renders the plan preview and summary and hosts the
// interactive pieces: the confirmation gate and the generation spinner.
package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cmdr/internal/model"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	createStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	changeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// RenderPlan builds the human-readable preview shown before any mutation.
func RenderPlan(plan *model.ApplyPlan, diags []model.Diagnostic) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Planned changes"))
	b.WriteString("\n")

	section := func(title string, style lipgloss.Style, records []model.FileRecord) {
		if len(records) == 0 {
			return
		}
		b.WriteString(style.Render(fmt.Sprintf("%s (%d):", title, len(records))))
		b.WriteString("\n")
		for _, rec := range records {
			b.WriteString(fmt.Sprintf("  %s\n", rec.RelPath))
		}
	}
	section("Create", createStyle, plan.ToCreate)
	section("Overwrite", changeStyle, plan.ToOverwrite)
	section("Unchanged", faintStyle, plan.Unchanged)

	if plan.Empty() && len(plan.Unchanged) == 0 {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	for _, d := range diags {
		b.WriteString(warnStyle.Render(fmt.Sprintf("warning: %s", diagLine(d))))
		b.WriteString("\n")
	}
	return b.String()
}

func diagLine(d model.Diagnostic) string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.Path != "" {
		b.WriteString(" ")
		b.WriteString(d.Path)
	}
	if d.Line > 0 {
		b.WriteString(fmt.Sprintf(" (line %d)", d.Line))
	}
	b.WriteString(": ")
	b.WriteString(d.Msg)
	return b.String()
}

// RenderReport builds the post-apply summary.
func RenderReport(report *model.ApplyReport) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Apply summary"))
	b.WriteString("\n")

	list := func(title string, style lipgloss.Style, paths []string) {
		if len(paths) == 0 {
			return
		}
		b.WriteString(style.Render(fmt.Sprintf("%s (%d):", title, len(paths))))
		b.WriteString("\n")
		for _, p := range paths {
			b.WriteString(fmt.Sprintf("  %s\n", p))
		}
	}
	list("Created", createStyle, report.Created)
	list("Overwritten", changeStyle, report.Overwritten)
	list("Unchanged", faintStyle, report.Unchanged)

	if len(report.Backups) > 0 {
		b.WriteString(faintStyle.Render(fmt.Sprintf("Backups (%d):", len(report.Backups))))
		b.WriteString("\n")
		for _, bak := range report.Backups {
			b.WriteString(faintStyle.Render(fmt.Sprintf("  %s", bak.BackupPath)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// --- confirmation gate ---

type confirmModel struct {
	question string
	decided  bool
	yes      bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y":
			m.decided, m.yes = true, true
			return m, tea.Quit
		case "n", "N", "q", "esc", "enter", "ctrl+c":
			m.decided, m.yes = true, false
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.decided {
		return ""
	}
	return promptStyle.Render(m.question+" (y/N) ") + "\n"
}

// Confirm blocks until the user answers yes or no. Declining is the
// default. When stdin is a pipe (the reply arrived through it and is
// already consumed), the answer is read from the controlling terminal;
// with no terminal at all the run declines and says how to bypass the gate.
func Confirm(question string) (bool, error) {
	if !isTerminal() {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render(
				"no terminal to confirm on; declining (re-run with -y to apply without the prompt)"))
			return false, nil
		}
		defer tty.Close()
		return confirmFromReader(tty, os.Stderr, question)
	}

	p := tea.NewProgram(confirmModel{question: question}, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	return m.decided && m.yes, nil
}

// confirmFromReader prompts on w and reads one line from r. EOF or anything
// other than "y" declines.
func confirmFromReader(r io.Reader, w io.Writer, question string) (bool, error) {
	fmt.Fprint(w, question+" (y/N): ")
	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && answer == "" {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y"), nil
}

// --- generation spinner ---

type spinDoneMsg struct {
	out string
	err error
}

type spinModel struct {
	spinner spinner.Model
	message string
	work    func() (string, error)
	out     string
	err     error
	done    bool
}

func (m spinModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		out, err := m.work()
		return spinDoneMsg{out: out, err: err}
	})
}

func (m spinModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinDoneMsg:
		m.out, m.err, m.done = msg.out, msg.err, true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err = fmt.Errorf("cancelled")
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m spinModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.message)
}

// Spin runs work while showing a spinner, returning the work's result.
// Without a terminal the work runs directly.
func Spin(message string, work func() (string, error)) (string, error) {
	if !isTerminal() {
		return work()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	p := tea.NewProgram(spinModel{spinner: s, message: message, work: work}, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m := final.(spinModel)
	return m.out, m.err
}

func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
