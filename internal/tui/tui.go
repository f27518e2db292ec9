package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/xapply/cli"
	"github.com/sokinpui/xapply/internal/preview"
	"github.com/sokinpui/xapply/model"
	"github.com/sokinpui/xapply/xapply"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type resultMsg struct {
	model.ApplyResult
	previews []preview.Diff
}

type progressMsg struct {
	state          xapply.RunState
	current, total int
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---
type Model struct {
	app     *xapply.App
	cfg     *cli.Config
	spinner spinner.Model
	state   state
	run     progressMsg
	result  resultMsg
	err     error
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

func New(app *xapply.App, cfg *cli.Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		app:     app,
		cfg:     cfg,
		spinner: s,
		state:   stateProcessing,
	}
}

// SetProgram forwards the app's progress updates to p.
func (m Model) SetProgram(p *tea.Program) {
	m.app.SetProgressCallback(func(s xapply.RunState, current, total int) {
		p.Send(progressMsg{state: s, current: current, total: total})
	})
}

// Failed reports whether the run ended in an error or applied nothing
// while some changes failed.
func (m Model) Failed() bool {
	switch m.state {
	case stateError:
		return true
	case stateSummary:
		return !m.result.Success && len(m.result.FailedFiles) > 0
	}
	return false
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case progressMsg:
		m.run = msg
		return m, nil

	case resultMsg:
		m.state = stateSummary
		m.result = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s %s", m.spinner.View(), m.progressLabel())
	case stateError:
		return errorStyle.Render("Error: ") + m.err.Error() + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m Model) progressLabel() string {
	switch m.run.state {
	case xapply.Parsing:
		return "Parsing change-set..."
	case xapply.Parsed:
		return fmt.Sprintf("Found %d file change(s)...", m.run.total)
	case xapply.Applying:
		if m.run.total == 0 {
			return "Applying..."
		}
		return fmt.Sprintf("Applying %d/%d...", m.run.current, m.run.total)
	default:
		return "Processing..."
	}
}

func (m Model) renderSummary() string {
	var b strings.Builder
	r := m.result

	if r.Message != "" {
		b.WriteString(headerStyle.Render(r.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	if len(r.UpdatedFiles) > 0 {
		hasContent = true
		label := "Updated:"
		if m.cfg != nil && m.cfg.DryRun {
			label = "Would update:"
		}
		b.WriteString(successStyle.Render(label))
		b.WriteString("\n")
		diffs := make(map[string]preview.Diff, len(r.previews))
		for _, d := range r.previews {
			diffs[d.Path] = d
		}
		for _, f := range r.UpdatedFiles {
			b.WriteString(fmt.Sprintf("  %s", pathStyle.Render(f)))
			if d, ok := diffs[f]; ok {
				b.WriteString(" " + faintStyle.Render(d.Summary()))
			}
			b.WriteString("\n")
		}
	}
	if len(r.FailedFiles) > 0 {
		hasContent = true
		b.WriteString(errorStyle.Render("Failed:"))
		b.WriteString("\n")
		for _, f := range r.FailedFiles {
			b.WriteString(fmt.Sprintf("  %s %s\n", pathStyle.Render(f.Path), faintStyle.Render(f.Reason)))
		}
	}
	if r.WarningMessage != "" {
		b.WriteString(warningStyle.Render(r.WarningMessage))
		b.WriteString("\n")
	}

	if !hasContent && r.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
	}

	return b.String()
}

func (m Model) runApp() tea.Msg {
	result, err := m.app.Execute()
	if err != nil {
		// Check for detailed error to print stack
		var detailed *xapply.DetailedError
		if errors.As(err, &detailed) {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		return errorMsg{err}
	}
	return resultMsg{ApplyResult: result, previews: m.app.Previews()}
}
