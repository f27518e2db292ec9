package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/sokinpui/xapply/cli"
	"github.com/sokinpui/xapply/internal/tui"
	"github.com/sokinpui/xapply/internal/ui"
	"github.com/sokinpui/xapply/xapply"
)

func main() {
	cfg, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		if !errors.Is(err, cli.ErrInvalidFlags) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(2)
	}

	app, err := xapply.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// --reformat prints the document to stdout and should not run the TUI.
	if cfg.NoTUI || cfg.Reformat {
		os.Exit(runPlain(app, cfg))
	}

	var opts []tea.ProgramOption
	if !stdinIsTerminal() {
		// stdin carries the document, not key presses.
		opts = append(opts, tea.WithInput(nil))
	}
	model := tui.New(app, cfg)
	p := tea.NewProgram(model, opts...)
	model.SetProgram(p)
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(tui.Model); ok && m.Failed() {
		os.Exit(1)
	}
}

func runPlain(app *xapply.App, cfg *cli.Config) int {
	var bar *ui.ProgressBar
	app.SetProgressCallback(func(s xapply.RunState, current, total int) {
		if s != xapply.Applying || total == 0 {
			return
		}
		if bar == nil {
			bar = ui.NewProgressBar(total, "Applying")
		}
		bar.Set(current)
	})

	result, err := app.Execute()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		ui.Error("Error: %v", err)
		var detailed *xapply.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		return 1
	}

	if cfg.Reformat {
		if result.WarningMessage != "" {
			ui.Warning("%s", result.WarningMessage)
		} else {
			ui.Info("%s", result.Details)
		}
		return 0
	}

	ui.PrintPreviews(app.Previews())
	ui.PrintApplyResult(summaryTitle(cfg), result)
	if !result.Success && len(result.FailedFiles) > 0 {
		return 1
	}
	return 0
}

func summaryTitle(cfg *cli.Config) string {
	switch {
	case cfg.Undo:
		return "Undo Summary"
	case cfg.DryRun:
		return "Dry Run Summary"
	default:
		return "Update Summary"
	}
}

func stdinIsTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
