package xapply

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/sokinpui/xapply/cli"
	"github.com/sokinpui/xapply/internal/applier"
	"github.com/sokinpui/xapply/internal/format"
	"github.com/sokinpui/xapply/internal/logger"
	"github.com/sokinpui/xapply/internal/nvim"
	"github.com/sokinpui/xapply/internal/parser"
	"github.com/sokinpui/xapply/internal/preview"
	"github.com/sokinpui/xapply/internal/source"
	"github.com/sokinpui/xapply/internal/state"
	"github.com/sokinpui/xapply/model"
)

// RunState is the stage a run is in.
type RunState int

const (
	Received RunState = iota
	Parsing
	ParseFailed
	Parsed
	Applying
	Done
)

func (s RunState) String() string {
	switch s {
	case Received:
		return "received"
	case Parsing:
		return "parsing"
	case ParseFailed:
		return "parse failed"
	case Parsed:
		return "parsed"
	case Applying:
		return "applying"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// ProgressUpdate is a callback function to report progress. current and
// total count file changes and are zero outside of Parsed and Applying.
type ProgressUpdate func(state RunState, current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	root             string
	log              *logger.Logger
	parser           *parser.Parser
	applier          *applier.Applier
	sourceProvider   *source.SourceProvider
	progressCallback ProgressUpdate

	mu       sync.Mutex
	previews []preview.Diff

	// Stdout receives the document printed in reformat mode.
	Stdout io.Writer
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App instance.
func New(cfg *cli.Config) (*App, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("root", root)

	ap := applier.New(log)
	ap.Protected = lo.Uniq(append(append([]string{}, applier.DefaultProtected...), cfg.Protected...))
	if cfg.NoFormat {
		ap.Formatter = nil
	} else {
		ap.Formatter = format.Default(cfg.PrettierPath)
	}

	return &App{
		cfg:            cfg,
		root:           root,
		log:            log,
		parser:         parser.New(log),
		applier:        ap,
		sourceProvider: source.New(cfg.File),
		Stdout:         os.Stdout,
	}, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// Root returns the absolute project root.
func (a *App) Root() string {
	return a.root
}

// Previews returns the diffs computed by the last dry run.
func (a *App) Previews() []preview.Diff {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.previews
}

func (a *App) notify(s RunState, current, total int) {
	if a.progressCallback != nil {
		a.progressCallback(s, current, total)
	}
}

// Parse turns a change-set document into file changes.
func (a *App) Parse(content string) ([]model.FileChange, error) {
	a.notify(Parsing, 0, 0)
	changes, err := a.parser.Parse(content)
	if err != nil {
		a.notify(ParseFailed, 0, 0)
		return nil, err
	}
	a.notify(Parsed, 0, len(changes))
	return changes, nil
}

// Apply applies changes under the project root, recording them for undo
// unless this is a dry run.
func (a *App) Apply(changes []model.FileChange) model.ApplyResult {
	opts := applier.Options{
		DryRun:           a.cfg.DryRun,
		AssumeRootExists: dirExists(a.root),
	}

	total := len(changes)
	a.notify(Applying, 0, total)

	// The shared applier is never mutated; hooks live on a per-call copy.
	ap := *a.applier
	ap.OnApplied = func(i, total int, _ model.FileChange, _ error) {
		a.notify(Applying, i+1, total)
	}

	var rec *state.Recorder
	if !opts.DryRun && total > 0 {
		if sm, err := state.New(a.root, a.log); err != nil {
			a.log.Warnf("history disabled for this run: %v", err)
		} else {
			rec = sm.Begin()
			ap.Journal = rec
		}
	}

	result := ap.ApplyChanges(changes, a.root, opts)

	if rec != nil {
		if err := rec.Commit(); err != nil {
			a.log.Error("could not record history, --undo will not see this run", err)
		}
	}
	if opts.DryRun {
		diffs := a.preview(changes, result.UpdatedFiles)
		a.mu.Lock()
		a.previews = diffs
		a.mu.Unlock()
	} else if a.cfg.Reload {
		a.reload(result.UpdatedFiles)
	}

	a.notify(Done, total, total)
	return result
}

// Execute executes the main application logic based on parsed flags.
func (a *App) Execute() (result model.ApplyResult, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Undo:
		return a.Undo()
	case a.cfg.Reformat:
		return a.reformat()
	default:
		return a.processContent()
	}
}

// processContent reads the source, parses it and applies the changes.
func (a *App) processContent() (model.ApplyResult, error) {
	content, err := a.sourceProvider.GetContent()
	if err != nil {
		return emptyResult(""), err
	}
	a.notify(Received, 0, 0)
	if strings.TrimSpace(content) == "" {
		return emptyResult("Source is empty. Nothing to process."), nil
	}

	changes, err := a.Parse(content)
	if err != nil {
		return emptyResult(""), err
	}
	return a.Apply(changes), nil
}

// reformat prints the repaired, CDATA-wrapped document so it can be fixed
// by hand.
func (a *App) reformat() (model.ApplyResult, error) {
	content, err := a.sourceProvider.GetContent()
	if err != nil {
		return emptyResult(""), err
	}
	if strings.TrimSpace(content) == "" {
		return emptyResult("Source is empty. Nothing to process."), nil
	}

	prepared := a.parser.Prepare(content)
	if _, err := io.WriteString(a.Stdout, prepared); err != nil {
		return emptyResult(""), fmt.Errorf("failed to write document: %w", err)
	}

	result := emptyResult("Printed the repaired document.")
	changes, err := a.parser.Parse(content)
	if err != nil {
		result.WarningMessage = err.Error()
	} else {
		result.Details = fmt.Sprintf("%d file change(s) found.", len(changes))
	}
	return result, nil
}

// Undo reverts the last recorded batch.
func (a *App) Undo() (model.ApplyResult, error) {
	sm, err := state.New(a.root, a.log)
	if err != nil {
		return emptyResult(""), fmt.Errorf("failed to initialize state manager: %w", err)
	}

	a.notify(Applying, 0, 0)
	result, err := sm.Undo()
	if errors.Is(err, state.ErrNothingToUndo) {
		return emptyResult("No operation to undo."), nil
	}
	if err != nil {
		return result, err
	}
	if a.cfg.Reload {
		a.reload(result.UpdatedFiles)
	}
	a.notify(Done, len(result.UpdatedFiles), len(result.UpdatedFiles)+len(result.FailedFiles))
	return result, nil
}

func (a *App) preview(changes []model.FileChange, valid []string) []preview.Diff {
	ok := lo.Associate(valid, func(p string) (string, bool) { return p, true })
	var diffs []preview.Diff
	for _, change := range changes {
		if !ok[change.Path] {
			continue
		}
		d, err := a.applier.Preview(change, a.root)
		if err != nil {
			a.log.Debugf("no preview for %s: %v", change.Path, err)
			continue
		}
		diffs = append(diffs, d)
	}
	return diffs
}

func (a *App) reload(paths []string) {
	if len(paths) == 0 {
		return
	}
	manager, err := nvim.New()
	if err != nil {
		a.log.Warnf("skipping buffer reload: %v", err)
		return
	}
	defer manager.Close()

	if err := manager.Reload(a.root, paths); err != nil {
		a.log.Warnf("buffer reload failed: %v", err)
	}
}

func emptyResult(message string) model.ApplyResult {
	return model.ApplyResult{
		Message:      message,
		UpdatedFiles: []string{},
		FailedFiles:  []model.FailedFile{},
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
