// Package applier writes change-set entries to disk.
//
// ApplyChange handles one entry and returns its failure as an error.
// ApplyChanges runs a whole change-set in order, turning per-entry failures
// into result entries so that one bad file never stops the rest.
package applier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/sokinpui/xapply/internal/format"
	"github.com/sokinpui/xapply/internal/fs"
	"github.com/sokinpui/xapply/internal/logger"
	"github.com/sokinpui/xapply/internal/preview"
	"github.com/sokinpui/xapply/model"
)

// DefaultProtected lists globs, relative to the project root, that are never
// written or deleted.
var DefaultProtected = []string{".git/**", ".xapply/**"}

// Options controls a run.
type Options struct {
	// DryRun validates every change without calling the filesystem.
	DryRun bool
	// AssumeRootExists stands in for the project root existence check
	// during a dry run.
	AssumeRootExists bool
}

// Journal is told about each mutation just before and after it happens. It
// is not called during a dry run.
type Journal interface {
	Before(change model.FileChange, target string)
	After(change model.FileChange, target string, written []byte)
}

// Applier applies changes under a project root.
type Applier struct {
	FS        fs.FS
	Formatter format.Formatter
	Log       *logger.Logger
	// Protected holds doublestar globs matched against the slash-separated
	// relative path.
	Protected []string
	Journal   Journal
	// OnApplied is called by ApplyChanges after each entry.
	OnApplied func(i, total int, change model.FileChange, err error)
}

// New returns an Applier on the real filesystem with the default formatter.
func New(log *logger.Logger) *Applier {
	return &Applier{
		FS:        fs.OS{},
		Formatter: format.Default(""),
		Log:       logger.OrNop(log),
		Protected: DefaultProtected,
	}
}

func (a *Applier) log() *logger.Logger {
	return logger.OrNop(a.Log)
}

// ApplyChange validates and performs one change.
func (a *Applier) ApplyChange(change model.FileChange, root string, opts Options) error {
	target, err := a.validate(change, root)
	if err != nil {
		return err
	}

	if opts.DryRun {
		if !opts.AssumeRootExists {
			return accessError(root, os.ErrNotExist, "No such directory "+root)
		}
		a.log().Debugf("dry run: %s %s validated", change.Operation, change.Path)
		return nil
	}

	info, err := a.FS.Stat(root)
	if err != nil {
		return accessError(root, err, "No such directory "+root)
	}
	if !info.IsDir() {
		return accessError(root, os.ErrNotExist, "No such directory "+root)
	}

	switch change.Operation {
	case model.OpDelete:
		return a.remove(change, target)
	case model.OpUpdate:
		if _, err := a.FS.Stat(target); err != nil {
			return accessError(change.Path, err, "File does not exist: "+change.Path)
		}
	}
	return a.write(change, target)
}

// validate runs every check that needs no I/O and returns the target path.
func (a *Applier) validate(change model.FileChange, root string) (string, error) {
	if strings.TrimSpace(change.Path) == "" {
		return "", validationError("", "Missing file_path")
	}

	target, err := fs.ResolveInRoot(root, change.Path)
	if err != nil {
		if errors.Is(err, fs.ErrUnsafePath) {
			return "", &Error{
				Kind:    KindSecurity,
				Path:    change.Path,
				Message: fmt.Sprintf("Invalid file path: %s (%v)", change.Path, err),
				Err:     err,
			}
		}
		return "", accessError(change.Path, err, "")
	}

	if a.isProtected(change.Path) {
		return "", &Error{
			Kind:    KindSecurity,
			Path:    change.Path,
			Message: "Refusing to modify protected path: " + change.Path,
		}
	}

	switch change.Operation {
	case model.OpCreate:
		if change.Code == "" {
			return "", validationError(change.Path, "Missing file_code for CREATE operation")
		}
	case model.OpUpdate, model.OpDelete:
	default:
		return "", &Error{
			Kind:    KindUnknownOperation,
			Path:    change.Path,
			Message: fmt.Sprintf("Unknown file operation: %s", change.Operation),
		}
	}
	return target, nil
}

func (a *Applier) isProtected(rel string) bool {
	clean := filepath.ToSlash(filepath.Clean(strings.ReplaceAll(rel, `\`, "/")))
	for _, pattern := range a.Protected {
		if ok, _ := doublestar.Match(pattern, clean); ok {
			return true
		}
		// "dir/**" also covers "dir" itself.
		if base, found := strings.CutSuffix(pattern, "/**"); found && clean == base {
			return true
		}
	}
	return false
}

func (a *Applier) write(change model.FileChange, target string) error {
	if err := a.FS.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return writeError(change.Path, err)
	}

	content := []byte(a.format(change.Path, change.Code))
	if a.Journal != nil {
		a.Journal.Before(change, target)
	}
	if err := a.FS.WriteFile(target, content, 0o644); err != nil {
		return writeError(change.Path, err)
	}
	if a.Journal != nil {
		a.Journal.After(change, target, content)
	}
	a.log().Debugf("%s %s (%d bytes)", change.Operation, change.Path, len(content))
	return nil
}

func (a *Applier) remove(change model.FileChange, target string) error {
	info, err := a.FS.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			a.log().Debugf("DELETE %s: already absent", change.Path)
			return nil
		}
		return accessError(change.Path, err, "File does not exist: "+change.Path)
	}
	if info.IsDir() {
		return validationError(change.Path, "Refusing to delete directory: "+change.Path)
	}

	if a.Journal != nil {
		a.Journal.Before(change, target)
	}
	if err := a.FS.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return writeError(change.Path, err)
	}
	if a.Journal != nil {
		a.Journal.After(change, target, nil)
	}
	return nil
}

// format returns code run through the formatter for path's extension, or
// code unchanged when there is no formatter or it fails.
func (a *Applier) format(path, code string) string {
	parser, ok := format.ParserHint(path)
	if !ok || a.Formatter == nil || code == "" {
		return code
	}
	out, err := a.Formatter.Format(code, parser)
	if err != nil {
		if !errors.Is(err, format.ErrUnsupported) {
			a.log().Warnf("formatting %s failed, writing it unformatted: %v", path, err)
		}
		return code
	}
	return out
}

// Preview reports what change would do to its target without writing. It
// reads the current file content when there is one.
func (a *Applier) Preview(change model.FileChange, root string) (preview.Diff, error) {
	target, err := a.validate(change, root)
	if err != nil {
		return preview.Diff{}, err
	}

	var before string
	if data, err := a.FS.ReadFile(target); err == nil {
		before = string(data)
	} else if !os.IsNotExist(err) {
		return preview.Diff{}, accessError(change.Path, err, "File does not exist: "+change.Path)
	}

	after := ""
	if change.Operation != model.OpDelete {
		after = a.format(change.Path, change.Code)
	}
	return preview.Lines(change.Path, before, after, 3), nil
}
