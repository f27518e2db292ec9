package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/xapply/internal/ui"
)

// SourceProvider determines and retrieves the change-set document.
type SourceProvider struct {
	file  string
	stdin io.Reader
	// piped reports whether stdin carries data.
	piped func() bool
	// clipboard reads the system clipboard.
	clipboard func() (string, error)
}

// New creates a SourceProvider. A non-empty file takes precedence over stdin
// and the clipboard; "-" means stdin.
func New(file string) *SourceProvider {
	return &SourceProvider{
		file:      file,
		stdin:     os.Stdin,
		piped:     stdinIsPiped,
		clipboard: clipboard.ReadAll,
	}
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent retrieves the document from a file, stdin (if piped) or the
// clipboard, and unwraps it from a surrounding chat response if needed.
func (sp *SourceProvider) GetContent() (string, error) {
	raw, err := sp.read()
	if err != nil {
		return "", err
	}
	return ExtractDocument(raw), nil
}

func (sp *SourceProvider) read() (string, error) {
	switch {
	case sp.file != "" && sp.file != "-":
		ui.Header("--- Reading from %s ---", sp.file)
		content, err := os.ReadFile(sp.file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", sp.file, err)
		}
		return string(content), nil

	case sp.file == "-" || sp.piped():
		ui.Header("--- Reading from stdin ---")
		content, err := io.ReadAll(sp.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := sp.clipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}
