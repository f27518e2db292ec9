// Package format pretty-prints file content before it is written. Formatting
// is always best effort: callers keep the original content on any error.
package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned by a Formatter that does not handle a parser hint.
var ErrUnsupported = errors.New("format: unsupported parser")

// Formatter formats content for the given parser hint.
type Formatter interface {
	Format(content, parser string) (string, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(content, parser string) (string, error)

func (f FormatterFunc) Format(content, parser string) (string, error) {
	return f(content, parser)
}

var parserByExt = map[string]string{
	".js":       "babel",
	".jsx":      "babel",
	".mjs":      "babel",
	".cjs":      "babel",
	".ts":       "typescript",
	".tsx":      "typescript",
	".css":      "css",
	".scss":     "scss",
	".less":     "less",
	".json":     "json",
	".html":     "html",
	".htm":      "html",
	".xml":      "xml",
	".md":       "markdown",
	".markdown": "markdown",
}

// ParserHint returns the parser for path's extension. ok is false for
// files that are written unformatted.
func ParserHint(path string) (string, bool) {
	p, ok := parserByExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// Prettier runs the prettier CLI on stdin.
type Prettier struct {
	// Path to the prettier binary. Empty means "prettier" from PATH.
	Path string
}

func (p Prettier) Format(content, parser string) (string, error) {
	bin := p.Path
	if bin == "" {
		bin = "prettier"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("prettier not available: %w", err)
	}

	cmd := exec.Command(resolved, "--parser", parser)
	cmd.Stdin = strings.NewReader(content)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("prettier --parser %s failed: %s", parser, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

// JSON indents JSON documents with two spaces.
type JSON struct{}

func (JSON) Format(content, parser string) (string, error) {
	if parser != "json" {
		return "", ErrUnsupported
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(content)), "", "  "); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// Chain tries each formatter in turn and returns the first success.
type Chain []Formatter

func (c Chain) Format(content, parser string) (string, error) {
	var errs []error
	for _, f := range c {
		out, err := f.Format(content, parser)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrUnsupported) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return "", ErrUnsupported
	}
	return "", errors.Join(errs...)
}

// Default returns prettier with a native JSON fallback.
func Default(prettierPath string) Formatter {
	return Chain{Prettier{Path: prettierPath}, JSON{}}
}
