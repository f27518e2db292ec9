// Package xapply applies XML change-set documents to a project tree.
//
// A change-set lists files to create, update or delete:
//
//	<changed_files>
//	  <file>
//	    <file_summary>Add helper</file_summary>
//	    <file_operation>CREATE</file_operation>
//	    <file_path>src/util.js</file_path>
//	    <file_code><![CDATA[export const id = x => x;]]></file_code>
//	  </file>
//	</changed_files>
//
// Documents produced by language models are often slightly malformed; they
// are repaired before parsing, and file bodies are wrapped in CDATA so that
// raw source code never breaks the XML structure.
package xapply

import (
	"github.com/sokinpui/xapply/internal/applier"
	"github.com/sokinpui/xapply/internal/parser"
	"github.com/sokinpui/xapply/model"
)

// Options for using xapply as a library.
type Options struct {
	// Validate every change without touching the disk.
	DryRun bool
	// During a dry run, treat the project root as existing.
	AssumeRootExists bool
	// Write file contents exactly as given.
	NoFormat bool
	// Extra doublestar globs, relative to the root, that are never modified.
	Protected []string
}

// ParseXMLString repairs and parses a change-set document.
func ParseXMLString(text string) ([]model.FileChange, error) {
	return parser.ParseXMLString(text)
}

// ApplyXML parses text and applies every change under root, in order. A
// document that cannot be parsed is returned as an error and nothing is
// written; per-file failures are reported in the result instead.
func ApplyXML(text, root string, opts Options) (model.ApplyResult, error) {
	changes, err := ParseXMLString(text)
	if err != nil {
		return emptyResult(err.Error()), err
	}

	ap := applier.New(nil)
	ap.Protected = append(append([]string{}, applier.DefaultProtected...), opts.Protected...)
	if opts.NoFormat {
		ap.Formatter = nil
	}

	return ap.ApplyChanges(changes, root, applier.Options{
		DryRun:           opts.DryRun,
		AssumeRootExists: opts.AssumeRootExists,
	}), nil
}
