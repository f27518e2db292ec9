package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sokinpui/xapply/internal/cdata"
	"github.com/sokinpui/xapply/internal/diagnostic"
	"github.com/sokinpui/xapply/internal/logger"
	"github.com/sokinpui/xapply/internal/repair"
	"github.com/sokinpui/xapply/internal/xmltree"
	"github.com/sokinpui/xapply/model"
)

// ErrEmptyInput is returned for an empty or whitespace-only document.
var ErrEmptyInput = errors.New("Empty or null XML input")

// ReformatHint is appended to parse errors.
const ReformatHint = "Tip: run with --reformat to print a repaired copy of the document, fix it, and apply again."

// ParseError is returned when the document cannot be parsed even after repair.
type ParseError struct {
	// Cause is the underlying parser error.
	Cause error
	// Excerpt localizes the failure in the repaired document.
	Excerpt string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("Error parsing XML: XML parsing failed: ")
	b.WriteString(e.Cause.Error())
	if e.Excerpt != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Excerpt)
	}
	b.WriteString("\n\n")
	b.WriteString(ReformatHint)
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Parser extracts change-sets from documents.
type Parser struct {
	log *logger.Logger
}

// New creates a Parser. A nil logger discards output.
func New(log *logger.Logger) *Parser {
	return &Parser{log: logger.OrNop(log)}
}

// ParseXMLString extracts the change-set from text with a default Parser.
func ParseXMLString(text string) ([]model.FileChange, error) {
	return New(nil).Parse(text)
}

// Prepare runs the repair rules and CDATA protection; the output is what
// Parse hands to the XML decoder.
func (p *Parser) Prepare(text string) string {
	repaired, fired := repair.Apply(text)
	for _, k := range fired {
		p.log.Debugf("repair rule %s rewrote the document", k)
	}

	wrapped, st := cdata.WrapWithStats(repaired)
	p.log.Debugf("file_code blocks: %d (wrapped %d, rewrapped %d, untouched %d)",
		st.Blocks, st.Wrapped, st.Rewrapped, st.Untouched)
	if st.Shrunk {
		p.log.Warnf("CDATA wrapping produced a shorter document (%d -> %d bytes)", len(repaired), len(wrapped))
	}
	return wrapped
}

// Parse extracts the ordered change-set from text.
func (p *Parser) Parse(text string) ([]model.FileChange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	prepared := p.Prepare(text)
	root, err := xmltree.Parse(prepared)
	if err == nil {
		return p.extract(root), nil
	}

	if looksForeign(err) && fileBlockRe.MatchString(prepared) {
		p.log.Warnf("XML parsing failed (%v); using degraded extraction", err)
		if changes := p.ExtractFallback(prepared); len(changes) > 0 {
			return changes, nil
		}
	}

	return nil, &ParseError{
		Cause:   err,
		Excerpt: diagnostic.Locate(prepared, err.Error()),
	}
}

func (p *Parser) extract(root *xmltree.Element) []model.FileChange {
	var changes []model.FileChange
	for i, file := range root.Descendants("file") {
		pathEl := file.Child("file_path")
		opEl := file.Child("file_operation")
		codeEl := file.Child("file_code")
		if pathEl == nil || opEl == nil || codeEl == nil {
			p.log.Warnf("skipping file entry %d: %s", i+1, missingFields(pathEl, opEl, codeEl))
			continue
		}

		change := model.FileChange{
			Path:      strings.TrimSpace(pathEl.Text()),
			Operation: model.ParseOperation(opEl.Text()),
			Code:      codeText(codeEl),
		}
		if s := file.Child("file_summary"); s != nil {
			change.Summary = strings.TrimSpace(s.Text())
		}
		changes = append(changes, change)
	}
	return changes
}

// codeText prefers CDATA content. Without CDATA the decoded text is used as
// is, entity references included.
func codeText(el *xmltree.Element) string {
	if v, ok := el.CDataText(); ok {
		return v
	}
	return el.Text()
}

func missingFields(path, op, code *xmltree.Element) string {
	var missing []string
	if path == nil {
		missing = append(missing, "file_path")
	}
	if op == nil {
		missing = append(missing, "file_operation")
	}
	if code == nil {
		missing = append(missing, "file_code")
	}
	return fmt.Sprintf("missing %s", strings.Join(missing, ", "))
}

// looksForeign reports whether a parse failure was caused by source code in
// another language rather than by broken protocol markup.
func looksForeign(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{"processing instruction", "<?php", "entity", "illegal character"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
