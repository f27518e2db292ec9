// Package cdata guarantees that every <file_code> payload in a change-set
// document is protected by CDATA exactly once.
package cdata

import (
	"regexp"
	"strings"
)

const (
	Open  = "<![CDATA["
	Close = "]]>"

	// splitClose ends the current section after "]]" and reopens one for ">",
	// so a payload containing "]]>" survives wrapping byte for byte.
	splitClose = "]]]]><![CDATA[>"
)

var fileCodeRe = regexp.MustCompile(`(?s)<file_code>(.*?)</file_code>`)

// Stats describes what Wrap did to a document.
type Stats struct {
	Blocks    int
	Untouched int
	Wrapped   int
	Rewrapped int
	// Shrunk is set when a block was wrapped yet the output is shorter than
	// the input. It never happens for a correct wrap and is only reported.
	Shrunk bool
}

// Wrap rewrites every <file_code> block so its content is a CDATA section.
func Wrap(text string) string {
	out, _ := WrapWithStats(text)
	return out
}

// WrapWithStats is Wrap, also reporting per-block outcomes.
func WrapWithStats(text string) (string, Stats) {
	var st Stats
	out := fileCodeRe.ReplaceAllStringFunc(text, func(block string) string {
		st.Blocks++
		content := block[len("<file_code>") : len(block)-len("</file_code>")]

		if IsWrapped(content) {
			st.Untouched++
			return block
		}
		if strings.Contains(content, Open) {
			st.Rewrapped++
			content = Strip(content)
		} else {
			st.Wrapped++
		}
		return "<file_code>" + Protect(content) + "</file_code>"
	})
	if st.Wrapped+st.Rewrapped > 0 && len(out) < len(text) {
		st.Shrunk = true
	}
	return out, st
}

// IsWrapped reports whether content, ignoring surrounding whitespace, is a
// clean CDATA open/close pair.
func IsWrapped(content string) bool {
	t := strings.TrimSpace(content)
	return strings.HasPrefix(t, Open) && strings.HasSuffix(t, Close)
}

// Strip removes every CDATA marker from content.
func Strip(content string) string {
	content = strings.ReplaceAll(content, Open, "")
	return strings.ReplaceAll(content, Close, "")
}

// Protect wraps content verbatim in a CDATA section.
func Protect(content string) string {
	return Open + strings.ReplaceAll(content, Close, splitClose) + Close
}

// Unprotect reverses Protect for text taken from between the outermost
// markers of a protected payload.
func Unprotect(inner string) string {
	return strings.ReplaceAll(inner, splitClose, Close)
}
