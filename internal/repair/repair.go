// Package repair rewrites change-set documents so that common non-well-formed
// patterns produced by language models parse as XML.
//
// The rule set is fixed and ordered. Rules never touch the payload of a
// <file_code> element except to close CDATA sections and file_code elements
// that were left open.
package repair

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNilInput is returned by PreprocessPtr when no document is given.
var ErrNilInput = errors.New("repair: nil input")

// Kind identifies a repair rule.
type Kind int

const (
	UnquotedAttr Kind = iota
	RawComment
	PhpTag
	UnterminatedCdata
	OrphanedCdata
)

func (k Kind) String() string {
	switch k {
	case UnquotedAttr:
		return "UnquotedAttr"
	case RawComment:
		return "RawComment"
	case PhpTag:
		return "PhpTag"
	case UnterminatedCdata:
		return "UnterminatedCdata"
	case OrphanedCdata:
		return "OrphanedCdata"
	default:
		return "Unknown"
	}
}

// Rule is a single rewrite step.
type Rule struct {
	Kind  Kind
	Apply func(string) string
}

const (
	cdataOpen     = "<![CDATA["
	cdataClose    = "]]>"
	fileCodeOpen  = "<file_code>"
	fileCodeClose = "</file_code>"
	fileClose     = "</file>"
)

type region struct {
	open, close string
	// bodyOnly leaves the open and close tags to the rules.
	bodyOnly bool
}

// Payloads of file_code, CDATA sections and comments are never rewritten.
var protectedRegions = []region{
	{fileCodeOpen, fileCodeClose, true},
	{cdataOpen, cdataClose, false},
	{"<!--", "-->", false},
}

// Character data of these elements is plain text; a "//" in it is not a
// stray comment.
var textRegions = append([]region{
	{"<file_summary>", "</file_summary>", true},
	{"<file_path>", "</file_path>", true},
	{"<file_operation>", "</file_operation>", true},
}, protectedRegions...)

var rules = []Rule{
	{UnquotedAttr, QuoteAttributes},
	{RawComment, CommentOutLineComments},
	{PhpTag, SpacePhpTags},
	{UnterminatedCdata, CloseUnterminatedCdata},
	{OrphanedCdata, CloseOrphanedCdata},
}

// Rules returns the ordered rule set.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Preprocess applies every rule in order. The result is not guaranteed to be
// well-formed.
func Preprocess(text string) string {
	out, _ := Apply(text)
	return out
}

// PreprocessPtr is Preprocess for callers holding an optional document.
func PreprocessPtr(text *string) (string, error) {
	if text == nil {
		return "", ErrNilInput
	}
	return Preprocess(*text), nil
}

// Apply runs the rule set and reports which rules changed the text.
func Apply(text string) (string, []Kind) {
	if text == "" {
		return text, nil
	}
	var fired []Kind
	for _, r := range rules {
		next := r.Apply(text)
		if next != text {
			fired = append(fired, r.Kind)
			text = next
		}
	}
	return text, fired
}

var (
	startTagRe     = regexp.MustCompile(`<[A-Za-z_][\w:.-]*\s[^<>]*>`)
	unquotedAttrRe = regexp.MustCompile(`(\s[A-Za-z_][\w:.-]*)=\{([^{}"<>\n]*)\}`)
	lineCommentRe  = regexp.MustCompile(`^(.*?\S)[ \t]+//[ \t]*([^<]*?)[ \t]*$`)
	phpTagRe       = regexp.MustCompile(`<file_code><\?(php|=)`)
)

// QuoteAttributes rewrites name={expr} to name="{expr}" inside start tags.
func QuoteAttributes(text string) string {
	return mapMarkup(text, protectedRegions, func(s string) string {
		return startTagRe.ReplaceAllStringFunc(s, func(tag string) string {
			return unquotedAttrRe.ReplaceAllString(tag, `$1="{$2}"`)
		})
	})
}

// CommentOutLineComments turns "<tag>...</tag> // note" into
// "<tag>...</tag> <!-- note -->". Only a comment that follows markup on its
// line is rewritten.
func CommentOutLineComments(text string) string {
	return mapMarkup(text, textRegions, func(s string) string {
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if strings.Contains(line, "<!--") || strings.Contains(line, "-->") {
				continue
			}
			m := lineCommentRe.FindStringSubmatch(line)
			if m == nil || !strings.HasSuffix(m[1], ">") {
				continue
			}
			note := strings.ReplaceAll(m[2], "--", "- -")
			if strings.HasSuffix(note, "-") {
				note += " "
			}
			lines[i] = m[1] + " <!-- " + note + " -->"
		}
		return strings.Join(lines, "\n")
	})
}

// SpacePhpTags inserts a space between <file_code> and a payload that starts
// with a PHP open tag.
func SpacePhpTags(text string) string {
	return phpTagRe.ReplaceAllString(text, "<file_code> <?$1")
}

// CloseUnterminatedCdata inserts "]]>" before </file_code> when a CDATA
// section opened inside that element was never closed.
func CloseUnterminatedCdata(text string) string {
	var b strings.Builder
	pos := 0
	for {
		open := indexFrom(text, cdataOpen, pos)
		if open < 0 {
			break
		}
		bodyStart := open + len(cdataOpen)
		end := indexFrom(text, fileCodeClose, bodyStart)
		if end < 0 {
			break
		}
		if next := indexFrom(text, fileCodeOpen, bodyStart); next >= 0 && next < end {
			// Not ours: this element is never closed. CloseOrphanedCdata handles it.
			b.WriteString(text[pos:bodyStart])
			pos = bodyStart
			continue
		}
		body := text[bodyStart:end]
		b.WriteString(text[pos:bodyStart])
		b.WriteString(body)
		if !strings.Contains(body, cdataClose) {
			b.WriteString(cdataClose)
		}
		b.WriteString(fileCodeClose)
		pos = end + len(fileCodeClose)
	}
	b.WriteString(text[pos:])
	return b.String()
}

var orphanOpenRe = regexp.MustCompile(`<file_code>\s*<!\[CDATA\[`)

// CloseOrphanedCdata closes a <file_code><![CDATA[ block that has no
// </file_code> of its own. The block ends at the next </file>, the next
// <file_code>, or the end of input, whichever comes first.
func CloseOrphanedCdata(text string) string {
	var b strings.Builder
	pos := 0
	for {
		loc := orphanOpenRe.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, bodyStart := pos+loc[0], pos+loc[1]

		closeAt := indexFrom(text, fileCodeClose, bodyStart)
		nextOpen := indexFrom(text, fileCodeOpen, bodyStart)
		if closeAt >= 0 && (nextOpen < 0 || closeAt < nextOpen) {
			b.WriteString(text[pos : closeAt+len(fileCodeClose)])
			pos = closeAt + len(fileCodeClose)
			continue
		}

		end := len(text)
		if fc := indexFrom(text, fileClose, bodyStart); fc >= 0 {
			end = fc
		}
		if nextOpen >= 0 && nextOpen < end {
			end = nextOpen
		}

		body := text[bodyStart:end]
		trimmed := strings.TrimRight(body, " \t\r\n")
		b.WriteString(text[pos:start])
		b.WriteString(fileCodeOpen + cdataOpen)
		if strings.HasSuffix(trimmed, cdataClose) {
			b.WriteString(trimmed)
		} else {
			b.WriteString(trimmed + cdataClose)
		}
		b.WriteString(fileCodeClose)
		b.WriteString(body[len(trimmed):])
		pos = end
	}
	b.WriteString(text[pos:])
	return b.String()
}

// mapMarkup applies fn to every stretch of text that is outside regions.
func mapMarkup(text string, regions []region, fn func(string) string) string {
	var b strings.Builder
	pos := 0
	for pos < len(text) {
		start, end := nextProtected(text, pos, regions)
		if start < 0 {
			b.WriteString(fn(text[pos:]))
			break
		}
		b.WriteString(fn(text[pos:start]))
		b.WriteString(text[start:end])
		pos = end
	}
	return b.String()
}

// nextProtected finds the next region at or after pos that markup rules must
// leave alone. It returns -1 when there is none.
func nextProtected(text string, pos int, regions []region) (int, int) {
	bestOpen, start, end := -1, -1, -1
	for _, r := range regions {
		i := indexFrom(text, r.open, pos)
		if i < 0 || (bestOpen >= 0 && i >= bestOpen) {
			continue
		}
		bestOpen, start = i, i
		if r.bodyOnly {
			start = i + len(r.open)
		}
		end = indexFrom(text, r.close, i+len(r.open))
		switch {
		case end < 0:
			end = len(text)
		case !r.bodyOnly:
			end += len(r.close)
		}
	}
	return start, end
}

func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	i := strings.Index(s[from:], substr)
	if i < 0 {
		return -1
	}
	return from + i
}
