// Package diagnostic turns an XML parser error into an excerpt of the
// document that points at the likely cause.
package diagnostic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	contextLines = 3
	headChars    = 500
	headLines    = 10
)

var (
	phpSignatureRe = regexp.MustCompile(`(?i)processing instruction|<\?php|\bphp\b|xml declaration allowed only`)

	unclosedRe = regexp.MustCompile(`(?i)unclosed tag|end tag for|must be terminated by|tag is not closed|opening and ending tag mismatch|closed by </`)

	// Tried in order; the first capture group is the tag name.
	unclosedNameRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)unclosed tag[:\s]*<?([A-Za-z_][\w:.-]*)`),
		regexp.MustCompile(`(?i)element <([A-Za-z_][\w:.-]*)> closed by`),
		regexp.MustCompile(`(?i)end tag for (?:element )?["'<]?([A-Za-z_][\w:.-]*)`),
		regexp.MustCompile(`(?i)element type ["']?([A-Za-z_][\w:.-]*)["']? must be terminated`),
		regexp.MustCompile(`(?i)mismatch:?\s*([A-Za-z_][\w:.-]*)`),
		regexp.MustCompile(`<([A-Za-z_][\w:.-]*)>`),
	}

	coordRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)line[:\s]*(\d+)\s*,?\s*col(?:umn)?[:\s]*(\d+)`),
		regexp.MustCompile(`(?i)row[:\s]*(\d+)\s*,?\s*col(?:umn)?[:\s]*(\d+)`),
		regexp.MustCompile(`(?i)\bat (\d+):(\d+)\b`),
		regexp.MustCompile(`(?i)\bline (\d+)\b`),
	}

	genericRe     = regexp.MustCompile(`(?i)unmatched end tag|unexpected end element|unexpected close tag|start tag|attribute|invalid content|invalid element`)
	genericNameRe = regexp.MustCompile(`</?([A-Za-z_][\w:.-]*)|["']([A-Za-z_][\w:.-]*)["']`)

	openingLineRe = regexp.MustCompile(`^\s*<([A-Za-z_][\w:.-]*)(\s[^>]*)?>\s*$`)
)

// Locate returns a human-readable excerpt of text for the parser error msg.
// The result is never empty.
func Locate(text, msg string) string {
	steps := []func(string, string) (string, bool){
		phpInstruction,
		unterminatedCdata,
		unterminatedFileCode,
		unclosedTag,
		coordinates,
		genericTag,
	}
	for _, step := range steps {
		if out, ok := step(text, msg); ok {
			return out
		}
	}
	return fallback(text, msg)
}

func phpInstruction(text, msg string) (string, bool) {
	if !phpSignatureRe.MatchString(msg) {
		return "", false
	}
	lines := strings.Split(text, "\n")
	inCode := false
	for i, line := range lines {
		if strings.Contains(line, "<file_code>") {
			inCode = true
		}
		if inCode {
			if col := strings.Index(line, "<?php"); col >= 0 {
				return Excerpt(lines, i+1, col+1, contextLines) +
					"\nPHP open tag found inside <file_code>. Wrap the code in <![CDATA[ ... ]]> so it is not read as an XML processing instruction.", true
			}
		}
		if strings.Contains(line, "</file_code>") {
			inCode = false
		}
	}
	return "", false
}

func unterminatedCdata(text, _ string) (string, bool) {
	if openCdataAt(text) < 0 {
		return "", false
	}
	return "Unterminated CDATA section: <![CDATA[ has no closing ]]>.\n\n" + head(text), true
}

// openCdataAt returns the offset of the first <![CDATA[ whose section is
// never closed: either no ]]> follows it, or another <![CDATA[ comes first.
func openCdataAt(text string) int {
	pos := 0
	for {
		i := strings.Index(text[pos:], "<![CDATA[")
		if i < 0 {
			return -1
		}
		open := pos + i
		body := open + len("<![CDATA[")
		end := strings.Index(text[body:], "]]>")
		if end < 0 {
			return open
		}
		if next := strings.Index(text[body:], "<![CDATA["); next >= 0 && next < end {
			return open
		}
		pos = body + end + len("]]>")
	}
}

func unterminatedFileCode(text, _ string) (string, bool) {
	if strings.Count(text, "<file_code>") <= strings.Count(text, "</file_code>") {
		return "", false
	}
	return "Unclosed <file_code> element: missing </file_code>.\n\n" + head(text), true
}

func unclosedTag(text, msg string) (string, bool) {
	if !unclosedRe.MatchString(msg) {
		return "", false
	}
	tag := ""
	for _, re := range unclosedNameRes {
		if m := re.FindStringSubmatch(msg); m != nil {
			tag = m[1]
			break
		}
	}
	if tag == "" {
		return "", false
	}

	masked := maskCdata(text)
	openRe := regexp.MustCompile(`<` + regexp.QuoteMeta(tag) + `(?:\s[^>]*)?>`)
	closeRe := regexp.MustCompile(`</` + regexp.QuoteMeta(tag) + `\s*>`)

	opens := openRe.FindAllStringIndex(masked, -1)
	closes := closeRe.FindAllStringIndex(masked, -1)
	// Drop self-closing tags.
	opens = lo.Filter(opens, func(loc []int, _ int) bool { return masked[loc[1]-2] != '/' })
	if len(opens) <= len(closes) {
		return "", false
	}

	unmatched := firstUnmatched(opens, closes)
	if unmatched < 0 {
		return "", false
	}
	line, col := position(text, unmatched)
	lines := strings.Split(text, "\n")
	return fmt.Sprintf("Found %d opening <%s> tag(s) but only %d closing tag(s).\n%s\nAdd a matching `</%s>` closing tag.",
		len(opens), tag, len(closes), Excerpt(lines, line, col, contextLines), tag), true
}

// firstUnmatched pairs each close with the most recent open and returns the
// offset of the earliest open left over.
func firstUnmatched(opens, closes [][]int) int {
	var stack []int
	ci := 0
	for _, o := range opens {
		for ci < len(closes) && closes[ci][0] < o[0] {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			ci++
		}
		stack = append(stack, o[0])
	}
	for ; ci < len(closes); ci++ {
		if len(stack) > 0 {
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) == 0 {
		return -1
	}
	return stack[0]
}

func coordinates(text, msg string) (string, bool) {
	line, col := 0, 0
	for _, re := range coordRes {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		line, _ = strconv.Atoi(m[1])
		if len(m) > 2 {
			col, _ = strconv.Atoi(m[2])
		}
		break
	}
	lines := strings.Split(text, "\n")
	if line < 1 || line > len(lines) {
		return "", false
	}
	if col < 1 {
		col = len(lines[line-1]) - len(strings.TrimLeft(lines[line-1], " \t")) + 1
	}

	out := Excerpt(lines, line, col, contextLines)
	if m := openingLineRe.FindStringSubmatch(lines[line-1]); m != nil && !strings.HasSuffix(strings.TrimSpace(lines[line-1]), "/>") {
		out += fmt.Sprintf("\nLine %d opens <%s>; check that a matching </%s> closing tag exists.", line, m[1], m[1])
	}
	return out, true
}

func genericTag(text, msg string) (string, bool) {
	if !genericRe.MatchString(msg) {
		return "", false
	}
	m := genericNameRe.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	tag := m[1]
	if tag == "" {
		tag = m[2]
	}
	re := regexp.MustCompile(`</?` + regexp.QuoteMeta(tag) + `\b`)
	loc := re.FindStringIndex(maskCdata(text))
	if loc == nil {
		return "", false
	}
	line, col := position(text, loc[0])
	return Excerpt(strings.Split(text, "\n"), line, col, contextLines), true
}

func fallback(text, msg string) string {
	snippet := text
	if len(snippet) > headChars {
		snippet = snippet[:headChars]
	}
	out := strings.TrimSpace(msg + "\n\n" + snippet)
	if out == "" {
		return "Unknown XML parsing error"
	}
	return out
}

// Excerpt renders lines [line-context, line+context] with 1-based numbers, a
// ">" marker on line and a caret under col.
func Excerpt(lines []string, line, col, context int) string {
	if len(lines) == 0 {
		return ""
	}
	line = clamp(line, 1, len(lines))
	from := clamp(line-context, 1, len(lines))
	to := clamp(line+context, 1, len(lines))
	width := len(strconv.Itoa(to))

	var b strings.Builder
	for n := from; n <= to; n++ {
		marker := " "
		if n == line {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %*d | %s\n", marker, width, n, lines[n-1])
		if n == line && col > 0 {
			pad := strings.Repeat(" ", width+5+col-1)
			b.WriteString(pad + "^\n")
		}
	}
	return b.String()
}

func head(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > headLines {
		lines = lines[:headLines]
	}
	return "Document start:\n" + Excerpt(lines, 1, 0, headLines)
}

// maskCdata blanks CDATA payloads so tag-looking code is not counted, keeping
// byte offsets and newlines intact.
func maskCdata(text string) string {
	b := []byte(text)
	pos := 0
	for {
		i := strings.Index(text[pos:], "<![CDATA[")
		if i < 0 {
			break
		}
		start := pos + i + len("<![CDATA[")
		end := strings.Index(text[start:], "]]>")
		if end < 0 {
			end = len(text)
		} else {
			end += start
		}
		for j := start; j < end; j++ {
			if b[j] != '\n' {
				b[j] = ' '
			}
		}
		pos = end
		if pos >= len(text) {
			break
		}
	}
	return string(b)
}

func position(text string, offset int) (int, int) {
	before := text[:offset]
	return strings.Count(before, "\n") + 1, offset - strings.LastIndex(before, "\n")
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
