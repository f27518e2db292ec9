// Package preview renders what a change would do to a file as a line diff.
package preview

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff is a rendered line diff between two versions of a file.
type Diff struct {
	Path    string
	Added   int
	Removed int
	// Size is the length in bytes of the new content.
	Size int
	Text string
}

// Lines diffs before against after line by line. Unchanged runs longer than
// 2*context lines are collapsed.
func Lines(path, before, after string, context int) Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	d := Diff{Path: path, Size: len(after)}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", path, path)
	for i, df := range diffs {
		chunk := splitLines(df.Text)
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			d.Added += len(chunk)
			writePrefixed(&sb, "+", chunk)
		case diffmatchpatch.DiffDelete:
			d.Removed += len(chunk)
			writePrefixed(&sb, "-", chunk)
		case diffmatchpatch.DiffEqual:
			writeContext(&sb, chunk, context, i == 0, i == len(diffs)-1)
		}
	}
	d.Text = sb.String()
	return d
}

// Summary is a one-line description such as "+3 -1".
func (d Diff) Summary() string {
	return fmt.Sprintf("+%d -%d", d.Added, d.Removed)
}

func writeContext(sb *strings.Builder, lines []string, context int, first, last bool) {
	head, tail := context, context
	if first {
		head = 0
	}
	if last {
		tail = 0
	}
	if len(lines) <= head+tail {
		writePrefixed(sb, " ", lines)
		return
	}
	writePrefixed(sb, " ", lines[:head])
	fmt.Fprintf(sb, "@@ %d unchanged line(s) @@\n", len(lines)-head-tail)
	writePrefixed(sb, " ", lines[len(lines)-tail:])
}

func writePrefixed(sb *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		sb.WriteString(prefix)
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
