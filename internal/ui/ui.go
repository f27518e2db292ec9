package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/sokinpui/xapply/internal/preview"
	"github.com/sokinpui/xapply/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	AddedColor   = color.New(color.FgGreen)
	RemovedColor = color.New(color.FgRed)
)

// Out receives all messages. Results go to stdout elsewhere.
var Out io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Out, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Out, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Out, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Out, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Out, "  "+format+"\n", a...)
}

// --- Summaries ---

// PrintApplyResult prints the outcome of a batch.
func PrintApplyResult(title string, result model.ApplyResult) {
	Header("\n--- %s ---", title)

	if result.Message != "" {
		if result.Success {
			Success("%s", result.Message)
		} else if len(result.FailedFiles) > 0 {
			Error("%s", result.Message)
		} else {
			Info("%s", result.Message)
		}
	}

	if len(result.UpdatedFiles) > 0 {
		Success("Updated %d file(s):", len(result.UpdatedFiles))
		for _, f := range result.UpdatedFiles {
			fmt.Fprintf(Out, "  - %s\n", f)
		}
	}
	if len(result.FailedFiles) > 0 {
		Error("Failed to process %d file(s):", len(result.FailedFiles))
		for _, f := range result.FailedFiles {
			fmt.Fprintf(Out, "  - %s: %s\n", f.Path, f.Reason)
		}
	}
	if result.WarningMessage != "" {
		Warning("%s", result.WarningMessage)
	}
}

// PrintPreviews prints the dry-run diffs.
func PrintPreviews(diffs []preview.Diff) {
	if len(diffs) == 0 {
		return
	}
	Header("\n--- Preview ---")
	for _, d := range diffs {
		PathColor.Fprintf(Out, "%s", d.Path)
		fmt.Fprintf(Out, " (%s, %s)\n", d.Summary(), humanize.Bytes(uint64(d.Size)))
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				AddedColor.Fprintln(Out, line)
			case strings.HasPrefix(line, "-"):
				RemovedColor.Fprintln(Out, line)
			default:
				fmt.Fprintln(Out, line)
			}
		}
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current int) {
	p.current = current
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.Set(p.current + 1)
}

func (p *ProgressBar) Finish() {
	if p.total > 0 {
		fmt.Fprintln(Out)
	}
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	fmt.Fprintf(Out, "\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
