package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/sokinpui/xapply/internal/preview"
	"github.com/sokinpui/xapply/model"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevNoColor := Out, color.NoColor
	Out, color.NoColor = &buf, true
	t.Cleanup(func() { Out, color.NoColor = prevOut, prevNoColor })
	return &buf
}

func TestPrintApplyResult(t *testing.T) {
	buf := capture(t)

	PrintApplyResult("Update Summary", model.ApplyResult{
		Success:        true,
		Message:        "Applied 1 of 2 file change(s)",
		UpdatedFiles:   []string{"a.txt"},
		FailedFiles:    []model.FailedFile{{Path: "b.txt", Reason: "denied"}},
		WarningMessage: "1 file(s) could not be applied: b.txt",
	})

	want := `
--- Update Summary ---
Applied 1 of 2 file change(s)
Updated 1 file(s):
  - a.txt
Failed to process 1 file(s):
  - b.txt: denied
1 file(s) could not be applied: b.txt
`
	if got := buf.String(); got != want {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrintPreviews(t *testing.T) {
	buf := capture(t)

	PrintPreviews([]preview.Diff{preview.Lines("a.txt", "", "hi\n", 3)})

	out := buf.String()
	for _, want := range []string{"--- Preview ---", "a.txt (+1 -0, 3 B)", "+hi"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProgressBar(t *testing.T) {
	buf := capture(t)

	bar := NewProgressBar(2, "Applying")
	bar.Start()
	bar.Increment()
	bar.Finish()

	out := buf.String()
	if !strings.Contains(out, "[1/2] 50.0%") {
		t.Errorf("progress output = %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the line")
	}
}

func TestProgressBarEmpty(t *testing.T) {
	buf := capture(t)

	bar := NewProgressBar(0, "Applying")
	bar.Start()
	bar.Finish()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
