package applier

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/sokinpui/xapply/model"
)

// ApplyChanges applies changes one after another. A failed entry is
// recorded and the loop moves on; entries already applied stay applied.
func (a *Applier) ApplyChanges(changes []model.FileChange, root string, opts Options) model.ApplyResult {
	result := model.ApplyResult{
		UpdatedFiles: []string{},
		FailedFiles:  []model.FailedFile{},
	}

	for i, change := range changes {
		err := a.ApplyChange(change, root, opts)
		if err != nil {
			a.log().Warnf("%s %s failed: %v", change.Operation, change.Path, err)
			result.FailedFiles = append(result.FailedFiles, model.FailedFile{
				Path:   change.Path,
				Reason: err.Error(),
			})
		} else {
			result.UpdatedFiles = append(result.UpdatedFiles, change.Path)
		}
		if a.OnApplied != nil {
			a.OnApplied(i, len(changes), change, err)
		}
	}

	result.Success = len(result.UpdatedFiles) > 0
	summarize(&result, len(changes), opts.DryRun)
	return result
}

func summarize(r *model.ApplyResult, total int, dryRun bool) {
	updated, failed := len(r.UpdatedFiles), len(r.FailedFiles)

	verb := "Applied"
	if dryRun {
		verb = "Validated"
	}
	switch {
	case total == 0:
		r.Message = "No file changes to apply"
	case failed == 0:
		r.Message = fmt.Sprintf("%s %d file change(s)", verb, updated)
	case updated > 0:
		r.Message = fmt.Sprintf("%s %d of %d file change(s)", verb, updated, total)
	default:
		r.Message = fmt.Sprintf("All %d file change(s) failed", total)
	}

	if failed > 0 && updated > 0 {
		paths := lo.Map(r.FailedFiles, func(f model.FailedFile, _ int) string { return f.Path })
		r.WarningMessage = fmt.Sprintf("%d file(s) could not be applied: %s", failed, strings.Join(paths, ", "))
	}

	var b strings.Builder
	for _, p := range r.UpdatedFiles {
		fmt.Fprintf(&b, "updated: %s\n", p)
	}
	for _, f := range r.FailedFiles {
		fmt.Fprintf(&b, "failed: %s: %s\n", f.Path, f.Reason)
	}
	r.Details = strings.TrimSuffix(b.String(), "\n")
}
