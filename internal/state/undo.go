package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/sokinpui/xapply/internal/fs"
	"github.com/sokinpui/xapply/model"
)

// ErrNothingToUndo is returned by Undo when the history is empty.
var ErrNothingToUndo = errors.New("no operation to undo")

// Undo reverts the most recent batch. A file that changed after the batch
// touched it is left alone and reported as failed. The batch is removed
// from the history either way.
func (m *Manager) Undo() (model.ApplyResult, error) {
	if len(m.state.History) == 0 {
		return model.ApplyResult{}, ErrNothingToUndo
	}
	entry := m.state.History[len(m.state.History)-1]

	result := model.ApplyResult{UpdatedFiles: []string{}, FailedFiles: []model.FailedFile{}}
	for _, op := range lo.Reverse(append([]Operation(nil), entry.Operations...)) {
		if err := m.undoOperation(op); err != nil {
			result.FailedFiles = append(result.FailedFiles, model.FailedFile{Path: op.Path, Reason: err.Error()})
			continue
		}
		result.UpdatedFiles = append(result.UpdatedFiles, op.Path)
	}

	m.state.History = m.state.History[:len(m.state.History)-1]
	if err := m.save(); err != nil {
		return result, fmt.Errorf("failed to update history: %w", err)
	}
	os.RemoveAll(filepath.Join(m.stateDir, backupDirName, entry.ID))

	result.Success = len(result.UpdatedFiles) > 0
	result.Message = fmt.Sprintf("Reverted %d of %d file(s) from batch %s", len(result.UpdatedFiles), len(entry.Operations), entry.ID)
	return result, nil
}

func (m *Manager) undoOperation(op Operation) error {
	v := fs.ValidatePath(op.Path)
	if !v.Valid {
		return fmt.Errorf("refusing to restore %q: %s", op.Path, v.Reason)
	}
	target := filepath.Join(m.root, filepath.FromSlash(v.SanitizedPath))

	hash, err := fs.GetFileSHA256(m.fsys, target)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	// Core safety check: never overwrite edits made after the batch.
	if op.Action == model.OpDelete {
		if exists {
			return errors.New("file was recreated after it was deleted")
		}
	} else if exists && hash != op.ContentHash {
		return errors.New("file was modified after the change was applied")
	}

	if op.Backup == "" {
		if !exists {
			return nil
		}
		if err := m.fsys.Remove(target); err != nil {
			return err
		}
		parent := filepath.Dir(target)
		if empty, _ := fs.IsEmpty(parent); empty && parent != m.root {
			os.Remove(parent)
		}
		return nil
	}

	data, err := m.fsys.ReadFile(filepath.Join(m.stateDir, filepath.FromSlash(op.Backup)))
	if err != nil {
		return fmt.Errorf("backup missing: %w", err)
	}
	if err := m.fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return m.fsys.WriteFile(target, data, 0o644)
}
