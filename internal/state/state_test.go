package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/xapply/internal/applier"
	"github.com/sokinpui/xapply/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// applyBatch applies changes under root and records them as one batch.
func applyBatch(t *testing.T, root string, changes []model.FileChange) {
	t.Helper()
	m, err := New(root, nil)
	require.NoError(t, err)

	rec := m.Begin()
	ap := applier.New(nil)
	ap.Formatter = nil
	ap.Journal = rec
	result := ap.ApplyChanges(changes, root, applier.Options{})
	require.Empty(t, result.FailedFiles)
	require.NoError(t, rec.Commit())
}

func TestUndoRestoresBatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "old")
	writeFile(t, filepath.Join(root, "c.txt"), "c")

	applyBatch(t, root, []model.FileChange{
		{Path: "a.txt", Operation: model.OpUpdate, Code: "new"},
		{Path: "dir/b.txt", Operation: model.OpCreate, Code: "b"},
		{Path: "c.txt", Operation: model.OpDelete},
	})

	assert.Equal(t, "new", readFile(t, filepath.Join(root, "a.txt")))
	assert.NoFileExists(t, filepath.Join(root, "c.txt"))
	assert.FileExists(t, filepath.Join(root, StateDirName, historyFileName))

	m, err := New(root, nil)
	require.NoError(t, err)
	require.Len(t, m.History(), 1)
	ops := m.History()[0].Operations
	require.Len(t, ops, 3)
	assert.NotEmpty(t, ops[0].Backup)
	assert.Empty(t, ops[1].Backup)
	assert.NotEmpty(t, ops[2].Backup)
	assert.Empty(t, ops[2].ContentHash)
	id := m.History()[0].ID

	result, err := m.Undo()
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"c.txt", "dir/b.txt", "a.txt"}, result.UpdatedFiles)
	assert.Empty(t, result.FailedFiles)

	assert.Equal(t, "old", readFile(t, filepath.Join(root, "a.txt")))
	assert.Equal(t, "c", readFile(t, filepath.Join(root, "c.txt")))
	assert.NoFileExists(t, filepath.Join(root, "dir", "b.txt"))
	assert.NoDirExists(t, filepath.Join(root, "dir"))
	assert.NoDirExists(t, filepath.Join(root, StateDirName, backupDirName, id))

	_, err = m.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestUndoSkipsFilesChangedSinceApply(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "old")

	applyBatch(t, root, []model.FileChange{
		{Path: "a.txt", Operation: model.OpUpdate, Code: "new"},
		{Path: "b.txt", Operation: model.OpCreate, Code: "b"},
	})
	writeFile(t, filepath.Join(root, "a.txt"), "edited by hand")

	m, err := New(root, nil)
	require.NoError(t, err)
	result, err := m.Undo()
	require.NoError(t, err)

	assert.Equal(t, []string{"b.txt"}, result.UpdatedFiles)
	require.Len(t, result.FailedFiles, 1)
	assert.Equal(t, "a.txt", result.FailedFiles[0].Path)
	assert.Contains(t, result.FailedFiles[0].Reason, "modified after")
	assert.Equal(t, "edited by hand", readFile(t, filepath.Join(root, "a.txt")))
	assert.Empty(t, m.History())
}

func TestCommitDropsEmptyBatch(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, nil)
	require.NoError(t, err)

	require.NoError(t, m.Begin().Commit())
	assert.NoFileExists(t, filepath.Join(root, StateDirName, historyFileName))
}

func TestHistoryIsCapped(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, nil)
	require.NoError(t, err)

	var first string
	for i := 0; i < maxHistory+3; i++ {
		rec := m.Begin()
		if i == 0 {
			first = rec.entry.ID
		}
		rec.After(model.FileChange{Path: "f.txt", Operation: model.OpCreate}, filepath.Join(root, "f.txt"), []byte("x"))
		assert.Equal(t, 1, rec.Len())
		require.NoError(t, rec.Commit())
	}

	reloaded, err := New(root, nil)
	require.NoError(t, err)
	assert.Len(t, reloaded.History(), maxHistory)
	assert.NotEqual(t, first, reloaded.History()[0].ID)
}

func TestNewIgnoresCorruptHistory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, StateDirName, historyFileName), "history: [unclosed")

	m, err := New(root, nil)
	require.NoError(t, err)
	assert.Empty(t, m.History())
}
