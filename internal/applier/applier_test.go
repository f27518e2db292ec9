package applier

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sokinpui/xapply/internal/format"
	"github.com/sokinpui/xapply/internal/logger"
	"github.com/sokinpui/xapply/model"
)

const root = "/project"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestApplier(fsys *fakeFS) *Applier {
	return &Applier{
		FS:        fsys,
		Log:       logger.Nop(),
		Protected: DefaultProtected,
		Formatter: format.FormatterFunc(func(content, parser string) (string, error) {
			if parser == "typescript" && content == "const x=1;" {
				return "const x = 1;\n", nil
			}
			return "", format.ErrUnsupported
		}),
	}
}

func TestApplyChangeUpdateWritesFormattedContent(t *testing.T) {
	fsys := newFakeFS(root)
	fsys.files[root+"/src/a.ts"] = []byte("old")
	a := newTestApplier(fsys)

	err := a.ApplyChange(model.FileChange{Path: "src/a.ts", Operation: model.OpUpdate, Code: "const x=1;"}, root, Options{})
	require.NoError(t, err)
	assert.Equal(t, "const x = 1;\n", string(fsys.files[root+"/src/a.ts"]))

	want := []string{
		"stat " + root,
		"stat " + root + "/src/a.ts",
		"mkdir " + root + "/src",
		"write " + root + "/src/a.ts",
	}
	if diff := cmp.Diff(want, fsys.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyChangeCreateMakesParentDirs(t *testing.T) {
	fsys := newFakeFS(root)
	a := newTestApplier(fsys)

	err := a.ApplyChange(model.FileChange{Path: "deep/nested/file.txt", Operation: model.OpCreate, Code: "hi"}, root, Options{})
	require.NoError(t, err)
	assert.True(t, fsys.dirs[root+"/deep/nested"])
	assert.Equal(t, "hi", string(fsys.files[root+"/deep/nested/file.txt"]))
}

func TestApplyChangeRejectsTraversalBeforeIO(t *testing.T) {
	paths := []string{"../../etc/passwd", "a/../../x", "/etc/passwd", `..\windows`, "C:/Windows/win.ini", ".", "./"}
	ops := []model.Operation{model.OpCreate, model.OpUpdate, model.OpDelete}

	for _, p := range paths {
		for _, op := range ops {
			fsys := newFakeFS(root)
			a := newTestApplier(fsys)

			err := a.ApplyChange(model.FileChange{Path: p, Operation: op, Code: "x"}, root, Options{})
			require.Error(t, err, "%s %s", op, p)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, KindSecurity, kind, "%s %s", op, p)
			assert.Contains(t, err.Error(), "Invalid file path")
			assert.Empty(t, fsys.calls, "%s %s", op, p)
		}
	}
}

func TestApplyChangeValidation(t *testing.T) {
	tests := []struct {
		name   string
		change model.FileChange
		kind   Kind
		msg    string
	}{
		{
			name:   "missing path",
			change: model.FileChange{Operation: model.OpCreate, Code: "x"},
			kind:   KindValidation,
			msg:    "Missing file_path",
		},
		{
			name:   "create without code",
			change: model.FileChange{Path: "a.txt", Operation: model.OpCreate},
			kind:   KindValidation,
			msg:    "Missing file_code for CREATE operation",
		},
		{
			name:   "unknown operation",
			change: model.FileChange{Path: "a.txt", Operation: "MODIFY", Code: "x"},
			kind:   KindUnknownOperation,
			msg:    "Unknown file operation: MODIFY",
		},
		{
			name:   "protected directory",
			change: model.FileChange{Path: ".git/config", Operation: model.OpUpdate, Code: "x"},
			kind:   KindSecurity,
			msg:    "Refusing to modify protected path: .git/config",
		},
		{
			name:   "protected directory itself",
			change: model.FileChange{Path: ".xapply", Operation: model.OpDelete},
			kind:   KindSecurity,
			msg:    "Refusing to modify protected path: .xapply",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := newFakeFS(root)
			err := newTestApplier(fsys).ApplyChange(tt.change, root, Options{})
			require.Error(t, err)
			assert.EqualError(t, err, tt.msg)
			kind, _ := KindOf(err)
			assert.Equal(t, tt.kind, kind)
			assert.Empty(t, fsys.calls)
		})
	}
}

func TestApplyChangeFilesystemErrors(t *testing.T) {
	t.Run("update of missing file", func(t *testing.T) {
		fsys := newFakeFS(root)
		err := newTestApplier(fsys).ApplyChange(model.FileChange{Path: "src/missing.ts", Operation: model.OpUpdate, Code: "x"}, root, Options{})
		assert.EqualError(t, err, "Error accessing project directory: File does not exist: src/missing.ts")
		kind, _ := KindOf(err)
		assert.Equal(t, KindFilesystem, kind)
	})

	t.Run("missing root", func(t *testing.T) {
		fsys := newFakeFS()
		err := newTestApplier(fsys).ApplyChange(model.FileChange{Path: "a.txt", Operation: model.OpCreate, Code: "x"}, root, Options{})
		assert.EqualError(t, err, "Error accessing project directory: No such directory "+root)
	})

	t.Run("permission denied", func(t *testing.T) {
		fsys := newFakeFS(root)
		fsys.errs[root] = &os.PathError{Op: "stat", Path: root, Err: os.ErrPermission}
		err := newTestApplier(fsys).ApplyChange(model.FileChange{Path: "a.txt", Operation: model.OpCreate, Code: "x"}, root, Options{})
		assert.EqualError(t, err, "Error accessing project directory: Permission denied for "+root)
	})

	t.Run("write failure", func(t *testing.T) {
		fsys := newFakeFS(root)
		cause := errors.New("disk full")
		fsys.errs[root+"/a.txt"] = cause
		err := newTestApplier(fsys).ApplyChange(model.FileChange{Path: "a.txt", Operation: model.OpCreate, Code: "x"}, root, Options{})
		require.Error(t, err)
		assert.Equal(t, "Failed to write a.txt: disk full", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestDeleteIsIdempotent(t *testing.T) {
	fsys := newFakeFS(root)
	fsys.files[root+"/gone.txt"] = []byte("bye")
	a := newTestApplier(fsys)
	change := model.FileChange{Path: "gone.txt", Operation: model.OpDelete}

	require.NoError(t, a.ApplyChange(change, root, Options{}))
	assert.NotContains(t, fsys.files, root+"/gone.txt")
	require.NoError(t, a.ApplyChange(change, root, Options{}))
	require.NoError(t, a.ApplyChange(model.FileChange{Path: "never.txt", Operation: model.OpDelete}, root, Options{}))
}

func TestDeleteRefusesDirectories(t *testing.T) {
	fsys := newFakeFS(root, root+"/src")
	a := newTestApplier(fsys)

	err := a.ApplyChange(model.FileChange{Path: "src", Operation: model.OpDelete}, root, Options{})
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, KindValidation, kind)
	assert.EqualError(t, err, "Refusing to delete directory: src")
	assert.True(t, fsys.dirs[root+"/src"])
	assert.NotContains(t, fsys.calls, "remove "+root+"/src")
}

func TestDeleteCannotRemoveRealRoot(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(sub, 0o755))
	a := New(nil)

	for _, p := range []string{".", "./", "empty"} {
		err := a.ApplyChange(model.FileChange{Path: p, Operation: model.OpDelete}, dir, Options{})
		require.Error(t, err, p)
	}
	assert.DirExists(t, dir)
	assert.DirExists(t, sub)
}

func TestDryRunMakesNoCalls(t *testing.T) {
	fsys := newFakeFS()
	a := newTestApplier(fsys)
	changes := []model.FileChange{
		{Path: "a.ts", Operation: model.OpCreate, Code: "const x=1;"},
		{Path: "b/c.txt", Operation: model.OpUpdate, Code: "y"},
	}

	result := a.ApplyChanges(changes, root, Options{DryRun: true, AssumeRootExists: true})
	assert.Empty(t, fsys.calls)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"a.ts", "b/c.txt"}, result.UpdatedFiles)
	assert.Empty(t, result.FailedFiles)
	assert.Equal(t, "Validated 2 file change(s)", result.Message)

	result = a.ApplyChanges(changes, root, Options{DryRun: true})
	assert.Empty(t, fsys.calls)
	assert.False(t, result.Success)
	require.Len(t, result.FailedFiles, 2)
	assert.Equal(t, "Error accessing project directory: No such directory "+root, result.FailedFiles[0].Reason)
}

func TestApplyChangesIsolatesFailures(t *testing.T) {
	fsys := newFakeFS(root)
	a := newTestApplier(fsys)
	var seen []int
	a.OnApplied = func(i, total int, _ model.FileChange, _ error) {
		assert.Equal(t, 3, total)
		seen = append(seen, i)
	}

	changes := []model.FileChange{
		{Path: "a.txt", Operation: model.OpCreate, Code: "a"},
		{Path: "b.txt", Operation: model.OpCreate},
		{Path: "c.txt", Operation: model.OpCreate, Code: "c"},
	}
	result := a.ApplyChanges(changes, root, Options{})

	want := model.ApplyResult{
		Success:        true,
		Message:        "Applied 2 of 3 file change(s)",
		UpdatedFiles:   []string{"a.txt", "c.txt"},
		FailedFiles:    []model.FailedFile{{Path: "b.txt", Reason: "Missing file_code for CREATE operation"}},
		Details:        "updated: a.txt\nupdated: c.txt\nfailed: b.txt: Missing file_code for CREATE operation",
		WarningMessage: "1 file(s) could not be applied: b.txt",
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("ApplyChanges() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, "c", string(fsys.files[root+"/c.txt"]))
}

func TestApplyChangesSummaries(t *testing.T) {
	a := newTestApplier(newFakeFS(root))

	result := a.ApplyChanges(nil, root, Options{})
	assert.False(t, result.Success)
	assert.Equal(t, "No file changes to apply", result.Message)
	assert.NotNil(t, result.UpdatedFiles)
	assert.NotNil(t, result.FailedFiles)

	result = a.ApplyChanges([]model.FileChange{
		{Path: "../x", Operation: model.OpCreate, Code: "x"},
		{Path: "y.txt", Operation: model.OpCreate},
	}, root, Options{})
	assert.False(t, result.Success)
	assert.Equal(t, "All 2 file change(s) failed", result.Message)
	assert.Empty(t, result.WarningMessage)
	assert.Contains(t, result.FailedFiles[0].Reason, "path traversal")
}

type recordingJournal struct {
	events []string
}

func (j *recordingJournal) Before(change model.FileChange, _ string) {
	j.events = append(j.events, "before "+change.Path)
}

func (j *recordingJournal) After(change model.FileChange, _ string, written []byte) {
	j.events = append(j.events, "after "+change.Path+" "+string(written))
}

func TestJournal(t *testing.T) {
	fsys := newFakeFS(root)
	fsys.files[root+"/old.txt"] = []byte("old")
	a := newTestApplier(fsys)
	j := &recordingJournal{}
	a.Journal = j

	a.ApplyChanges([]model.FileChange{
		{Path: "new.txt", Operation: model.OpCreate, Code: "new"},
		{Path: "old.txt", Operation: model.OpDelete},
		{Path: "missing.txt", Operation: model.OpDelete},
	}, root, Options{})
	assert.Equal(t, []string{"before new.txt", "after new.txt new", "before old.txt", "after old.txt "}, j.events)

	j.events = nil
	a.ApplyChanges([]model.FileChange{{Path: "dry.txt", Operation: model.OpCreate, Code: "x"}}, root, Options{DryRun: true, AssumeRootExists: true})
	assert.Empty(t, j.events)
}

func TestFormatterFailureWritesOriginal(t *testing.T) {
	fsys := newFakeFS(root)
	a := newTestApplier(fsys)
	a.Formatter = format.FormatterFunc(func(string, string) (string, error) {
		return "", errors.New("prettier exploded")
	})

	require.NoError(t, a.ApplyChange(model.FileChange{Path: "a.js", Operation: model.OpCreate, Code: "let  a"}, root, Options{}))
	assert.Equal(t, "let  a", string(fsys.files[root+"/a.js"]))
}

func TestPreview(t *testing.T) {
	fsys := newFakeFS(root)
	fsys.files[root+"/notes.txt"] = []byte("a\nb\n")
	a := newTestApplier(fsys)

	d, err := a.Preview(model.FileChange{Path: "notes.txt", Operation: model.OpUpdate, Code: "a\nc\n"}, root)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 1, d.Removed)
	assert.True(t, strings.Contains(d.Text, "+c") && strings.Contains(d.Text, "-b"))

	d, err = a.Preview(model.FileChange{Path: "notes.txt", Operation: model.OpDelete}, root)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Removed)

	_, err = a.Preview(model.FileChange{Path: "../notes.txt", Operation: model.OpDelete}, root)
	assert.Error(t, err)
}
