package applier

import (
	"os"
	"path/filepath"
	"time"
)

// fakeFS records every call and keeps files in memory.
type fakeFS struct {
	files map[string][]byte
	dirs  map[string]bool
	errs  map[string]error
	calls []string
}

func newFakeFS(dirs ...string) *fakeFS {
	f := &fakeFS{files: map[string][]byte{}, dirs: map[string]bool{}, errs: map[string]error{}}
	for _, d := range dirs {
		f.dirs[d] = true
	}
	return f
}

type fakeInfo struct {
	name string
	size int64
	dir  bool
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return i.size }
func (i fakeInfo) Mode() os.FileMode  { return 0o644 }
func (i fakeInfo) ModTime() time.Time { return time.Time{} }
func (i fakeInfo) IsDir() bool        { return i.dir }
func (i fakeInfo) Sys() any           { return nil }

func (f *fakeFS) Stat(name string) (os.FileInfo, error) {
	f.calls = append(f.calls, "stat "+name)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if f.dirs[name] {
		return fakeInfo{name: filepath.Base(name), dir: true}, nil
	}
	if data, ok := f.files[name]; ok {
		return fakeInfo{name: filepath.Base(name), size: int64(len(data))}, nil
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
}

func (f *fakeFS) MkdirAll(path string, _ os.FileMode) error {
	f.calls = append(f.calls, "mkdir "+path)
	f.dirs[path] = true
	return nil
}

func (f *fakeFS) ReadFile(name string) ([]byte, error) {
	f.calls = append(f.calls, "read "+name)
	data, ok := f.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return data, nil
}

func (f *fakeFS) WriteFile(name string, data []byte, _ os.FileMode) error {
	f.calls = append(f.calls, "write "+name)
	if err := f.errs[name]; err != nil {
		return err
	}
	f.files[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeFS) Remove(name string) error {
	f.calls = append(f.calls, "remove "+name)
	if _, ok := f.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	delete(f.files, name)
	return nil
}
