package state

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/sokinpui/xapply/internal/fs"
	"github.com/sokinpui/xapply/model"
)

// Recorder collects the operations of one batch. It implements
// applier.Journal.
type Recorder struct {
	m       *Manager
	entry   HistoryEntry
	pending string
}

// Before copies the current content of target, if any, into the batch's
// backup directory.
func (r *Recorder) Before(change model.FileChange, target string) {
	r.pending = ""
	data, err := r.m.fsys.ReadFile(target)
	if err != nil {
		if !os.IsNotExist(err) {
			r.m.log.Warnf("could not back up %s, undo will not restore it: %v", change.Path, err)
		}
		return
	}

	rel := filepath.Join(backupDirName, r.entry.ID, strconv.Itoa(len(r.entry.Operations)), filepath.FromSlash(change.Path))
	dst := filepath.Join(r.m.stateDir, rel)
	if err := r.m.fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		r.m.log.Warnf("could not back up %s: %v", change.Path, err)
		return
	}
	if err := r.m.fsys.WriteFile(dst, data, 0o644); err != nil {
		r.m.log.Warnf("could not back up %s: %v", change.Path, err)
		return
	}
	r.pending = filepath.ToSlash(rel)
}

// After records the completed change.
func (r *Recorder) After(change model.FileChange, _ string, written []byte) {
	op := Operation{
		Path:   filepath.ToSlash(filepath.Clean(change.Path)),
		Action: change.Operation,
		Backup: r.pending,
	}
	if change.Operation != model.OpDelete {
		op.ContentHash = fs.HashBytes(written)
	}
	r.entry.Operations = append(r.entry.Operations, op)
	r.pending = ""
}

// Len returns the number of recorded operations.
func (r *Recorder) Len() int {
	return len(r.entry.Operations)
}

// Commit writes the batch to the history file. An empty batch is dropped.
func (r *Recorder) Commit() error {
	if len(r.entry.Operations) == 0 {
		return nil
	}
	return r.m.write(r.entry)
}
