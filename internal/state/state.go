package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/xapply/internal/fs"
	"github.com/sokinpui/xapply/internal/logger"
	"github.com/sokinpui/xapply/model"
)

const (
	StateDirName    = ".xapply"
	historyFileName = "history.yaml"
	backupDirName   = "backups"
	maxHistory      = 20
)

// Operation records one applied change.
type Operation struct {
	Path   string          `yaml:"path"`
	Action model.Operation `yaml:"action"`
	// ContentHash is the SHA-256 of the file right after the change; empty
	// for deletes.
	ContentHash string `yaml:"content_hash,omitempty"`
	// Backup is the copy of the previous content, relative to the state
	// directory. Empty when the file did not exist before.
	Backup string `yaml:"backup,omitempty"`
}

// HistoryEntry is one applied batch.
type HistoryEntry struct {
	ID         string      `yaml:"id"`
	Timestamp  int64       `yaml:"timestamp"`
	Operations []Operation `yaml:"operations"`
}

// State is the content of the history file.
type State struct {
	History []HistoryEntry `yaml:"history"`
}

// Manager handles the history file of one project root.
type Manager struct {
	root      string
	stateDir  string
	statePath string
	state     *State
	fsys      fs.FS
	log       *logger.Logger
}

// New loads the history for root. Nothing is written until a batch is
// committed.
func New(root string, log *logger.Logger) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve project root: %w", err)
	}
	stateDir := filepath.Join(absRoot, StateDirName)
	m := &Manager{
		root:      absRoot,
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, historyFileName),
		fsys:      fs.OS{},
		log:       logger.OrNop(log),
	}
	if err := m.load(); err != nil {
		m.log.Warnf("ignoring unreadable history file: %v", err)
		m.state = &State{}
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := m.fsys.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = &State{}
			return nil
		}
		return err
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("invalid history file: %w", err)
	}
	m.state = &st
	return nil
}

func (m *Manager) save() error {
	if err := m.fsys.MkdirAll(m.stateDir, 0o755); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}
	data, err := yaml.Marshal(m.state)
	if err != nil {
		return err
	}
	return m.fsys.WriteFile(m.statePath, data, 0o644)
}

// History returns the recorded batches, oldest first.
func (m *Manager) History() []HistoryEntry {
	return m.state.History
}

// Begin starts recording a new batch.
func (m *Manager) Begin() *Recorder {
	return &Recorder{
		m: m,
		entry: HistoryEntry{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC().Unix(),
		},
	}
}

// write appends entry, trimming the oldest batches and their backups.
func (m *Manager) write(entry HistoryEntry) error {
	m.state.History = append(m.state.History, entry)
	for len(m.state.History) > maxHistory {
		old := m.state.History[0]
		m.state.History = m.state.History[1:]
		os.RemoveAll(filepath.Join(m.stateDir, backupDirName, old.ID))
	}
	return m.save()
}
