// Package nvim tells a running Neovim instance to re-read files that were
// changed on disk.
package nvim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neovim/go-client/nvim"
)

// ErrNoInstance is returned by New when NVIM_LISTEN_ADDRESS is not set.
var ErrNoInstance = errors.New("NVIM_LISTEN_ADDRESS is not set")

// Manager handles the connection to a Neovim instance.
type Manager struct {
	nvim *nvim.Nvim
}

// New connects to the instance listening on NVIM_LISTEN_ADDRESS. It never
// starts one.
func New() (*Manager, error) {
	addr := os.Getenv("NVIM_LISTEN_ADDRESS")
	if addr == "" {
		return nil, ErrNoInstance
	}
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nvim at %s: %w", addr, err)
	}
	return &Manager{nvim: v}, nil
}

// Close disconnects from Neovim.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
}

// Reload runs checktime on the buffers of paths, relative to root. Paths
// without a loaded buffer are ignored by Neovim.
func (m *Manager) Reload(root string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	b := m.nvim.NewBatch()
	for _, cmd := range ReloadCommands(root, paths) {
		b.Command(cmd)
	}
	return b.Execute()
}

// ReloadCommands returns the Ex commands Reload sends.
func ReloadCommands(root string, paths []string) []string {
	cmds := make([]string, 0, len(paths))
	for _, p := range paths {
		abs := filepath.Join(root, filepath.FromSlash(p))
		cmds = append(cmds, "silent! checktime "+escape(abs))
	}
	return cmds
}

// escape makes a path safe as an Ex command argument, like fnameescape().
func escape(path string) string {
	var b strings.Builder
	for _, r := range path {
		if strings.ContainsRune(" \t\\%#|\"'", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
