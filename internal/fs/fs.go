package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FS is the set of filesystem calls the applier makes.
type FS interface {
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Remove(name string) error
}

// OS implements FS with the os package.
type OS struct{}

func (OS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (OS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (OS) Remove(name string) error { return os.Remove(name) }
func (OS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// ErrUnsafePath is returned for paths that are absolute, escape the root or
// name the root itself.
var ErrUnsafePath = errors.New("path traversal or absolute path not allowed")

var drivePrefixRe = regexp.MustCompile(`^[A-Za-z]:`)

// ResolveInRoot checks rel against root and returns the absolute target.
// It does no I/O.
func ResolveInRoot(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty path")
	}
	slashed := strings.ReplaceAll(rel, `\`, "/")
	if strings.HasPrefix(slashed, "/") || drivePrefixRe.MatchString(slashed) || filepath.IsAbs(rel) {
		return "", ErrUnsafePath
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", ErrUnsafePath
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(absRoot, filepath.FromSlash(filepath.Clean(slashed)))
	back, err := filepath.Rel(absRoot, target)
	if err != nil || back == "." || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return target, nil
}

// Validation is the outcome of ValidatePath.
type Validation struct {
	Valid         bool
	SanitizedPath string
	Reason        string
}

// ValidatePath is a stricter check than ResolveInRoot for paths that come
// from untrusted storage: besides traversal it rejects control characters
// and NUL bytes. SanitizedPath is cleaned and slash-separated.
func ValidatePath(candidate string) Validation {
	if strings.TrimSpace(candidate) == "" {
		return Validation{Reason: "empty path"}
	}
	for _, r := range candidate {
		if r == 0 || r < 0x20 || r == 0x7f {
			return Validation{Reason: "path contains control characters"}
		}
	}
	slashed := strings.ReplaceAll(candidate, `\`, "/")
	if strings.HasPrefix(slashed, "/") || drivePrefixRe.MatchString(slashed) {
		return Validation{Reason: "absolute paths are not allowed"}
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return Validation{Reason: "path traversal is not allowed"}
		}
	}
	return Validation{Valid: true, SanitizedPath: filepath.ToSlash(filepath.Clean(slashed))}
}

// GetFileSHA256 returns the hex SHA-256 of a file's content.
func GetFileSHA256(fsys FS, path string) (string, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsEmpty reports whether a directory has no entries.
func IsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
