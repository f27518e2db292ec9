package applier

import (
	"os"

	"github.com/pkg/errors"
)

// Kind classifies why a single change failed.
type Kind int

const (
	KindValidation Kind = iota
	KindSecurity
	KindFilesystem
	KindUnknownOperation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSecurity:
		return "security"
	case KindFilesystem:
		return "filesystem"
	case KindUnknownOperation:
		return "unknown operation"
	default:
		return "unknown"
	}
}

// Error is the failure of one change. Message is shown to the user as-is.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, and false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

func validationError(path, msg string) *Error {
	return &Error{Kind: KindValidation, Path: path, Message: msg}
}

// accessError maps an error from touching the project directory to the
// messages callers rely on.
func accessError(path string, err error, notExist string) *Error {
	e := &Error{Kind: KindFilesystem, Path: path, Err: err}
	switch {
	case os.IsPermission(err):
		e.Message = "Error accessing project directory: Permission denied for " + path
	case os.IsNotExist(err):
		e.Message = "Error accessing project directory: " + notExist
	default:
		e.Message = errors.Wrap(err, "Error accessing project directory").Error()
	}
	return e
}

func writeError(path string, err error) *Error {
	if os.IsPermission(err) {
		return accessError(path, err, "")
	}
	return &Error{
		Kind:    KindFilesystem,
		Path:    path,
		Message: errors.Wrapf(err, "Failed to write %s", path).Error(),
		Err:     err,
	}
}
