package model

import "strings"

// Operation is the action a FileChange performs on its target.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// ParseOperation maps the text of a <file_operation> element to an Operation.
// Matching is case-sensitive after trimming. Anything that is not UPDATE or
// DELETE, including an empty string, is treated as CREATE.
func ParseOperation(s string) Operation {
	switch strings.TrimSpace(s) {
	case string(OpUpdate):
		return OpUpdate
	case string(OpDelete):
		return OpDelete
	default:
		return OpCreate
	}
}

// FileChange represents a single planned change to a file.
type FileChange struct {
	Path      string    `json:"file_path"`
	Operation Operation `json:"file_operation"`
	Summary   string    `json:"file_summary,omitempty"`
	// Code is the verbatim payload. Empty is allowed for UPDATE and DELETE.
	Code string `json:"file_code"`
}

// FailedFile records why a change could not be applied.
type FailedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ApplyResult holds the outcome of applying a change-set.
type ApplyResult struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
	UpdatedFiles   []string     `json:"updatedFiles"`
	FailedFiles    []FailedFile `json:"failedFiles"`
	Details        string       `json:"details"`
	WarningMessage string       `json:"warningMessage,omitempty"`
}
