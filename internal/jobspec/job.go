package jobspec

import (
	"errors"
	"fmt"

	"github.com/programme-lv/modbox/internal/limits"
)

// Job is a sandbox job. Decode and FromRequest are the validating
// constructors; a Job built any other way bypasses path and limit checks.
type Job struct {
	EntryFile string
	Files     []File
	Args      []string
	Env       map[string]string
	Limits    limits.Limits
}

type File struct {
	// RelPath is slash separated, clean, and relative to the workspace root.
	RelPath string
	Content []byte
}

var ErrInvalidJob = errors.New("invalid job")

// ValidationError rejects a job descriptor before any resource is allocated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid job: %s", e.Reason)
	}
	return fmt.Sprintf("invalid job: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidJob
}

func invalid(field string, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
