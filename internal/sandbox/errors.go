package sandbox

import (
	"errors"
	"fmt"
)

// ErrInfrastructure marks failures of the host rather than of the job:
// staging, spawning, or a missing isolation backend.
var ErrInfrastructure = errors.New("sandbox infrastructure failure")

type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("sandbox: %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() []error {
	return []error{ErrInfrastructure, e.Err}
}
