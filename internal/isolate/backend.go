package isolate

import (
	"context"
	"errors"
	"time"

	"github.com/programme-lv/modbox/internal/limits"
)

// Backend runs one command inside a prepared workspace and supervises it
// until it exits or is killed by a guard.
type Backend interface {
	Name() string
	Isolated() bool
	Run(ctx context.Context, spec Spec) (Outcome, error)
}

// Spec describes a single supervised execution.
type Spec struct {
	// Dir is the host path of the staged workspace.
	Dir string
	// Argv is the command line relative to the workspace, e.g.
	// ["node", "main.mjs", "--flag"].
	Argv   []string
	Env    map[string]string
	Limits limits.Limits
}

// Outcome is the raw result of a supervised execution.
type Outcome struct {
	// ExitCode is nil when the process was terminated by a signal.
	ExitCode *int
	// Signal is the name of the terminating signal, e.g. "SIGKILL".
	Signal string

	Stdout []byte
	Stderr []byte

	Duration time.Duration

	TimedOut bool
	// OutputTruncated is set when the combined stdout and stderr
	// exceeded the output limit and the process was killed.
	OutputTruncated bool
}

// Exited reports whether the process ran to completion with status 0
// and was not stopped by any guard.
func (o Outcome) Exited() bool {
	return !o.TimedOut && !o.OutputTruncated && o.ExitCode != nil && *o.ExitCode == 0
}

type superviseLimits struct {
	wall      time.Duration
	maxOutput int64
}

var errEmptyArgv = errors.New("empty command line")
