package isolate

import (
	"context"
	"os/exec"
	"time"
)

// Plain runs jobs as ordinary child processes in their own process group.
// Only the wall clock and output guards apply; the CPU limit is set on a
// best effort basis where the platform allows it.
type Plain struct {
	grace time.Duration
}

func NewPlain(grace time.Duration) *Plain {
	return &Plain{grace: grace}
}

func (p *Plain) Name() string   { return "plain" }
func (p *Plain) Isolated() bool { return false }

func (p *Plain) Run(ctx context.Context, spec Spec) (Outcome, error) {
	if len(spec.Argv) == 0 {
		return Outcome{}, errEmptyArgv
	}
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = plainEnv(spec.Env)

	cpuSec := spec.Limits.CpuTimeSec()
	return supervise(ctx, cmd, superviseLimits{
		wall:      spec.Limits.WallTime(),
		maxOutput: spec.Limits.MaxOutputBytes,
	}, p.grace, func(pid int) {
		if cpuSec > 0 {
			_ = setCPULimit(pid, cpuSec)
		}
	})
}
