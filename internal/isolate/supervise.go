//go:build unix

package isolate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// pipeDrainDelay bounds how long Wait keeps copying output after the
// child has exited. A descendant that escaped the group kill could
// otherwise hold the pipes open forever.
const pipeDrainDelay = 500 * time.Millisecond

type cause int

const (
	causeNone cause = iota
	causeExited
	causeTimeout
	causeOverflow
	causeCancel
)

// verdict records why the process stopped. Only the first claim counts;
// every claim other than a natural exit kills the process group.
type verdict struct {
	mu     sync.Mutex
	cause  cause
	onKill func()
}

func (v *verdict) claim(c cause) bool {
	v.mu.Lock()
	if v.cause != causeNone {
		v.mu.Unlock()
		return false
	}
	v.cause = c
	kill := v.onKill
	v.mu.Unlock()

	if c != causeExited && kill != nil {
		kill()
	}
	return true
}

func (v *verdict) get() cause {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cause
}

// supervise starts cmd in its own process group and waits for it while
// enforcing the wall clock and output limits. cmd must not have been
// started and must not have stdio configured.
func supervise(
	ctx context.Context,
	cmd *exec.Cmd,
	lim superviseLimits,
	grace time.Duration,
	afterStart func(pid int),
) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("execution cancelled: %w", context.Cause(ctx))
	}

	var v verdict
	out := newCappedOutput(lim.maxOutput, func() { v.claim(causeOverflow) })

	cmd.Stdin = nil
	cmd.Stdout = out.stdout()
	cmd.Stderr = out.stderr()
	cmd.WaitDelay = pipeDrainDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	start := time.Now()

	term := newTerminator(cmd.Process.Pid, grace)
	v.mu.Lock()
	v.onKill = term.terminate
	overflowedEarly := v.cause == causeOverflow
	v.mu.Unlock()
	if overflowedEarly {
		term.terminate()
	}

	if afterStart != nil {
		afterStart(cmd.Process.Pid)
	}

	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(lim.wall)
		defer timer.Stop()
		select {
		case <-timer.C:
			v.claim(causeTimeout)
		case <-ctx.Done():
			v.claim(causeCancel)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	duration := time.Since(start)
	v.claim(causeExited)
	close(done)
	term.finish()

	if waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Outcome{}, fmt.Errorf("wait %s: %w", cmd.Path, waitErr)
		}
	}

	stdout, stderr, overflowed := out.result()
	res := Outcome{
		Stdout:          stdout,
		Stderr:          stderr,
		Duration:        duration,
		OutputTruncated: overflowed,
	}
	if cmd.ProcessState != nil {
		res.ExitCode, res.Signal = exitStatus(cmd.ProcessState)
	}

	switch v.get() {
	case causeTimeout:
		res.TimedOut = true
	case causeCancel:
		return res, fmt.Errorf("execution cancelled: %w", context.Cause(ctx))
	}
	return res, nil
}
