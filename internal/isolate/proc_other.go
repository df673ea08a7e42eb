//go:build !unix

package isolate

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

func supervise(ctx context.Context, cmd *exec.Cmd, lim superviseLimits, grace time.Duration, afterStart func(pid int)) (Outcome, error) {
	return Outcome{}, errors.ErrUnsupported
}
