//go:build unix

package isolate

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// terminator kills a process group once: SIGTERM first and SIGKILL after
// the grace period, or SIGKILL straight away when grace is zero.
type terminator struct {
	pgid  int
	grace time.Duration

	mu        sync.Mutex
	signalled bool
	finished  bool
	timer     *time.Timer
}

func newTerminator(pgid int, grace time.Duration) *terminator {
	return &terminator{pgid: pgid, grace: grace}
}

func (t *terminator) terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.signalled || t.finished {
		return
	}
	t.signalled = true

	if t.grace <= 0 {
		_ = killGroup(t.pgid, unix.SIGKILL)
		return
	}
	_ = killGroup(t.pgid, unix.SIGTERM)
	t.timer = time.AfterFunc(t.grace, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.finished {
			_ = killGroup(t.pgid, unix.SIGKILL)
		}
	})
}

// finish is called after the group leader has been reaped. Descendants
// that are still around are killed and the pending SIGKILL is dropped so
// a recycled group id is never signalled later.
func (t *terminator) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	if t.timer != nil {
		t.timer.Stop()
	}
	_ = killGroup(t.pgid, unix.SIGKILL)
}
