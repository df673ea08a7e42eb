package isolate

import (
	"bytes"
	"io"
	"sync"
)

// cappedOutput collects stdout and stderr while keeping their combined
// size at or below limit. The first write that would cross the limit is
// cut short and onOverflow is called once. Writes never fail, so the
// copying goroutines of os/exec keep draining the pipes until the
// process is gone.
type cappedOutput struct {
	mu         sync.Mutex
	limit      int64
	total      int64
	overflowed bool
	onOverflow func()

	out bytes.Buffer
	err bytes.Buffer
}

func newCappedOutput(limit int64, onOverflow func()) *cappedOutput {
	return &cappedOutput{limit: limit, onOverflow: onOverflow}
}

func (c *cappedOutput) stdout() io.Writer { return streamWriter{c: c, buf: &c.out} }
func (c *cappedOutput) stderr() io.Writer { return streamWriter{c: c, buf: &c.err} }

func (c *cappedOutput) write(buf *bytes.Buffer, p []byte) {
	c.mu.Lock()
	if c.overflowed {
		c.mu.Unlock()
		return
	}
	room := c.limit - c.total
	if int64(len(p)) <= room {
		buf.Write(p)
		c.total += int64(len(p))
		c.mu.Unlock()
		return
	}
	if room > 0 {
		buf.Write(p[:room])
	}
	c.total = c.limit
	c.overflowed = true
	c.mu.Unlock()

	if c.onOverflow != nil {
		c.onOverflow()
	}
}

func (c *cappedOutput) result() (stdout, stderr []byte, overflowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.out.Bytes()), bytes.Clone(c.err.Bytes()), c.overflowed
}

type streamWriter struct {
	c   *cappedOutput
	buf *bytes.Buffer
}

func (w streamWriter) Write(p []byte) (int, error) {
	w.c.write(w.buf, p)
	return len(p), nil
}
