// Package memq is an in-process job queue for development and tests.
package memq

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/worker"
)

type Queue struct {
	jobs    chan []byte
	replies chan []byte

	mu sync.Mutex
	// pending counts jobs pushed but not yet answered or dropped.
	pending       int
	isClosed      bool
	repliesClosed bool
	closed        chan struct{}
}

func New(size int) *Queue {
	return &Queue{
		jobs:    make(chan []byte, size),
		replies: make(chan []byte, size),
		closed:  make(chan struct{}),
	}
}

// Push enqueues a raw envelope, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, body []byte) error {
	q.mu.Lock()
	if q.isClosed {
		q.mu.Unlock()
		return worker.ErrSourceClosed
	}
	q.pending++
	q.mu.Unlock()

	select {
	case q.jobs <- body:
		return nil
	case <-q.closed:
		q.done(1)
		return worker.ErrSourceClosed
	case <-ctx.Done():
		q.done(1)
		return ctx.Err()
	}
}

func (q *Queue) PushEnvelope(ctx context.Context, env api.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.Push(ctx, body)
}

// Close stops Receive once the already queued jobs are drained. Replies
// is closed after every queued job has been answered or dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.isClosed {
		q.isClosed = true
		close(q.closed)
	}
	q.mu.Unlock()
	q.done(0)
}

// Drop discards jobs that are still queued and returns how many there were.
func (q *Queue) Drop() int {
	n := 0
	for {
		select {
		case <-q.jobs:
			n++
		default:
			q.done(n)
			return n
		}
	}
}

func (q *Queue) done(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending -= n
	if q.isClosed && q.pending == 0 && !q.repliesClosed {
		q.repliesClosed = true
		close(q.replies)
	}
}

func (q *Queue) Receive(ctx context.Context) (worker.Delivery, error) {
	select {
	case body := <-q.jobs:
		return delivery{q: q, body: body}, nil
	default:
	}
	select {
	case body := <-q.jobs:
		return delivery{q: q, body: body}, nil
	case <-q.closed:
		return nil, worker.ErrSourceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Replies carries one reply per handled job.
func (q *Queue) Replies() <-chan []byte {
	return q.replies
}

type delivery struct {
	q    *Queue
	body []byte
}

func (d delivery) Body() []byte { return d.body }

func (d delivery) Respond(ctx context.Context, reply []byte) error {
	defer d.q.done(1)
	select {
	case d.q.replies <- reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DemoJob is the self-test job seeded into development workers.
func DemoJob() api.Envelope {
	payload, _ := json.Marshal(api.JobReq{
		EntryFile: "index.mjs",
		Files: []api.File{
			{RelPath: "index.mjs", Content: "console.log('hello from module');"},
		},
	})
	return api.Envelope{Type: api.SandboxJob, ID: "demo", Payload: payload}
}
