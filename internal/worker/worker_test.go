package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/jobspec"
	"github.com/programme-lv/modbox/internal/sandbox"
	"github.com/programme-lv/modbox/internal/transport/memq"
	"github.com/programme-lv/modbox/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSandbox struct {
	run func(ctx context.Context, raw []byte) (api.Result, error)
}

func (f fakeSandbox) RunRaw(ctx context.Context, raw []byte) (api.Result, error) {
	return f.run(ctx, raw)
}

type fakeModules struct{}

func (fakeModules) Process(ctx context.Context, req api.RunModuleReq) (api.RunModuleRes, error) {
	return api.RunModuleRes{RunID: req.RunID, ModuleID: req.ModuleID, Result: api.Result{Ok: true}}, nil
}

func okSandbox() fakeSandbox {
	return fakeSandbox{run: func(ctx context.Context, raw []byte) (api.Result, error) {
		return api.Result{Ok: true, Stdout: "done"}, nil
	}}
}

func TestHandleSandboxJob(t *testing.T) {
	w := worker.New(okSandbox(), fakeModules{}, nil)
	reply := w.Handle(context.Background(), api.Envelope{Type: api.SandboxJob, ID: "j", Payload: json.RawMessage(`{}`)})

	assert.True(t, reply.Ok)
	assert.Equal(t, "j", reply.ID)
	assert.Nil(t, reply.Error)
	var res api.Result
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	assert.Equal(t, "done", res.Stdout)
}

func TestHandleRunModuleDefaultsID(t *testing.T) {
	w := worker.New(okSandbox(), fakeModules{}, nil)
	payload := json.RawMessage(`{"runId":"run-7","moduleId":"m","packedArtifactKey":"k"}`)
	reply := w.Handle(context.Background(), api.Envelope{Type: api.RunModuleJob, Payload: payload})

	require.True(t, reply.Ok, "%+v", reply.Error)
	assert.Equal(t, "run-7", reply.ID)
	var res api.RunModuleRes
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	assert.Equal(t, "run-7", res.RunID)
}

func TestHandleErrorKinds(t *testing.T) {
	failing := func(err error) fakeSandbox {
		return fakeSandbox{run: func(context.Context, []byte) (api.Result, error) { return api.Result{}, err }}
	}
	cases := []struct {
		name string
		w    *worker.Worker
		env  api.Envelope
		kind api.ErrorKind
	}{
		{"unknown type", worker.New(okSandbox(), fakeModules{}, nil),
			api.Envelope{Type: "publish-module"}, api.UnknownTypeErr},
		{"bad run-module", worker.New(okSandbox(), fakeModules{}, nil),
			api.Envelope{Type: api.RunModuleJob, Payload: json.RawMessage(`{"runId":""}`)}, api.ValidationErr},
		{"invalid job", worker.New(failing(&jobspec.ValidationError{Field: "entryFile", Reason: "x"}), nil, nil),
			api.Envelope{Type: api.SandboxJob}, api.ValidationErr},
		{"infrastructure", worker.New(failing(&sandbox.InfraError{Op: "stage", Err: fmt.Errorf("disk full")}), nil, nil),
			api.Envelope{Type: api.SandboxJob}, api.InfrastructureErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply := tc.w.Handle(context.Background(), tc.env)
			assert.False(t, reply.Ok)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tc.kind, reply.Error.Kind)
			assert.Nil(t, reply.Result)
		})
	}
}

func TestHandleRawMalformed(t *testing.T) {
	w := worker.New(okSandbox(), fakeModules{}, nil)
	var reply api.Reply
	require.NoError(t, json.Unmarshal(w.HandleRaw(context.Background(), []byte(`{`)), &reply))
	require.NotNil(t, reply.Error)
	assert.Equal(t, api.ValidationErr, reply.Error.Kind)
}

func blockingSandbox(started chan<- struct{}) fakeSandbox {
	return fakeSandbox{run: func(ctx context.Context, raw []byte) (api.Result, error) {
		started <- struct{}{}
		<-ctx.Done()
		return api.Result{}, fmt.Errorf("execution cancelled: %w", context.Cause(ctx))
	}}
}

func TestCancelInFlightJob(t *testing.T) {
	started := make(chan struct{}, 1)
	w := worker.New(blockingSandbox(started), nil, nil)

	replies := make(chan api.Reply, 1)
	go func() {
		replies <- w.Handle(context.Background(), api.Envelope{Type: api.SandboxJob, ID: "long"})
	}()
	<-started
	assert.Equal(t, 1, w.InFlight())

	dup := w.Handle(context.Background(), api.Envelope{Type: api.SandboxJob, ID: "long"})
	require.NotNil(t, dup.Error)
	assert.Equal(t, api.ValidationErr, dup.Error.Kind)

	assert.True(t, w.Cancel("long"))
	assert.False(t, w.Cancel("other"))

	reply := <-replies
	require.NotNil(t, reply.Error)
	assert.Equal(t, api.CancelledErr, reply.Error.Kind)
	assert.Equal(t, 0, w.InFlight())
}

func TestServeBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	sb := fakeSandbox{run: func(ctx context.Context, raw []byte) (api.Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return api.Result{Ok: true}, nil
	}}
	w := worker.New(sb, nil, nil)

	q := memq.New(16)
	ctx := context.Background()
	for i := range 8 {
		require.NoError(t, q.PushEnvelope(ctx, api.Envelope{Type: api.SandboxJob, ID: fmt.Sprint(i)}))
	}
	q.Close()

	require.NoError(t, w.Serve(ctx, q, 2))
	assert.LessOrEqual(t, peak.Load(), int32(2))

	seen := map[string]bool{}
	for body := range q.Replies() {
		var reply api.Reply
		require.NoError(t, json.Unmarshal(body, &reply))
		assert.True(t, reply.Ok)
		seen[reply.ID] = true
	}
	assert.Len(t, seen, 8)
}
