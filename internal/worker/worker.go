// Package worker dispatches job envelopes from a transport to the
// sandbox and the run-module processor.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/jobspec"
	"github.com/programme-lv/modbox/internal/modrun"
	"github.com/programme-lv/modbox/internal/sandbox"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrCancelled is the cancellation cause of jobs stopped by Cancel.
var ErrCancelled = errors.New("job cancelled on request")

type SandboxRunner interface {
	RunRaw(ctx context.Context, raw []byte) (api.Result, error)
}

type ModuleProcessor interface {
	Process(ctx context.Context, req api.RunModuleReq) (api.RunModuleRes, error)
}

type Worker struct {
	sandbox  SandboxRunner
	modules  ModuleProcessor
	inflight *xsync.MapOf[string, context.CancelCauseFunc]
	log      *slog.Logger
}

func New(sb SandboxRunner, modules ModuleProcessor, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		sandbox:  sb,
		modules:  modules,
		inflight: xsync.NewMapOf[string, context.CancelCauseFunc](),
		log:      log,
	}
}

// Cancel stops the in-flight job with the given id. The job's process
// is killed the same way as on a timeout.
func (w *Worker) Cancel(id string) bool {
	cancel, ok := w.inflight.Load(id)
	if ok {
		cancel(ErrCancelled)
	}
	return ok
}

func (w *Worker) InFlight() int {
	return w.inflight.Size()
}

// HandleRaw decodes an envelope, handles it and encodes the reply.
func (w *Worker) HandleRaw(ctx context.Context, raw []byte) []byte {
	var env api.Envelope
	var reply api.Reply
	if err := json.Unmarshal(raw, &env); err != nil {
		reply = errorReply(env, fmt.Errorf("%w: malformed envelope: %v", jobspec.ErrInvalidJob, err))
	} else {
		reply = w.Handle(ctx, env)
	}
	out, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("failed to encode reply", "job", reply.ID, "error", err)
		out, _ = json.Marshal(errorReply(env, &sandbox.InfraError{Op: "encode reply", Err: err}))
	}
	return out
}

func (w *Worker) Handle(ctx context.Context, env api.Envelope) api.Reply {
	switch env.Type {
	case api.RunModuleJob:
		req, err := modrun.DecodeRequest(env.Payload)
		if err != nil {
			return errorReply(env, err)
		}
		if env.ID == "" {
			env.ID = req.RunID
		}
		return w.track(ctx, env, func(ctx context.Context) (any, error) {
			return w.modules.Process(ctx, req)
		})
	case api.SandboxJob:
		if env.ID == "" {
			env.ID = uuid.NewString()
		}
		return w.track(ctx, env, func(ctx context.Context) (any, error) {
			return w.sandbox.RunRaw(ctx, env.Payload)
		})
	}
	return api.Reply{
		Type:  env.Type,
		ID:    env.ID,
		Error: &api.ErrorBody{Kind: api.UnknownTypeErr, Message: fmt.Sprintf("unknown job type %q", env.Type)},
	}
}

func (w *Worker) track(ctx context.Context, env api.Envelope, run func(context.Context) (any, error)) api.Reply {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if _, loaded := w.inflight.LoadOrStore(env.ID, cancel); loaded {
		return errorReply(env, fmt.Errorf("%w: job %s is already running", jobspec.ErrInvalidJob, env.ID))
	}
	defer w.inflight.Delete(env.ID)

	log := w.log.With("job", env.ID, "type", env.Type)
	log.Info("job started", "in_flight", w.InFlight())
	res, err := run(ctx)
	if err != nil {
		log.Warn("job failed", "error", err)
		return errorReply(env, err)
	}

	body, err := json.Marshal(res)
	if err != nil {
		return errorReply(env, &sandbox.InfraError{Op: "encode result", Err: err})
	}
	return api.Reply{Type: env.Type, ID: env.ID, Ok: true, Result: body}
}

func errorReply(env api.Envelope, err error) api.Reply {
	return api.Reply{
		Type:  env.Type,
		ID:    env.ID,
		Error: &api.ErrorBody{Kind: classify(err), Message: err.Error()},
	}
}

func classify(err error) api.ErrorKind {
	switch {
	case errors.Is(err, jobspec.ErrInvalidJob):
		return api.ValidationErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrCancelled):
		return api.CancelledErr
	default:
		return api.InfrastructureErr
	}
}
