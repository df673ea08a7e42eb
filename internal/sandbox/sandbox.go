package sandbox

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/isolate"
	"github.com/programme-lv/modbox/internal/jobspec"
	"github.com/programme-lv/modbox/internal/result"
	"github.com/programme-lv/modbox/internal/workspace"
)

type Options struct {
	// Runtime is the interpreter command the entry file is passed to.
	// Defaults to ["node"].
	Runtime    []string
	Workspaces *workspace.Manager
	// Selector overrides backend selection. When nil one is built from
	// the process wide probe.
	Selector        *isolate.Selector
	AllowUnisolated bool
	KillGrace       time.Duration
	HashOutput      bool
	Log             *slog.Logger
}

type Sandbox struct {
	runtime    []string
	workspaces *workspace.Manager
	selector   *isolate.Selector
	hashOutput bool
	log        *slog.Logger
}

func New(opts Options) *Sandbox {
	s := &Sandbox{
		runtime:    opts.Runtime,
		workspaces: opts.Workspaces,
		selector:   opts.Selector,
		hashOutput: opts.HashOutput,
		log:        opts.Log,
	}
	if len(s.runtime) == 0 {
		s.runtime = []string{"node"}
	}
	if s.workspaces == nil {
		s.workspaces = workspace.NewManager("")
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.selector == nil {
		s.selector = isolate.NewSelector(isolate.Probe(), isolate.SelectorOpts{
			AllowUnisolated: opts.AllowUnisolated,
			KillGrace:       opts.KillGrace,
		})
	}

	caps := s.selector.Capabilities()
	switch {
	case caps.Strict:
		s.log.Info("strict isolation available", "bwrap", caps.BwrapPath)
	case s.hasPlain():
		s.log.Warn("strict isolation unavailable, jobs will run without isolation",
			"reason", caps.Reason, "isolation", "none")
	default:
		s.log.Error("strict isolation unavailable, jobs will be refused",
			"reason", caps.Reason)
	}
	return s
}

func (s *Sandbox) hasPlain() bool {
	for _, b := range s.selector.Available() {
		if !b.Isolated() {
			return true
		}
	}
	return false
}

func (s *Sandbox) Selector() *isolate.Selector {
	return s.selector
}

// RunRaw decodes a JSON job descriptor and executes it.
func (s *Sandbox) RunRaw(ctx context.Context, raw []byte) (api.Result, error) {
	job, err := jobspec.Decode(raw)
	if err != nil {
		return api.Result{}, err
	}
	return s.Execute(ctx, job)
}

// Run validates a parsed descriptor and executes it.
func (s *Sandbox) Run(ctx context.Context, req api.JobReq) (api.Result, error) {
	job, err := jobspec.FromRequest(req)
	if err != nil {
		return api.Result{}, err
	}
	return s.Execute(ctx, job)
}

// Execute stages the job into a fresh workspace, runs it with the
// selected backend and removes the workspace before returning, whatever
// the outcome. Timeouts and output overflow are reported in the result;
// errors are reserved for infrastructure failures and cancellation.
func (s *Sandbox) Execute(ctx context.Context, job jobspec.Job) (api.Result, error) {
	backend, err := s.selector.Select()
	if err != nil {
		return api.Result{}, &InfraError{Op: "select backend", Err: err}
	}
	return s.ExecuteWith(ctx, backend, job)
}

// ExecuteWith is Execute with an explicitly chosen backend.
func (s *Sandbox) ExecuteWith(ctx context.Context, backend isolate.Backend, job jobspec.Job) (api.Result, error) {
	ws, err := s.workspaces.Stage(job)
	if err != nil {
		return api.Result{}, &InfraError{Op: "stage workspace", Err: err}
	}
	log := s.log.With("backend", backend.Name(), "workspace", ws.Dir())
	defer func() {
		if err := workspace.Teardown(ws); err != nil {
			log.Error("failed to remove workspace", "error", err)
		}
	}()

	if !backend.Isolated() {
		log.Warn("running job without isolation", "isolation", "none")
	}

	argv := slices.Concat(s.runtime, []string{job.EntryFile}, job.Args)
	out, err := backend.Run(ctx, isolate.Spec{
		Dir:    ws.Dir(),
		Argv:   argv,
		Env:    job.Env,
		Limits: job.Limits,
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Info("job cancelled", "error", err)
			return api.Result{}, err
		}
		return api.Result{}, &InfraError{Op: "run " + backend.Name(), Err: err}
	}

	res := result.Build(out, result.Backend{Name: backend.Name(), Isolated: backend.Isolated()},
		result.Options{HashOutput: s.hashOutput})
	log.Info("job finished",
		"ok", res.Ok,
		"duration", out.Duration,
		"timed_out", res.TimedOut,
		"output_truncated", res.OutputTruncated)
	return res, nil
}
