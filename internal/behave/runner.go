package behave

import (
	"context"
	"strings"
	"sync"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/sandbox"
)

// SandboxRunner runs scenarios through real sandboxes, one per runtime
// command.
type SandboxRunner struct {
	opts sandbox.Options

	mu    sync.Mutex
	boxes map[string]*sandbox.Sandbox
}

func NewSandboxRunner(opts sandbox.Options) *SandboxRunner {
	return &SandboxRunner{opts: opts, boxes: make(map[string]*sandbox.Sandbox)}
}

func (r *SandboxRunner) Run(ctx context.Context, runtime []string, req api.JobReq) (api.Result, error) {
	return r.sandboxFor(runtime).Run(ctx, req)
}

func (r *SandboxRunner) sandboxFor(runtime []string) *sandbox.Sandbox {
	key := strings.Join(runtime, "\x00")
	r.mu.Lock()
	defer r.mu.Unlock()
	sb, ok := r.boxes[key]
	if !ok {
		opts := r.opts
		opts.Runtime = runtime
		sb = sandbox.New(opts)
		r.boxes[key] = sb
	}
	return sb
}
