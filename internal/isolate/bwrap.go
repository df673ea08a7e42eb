package isolate

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/programme-lv/modbox/internal/limits"
)

const (
	// sandboxDir is where the workspace is mounted inside the namespace.
	sandboxDir   = "/work"
	maxOpenFiles = 256
)

// Bwrap runs jobs in fresh namespaces with bubblewrap and applies kernel
// resource limits through prlimit inside the sandbox.
type Bwrap struct {
	bwrap   string
	prlimit string
	grace   time.Duration
}

func NewBwrap(bwrapPath, prlimitPath string, grace time.Duration) *Bwrap {
	return &Bwrap{bwrap: bwrapPath, prlimit: prlimitPath, grace: grace}
}

func (b *Bwrap) Name() string   { return "bwrap" }
func (b *Bwrap) Isolated() bool { return true }

func (b *Bwrap) Run(ctx context.Context, spec Spec) (Outcome, error) {
	if len(spec.Argv) == 0 {
		return Outcome{}, errEmptyArgv
	}
	cmd := exec.Command(b.bwrap, b.Args(spec)...)
	cmd.Dir = spec.Dir
	cmd.Env = strictEnv(sandboxDir, spec.Env)
	return supervise(ctx, cmd, superviseLimits{
		wall:      spec.Limits.WallTime(),
		maxOutput: spec.Limits.MaxOutputBytes,
	}, b.grace, nil)
}

// Args returns the full bwrap command line for spec.
func (b *Bwrap) Args(spec Spec) []string {
	args := []string{
		"--die-with-parent",
		"--new-session",
		"--unshare-all",
	}
	if spec.Limits.Network == limits.NetworkAllow {
		args = append(args, "--share-net")
	}
	args = append(args,
		"--cap-drop", "ALL",
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--bind", spec.Dir, sandboxDir,
		"--chdir", sandboxDir,
		"--hostname", "modbox",
		"--",
		b.prlimit,
	)
	args = append(args, newRlimits(spec.Limits).ToArgs()...)
	args = append(args, "--")
	return append(args, spec.Argv...)
}

// rlimits are the kernel limits applied to the sandboxed process tree.
type rlimits struct {
	AddressSpaceBytes int64
	FileSizeBytes     int64
	CpuTimeSec        int64
	OpenFiles         int
}

func newRlimits(l limits.Limits) rlimits {
	return rlimits{
		AddressSpaceBytes: l.MemoryBytes(),
		FileSizeBytes:     l.MaxFileBytes,
		CpuTimeSec:        l.CpuTimeSec(),
		OpenFiles:         maxOpenFiles,
	}
}

func (r rlimits) ToArgs() []string {
	return []string{
		r.AddressSpaceArg(),
		r.FileSizeArg(),
		r.CpuTimeArg(),
		r.OpenFilesArg(),
	}
}

func (r rlimits) AddressSpaceArg() string {
	return fmt.Sprintf("--as=%d", r.AddressSpaceBytes)
}

func (r rlimits) FileSizeArg() string {
	return fmt.Sprintf("--fsize=%d", r.FileSizeBytes)
}

func (r rlimits) CpuTimeArg() string {
	return fmt.Sprintf("--cpu=%d", r.CpuTimeSec)
}

func (r rlimits) OpenFilesArg() string {
	return fmt.Sprintf("--nofile=%d", r.OpenFiles)
}
