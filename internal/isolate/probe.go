package isolate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// ErrNoIsolation is returned by Select when strict isolation is missing
// and unisolated execution has not been allowed.
var ErrNoIsolation = errors.New("strict isolation is unavailable on this host")

// Capabilities describes what the host can offer. It is computed once per
// process by Probe.
type Capabilities struct {
	Strict      bool
	BwrapPath   string
	PrlimitPath string
	// Reason explains why strict isolation is unavailable.
	Reason string
}

var (
	probeOnce sync.Once
	probed    Capabilities
)

// Probe inspects the host once and caches the answer for the lifetime of
// the process.
func Probe() Capabilities {
	probeOnce.Do(func() {
		probed = probe(runtime.GOOS, exec.LookPath, trialRun)
	})
	return probed
}

func probe(goos string, lookPath func(string) (string, error), trial func(bwrap string) error) Capabilities {
	if goos != "linux" {
		return Capabilities{Reason: fmt.Sprintf("namespaces are not available on %s", goos)}
	}
	bwrap, err := lookPath("bwrap")
	if err != nil {
		return Capabilities{Reason: "bwrap not found in PATH"}
	}
	prlimit, err := lookPath("prlimit")
	if err != nil {
		return Capabilities{Reason: "prlimit not found in PATH"}
	}
	if err := trial(bwrap); err != nil {
		return Capabilities{Reason: fmt.Sprintf("bwrap trial run failed: %v", err)}
	}
	return Capabilities{Strict: true, BwrapPath: bwrap, PrlimitPath: prlimit}
}

// trialRun checks that the kernel lets us create the namespaces bwrap
// needs. Unprivileged user namespaces are disabled on some hosts.
func trialRun(bwrap string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, bwrap,
		"--unshare-all", "--die-with-parent",
		"--ro-bind", "/", "/", "--dev", "/dev", "--proc", "/proc",
		"--", "true")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%w: %s", err, out)
		}
		return err
	}
	return nil
}

// Selector picks the backend for every job from the probed capabilities.
type Selector struct {
	caps   Capabilities
	strict Backend
	plain  Backend
}

type SelectorOpts struct {
	// AllowUnisolated permits the plain backend when strict isolation is
	// unavailable.
	AllowUnisolated bool
	KillGrace       time.Duration
}

func NewSelector(caps Capabilities, opts SelectorOpts) *Selector {
	s := &Selector{caps: caps}
	if caps.Strict {
		s.strict = NewBwrap(caps.BwrapPath, caps.PrlimitPath, opts.KillGrace)
	}
	if opts.AllowUnisolated {
		s.plain = NewPlain(opts.KillGrace)
	}
	return s
}

func (s *Selector) Capabilities() Capabilities {
	return s.caps
}

// Select returns the strict backend when available, otherwise the plain
// backend if it was allowed.
func (s *Selector) Select() (Backend, error) {
	if s.strict != nil {
		return s.strict, nil
	}
	if s.plain != nil {
		return s.plain, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoIsolation, s.caps.Reason)
}

// Available lists every backend this selector could hand out, strict
// first.
func (s *Selector) Available() []Backend {
	var res []Backend
	if s.strict != nil {
		res = append(res, s.strict)
	}
	if s.plain != nil {
		res = append(res, s.plain)
	}
	return res
}
