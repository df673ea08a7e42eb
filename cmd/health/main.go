// Command health checks that this host can run sandbox jobs and prints a
// status table. It exits non-zero when any check fails.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/config"
	"github.com/programme-lv/modbox/internal/isolate"
	"github.com/programme-lv/modbox/internal/jobspec"
	"github.com/programme-lv/modbox/internal/logging"
	"github.com/programme-lv/modbox/internal/sandbox"
	"github.com/programme-lv/modbox/internal/termout"
	"github.com/programme-lv/modbox/internal/workspace"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Getenv("MODBOX_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	caps := isolate.Probe()
	feedback := []termout.HealthRow{isolationRow(caps, cfg.Sandbox.AllowUnisolated)}

	runtimeRow := ensureRuntimeOk(cfg.Sandbox.Runtime)
	feedback = append(feedback, runtimeRow)
	if runtimeRow.Health != termout.Error {
		feedback = append(feedback, ensureBackendsOk(cfg, caps)...)
	}

	if err := termout.HealthTable(os.Stdout, feedback); err != nil {
		log.Fatal(err)
	}
	for _, row := range feedback {
		if row.Health == termout.Error {
			os.Exit(1)
		}
	}
}

func isolationRow(caps isolate.Capabilities, allowUnisolated bool) termout.HealthRow {
	switch {
	case caps.Strict:
		return termout.HealthRow{Unit: "isolation", Health: termout.Okay, Message: caps.BwrapPath}
	case allowUnisolated:
		return termout.HealthRow{Unit: "isolation", Health: termout.Warn,
			Message: caps.Reason + ", jobs will run without isolation"}
	}
	return termout.HealthRow{Unit: "isolation", Health: termout.Error, Message: caps.Reason}
}

func ensureRuntimeOk(runtime []string) termout.HealthRow {
	unit := "runtime " + strings.Join(runtime, " ")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, runtime[0], "--version").CombinedOutput()
	if err != nil {
		msg := err.Error()
		if len(out) > 0 {
			msg += ": " + string(out)
		}
		return termout.HealthRow{Unit: unit, Health: termout.Error, Message: msg}
	}
	return termout.HealthRow{Unit: unit, Health: termout.Okay, Message: string(out)}
}

// ensureBackendsOk runs a hello-world job through every backend the host
// offers, whether or not the configuration would select it.
func ensureBackendsOk(cfg config.Config, caps isolate.Capabilities) []termout.HealthRow {
	logger, err := logging.New(os.Stderr, "warn", cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}
	selector := isolate.NewSelector(caps, isolate.SelectorOpts{
		AllowUnisolated: true,
		KillGrace:       cfg.Sandbox.KillGrace(),
	})
	sb := sandbox.New(sandbox.Options{
		Runtime:    cfg.Sandbox.Runtime,
		Workspaces: workspace.NewManager(cfg.Sandbox.WorkspaceRoot),
		Selector:   selector,
		Log:        logger,
	})
	job, err := helloJob(cfg.Sandbox.Runtime)
	if err != nil {
		log.Fatal(err)
	}

	backends := selector.Available()
	rows := make([]termout.HealthRow, len(backends))
	var g errgroup.Group
	for i, b := range backends {
		g.Go(func() error {
			rows[i] = runHello(sb, b, job)
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func runHello(sb *sandbox.Sandbox, b isolate.Backend, job jobspec.Job) termout.HealthRow {
	unit := "backend " + b.Name()
	res, err := sb.ExecuteWith(context.Background(), b, job)
	switch {
	case err != nil:
		return termout.HealthRow{Unit: unit, Health: termout.Error, Message: err.Error()}
	case !res.Ok || strings.TrimSpace(res.Stdout) != "hello":
		return termout.HealthRow{Unit: unit, Health: termout.Error,
			Message: fmt.Sprintf("unexpected result: exit=%v stdout=%q stderr=%q",
				res.ExitCode, res.Stdout, res.Stderr)}
	case !b.Isolated():
		return termout.HealthRow{Unit: unit, Health: termout.Warn,
			Message: fmt.Sprintf("hello in %dms, not isolated", res.DurationMs)}
	}
	return termout.HealthRow{Unit: unit, Health: termout.Okay,
		Message: fmt.Sprintf("hello in %dms", res.DurationMs)}
}

func helloJob(runtime []string) (jobspec.Job, error) {
	file := api.File{RelPath: "index.mjs", Content: "console.log('hello');\n"}
	switch filepath.Base(runtime[0]) {
	case "sh", "bash", "dash":
		file = api.File{RelPath: "main.sh", Content: "echo hello\n"}
	}
	return jobspec.FromRequest(api.JobReq{EntryFile: file.RelPath, Files: []api.File{file}})
}
