// Command modbox runs untrusted JavaScript modules in a sandbox, either
// one-off from the command line or as a queue worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/programme-lv/modbox/internal/config"
	"github.com/programme-lv/modbox/internal/logging"
	"github.com/programme-lv/modbox/internal/sandbox"
	"github.com/programme-lv/modbox/internal/workspace"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "modbox",
		Usage: "module execution sandbox",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.toml",
				Sources: cli.EnvVars("MODBOX_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "allow-unisolated",
				Usage: "run jobs without isolation when bwrap is unavailable",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			behaveCommand(),
			workerCommand(),
			submitCommand(),
			cancelCommand(),
			probeCommand(),
			packCommand(),
			deleteCommand(),
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "modbox:", err)
		os.Exit(1)
	}
}

func setup(cmd *cli.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, nil, err
	}
	if cmd.Bool("allow-unisolated") {
		cfg.Sandbox.AllowUnisolated = true
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func sandboxOptions(cfg config.Config, log *slog.Logger) sandbox.Options {
	return sandbox.Options{
		Runtime:         cfg.Sandbox.Runtime,
		Workspaces:      workspace.NewManager(cfg.Sandbox.WorkspaceRoot),
		AllowUnisolated: cfg.Sandbox.AllowUnisolated,
		KillGrace:       cfg.Sandbox.KillGrace(),
		HashOutput:      cfg.Sandbox.HashOutput,
		Log:             log,
	}
}
