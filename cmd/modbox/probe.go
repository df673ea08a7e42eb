package main

import (
	"context"
	"os"

	"github.com/programme-lv/modbox/internal/isolate"
	"github.com/programme-lv/modbox/internal/termout"
	"github.com/urfave/cli/v3"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "report which isolation backends this host supports",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			caps := isolate.Probe()

			rows := []termout.HealthRow{}
			if caps.Strict {
				rows = append(rows, termout.HealthRow{Unit: "bwrap", Health: termout.Okay,
					Message: caps.BwrapPath + " with " + caps.PrlimitPath})
			} else {
				rows = append(rows, termout.HealthRow{Unit: "bwrap", Health: termout.Error, Message: caps.Reason})
			}
			if cfg.Sandbox.AllowUnisolated {
				rows = append(rows, termout.HealthRow{Unit: "plain", Health: termout.Warn,
					Message: "allowed, jobs are not isolated"})
			} else {
				rows = append(rows, termout.HealthRow{Unit: "plain", Health: termout.Okay,
					Message: "disabled"})
			}
			if err := termout.HealthTable(os.Stdout, rows); err != nil {
				return err
			}
			if !caps.Strict && !cfg.Sandbox.AllowUnisolated {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
