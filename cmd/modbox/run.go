package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/sandbox"
	"github.com/programme-lv/modbox/internal/termout"
	"github.com/urfave/cli/v3"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run a job file, or a module directory with --dir",
		ArgsUsage: "[job.json] [-- args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "module directory to run instead of a job file"},
			&cli.StringFlag{Name: "entry", Value: "index.js", Usage: "entry file inside --dir"},
			&cli.StringSliceFlag{Name: "runtime", Usage: "override the runtime command"},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if rt := cmd.StringSlice("runtime"); len(rt) > 0 {
				cfg.Sandbox.Runtime = rt
			}

			var req api.JobReq
			if dir := cmd.String("dir"); dir != "" {
				files, err := readModuleDir(dir)
				if err != nil {
					return err
				}
				req = api.JobReq{EntryFile: cmd.String("entry"), Files: files, Args: cmd.Args().Slice()}
			} else {
				if cmd.Args().Len() == 0 {
					return fmt.Errorf("job file or --dir is required")
				}
				data, err := os.ReadFile(cmd.Args().First())
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &req); err != nil {
					return fmt.Errorf("parse job file: %w", err)
				}
			}

			sb := sandbox.New(sandboxOptions(cfg, log))
			res, err := sb.Run(ctx, req)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				termout.Result(os.Stdout, res)
			}
			if !res.Ok {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
