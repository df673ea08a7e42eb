package main

import (
	"context"
	"fmt"
	"os"

	"github.com/programme-lv/modbox/internal/behave"
	"github.com/programme-lv/modbox/internal/termout"
	"github.com/urfave/cli/v3"
)

func behaveCommand() *cli.Command {
	return &cli.Command{
		Name:      "behave",
		Usage:     "run behaviour scenarios against the sandbox",
		ArgsUsage: "<scenarios.toml>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return fmt.Errorf("at least one scenario file is required")
			}
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			runner := behave.NewSandboxRunner(sandboxOptions(cfg, log))

			failed := 0
			total := 0
			for _, path := range cmd.Args().Slice() {
				cases, err := behave.Parse(path)
				if err != nil {
					return err
				}
				for _, c := range cases {
					o := behave.Execute(ctx, runner, c)
					termout.Scenario(os.Stdout, o)
					total++
					if !o.Passed() {
						failed++
					}
				}
			}
			fmt.Printf("%d/%d scenarios passed\n", total-failed, total)
			if failed > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
