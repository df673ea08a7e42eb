package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/termout"
	"github.com/programme-lv/modbox/internal/transport/natsq"
	"github.com/urfave/cli/v3"
)

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "send a job to the workers over NATS and wait for the reply",
		ArgsUsage: "<payload.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Value: string(api.SandboxJob), Usage: "sandbox or run-module"},
			&cli.StringFlag{Name: "id", Usage: "job id used for cancellation"},
			&cli.DurationFlag{Name: "timeout", Value: 2 * time.Minute},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one payload file")
			}
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			payload, err := os.ReadFile(cmd.Args().First())
			if err != nil {
				return err
			}
			if !json.Valid(payload) {
				return fmt.Errorf("%s is not valid JSON", cmd.Args().First())
			}

			env := api.Envelope{
				Type:    api.JobType(cmd.String("type")),
				ID:      cmd.String("id"),
				Payload: payload,
			}
			if env.ID == "" && env.Type == api.SandboxJob {
				env.ID = uuid.NewString()
			}

			nc, err := natsq.Connect(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()
			fmt.Fprintf(os.Stderr, "submitted %s job %s\n", env.Type, env.ID)
			reply, err := natsq.Submit(ctx, nc, cfg.NATS.Subject, env)
			if err != nil {
				return err
			}
			return printReply(reply)
		},
	}
}

func printReply(reply api.Reply) error {
	if !reply.Ok {
		return cli.Exit(fmt.Sprintf("job %s failed (%s): %s", reply.ID, reply.Error.Kind, reply.Error.Message), 1)
	}
	switch reply.Type {
	case api.SandboxJob:
		var res api.Result
		if err := json.Unmarshal(reply.Result, &res); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		termout.Result(os.Stdout, res)
	case api.RunModuleJob:
		var res api.RunModuleRes
		if err := json.Unmarshal(reply.Result, &res); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		fmt.Printf("run %s of module %s\n", res.RunID, res.ModuleID)
		termout.Result(os.Stdout, res.Result)
	default:
		fmt.Println(string(reply.Result))
	}
	return nil
}

func cancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "stop an in-flight job by id",
		ArgsUsage: "<job-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one job id")
			}
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			nc, err := natsq.Connect(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			found, err := natsq.CancelJob(ctx, nc, cfg.NATS.CancelSubject, cmd.Args().First())
			if err != nil {
				return err
			}
			if !found {
				return cli.Exit("no such job in flight", 1)
			}
			fmt.Println("cancelled")
			return nil
		},
	}
}
