package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/programme-lv/modbox/internal/artifacts"
	"github.com/programme-lv/modbox/internal/config"
	"github.com/programme-lv/modbox/internal/modrun"
	"github.com/programme-lv/modbox/internal/sandbox"
	"github.com/programme-lv/modbox/internal/transport/memq"
	"github.com/programme-lv/modbox/internal/transport/natsq"
	"github.com/programme-lv/modbox/internal/transport/sqsq"
	"github.com/programme-lv/modbox/internal/worker"
	"github.com/urfave/cli/v3"
)

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "consume jobs from the configured transport",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "transport", Usage: "memory, nats or sqs (overrides config)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if t := cmd.String("transport"); t != "" {
				cfg.Worker.Transport = t
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

type artifactStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	PutBytes(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

func openArtifacts(cfg config.Artifacts) (artifactStore, error) {
	switch cfg.Backend {
	case "local":
		return artifacts.NewLocal(cfg.Dir)
	case "minio":
		return artifacts.NewMinIO(cfg.MinIO)
	}
	return nil, fmt.Errorf("unknown artifacts backend %q", cfg.Backend)
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	store, err := openArtifacts(cfg.Artifacts)
	if err != nil {
		return err
	}
	bootstrap, err := modrun.BootstrapByName(cfg.Sandbox.Bootstrap)
	if err != nil {
		return err
	}
	sb := sandbox.New(sandboxOptions(cfg, log))
	proc := modrun.NewProcessor(store, sb, bootstrap, log)
	w := worker.New(sb, proc, log)

	var src worker.Source
	switch cfg.Worker.Transport {
	case "memory":
		q := memq.New(cfg.Worker.Concurrency * 4)
		logged := make(chan struct{})
		go func() {
			defer close(logged)
			for reply := range q.Replies() {
				log.Info("job finished", "reply", string(reply))
			}
		}()
		defer func() {
			q.Close()
			if n := q.Drop(); n > 0 {
				log.Warn("dropped queued jobs", "count", n)
			}
			<-logged
		}()
		if cfg.Worker.SeedDemo {
			if err := q.PushEnvelope(ctx, memq.DemoJob()); err != nil {
				return err
			}
		}
		src = q
	case "nats":
		nc, err := natsq.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Drain()
		s, err := natsq.Subscribe(nc, cfg.NATS, w)
		if err != nil {
			return err
		}
		defer s.Close()
		src = s
	case "sqs":
		client, err := sqsq.NewClient(ctx, cfg.SQS.Region)
		if err != nil {
			return err
		}
		src = sqsq.NewSource(client, cfg.SQS, log)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Worker.Transport)
	}

	log.Info("worker started",
		"transport", cfg.Worker.Transport,
		"concurrency", cfg.Worker.Concurrency,
		"artifacts", cfg.Artifacts.Backend)
	err = w.Serve(ctx, src, cfg.Worker.Concurrency)
	log.Info("worker stopped")
	return err
}
