// Package config loads modbox settings from a TOML file, a .env file and
// MODBOX_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/modbox/internal/artifacts"
	"github.com/programme-lv/modbox/internal/transport/natsq"
	"github.com/programme-lv/modbox/internal/transport/sqsq"
	"github.com/programme-lv/modbox/internal/xdg"
)

type Config struct {
	Log       Log          `toml:"log"`
	Sandbox   Sandbox      `toml:"sandbox"`
	Worker    Worker       `toml:"worker"`
	NATS      natsq.Config `toml:"nats"`
	SQS       sqsq.Config  `toml:"sqs"`
	Artifacts Artifacts    `toml:"artifacts"`
}

type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

type Sandbox struct {
	Runtime         []string `toml:"runtime"`
	WorkspaceRoot   string   `toml:"workspace_root"`
	AllowUnisolated bool     `toml:"allow_unisolated"`
	KillGraceMs     int64    `toml:"kill_grace_ms"`
	HashOutput      bool     `toml:"hash_output"`
	// Bootstrap is the run-module wrapper, "node" or "shell".
	Bootstrap string `toml:"bootstrap"`
}

func (s Sandbox) KillGrace() time.Duration {
	return time.Duration(s.KillGraceMs) * time.Millisecond
}

type Worker struct {
	// Transport is "memory", "nats" or "sqs".
	Transport   string `toml:"transport"`
	Concurrency int    `toml:"concurrency"`
	// SeedDemo pushes a self-test job into the memory transport.
	SeedDemo bool `toml:"seed_demo"`
}

type Artifacts struct {
	// Backend is "local" or "minio".
	Backend string                `toml:"backend"`
	Dir     string                `toml:"dir"`
	MinIO   artifacts.MinIOConfig `toml:"minio"`
}

func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Sandbox: Sandbox{
			Runtime:     []string{"node"},
			KillGraceMs: 100,
			HashOutput:  true,
			Bootstrap:   "node",
		},
		Worker: Worker{Transport: "memory", Concurrency: 4},
		NATS: natsq.Config{
			URL:           "nats://127.0.0.1:4222",
			Subject:       "modbox.jobs",
			Queue:         "modbox-workers",
			CancelSubject: "modbox.cancel",
		},
		SQS: sqsq.Config{
			Region:            "eu-central-1",
			WaitSeconds:       20,
			VisibilitySeconds: 300,
		},
		Artifacts: Artifacts{
			Backend: "local",
			Dir:     xdg.NewXDGDirs().AppDataDir(),
		},
	}
}

// Load builds the configuration. An empty path means the first
// config.toml found in the XDG config directories, if any.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = xdg.NewXDGDirs().FindConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int64) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("MODBOX_LOG_LEVEL", &cfg.Log.Level)
	str("MODBOX_LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("MODBOX_SANDBOX_RUNTIME"); ok {
		cfg.Sandbox.Runtime = strings.Fields(v)
	}
	str("MODBOX_WORKSPACE_ROOT", &cfg.Sandbox.WorkspaceRoot)
	boolean("MODBOX_ALLOW_UNISOLATED", &cfg.Sandbox.AllowUnisolated)
	integer("MODBOX_KILL_GRACE_MS", &cfg.Sandbox.KillGraceMs)
	boolean("MODBOX_HASH_OUTPUT", &cfg.Sandbox.HashOutput)
	str("MODBOX_SANDBOX_BOOTSTRAP", &cfg.Sandbox.Bootstrap)

	str("MODBOX_WORKER_TRANSPORT", &cfg.Worker.Transport)
	concurrency := int64(cfg.Worker.Concurrency)
	integer("MODBOX_WORKER_CONCURRENCY", &concurrency)
	cfg.Worker.Concurrency = int(concurrency)
	boolean("MODBOX_SEED_DEMO", &cfg.Worker.SeedDemo)

	str("MODBOX_NATS_URL", &cfg.NATS.URL)
	str("MODBOX_NATS_SUBJECT", &cfg.NATS.Subject)

	str("MODBOX_SQS_REGION", &cfg.SQS.Region)
	str("MODBOX_SQS_QUEUE_URL", &cfg.SQS.QueueURL)
	str("MODBOX_SQS_RESULT_QUEUE_URL", &cfg.SQS.ResultQueueURL)

	str("MODBOX_ARTIFACTS_BACKEND", &cfg.Artifacts.Backend)
	str("MODBOX_ARTIFACTS_DIR", &cfg.Artifacts.Dir)
	str("MODBOX_MINIO_ENDPOINT", &cfg.Artifacts.MinIO.Endpoint)
	str("MODBOX_MINIO_ACCESS_KEY", &cfg.Artifacts.MinIO.AccessKey)
	str("MODBOX_MINIO_SECRET_KEY", &cfg.Artifacts.MinIO.SecretKey)
	str("MODBOX_MINIO_BUCKET", &cfg.Artifacts.MinIO.Bucket)
	boolean("MODBOX_MINIO_USE_SSL", &cfg.Artifacts.MinIO.UseSSL)

	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if len(c.Sandbox.Runtime) == 0 {
		errs = append(errs, errors.New("sandbox.runtime: must not be empty"))
	}
	switch c.Sandbox.Bootstrap {
	case "node", "shell":
	default:
		errs = append(errs, fmt.Errorf("sandbox.bootstrap: unknown bootstrap %q", c.Sandbox.Bootstrap))
	}
	if c.Sandbox.KillGraceMs < 0 {
		errs = append(errs, errors.New("sandbox.kill_grace_ms: must not be negative"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("worker.concurrency: must be at least 1"))
	}
	switch c.Worker.Transport {
	case "memory":
	case "nats":
		if c.NATS.URL == "" || c.NATS.Subject == "" {
			errs = append(errs, errors.New("nats: url and subject are required"))
		}
	case "sqs":
		if c.SQS.QueueURL == "" {
			errs = append(errs, errors.New("sqs.queue_url: required for the sqs transport"))
		}
		if c.SQS.WaitSeconds < 0 || c.SQS.WaitSeconds > 20 {
			errs = append(errs, errors.New("sqs.wait_seconds: must be within 0..20"))
		}
	default:
		errs = append(errs, fmt.Errorf("worker.transport: unknown transport %q", c.Worker.Transport))
	}
	switch c.Artifacts.Backend {
	case "local":
		if c.Artifacts.Dir == "" {
			errs = append(errs, errors.New("artifacts.dir: required for the local backend"))
		}
	case "minio":
		if c.Artifacts.MinIO.Endpoint == "" || c.Artifacts.MinIO.Bucket == "" {
			errs = append(errs, errors.New("artifacts.minio: endpoint and bucket are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("artifacts.backend: unknown backend %q", c.Artifacts.Backend))
	}
	return errors.Join(errs...)
}
