// Package modrun runs packed module bundles fetched from the artifact
// store inside the sandbox.
package modrun

//go:generate mockgen -source=processor.go -destination=mocks/processor.go -package=mocks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/artifacts"
	"github.com/programme-lv/modbox/internal/jobspec"
	"github.com/programme-lv/modbox/internal/sandbox"
)

const defaultEntryFile = "index.js"

// Environment variables visible to a running module.
const (
	EnvRunID     = "MODULE_RUN_ID"
	EnvModuleID  = "MODULE_ID"
	EnvForkID    = "MODULE_FORK_ID"
	EnvInputJSON = "MODULE_INPUT_JSON"
)

type ArtifactStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
}

type Runner interface {
	Execute(ctx context.Context, job jobspec.Job) (api.Result, error)
}

type Processor struct {
	store     ArtifactStore
	runner    Runner
	bootstrap Bootstrap
	log       *slog.Logger
}

func NewProcessor(store ArtifactStore, runner Runner, bootstrap Bootstrap, log *slog.Logger) *Processor {
	if bootstrap.Name == "" {
		bootstrap = NodeBootstrap
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Processor{store: store, runner: runner, bootstrap: bootstrap, log: log}
}

// DecodeRequest parses a run-module request and checks its required fields.
func DecodeRequest(raw []byte) (api.RunModuleReq, error) {
	var req api.RunModuleReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, &jobspec.ValidationError{Reason: fmt.Sprintf("malformed run-module request: %v", err)}
	}
	return req, validate(req)
}

func validate(req api.RunModuleReq) error {
	switch {
	case req.RunID == "":
		return &jobspec.ValidationError{Field: "runId", Reason: "must not be empty"}
	case req.ModuleID == "":
		return &jobspec.ValidationError{Field: "moduleId", Reason: "must not be empty"}
	case req.PackedArtifactKey == "":
		return &jobspec.ValidationError{Field: "packedArtifactKey", Reason: "must not be empty"}
	case len(req.Input) > 0 && !json.Valid(req.Input):
		return &jobspec.ValidationError{Field: "input", Reason: "not valid JSON"}
	}
	return nil
}

// Process fetches the bundle, wraps its entry file with the bootstrap and
// runs it.
func (p *Processor) Process(ctx context.Context, req api.RunModuleReq) (api.RunModuleRes, error) {
	if err := validate(req); err != nil {
		return api.RunModuleRes{}, err
	}
	log := p.log.With("run", req.RunID, "module", req.ModuleID)

	job, err := p.prepare(ctx, req)
	if err != nil {
		return api.RunModuleRes{}, err
	}

	res, err := p.runner.Execute(ctx, job)
	if err != nil {
		return api.RunModuleRes{}, err
	}
	log.Info("run completed",
		"ok", res.Ok,
		"exit_code", res.ExitCode,
		"duration_ms", res.DurationMs)

	return api.RunModuleRes{
		RunID:    req.RunID,
		ModuleID: req.ModuleID,
		ForkID:   req.ForkID,
		Result:   res,
	}, nil
}

func (p *Processor) prepare(ctx context.Context, req api.RunModuleReq) (jobspec.Job, error) {
	data, err := p.store.GetBytes(ctx, req.PackedArtifactKey)
	if errors.Is(err, artifacts.ErrNotFound) || errors.Is(err, artifacts.ErrBadKey) {
		return jobspec.Job{}, &jobspec.ValidationError{Field: "packedArtifactKey", Reason: err.Error()}
	}
	if err != nil {
		return jobspec.Job{}, &sandbox.InfraError{Op: "fetch artifact", Err: err}
	}

	var bundle api.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return jobspec.Job{}, &jobspec.ValidationError{
			Field:  "packedArtifactKey",
			Reason: fmt.Sprintf("bundle is not valid JSON: %v", err),
		}
	}
	entry := bundle.EntryFile
	if entry == "" {
		entry = defaultEntryFile
	}
	if err := checkEntry(entry, bundle.Files); err != nil {
		return jobspec.Job{}, err
	}

	input := []byte("null")
	if len(req.Input) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, req.Input); err != nil {
			return jobspec.Job{}, &jobspec.ValidationError{Field: "input", Reason: err.Error()}
		}
		input = buf.Bytes()
	}

	env := map[string]string{
		EnvRunID:     req.RunID,
		EnvModuleID:  req.ModuleID,
		EnvInputJSON: string(input),
	}
	if req.ForkID != nil {
		env[EnvForkID] = *req.ForkID
	}

	files := append(bundle.Files, api.File{
		RelPath: p.bootstrap.Name,
		Content: p.bootstrap.Render(entry),
	})
	return jobspec.FromRequest(api.JobReq{
		EntryFile: p.bootstrap.Name,
		Files:     files,
		Env:       env,
		Limits:    req.Limits,
	})
}

// checkEntry holds the bundle entry to the same rules as a job entry file,
// since the bootstrap loads it by path.
func checkEntry(entry string, files []api.File) error {
	if _, err := jobspec.CleanRelPath(entry); err != nil {
		return &jobspec.ValidationError{Field: "bundle.entryFile", Reason: err.Error()}
	}
	for _, f := range files {
		if f.RelPath == entry {
			return nil
		}
	}
	return &jobspec.ValidationError{
		Field:  "bundle.entryFile",
		Reason: fmt.Sprintf("%q is not among the bundle files", entry),
	}
}
