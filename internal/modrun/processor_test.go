package modrun_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/artifacts"
	"github.com/programme-lv/modbox/internal/jobspec"
	"github.com/programme-lv/modbox/internal/modrun"
	"github.com/programme-lv/modbox/internal/modrun/mocks"
	"github.com/programme-lv/modbox/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func bundleJSON(t *testing.T, b api.Bundle) []byte {
	t.Helper()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	return data
}

func TestProcessInjectsBootstrap(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	runner := mocks.NewMockRunner(ctrl)

	fork := "f1"
	req := api.RunModuleReq{
		RunID:             "r1",
		ModuleID:          "m1",
		ForkID:            &fork,
		PackedArtifactKey: "abc",
		Input:             json.RawMessage(`{ "n": 1 }`),
	}
	store.EXPECT().GetBytes(gomock.Any(), "abc").Return(bundleJSON(t, api.Bundle{
		Files: []api.File{{RelPath: "index.js", Content: "console.log(1)"}},
	}), nil)

	exit := 0
	runner.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, job jobspec.Job) (api.Result, error) {
			assert.Equal(t, "__runner.mjs", job.EntryFile)
			require.Len(t, job.Files, 2)
			assert.Equal(t, "index.js", job.Files[0].RelPath)
			assert.Contains(t, string(job.Files[1].Content), `"index.js"`)
			assert.Equal(t, map[string]string{
				modrun.EnvRunID:     "r1",
				modrun.EnvModuleID:  "m1",
				modrun.EnvForkID:    "f1",
				modrun.EnvInputJSON: `{"n":1}`,
			}, job.Env)
			return api.Result{Ok: true, ExitCode: &exit, Stdout: "1\n"}, nil
		})

	p := modrun.NewProcessor(store, runner, modrun.Bootstrap{}, nil)
	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "r1", res.RunID)
	assert.Equal(t, "m1", res.ModuleID)
	assert.Equal(t, &fork, res.ForkID)
	assert.True(t, res.Result.Ok)
	assert.Equal(t, "1\n", res.Result.Stdout)
}

func TestProcessDefaultsInputToNull(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	runner := mocks.NewMockRunner(ctrl)

	store.EXPECT().GetBytes(gomock.Any(), "k").Return(bundleJSON(t, api.Bundle{
		EntryFile: "src/main.sh",
		Files:     []api.File{{RelPath: "src/main.sh", Content: "echo hi"}},
	}), nil)
	runner.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, job jobspec.Job) (api.Result, error) {
			assert.Equal(t, "null", job.Env[modrun.EnvInputJSON])
			assert.NotContains(t, job.Env, modrun.EnvForkID)
			assert.Equal(t, "__runner.sh", job.EntryFile)
			assert.Equal(t, "exec /bin/sh 'src/main.sh'\n", string(job.Files[1].Content))
			return api.Result{}, nil
		})

	p := modrun.NewProcessor(store, runner, modrun.ShellBootstrap, nil)
	_, err := p.Process(context.Background(), api.RunModuleReq{RunID: "r", ModuleID: "m", PackedArtifactKey: "k"})
	require.NoError(t, err)
}

func TestProcessRejectsBadRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := modrun.NewProcessor(mocks.NewMockArtifactStore(ctrl), mocks.NewMockRunner(ctrl), modrun.Bootstrap{}, nil)

	cases := map[string]api.RunModuleReq{
		"runId":             {ModuleID: "m", PackedArtifactKey: "k"},
		"moduleId":          {RunID: "r", PackedArtifactKey: "k"},
		"packedArtifactKey": {RunID: "r", ModuleID: "m"},
		"input":             {RunID: "r", ModuleID: "m", PackedArtifactKey: "k", Input: json.RawMessage(`{`)},
	}
	for field, req := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := p.Process(context.Background(), req)
			var verr *jobspec.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, field, verr.Field)
		})
	}
}

func TestProcessArtifactErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	p := modrun.NewProcessor(store, mocks.NewMockRunner(ctrl), modrun.Bootstrap{}, nil)
	req := api.RunModuleReq{RunID: "r", ModuleID: "m", PackedArtifactKey: "k"}

	store.EXPECT().GetBytes(gomock.Any(), "k").Return(nil, artifacts.ErrNotFound)
	_, err := p.Process(context.Background(), req)
	assert.ErrorIs(t, err, jobspec.ErrInvalidJob)

	store.EXPECT().GetBytes(gomock.Any(), "k").Return(nil, errors.New("connection refused"))
	_, err = p.Process(context.Background(), req)
	assert.ErrorIs(t, err, sandbox.ErrInfrastructure)

	store.EXPECT().GetBytes(gomock.Any(), "k").Return([]byte("not json"), nil)
	_, err = p.Process(context.Background(), req)
	assert.ErrorIs(t, err, jobspec.ErrInvalidJob)
}

func TestProcessRejectsBundleTraversal(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockArtifactStore(ctrl)
	p := modrun.NewProcessor(store, mocks.NewMockRunner(ctrl), modrun.Bootstrap{}, nil)

	store.EXPECT().GetBytes(gomock.Any(), "k").Return(bundleJSON(t, api.Bundle{
		Files: []api.File{{RelPath: "index.js"}, {RelPath: "../../etc/cron.d/x"}},
	}), nil)
	_, err := p.Process(context.Background(), api.RunModuleReq{RunID: "r", ModuleID: "m", PackedArtifactKey: "k"})
	assert.ErrorIs(t, err, jobspec.ErrInvalidJob)
}

func TestProcessRejectsBadBundleEntry(t *testing.T) {
	entries := map[string]string{
		"traversal":  "../../../etc/profile",
		"absolute":   "/etc/profile",
		"not listed": "other.js",
	}
	for name, entry := range entries {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockArtifactStore(ctrl)
			p := modrun.NewProcessor(store, mocks.NewMockRunner(ctrl), modrun.ShellBootstrap, nil)

			store.EXPECT().GetBytes(gomock.Any(), "k").Return(bundleJSON(t, api.Bundle{
				EntryFile: entry,
				Files:     []api.File{{RelPath: "index.js", Content: "echo hi"}},
			}), nil)
			_, err := p.Process(context.Background(), api.RunModuleReq{RunID: "r", ModuleID: "m", PackedArtifactKey: "k"})
			var verr *jobspec.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "bundle.entryFile", verr.Field)
		})
	}
}

func TestProcessBadArtifactKeyIsInvalid(t *testing.T) {
	store, err := artifacts.NewLocal(t.TempDir())
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	p := modrun.NewProcessor(store, mocks.NewMockRunner(ctrl), modrun.Bootstrap{}, nil)

	_, err = p.Process(context.Background(), api.RunModuleReq{RunID: "r", ModuleID: "m", PackedArtifactKey: "../secret"})
	assert.ErrorIs(t, err, jobspec.ErrInvalidJob)
	assert.False(t, errors.Is(err, sandbox.ErrInfrastructure))
}

func TestDecodeRequest(t *testing.T) {
	req, err := modrun.DecodeRequest([]byte(`{"runId":"r","moduleId":"m","packedArtifactKey":"k","input":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, "k", req.PackedArtifactKey)
	assert.JSONEq(t, `[1,2]`, string(req.Input))

	_, err = modrun.DecodeRequest([]byte(`{"runId":`))
	assert.ErrorIs(t, err, jobspec.ErrInvalidJob)
}

func TestBootstrapByName(t *testing.T) {
	b, err := modrun.BootstrapByName("shell")
	require.NoError(t, err)
	assert.Equal(t, "__runner.sh", b.Name)

	b, err = modrun.BootstrapByName("node")
	require.NoError(t, err)
	assert.Equal(t, "__runner.mjs", b.Name)

	_, err = modrun.BootstrapByName("python")
	assert.Error(t, err)
}
