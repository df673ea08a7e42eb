package workspace_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/programme-lv/modbox/api"
	"github.com/programme-lv/modbox/internal/jobspec"
	"github.com/programme-lv/modbox/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJob(t *testing.T, entry string, files ...api.File) jobspec.Job {
	t.Helper()
	job, err := jobspec.FromRequest(api.JobReq{EntryFile: entry, Files: files})
	require.NoError(t, err)
	return job
}

func TestStageWritesFiles(t *testing.T) {
	m := workspace.NewManager(t.TempDir())
	job := mustJob(t, "main.mjs",
		api.File{RelPath: "main.mjs", Content: "console.log(1)"},
		api.File{RelPath: "lib/deep/util.mjs", Content: "export const x = 1"},
	)

	ws, err := m.Stage(job)
	require.NoError(t, err)
	defer workspace.Teardown(ws)

	assert.Equal(t, m.Root(), filepath.Dir(ws.Dir()))
	body, err := os.ReadFile(ws.Path("lib/deep/util.mjs"))
	require.NoError(t, err)
	assert.Equal(t, "export const x = 1", string(body))

	info, err := os.Stat(ws.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestConcurrentWorkspacesAreDisjoint(t *testing.T) {
	m := workspace.NewManager(t.TempDir())

	const n = 16
	dirs := make([]*workspace.Workspace, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := mustJob(t, "main.js", api.File{RelPath: "main.js", Content: "job"})
			ws, err := m.Stage(job)
			assert.NoError(t, err)
			dirs[i] = ws
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, ws := range dirs {
		require.NotNil(t, ws)
		assert.False(t, seen[ws.Dir()], "workspace %s reused", ws.Dir())
		seen[ws.Dir()] = true

		entries, err := os.ReadDir(ws.Dir())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "main.js", entries[0].Name())
	}
	for _, ws := range dirs {
		require.NoError(t, workspace.Teardown(ws))
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	m := workspace.NewManager(t.TempDir())
	ws, err := m.Stage(mustJob(t, "a.js", api.File{RelPath: "a.js"}))
	require.NoError(t, err)

	require.NoError(t, workspace.Teardown(ws))
	require.NoError(t, workspace.Teardown(ws))
	require.NoError(t, workspace.Teardown(nil))
	assert.NoDirExists(t, ws.Dir())
}

func TestTeardownRestoresPermissions(t *testing.T) {
	m := workspace.NewManager(t.TempDir())
	ws, err := m.Stage(mustJob(t, "a.js",
		api.File{RelPath: "a.js"},
		api.File{RelPath: "locked/inner/b.js"},
	))
	require.NoError(t, err)

	require.NoError(t, os.Chmod(ws.Path("locked/inner"), 0))
	require.NoError(t, os.Chmod(ws.Path("locked"), 0))

	require.NoError(t, workspace.Teardown(ws))
	assert.NoDirExists(t, ws.Dir())
}

func TestStageFailureLeavesNothing(t *testing.T) {
	root := t.TempDir()
	m := workspace.NewManager(root)
	// "a" is written as a file, so "a/b" cannot get a parent directory
	job := mustJob(t, "a",
		api.File{RelPath: "a"},
		api.File{RelPath: "a/b"},
	)
	_, err := m.Stage(job)
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
