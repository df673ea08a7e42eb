package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	x := newXDGDirs(envOf(nil), "/home/u")
	assert.Equal(t, "/home/u/.local/share/modbox", x.AppDataDir())
	assert.Equal(t, []string{
		"/home/u/.config/modbox/config.toml",
		"/etc/xdg/modbox/config.toml",
	}, x.ConfigFiles())
}

func TestFindConfigFile(t *testing.T) {
	home := t.TempDir()
	sys := t.TempDir()
	x := newXDGDirs(envOf(map[string]string{
		"XDG_CONFIG_DIRS": sys,
	}), home)
	assert.Empty(t, x.FindConfigFile())

	sysFile := filepath.Join(sys, "modbox", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(sysFile), 0o755))
	require.NoError(t, os.WriteFile(sysFile, nil, 0o644))
	assert.Equal(t, sysFile, x.FindConfigFile())

	userFile := filepath.Join(home, ".config", "modbox", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userFile), 0o755))
	require.NoError(t, os.WriteFile(userFile, nil, 0o644))
	assert.Equal(t, userFile, x.FindConfigFile())
}
