// Package xdg resolves the XDG base directories modbox reads its
// configuration from and keeps its artifacts in.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "modbox"

// XDGDirs holds the base directories of the XDG Base Directory Specification
// that modbox uses.
type XDGDirs struct {
	dataHome   string
	configHome string
	configDirs []string
}

// NewXDGDirs reads the XDG variables of the current process.
func NewXDGDirs() *XDGDirs {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = "/tmp"
		}
	}
	return newXDGDirs(os.Getenv, homeDir)
}

func newXDGDirs(getenv func(string) string, homeDir string) *XDGDirs {
	x := &XDGDirs{}

	x.dataHome = getenv("XDG_DATA_HOME")
	if x.dataHome == "" {
		x.dataHome = filepath.Join(homeDir, ".local", "share")
	}

	x.configHome = getenv("XDG_CONFIG_HOME")
	if x.configHome == "" {
		x.configHome = filepath.Join(homeDir, ".config")
	}

	if dirs := getenv("XDG_CONFIG_DIRS"); dirs != "" {
		x.configDirs = filepath.SplitList(dirs)
	} else {
		x.configDirs = []string{"/etc/xdg"}
	}
	return x
}

// AppDataDir is where local artifacts are stored by default.
func (x *XDGDirs) AppDataDir() string {
	return filepath.Join(x.dataHome, appName)
}

// ConfigFiles returns the candidate config.toml paths, most preferred first.
func (x *XDGDirs) ConfigFiles() []string {
	res := []string{filepath.Join(x.configHome, appName, "config.toml")}
	for _, dir := range x.configDirs {
		res = append(res, filepath.Join(dir, appName, "config.toml"))
	}
	return res
}

// FindConfigFile returns the first existing config file, or "".
func (x *XDGDirs) FindConfigFile() string {
	for _, p := range x.ConfigFiles() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
