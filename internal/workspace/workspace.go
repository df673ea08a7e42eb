package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/programme-lv/modbox/internal/jobspec"
)

const dirPrefix = "modbox-"

// Manager creates job workspaces under a single root directory.
type Manager struct {
	root string
}

// NewManager returns a manager rooted at root, or at the system temp
// directory when root is empty. The root is created lazily by Stage.
func NewManager(root string) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	return &Manager{root: root}
}

func (m *Manager) Root() string {
	return m.root
}

// Workspace is the directory holding the materialized files of one job.
type Workspace struct {
	dir string
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the host path of a file inside the workspace.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.dir, filepath.FromSlash(rel))
}

// Stage creates a fresh directory and writes every job file into it.
// On failure everything created so far is removed before returning.
func (m *Manager) Stage(job jobspec.Job) (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root %s: %w", m.root, err)
	}

	dir := filepath.Join(m.root, dirPrefix+uuid.NewString())
	// Mkdir, not MkdirAll: an existing directory must never be reused.
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws := &Workspace{dir: dir}

	for _, f := range job.Files {
		if err := ws.addFile(f.RelPath, f.Content); err != nil {
			_ = Teardown(ws)
			return nil, err
		}
	}
	return ws, nil
}

func (w *Workspace) addFile(rel string, content []byte) error {
	p := w.Path(rel)
	if !strings.HasPrefix(p, w.dir+string(filepath.Separator)) {
		return fmt.Errorf("file %q resolves outside the workspace", rel)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Teardown removes the workspace directory. It accepts nil and already
// removed workspaces, so it may be deferred unconditionally and called twice.
func Teardown(w *Workspace) error {
	if w == nil || w.dir == "" {
		return nil
	}
	err := os.RemoveAll(w.dir)
	if err == nil {
		return nil
	}
	// the child may have stripped permissions from directories it created
	restorePerms(w.dir)
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return nil
}

func restorePerms(dir string) {
	_ = os.Chmod(dir, 0o700)
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				_ = os.Chmod(p, 0o700)
			}
			return nil
		}
		if d.IsDir() {
			_ = os.Chmod(p, 0o700)
		}
		return nil
	})
}
