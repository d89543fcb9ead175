// Package workspace manages the scratch directory owned by one pipeline
// invocation. Acquisition is fatal on failure; release is best-effort and
// never propagates errors, so cleanup can run unconditionally on every exit
// path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Workspace is a scratch directory exclusively owned by one invocation.
type Workspace struct {
	// Root is the absolute path of the scratch directory.
	Root string

	// RepoDir is where the repository is cloned, always under Root.
	RepoDir string

	log      *zap.Logger
	released bool
}

// Acquire creates a fresh scratch directory under the ambient temp area.
// The uuid suffix keeps concurrent invocations from colliding.
func Acquire(log *zap.Logger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop()
	}

	root, err := os.MkdirTemp("", "repocheck-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("workspace acquisition failed: %w", err)
	}

	ws := &Workspace{
		Root:    root,
		RepoDir: filepath.Join(root, "repo"),
		log:     log,
	}
	log.Debug("workspace acquired", zap.String("root", root))
	return ws, nil
}

// Release removes the workspace and all its contents. Errors are logged and
// swallowed; a failed cleanup must never mask the pipeline outcome. Release
// is idempotent.
func (w *Workspace) Release() {
	if w == nil || w.released {
		return
	}
	w.released = true

	if err := os.RemoveAll(w.Root); err != nil {
		w.log.Warn("workspace release failed",
			zap.String("root", w.Root), zap.Error(err))
		return
	}
	w.log.Debug("workspace released", zap.String("root", w.Root))
}
