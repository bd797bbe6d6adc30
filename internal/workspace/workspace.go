// Package workspace manages the scoped temp directory each client or node
// process owns for the duration of one job/service lifetime (spec.md §4.6):
// a per-run directory with deterministic child names and guaranteed
// teardown on every exit path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Workspace is a directory owned by one process, removed on Close.
type Workspace struct {
	root string
	lock *flock.Flock
}

// New creates a fresh workspace under base (or the OS temp dir when base is
// empty), named from a fresh random UUID so concurrent processes never
// collide, and takes an advisory file lock on the root so a second process
// accidentally pointed at the same directory fails fast instead of racing
// file writes.
func New(base string) (*Workspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	root := filepath.Join(base, "transcodefleet-"+uuid.NewString())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}

	lockPath := filepath.Join(root, ".lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("lock workspace %s: %w", root, err)
	}
	if !locked {
		os.RemoveAll(root)
		return nil, fmt.Errorf("workspace %s already locked", root)
	}

	return &Workspace{root: root, lock: fl}, nil
}

// Root returns the workspace's absolute directory path.
func (w *Workspace) Root() string { return w.root }

// SegmentPath returns the deterministic filename for a raw segment file.
func (w *Workspace) SegmentPath(index int) string {
	return filepath.Join(w.root, fmt.Sprintf("segment_%06d.mp4", index))
}

// EncodedPath returns the deterministic filename for an encoded segment.
func (w *Workspace) EncodedPath(index int) string {
	return filepath.Join(w.root, fmt.Sprintf("encoded_%06d.mp4", index))
}

// Sub creates (if needed) and returns a named subdirectory of the workspace,
// for callers that want their own namespace (e.g. the segmenter's raw tool
// output and the assembler's concat staging).
func (w *Workspace) Sub(name string) (string, error) {
	p := filepath.Join(w.root, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}

// Close removes the workspace directory and everything in it, releasing the
// lock first. Safe to call multiple times. Must be invoked on every exit
// path: normal completion, fatal error, or signal (spec.md §4.6, §5).
func (w *Workspace) Close() error {
	if w.lock != nil {
		_ = w.lock.Unlock()
	}
	return os.RemoveAll(w.root)
}
