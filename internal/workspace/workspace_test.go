package workspace_test

import (
	"os"
	"testing"

	"github.com/ekifun/transcodefleet/internal/workspace"
)

func TestNewCreatesAndCloseRemoves(t *testing.T) {
	base := t.TempDir()
	ws, err := workspace.New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root := ws.Root()
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("expected workspace root to exist: %v", err)
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected workspace root to be removed after Close, stat err=%v", err)
	}
}

func TestSegmentAndEncodedPathsAreDeterministic(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ws.Close()

	if got, want := ws.SegmentPath(3), ws.SegmentPath(3); got != want {
		t.Fatalf("SegmentPath not deterministic: %q vs %q", got, want)
	}
	if ws.SegmentPath(3) == ws.EncodedPath(3) {
		t.Fatal("segment and encoded paths for the same index must differ")
	}
}

func TestTwoWorkspacesUnderSameBaseDoNotCollide(t *testing.T) {
	base := t.TempDir()
	a, err := workspace.New(base)
	if err != nil {
		t.Fatalf("New a: %v", err)
	}
	defer a.Close()
	b, err := workspace.New(base)
	if err != nil {
		t.Fatalf("New b: %v", err)
	}
	defer b.Close()

	if a.Root() == b.Root() {
		t.Fatal("expected distinct workspace roots")
	}
}
