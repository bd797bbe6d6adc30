package assemble_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ekifun/transcodefleet/internal/assemble"
	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/wire"
	"github.com/ekifun/transcodefleet/internal/workspace"
)

func TestAssembleRejectsSegmentCountMismatch(t *testing.T) {
	dir := t.TempDir()
	ws, err := workspace.New(dir)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	defer ws.Close()

	err = assemble.Assemble(context.Background(), ws, []wire.EncodedSegment{{Index: 0, Path: "x"}}, 2, "in.mp4", filepath.Join(dir, "out.mp4"))
	if err == nil {
		t.Fatal("expected an error for a segment count mismatch")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.AssemblyFailed {
		t.Fatalf("expected AssemblyFailed, got %v", err)
	}
}

func TestAssembleRejectsMissingSegmentFile(t *testing.T) {
	dir := t.TempDir()
	ws, err := workspace.New(dir)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	defer ws.Close()

	missing := filepath.Join(dir, "does-not-exist.mp4")
	err = assemble.Assemble(context.Background(), ws, []wire.EncodedSegment{{Index: 0, Path: missing}}, 1, "in.mp4", filepath.Join(dir, "out.mp4"))
	if err == nil {
		t.Fatal("expected an error when an encoded segment file is missing")
	}
}

func TestAssembleRejectsNonContiguousIndices(t *testing.T) {
	dir := t.TempDir()
	ws, err := workspace.New(dir)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	defer ws.Close()

	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	if err := os.WriteFile(a, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	segs := []wire.EncodedSegment{{Index: 0, Path: a}, {Index: 2, Path: b}}
	err = assemble.Assemble(context.Background(), ws, segs, 2, "in.mp4", filepath.Join(dir, "out.mp4"))
	if err == nil {
		t.Fatal("expected an error for a non-contiguous index sequence")
	}
}
