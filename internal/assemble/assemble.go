// Package assemble implements the Assembler (spec.md §4.5): it takes the
// ordered set of EncodedSegments, concatenates them without re-encoding,
// reattaches every non-video stream read directly from the original input,
// and produces the final output file.
package assemble

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/mediatool"
	"github.com/ekifun/transcodefleet/internal/wire"
	"github.com/ekifun/transcodefleet/internal/workspace"
)

// Assemble concatenates segments in ascending index order, muxes in the
// original input's non-video streams, and writes the final result to
// outputPath. segments must contain exactly one entry per index in
// [0, expectedCount); a mismatch is a job-fatal AssemblyFailed.
func Assemble(ctx context.Context, ws *workspace.Workspace, segments []wire.EncodedSegment, expectedCount int, originalInput, outputPath string) error {
	if len(segments) != expectedCount {
		return errs.New(errs.AssemblyFailed, fmt.Sprintf("expected %d segments, got %d", expectedCount, len(segments)), nil)
	}

	ordered := append([]wire.EncodedSegment(nil), segments...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for i, seg := range ordered {
		if seg.Index != i {
			return errs.New(errs.AssemblyFailed, fmt.Sprintf("missing segment index %d", i), nil)
		}
		if _, err := os.Stat(seg.Path); err != nil {
			return errs.New(errs.AssemblyFailed, fmt.Sprintf("encoded segment %d not found: %v", i, err), err)
		}
	}

	videoPath := ordered[0].Path
	if len(ordered) > 1 {
		manifestDir, err := ws.Sub("concat")
		if err != nil {
			return errs.New(errs.IOError, "create concat staging dir", err)
		}
		manifestPath := manifestDir + "/manifest.txt"
		if err := writeManifest(manifestPath, ordered); err != nil {
			return errs.New(errs.IOError, "write concat manifest", err)
		}

		concatOut := manifestDir + "/video_only.mp4"
		res, err := mediatool.Concat(ctx, manifestPath, concatOut)
		if err != nil {
			return errs.New(errs.AssemblyFailed, res.Stderr, err)
		}
		videoPath = concatOut
	}

	res, err := mediatool.Mux(ctx, videoPath, originalInput, outputPath)
	if err != nil {
		return errs.New(errs.AssemblyFailed, res.Stderr, err)
	}
	return nil
}

// writeManifest writes a concat-demuxer file list, one "file '<path>'" line
// per segment in ordered's order (spec.md §4.5 step 1: "Assembler imposes
// the total order").
func writeManifest(path string, ordered []wire.EncodedSegment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, seg := range ordered {
		if _, err := fmt.Fprintf(f, "file '%s'\n", seg.Path); err != nil {
			return err
		}
	}
	return nil
}
