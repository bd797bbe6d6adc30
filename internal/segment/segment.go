// Package segment implements the Segmenter (spec.md §4.1): it splits the
// input's video stream into an ordered, restartable sequence of Segments
// at keyframe-aligned boundaries. Non-video streams are left untouched in
// the original input; the Assembler reads them from there directly during
// the final mux step (spec.md §4.5).
package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/mediatool"
	"github.com/ekifun/transcodefleet/internal/wire"
	"github.com/ekifun/transcodefleet/internal/workspace"
)

// Split runs the Segmenter contract against inputPath, writing numbered
// segment files into ws and returning them in ascending index order.
//
// Edge cases per spec.md §4.1: a zero-length input fails with InvalidInput
// before any subprocess is invoked; a segmentation-tool failure fails with
// SegmentationFailed carrying its stderr; an input shorter than one segment
// naturally yields a single segment (the tool's own keyframe-aligned
// segment_time logic handles this, not a special case here).
func Split(ctx context.Context, ws *workspace.Workspace, inputPath string, segmentSeconds float64) ([]wire.Segment, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, fmt.Sprintf("cannot stat input %s: %v", inputPath, err), err)
	}
	if info.Size() == 0 {
		return nil, errs.New(errs.InvalidInput, fmt.Sprintf("input %s is zero-length", inputPath), nil)
	}

	segDir, err := ws.Sub("raw-segments")
	if err != nil {
		return nil, errs.New(errs.IOError, "create segment staging dir", err)
	}
	outputPattern := filepath.Join(segDir, "segment_%06d.mp4")

	res, err := mediatool.Segment(ctx, inputPath, segmentSeconds, outputPattern)
	if err != nil {
		return nil, errs.New(errs.SegmentationFailed, res.Stderr, err)
	}

	entries, err := os.ReadDir(segDir)
	if err != nil {
		return nil, errs.New(errs.IOError, "list segment staging dir", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(segDir, e.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, errs.New(errs.SegmentationFailed, "tool produced no segment files", nil)
	}

	segments := make([]wire.Segment, 0, len(files))
	for i, f := range files {
		dst := ws.SegmentPath(i)
		if err := os.Rename(f, dst); err != nil {
			return nil, errs.New(errs.IOError, fmt.Sprintf("stage segment %d", i), err)
		}
		// Duration is the requested segmentSeconds, used as an estimate for
		// the transport timeout; keyframe-aligned cuts make each segment's
		// actual length differ from it, and the last segment is whatever
		// remains of the input.
		segments = append(segments, wire.Segment{Index: i, Path: dst, Duration: segmentSeconds})
	}
	return segments, nil
}
