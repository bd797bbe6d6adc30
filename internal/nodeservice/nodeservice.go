// Package nodeservice implements the Node Service (spec.md §4.4): it
// materializes an incoming segment's bytes to a uniquely named workspace
// file, invokes the external media tool with the caller-supplied encoder
// parameters passed through unparsed, and returns the result bytes or a
// classified failure. It never inspects encoder_params beyond handing it to
// mediatool, matching spec.md's "the node MUST NOT interpret encoder_params".
package nodeservice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/mediatool"
	"github.com/ekifun/transcodefleet/internal/workspace"
)

// Service handles one node's Encode operations against a shared workspace,
// optionally bounded by a concurrency cap (spec.md §4.4, §6 max_in_flight).
type Service struct {
	ws     *workspace.Workspace
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// New builds a Service. maxInFlight <= 0 leaves concurrency unbounded at
// this layer (the OS and the encoder's own resource limits are the backstop,
// per spec.md §5).
func New(ws *workspace.Workspace, maxInFlight int, logger *slog.Logger) *Service {
	s := &Service{ws: ws, logger: logger}
	if maxInFlight > 0 {
		s.sem = semaphore.NewWeighted(int64(maxInFlight))
	}
	return s
}

// Encode runs one segment through the external tool and returns its output
// bytes. Both the staged input and output files are removed before Encode
// returns, regardless of outcome (spec.md §4.4 step 4).
func (s *Service) Encode(ctx context.Context, segmentIndex uint32, encoderParams string, payload []byte) ([]byte, *errs.Error) {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, errs.NewSegment(errs.TransportError, int(segmentIndex), "node at capacity: "+err.Error(), err)
		}
		defer s.sem.Release(1)
	}

	name := uuid.NewString()
	inputPath := filepath.Join(s.ws.Root(), "in-"+name+".mp4")
	outputPath := filepath.Join(s.ws.Root(), "out-"+name+".mp4")
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	if err := os.WriteFile(inputPath, payload, 0o644); err != nil {
		return nil, errs.NewSegment(errs.IOError, int(segmentIndex), fmt.Sprintf("stage input: %v", err), err)
	}

	if s.logger != nil {
		s.logger.Debug("encoding segment", "segment", segmentIndex, "params", encoderParams)
	}

	res, err := mediatool.Encode(ctx, inputPath, encoderParams, outputPath)
	if err != nil {
		return nil, errs.NewSegment(errs.EncodeFailed, int(segmentIndex), fmt.Sprintf("exit %d: %s", res.ExitCode, res.Stderr), err)
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, errs.NewSegment(errs.IOError, int(segmentIndex), fmt.Sprintf("read encoded output: %v", err), err)
	}
	return out, nil
}
