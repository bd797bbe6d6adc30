package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ekifun/transcodefleet/internal/assemble"
	"github.com/ekifun/transcodefleet/internal/config"
	"github.com/ekifun/transcodefleet/internal/dispatch"
	"github.com/ekifun/transcodefleet/internal/display"
	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/jobevents"
	"github.com/ekifun/transcodefleet/internal/jobstore"
	"github.com/ekifun/transcodefleet/internal/logging"
	"github.com/ekifun/transcodefleet/internal/progresscache"
	"github.com/ekifun/transcodefleet/internal/segment"
	"github.com/ekifun/transcodefleet/internal/transport"
	"github.com/ekifun/transcodefleet/internal/wire"
	"github.com/ekifun/transcodefleet/internal/workspace"
)

// clientOptions is the merged flag/config-file surface for the client
// binary (spec.md §6 CLI — client).
type clientOptions struct {
	InputFile       string
	OutputFile      string
	Nodes           []string
	Slots           []int
	ConfigFile      string
	EncoderParams   string
	TempDir         string
	SegmentDuration float64
}

// resolvedNode pairs a worker address with its declared slot count, after
// merging CLI flags over config-file defaults (spec.md §6, Open Question
// resolved: mismatched counts are a usage error).
type resolvedNode struct {
	Address string
	Slots   int
}

func runClient(ctx context.Context, opts clientOptions) error {
	fileCfg, err := config.LoadClientFile(opts.ConfigFile)
	if err != nil {
		return &usageError{msg: err.Error()}
	}

	nodes, err := resolveNodes(opts, fileCfg)
	if err != nil {
		return err
	}
	if opts.InputFile == "" {
		opts.InputFile = fileCfg.InputFile
	}
	if opts.OutputFile == "" {
		opts.OutputFile = fileCfg.OutputFile
	}
	if opts.InputFile == "" || opts.OutputFile == "" {
		return &usageError{msg: "--input-file and --output-file are required"}
	}

	encoderParams := opts.EncoderParams
	if encoderParams == "" {
		encoderParams = fileCfg.EncoderParams
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = fileCfg.TempDir
	}
	segDuration := opts.SegmentDuration
	if segDuration == 0 {
		segDuration = fileCfg.SegmentDuration
	}

	logger := logging.New(logging.Options{Level: fileCfg.LogLevel, Format: fileCfg.LogFormat})

	jobID := uuid.NewString()
	startedAt := time.Now()

	ws, err := workspace.New(tempDir)
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	defer ws.Close()

	var store *jobstore.Store
	if fileCfg.JobHistoryPath != "" {
		store, err = jobstore.Open(fileCfg.JobHistoryPath)
		if err != nil {
			logger.Warn("job history unavailable", "error", err)
		}
	}

	outcome := jobstore.Aborted
	errKind := ""
	segmentCount := 0
	defer func() {
		if store == nil {
			return
		}
		if err := store.RecordJob(jobstore.JobRecord{
			JobID:        jobID,
			InputPath:    opts.InputFile,
			OutputPath:   opts.OutputFile,
			NodeCount:    len(nodes),
			SegmentCount: segmentCount,
			StartedAt:    startedAt,
			FinishedAt:   time.Now(),
			Outcome:      outcome,
			ErrorKind:    errKind,
		}); err != nil {
			logger.Warn("record job history failed", "error", err)
		}
		store.Close()
	}()

	events := jobevents.New(fileCfg.KafkaBrokers, logger)
	defer events.Close()
	cache := progresscache.New(fileCfg.RedisAddr, logger)
	defer cache.Close()

	events.Publish(ctx, jobevents.Event{Kind: jobevents.JobStarted, JobID: jobID})

	segments, err := segment.Split(ctx, ws, opts.InputFile, segDuration)
	if err != nil {
		errKind = classifyErrKind(err)
		return err
	}
	segmentCount = len(segments)

	endpoints := make([]*wire.WorkerEndpoint, len(nodes))
	for i, n := range nodes {
		endpoints[i] = wire.NewWorkerEndpoint(n.Address, n.Slots)
	}

	progress := display.NewProgress(os.Stderr, len(segments), false)
	hooks := newFleetHooks(jobID, len(segments), events, cache, progress)

	client := transport.New(ws)
	d := dispatch.New(jobID, endpoints, encoderParams, client, hooks, logger)

	encoded, err := d.Run(ctx, segments)
	progress.Finish()
	if err != nil {
		errKind = classifyErrKind(err)
		events.Publish(ctx, jobevents.Event{Kind: jobevents.JobAborted, JobID: jobID, ErrorKind: errKind})
		return err
	}

	if err := assemble.Assemble(ctx, ws, encoded, len(segments), opts.InputFile, opts.OutputFile); err != nil {
		errKind = classifyErrKind(err)
		events.Publish(ctx, jobevents.Event{Kind: jobevents.JobAborted, JobID: jobID, ErrorKind: errKind})
		return err
	}

	outcome = jobstore.Succeeded
	events.Publish(ctx, jobevents.Event{Kind: jobevents.JobCompleted, JobID: jobID})
	display.RenderSummary(os.Stdout, d.Summary(), time.Since(startedAt))
	return nil
}

func classifyErrKind(err error) string {
	if e, ok := errs.As(err); ok {
		return e.Kind.String()
	}
	return "unknown"
}

// resolveNodes merges --nodes/--slots flags over the config file's [[nodes]]
// table. Flags win outright when present; a mismatched --nodes/--slots
// count is a usage error (spec.md §9 Open Question, resolved).
func resolveNodes(opts clientOptions, fileCfg config.ClientFile) ([]resolvedNode, error) {
	if len(opts.Nodes) == 0 && len(opts.Slots) == 0 {
		out := make([]resolvedNode, len(fileCfg.Nodes))
		for i, n := range fileCfg.Nodes {
			out[i] = resolvedNode{Address: n.Address, Slots: n.Slots}
		}
		if len(out) == 0 {
			return nil, &usageError{msg: "no worker nodes configured: pass --nodes/--slots or set [[nodes]] in --config-file"}
		}
		if err := validateSlots(out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if len(opts.Nodes) != len(opts.Slots) {
		return nil, &usageError{msg: fmt.Sprintf("--nodes count (%d) does not match --slots count (%d)", len(opts.Nodes), len(opts.Slots))}
	}
	out := make([]resolvedNode, len(opts.Nodes))
	for i, addr := range opts.Nodes {
		out[i] = resolvedNode{Address: addr, Slots: opts.Slots[i]}
	}
	if err := validateSlots(out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateSlots rejects any node whose declared slot count is below the
// WorkerEndpoint invariant of at least 1 (spec.md §3). A zero or negative
// slot count would otherwise make the node's semaphore.Weighted capacity
// zero, so it could never be acquired and dispatch would hang forever.
func validateSlots(nodes []resolvedNode) error {
	for _, n := range nodes {
		if n.Slots < 1 {
			return &usageError{msg: fmt.Sprintf("node %s: slots must be >= 1, got %d", n.Address, n.Slots)}
		}
	}
	return nil
}
