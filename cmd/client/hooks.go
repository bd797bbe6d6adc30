package main

import (
	"context"
	"sync"

	"github.com/ekifun/transcodefleet/internal/dispatch"
	"github.com/ekifun/transcodefleet/internal/display"
	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/jobevents"
	"github.com/ekifun/transcodefleet/internal/progresscache"
)

// fleetHooks fans out Dispatcher lifecycle events to the optional
// observability sinks (jobevents, progresscache) and the terminal progress
// bar. None of its work is allowed to affect job correctness; every sink
// call is best-effort.
type fleetHooks struct {
	jobID    string
	events   jobevents.Publisher
	cache    progresscache.Cache
	progress *display.Progress
	total    int

	mu        sync.Mutex
	completed int
	stats     map[string]*workerStat
}

type workerStat struct {
	dispatched, failures int64
	quarantined          bool
}

func newFleetHooks(jobID string, total int, events jobevents.Publisher, cache progresscache.Cache, progress *display.Progress) *fleetHooks {
	return &fleetHooks{
		jobID:    jobID,
		events:   events,
		cache:    cache,
		progress: progress,
		total:    total,
		stats:    make(map[string]*workerStat),
	}
}

func (h *fleetHooks) statFor(worker string) *workerStat {
	s, ok := h.stats[worker]
	if !ok {
		s = &workerStat{}
		h.stats[worker] = s
	}
	return s
}

func (h *fleetHooks) SegmentDispatched(jobID string, index int, worker string) {
	h.events.Publish(context.Background(), jobevents.Event{Kind: jobevents.SegmentDispatched, JobID: jobID, Segment: index, Worker: worker})
}

func (h *fleetHooks) SegmentCompleted(jobID string, index int, worker string) {
	h.mu.Lock()
	h.completed++
	s := h.statFor(worker)
	s.dispatched++
	completed, dispatched, failures, quarantined := h.completed, s.dispatched, s.failures, s.quarantined
	h.mu.Unlock()

	h.progress.Add(1)
	ctx := context.Background()
	h.cache.SetSegmentCounts(ctx, jobID, completed, h.total)
	h.cache.SetWorkerStat(ctx, jobID, worker, dispatched, failures, quarantined)
	h.events.Publish(ctx, jobevents.Event{Kind: jobevents.SegmentCompleted, JobID: jobID, Segment: index, Worker: worker})
}

func (h *fleetHooks) SegmentFailed(jobID string, index int, worker string, kind errs.Kind) {
	h.mu.Lock()
	s := h.statFor(worker)
	s.failures++
	dispatched, failures, quarantined := s.dispatched, s.failures, s.quarantined
	h.mu.Unlock()

	ctx := context.Background()
	h.cache.SetWorkerStat(ctx, jobID, worker, dispatched, failures, quarantined)
	h.events.Publish(ctx, jobevents.Event{Kind: jobevents.SegmentFailed, JobID: jobID, Segment: index, Worker: worker, ErrorKind: kind.String()})
}

func (h *fleetHooks) WorkerQuarantined(jobID string, worker string) {
	h.mu.Lock()
	s := h.statFor(worker)
	s.quarantined = true
	dispatched, failures := s.dispatched, s.failures
	h.mu.Unlock()

	ctx := context.Background()
	h.cache.SetWorkerStat(ctx, jobID, worker, dispatched, failures, true)
	h.events.Publish(ctx, jobevents.Event{Kind: jobevents.WorkerQuarantined, JobID: jobID, Worker: worker})
}

func (h *fleetHooks) WorkerRehabilitated(jobID string, worker string) {
	h.mu.Lock()
	s := h.statFor(worker)
	s.quarantined = false
	dispatched, failures := s.dispatched, s.failures
	h.mu.Unlock()

	ctx := context.Background()
	h.cache.SetWorkerStat(ctx, jobID, worker, dispatched, failures, false)
	h.events.Publish(ctx, jobevents.Event{Kind: jobevents.WorkerRehabilitated, JobID: jobID, Worker: worker})
}

var _ dispatch.Hooks = (*fleetHooks)(nil)
