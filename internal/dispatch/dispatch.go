// Package dispatch implements the Dispatcher (spec.md §4.2): it assigns
// each Segment to exactly one WorkerEndpoint bounded by that endpoint's
// slot count, collects EncodedSegments, and owns every failure-handling
// rule in spec.md §4.2/§7 — transient retry with quarantine/rehabilitation,
// two-worker agreement before declaring a segment undecodable, and
// cooperative cancellation.
//
// The per-worker slot bound is a golang.org/x/sync/semaphore.Weighted of
// capacity = declared slots, bounding concurrent work per worker.
package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/wire"
)

// quarantineThreshold is the consecutive-transient-failure count past which
// a worker is excluded from new dispatches (spec.md §4.2, §9).
const quarantineThreshold = 3

// Encoder is the capability the Dispatcher needs from the transport layer:
// send one segment to one worker and get back either an EncodedSegment or
// a classified *errs.Error. Kept as an interface so dispatch can be tested
// without a real RPC stack.
type Encoder interface {
	Encode(ctx context.Context, address string, segment wire.Segment, encoderParams string) (wire.EncodedSegment, error)
}

// Hooks are best-effort observers fired on lifecycle events. No method
// receives a context, and none may block the dispatch loop meaningfully; the
// default NoopHooks satisfies spec.md §8's requirement that observability
// plumbing never affects job correctness.
type Hooks interface {
	SegmentDispatched(jobID string, index int, worker string)
	SegmentCompleted(jobID string, index int, worker string)
	SegmentFailed(jobID string, index int, worker string, kind errs.Kind)
	WorkerQuarantined(jobID string, worker string)
	WorkerRehabilitated(jobID string, worker string)
}

// NoopHooks implements Hooks with no side effects.
type NoopHooks struct{}

func (NoopHooks) SegmentDispatched(string, int, string)             {}
func (NoopHooks) SegmentCompleted(string, int, string)              {}
func (NoopHooks) SegmentFailed(string, int, string, errs.Kind)      {}
func (NoopHooks) WorkerQuarantined(string, string)                  {}
func (NoopHooks) WorkerRehabilitated(string, string)                {}

type worker struct {
	ep              *wire.WorkerEndpoint
	sem             *semaphore.Weighted
	consecFailures  int
	quarantined     bool
}

// Dispatcher owns the task queue, the per-worker semaphores, and the
// completed-segment set for one job.
type Dispatcher struct {
	jobID         string
	encoderParams string
	encoder       Encoder
	hooks         Hooks
	logger        *slog.Logger

	mu               sync.Mutex
	workers          []*worker
	pending          []wire.Segment
	completed        map[int]wire.EncodedSegment
	total            int
	quarantineFIFO   []int // indices into workers, in the order they were quarantined
	agreement        map[int]map[string]string // segment index -> worker address -> diagnostic
	fatal            error
	cancel           context.CancelFunc // cancels outstanding RPCs once fatal is set
	wake             chan struct{}
}

// New builds a Dispatcher for one job. endpoints and their slot counts are
// fixed for the job's duration (spec.md §3 WorkerEndpoint lifecycle).
func New(jobID string, endpoints []*wire.WorkerEndpoint, encoderParams string, encoder Encoder, hooks Hooks, logger *slog.Logger) *Dispatcher {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	workers := make([]*worker, len(endpoints))
	for i, ep := range endpoints {
		workers[i] = &worker{ep: ep, sem: semaphore.NewWeighted(int64(ep.Slots))}
	}
	return &Dispatcher{
		jobID:         jobID,
		encoderParams: encoderParams,
		encoder:       encoder,
		hooks:         hooks,
		logger:        logger,
		workers:       workers,
		completed:     make(map[int]wire.EncodedSegment),
		agreement:     make(map[int]map[string]string),
		wake:          make(chan struct{}, 1),
	}
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run dispatches every segment in segments, blocking until all have a
// corresponding EncodedSegment, the job is cancelled, or a fatal error is
// declared (spec.md §4.2 Completion / Failure semantics). On success it
// returns EncodedSegments sorted ascending by index, ready for the
// Assembler's total order (spec.md §5 "Assembler imposes the total order").
func (d *Dispatcher) Run(ctx context.Context, segments []wire.Segment) ([]wire.EncodedSegment, error) {
	rpcCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.pending = append([]wire.Segment(nil), segments...)
	d.total = len(segments)
	d.cancel = cancel
	d.mu.Unlock()

	if d.total == 0 {
		return nil, nil
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		d.mu.Lock()
		if d.fatal != nil {
			err := d.fatal
			d.mu.Unlock()
			return nil, err
		}
		if len(d.completed) == d.total {
			out := make([]wire.EncodedSegment, 0, d.total)
			for _, v := range d.completed {
				out = append(out, v)
			}
			d.mu.Unlock()
			sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
			return out, nil
		}

		widx, seg, ok := d.pickLocked()
		if !ok {
			d.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-d.wake:
				continue
			}
		}
		d.mu.Unlock()

		if d.logger != nil {
			d.logger.Debug("dispatching segment", "segment", seg.Index, "worker", d.workers[widx].ep.Address)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.runOne(rpcCtx, widx, seg)
			d.notify()
		}()
	}
}

// pickLocked implements the scheduling policy of spec.md §4.2: the next
// pending segment (ascending index, head of queue) paired with the next
// worker that has available capacity, preferring the lowest current
// in-flight count and breaking ties by endpoint-list order. Caller holds
// d.mu. Returns ok=false when no eligible worker currently has capacity.
//
// A worker that already reported a deterministic EncodeFailed for the head
// segment is skipped in favor of any other worker with capacity, falling
// back to it only if no other candidate is available.
func (d *Dispatcher) pickLocked() (int, wire.Segment, bool) {
	if len(d.pending) == 0 {
		return 0, wire.Segment{}, false
	}

	order := make([]int, 0, len(d.workers))
	for i, w := range d.workers {
		if !w.quarantined {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d.workers[order[a]].ep.InFlight() < d.workers[order[b]].ep.InFlight()
	})

	reported := d.agreement[d.pending[0].Index]
	if widx, seg, ok := d.tryAcquireLocked(order, reported, true); ok {
		return widx, seg, true
	}
	return d.tryAcquireLocked(order, reported, false)
}

// tryAcquireLocked scans order for a worker with spare capacity. When
// avoidReported is true, workers already present in reported are skipped.
// Caller holds d.mu.
func (d *Dispatcher) tryAcquireLocked(order []int, reported map[string]string, avoidReported bool) (int, wire.Segment, bool) {
	for _, widx := range order {
		w := d.workers[widx]
		if avoidReported && reported != nil {
			if _, already := reported[w.ep.Address]; already {
				continue
			}
		}
		if w.sem.TryAcquire(1) {
			seg := d.pending[0]
			d.pending = d.pending[1:]
			w.ep.InFlightAdd(1)
			return widx, seg, true
		}
	}
	return 0, wire.Segment{}, false
}

// runOne sends one segment to one worker and applies the result per
// spec.md §4.2's per-request lifecycle and failure semantics.
func (d *Dispatcher) runOne(ctx context.Context, widx int, seg wire.Segment) {
	w := d.workers[widx]
	d.hooks.SegmentDispatched(d.jobID, seg.Index, w.ep.Address)

	encoded, err := d.encoder.Encode(ctx, w.ep.Address, seg, d.encoderParams)

	d.mu.Lock()
	w.ep.InFlightAdd(-1)
	w.sem.Release(1)
	defer d.notify()

	if err == nil {
		w.consecFailures = 0
		d.completed[seg.Index] = encoded
		w.ep.DispatchedAdd(1)
		d.mu.Unlock()
		d.hooks.SegmentCompleted(d.jobID, seg.Index, w.ep.Address)
		return
	}

	e, _ := errs.As(err)
	kind := errs.TransportError
	diagnostic := err.Error()
	if e != nil {
		kind = e.Kind
		diagnostic = e.Diagnostic
	}
	d.hooks.SegmentFailed(d.jobID, seg.Index, w.ep.Address, kind)

	if kind == errs.EncodeFailed {
		d.handleDeterministicFailureLocked(seg, w, diagnostic)
		d.mu.Unlock()
		return
	}

	// A non-transient kind (e.g. IOError) cannot be recovered by retrying.
	if !kind.Transient() {
		d.fatal = e
		d.cancelLocked()
		d.mu.Unlock()
		return
	}

	// Transient failure: requeue and retry on any worker, bump the
	// offending worker's failure count, possibly quarantine it, and
	// possibly rehabilitate one quarantined peer.
	d.pending = append(d.pending, seg)
	w.ep.AddFailure(1)
	w.consecFailures++
	justQuarantined := false
	if !w.quarantined && w.consecFailures > quarantineThreshold {
		w.quarantined = true
		w.ep.SetQuarantined(true)
		d.quarantineFIFO = append(d.quarantineFIFO, widx)
		justQuarantined = true
		d.hooks.WorkerQuarantined(d.jobID, w.ep.Address)
	}
	d.rehabilitateOneLocked(widx, justQuarantined)

	if d.allQuarantinedLocked() {
		d.fatal = errs.New(errs.NoHealthyWorkers, "every worker is quarantined", nil)
		d.cancelLocked()
	}
	d.mu.Unlock()
}

// cancelLocked cancels every outstanding RPC once a fatal error has been
// declared (spec.md §7: fatal errors cancel outstanding RPCs). Caller holds
// d.mu.
func (d *Dispatcher) cancelLocked() {
	if d.cancel != nil {
		d.cancel()
	}
}

// handleDeterministicFailureLocked records a deterministic EncodeFailed
// report and escalates to a fatal job error once two distinct workers agree
// on the same segment index (spec.md §4.2, §7, §9). Caller holds d.mu.
func (d *Dispatcher) handleDeterministicFailureLocked(seg wire.Segment, w *worker, diagnostic string) {
	set := d.agreement[seg.Index]
	if set == nil {
		set = make(map[string]string)
		d.agreement[seg.Index] = set
	}
	prev, alreadyReported := set[w.ep.Address]
	set[w.ep.Address] = diagnostic

	if len(set) >= 2 {
		d.fatal = errs.NewSegment(errs.EncodeFailed, seg.Index, diagnostic, nil)
		d.cancelLocked()
		return
	}

	// w is the only worker that has ever reported on this segment. If it
	// has already reported the identical diagnostic once before and no
	// other worker is eligible to offer a second opinion, a second
	// opinion will never arrive: requeuing would dispatch this segment to
	// the same worker forever. Escalate now instead of hanging the job.
	if alreadyReported && prev == diagnostic && d.onlyEligibleWorkerLocked(w) {
		d.fatal = errs.NewSegment(errs.EncodeFailed, seg.Index, diagnostic, nil)
		d.cancelLocked()
		return
	}

	// Only one worker has reported it so far: give another worker a
	// chance to confirm or refute before treating it as fatal.
	d.pending = append(d.pending, seg)
}

// onlyEligibleWorkerLocked reports whether w is the sole non-quarantined
// worker, meaning no other worker could ever be picked to confirm or refute
// w's report. Caller holds d.mu.
func (d *Dispatcher) onlyEligibleWorkerLocked(w *worker) bool {
	for _, other := range d.workers {
		if other != w && !other.quarantined {
			return false
		}
	}
	return true
}

// rehabilitateOneLocked pops the oldest still-quarantined worker (other
// than the one just quarantined in this call, if any) and restores it to
// eligibility, per spec.md §4.2's "no new dispatches until another worker
// also fails, at which point quarantined workers are rehabilitated one at a
// time." Caller holds d.mu.
func (d *Dispatcher) rehabilitateOneLocked(justFailedIdx int, justQuarantined bool) {
	for len(d.quarantineFIFO) > 0 {
		candidate := d.quarantineFIFO[0]
		if justQuarantined && candidate == justFailedIdx {
			// Don't immediately rehabilitate the worker that triggered
			// this very quarantine event.
			break
		}
		d.quarantineFIFO = d.quarantineFIFO[1:]
		cw := d.workers[candidate]
		cw.quarantined = false
		cw.consecFailures = 0
		cw.ep.SetQuarantined(false)
		d.hooks.WorkerRehabilitated(d.jobID, cw.ep.Address)
		return
	}
}

func (d *Dispatcher) allQuarantinedLocked() bool {
	for _, w := range d.workers {
		if !w.quarantined {
			return false
		}
	}
	return true
}

// Summary returns a per-worker snapshot for the client's final report
// (internal/display), taken after Run has returned.
type WorkerSummary struct {
	Address    string
	Dispatched int64
	Failures   int64
	Quarantined bool
}

func (d *Dispatcher) Summary() []WorkerSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]WorkerSummary, 0, len(d.workers))
	for _, w := range d.workers {
		out = append(out, WorkerSummary{
			Address:     w.ep.Address,
			Dispatched:  w.ep.Dispatched(),
			Failures:    w.ep.Failures(),
			Quarantined: w.ep.Quarantined(),
		})
	}
	return out
}
