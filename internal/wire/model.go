// Package wire defines the data model and on-the-wire message shapes
// shared by the client and node: Segment, EncodedSegment, WorkerEndpoint
// (spec.md §3), and the Encode request/response pair carried over
// transport (spec.md §6).
package wire

import "sync/atomic"

// Segment is a time-contiguous, independently decodable slice of the
// input's video stream, identified by a dense 0-based index.
type Segment struct {
	Index    int
	Path     string // on-disk location in the client workspace
	Duration float64
}

// EncodedSegment is the result of a successful transcode of a Segment.
type EncodedSegment struct {
	Index int
	Path  string // on-disk location in the client workspace
}

// WorkerEndpoint is one node in the fleet: a network address, its declared
// slot count, and the live counters the dispatcher maintains for it.
// in-flight and failures are updated under a short critical section (a
// mutex in the dispatcher), never raced — the atomics here only make
// read-mostly status reporting (display, progresscache) lock-free.
type WorkerEndpoint struct {
	Address string
	Slots   int

	inFlight      atomic.Int64
	failureCount  atomic.Int64
	quarantined   atomic.Bool
	dispatchCount atomic.Int64
}

func NewWorkerEndpoint(address string, slots int) *WorkerEndpoint {
	return &WorkerEndpoint{Address: address, Slots: slots}
}

func (w *WorkerEndpoint) InFlight() int64   { return w.inFlight.Load() }
func (w *WorkerEndpoint) Failures() int64   { return w.failureCount.Load() }
func (w *WorkerEndpoint) Quarantined() bool { return w.quarantined.Load() }
func (w *WorkerEndpoint) Dispatched() int64 { return w.dispatchCount.Load() }

// InFlightAdd adjusts the live in-flight counter. Called only from under
// the dispatcher's critical section, so it never races with itself, but
// remains atomic so read-mostly observers (display, progresscache) never
// need their own lock.
func (w *WorkerEndpoint) InFlightAdd(delta int64) { w.inFlight.Add(delta) }

// AddFailure increments the worker's failure counter.
func (w *WorkerEndpoint) AddFailure(delta int64) { w.failureCount.Add(delta) }

// DispatchedAdd increments the worker's successful-dispatch counter.
func (w *WorkerEndpoint) DispatchedAdd(delta int64) { w.dispatchCount.Add(delta) }

// SetQuarantined flips the worker's quarantine flag.
func (w *WorkerEndpoint) SetQuarantined(v bool) { w.quarantined.Store(v) }

// EncodeRequest is the client->node payload: segment index, media bytes,
// and the verbatim encoder parameter string (spec.md §6).
type EncodeRequest struct {
	SegmentIndex  uint32
	EncoderParams string
	Payload       []byte
}

// EncodeResponse is the node->client payload on success; on failure the
// node instead returns an RPC-level error status (see transport package).
type EncodeResponse struct {
	SegmentIndex uint32
	Payload      []byte
}
