// Package errs defines the error-kind taxonomy shared by the client and
// node processes: what went wrong, where, and whether the dispatcher may
// retry it.
package errs

import "fmt"

// Kind classifies a failure the way the job runner and dispatcher need to
// react to it.
type Kind int

const (
	// InvalidInput marks a Segmenter precondition failure (missing or
	// zero-length input). Always fatal.
	InvalidInput Kind = iota
	// SegmentationFailed marks a failure of the external tool while
	// splitting the input into segments. Always fatal.
	SegmentationFailed
	// TransportError marks an RPC-layer failure (connection refused, body
	// truncated, non-2xx status not attributable to the encoder). Transient.
	TransportError
	// WorkerTimeout marks an RPC that exceeded its deadline. Treated as
	// TransportError by the dispatcher.
	WorkerTimeout
	// EncodeFailed marks a node-reported encode failure for a specific
	// segment. Transient until the same index fails on two distinct
	// workers, at which point the job runner treats it as fatal.
	EncodeFailed
	// NoHealthyWorkers marks every worker being quarantined at once. Fatal.
	NoHealthyWorkers
	// AssemblyFailed marks a failure in the concat/mux phase. Fatal.
	AssemblyFailed
	// IOError marks a workspace or filesystem failure. Fatal.
	IOError
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case SegmentationFailed:
		return "SegmentationFailed"
	case TransportError:
		return "TransportError"
	case WorkerTimeout:
		return "WorkerTimeout"
	case EncodeFailed:
		return "EncodeFailed"
	case NoHealthyWorkers:
		return "NoHealthyWorkers"
	case AssemblyFailed:
		return "AssemblyFailed"
	case IOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Transient reports whether the dispatcher may recover from this kind
// locally (requeue and retry) without aborting the job. EncodeFailed is
// transient only on its first observation; the dispatcher escalates it to
// fatal itself once two distinct workers agree, rather than this method
// changing behavior based on call count.
func (k Kind) Transient() bool {
	switch k {
	case TransportError, WorkerTimeout, EncodeFailed:
		return true
	default:
		return false
	}
}

// Error is the concrete error type carried through the dispatch pipeline
// and surfaced to the top-level job runner.
type Error struct {
	Kind       Kind
	Diagnostic string
	Segment    int  // -1 when not segment-scoped
	HasSegment bool
	Cause      error
}

func (e *Error) Error() string {
	if e.HasSegment {
		return fmt.Sprintf("%s(%d): %s", e.Kind, e.Segment, e.Diagnostic)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Diagnostic)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a job-scoped error (no segment index).
func New(kind Kind, diagnostic string, cause error) *Error {
	return &Error{Kind: kind, Diagnostic: diagnostic, Segment: -1, Cause: cause}
}

// NewSegment builds a segment-scoped error, e.g. EncodeFailed(3, ...).
func NewSegment(kind Kind, segment int, diagnostic string, cause error) *Error {
	return &Error{Kind: kind, Diagnostic: diagnostic, Segment: segment, HasSegment: true, Cause: cause}
}

// As extracts an *Error from err via errors.As-compatible unwrapping.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
