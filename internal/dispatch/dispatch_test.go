package dispatch_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ekifun/transcodefleet/internal/dispatch"
	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/wire"
)

// fakeEncoder lets each test script per-address, per-attempt behavior
// without a real transport.
type fakeEncoder struct {
	mu       sync.Mutex
	attempts map[string]int // address -> attempt count
	behavior func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error)
}

func newFakeEncoder(behavior func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error)) *fakeEncoder {
	return &fakeEncoder{attempts: make(map[string]int), behavior: behavior}
}

func (f *fakeEncoder) Encode(ctx context.Context, address string, segment wire.Segment, encoderParams string) (wire.EncodedSegment, error) {
	f.mu.Lock()
	f.attempts[address]++
	attempt := f.attempts[address]
	f.mu.Unlock()
	return f.behavior(address, attempt, segment)
}

func segments(n int) []wire.Segment {
	out := make([]wire.Segment, n)
	for i := range out {
		out[i] = wire.Segment{Index: i, Path: fmt.Sprintf("seg-%d.mp4", i)}
	}
	return out
}

func TestRunSucceedsWithSingleWorker(t *testing.T) {
	enc := newFakeEncoder(func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error) {
		return wire.EncodedSegment{Index: seg.Index, Path: "out-" + seg.Path}, nil
	})
	endpoints := []*wire.WorkerEndpoint{wire.NewWorkerEndpoint("node-a", 1)}
	d := dispatch.New("job-1", endpoints, "-c:v libx264", enc, nil, nil)

	out, err := d.Run(context.Background(), segments(4))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 encoded segments, got %d", len(out))
	}
	for i, seg := range out {
		if seg.Index != i {
			t.Fatalf("expected ascending index order, got %d at position %d", seg.Index, i)
		}
	}
}

func TestRunDistributesAcrossWorkers(t *testing.T) {
	var seenA, seenB atomic.Int64
	enc := newFakeEncoder(func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error) {
		if address == "node-a" {
			seenA.Add(1)
		} else {
			seenB.Add(1)
		}
		return wire.EncodedSegment{Index: seg.Index, Path: seg.Path}, nil
	})
	endpoints := []*wire.WorkerEndpoint{
		wire.NewWorkerEndpoint("node-a", 2),
		wire.NewWorkerEndpoint("node-b", 2),
	}
	d := dispatch.New("job-2", endpoints, "", enc, nil, nil)

	_, err := d.Run(context.Background(), segments(20))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if seenA.Load() == 0 || seenB.Load() == 0 {
		t.Fatalf("expected both workers to receive segments, got a=%d b=%d", seenA.Load(), seenB.Load())
	}
}

func TestTransientFailureIsRetriedOnAnotherWorker(t *testing.T) {
	enc := newFakeEncoder(func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error) {
		if address == "node-a" {
			return wire.EncodedSegment{}, errs.NewSegment(errs.TransportError, seg.Index, "connection refused", nil)
		}
		return wire.EncodedSegment{Index: seg.Index, Path: seg.Path}, nil
	})
	endpoints := []*wire.WorkerEndpoint{
		wire.NewWorkerEndpoint("node-a", 1),
		wire.NewWorkerEndpoint("node-b", 1),
	}
	d := dispatch.New("job-3", endpoints, "", enc, nil, nil)

	out, err := d.Run(context.Background(), segments(1))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected the segment to eventually complete, got %d results", len(out))
	}
}

func TestWorkerIsQuarantinedAfterConsecutiveFailures(t *testing.T) {
	enc := newFakeEncoder(func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error) {
		if address == "node-bad" {
			return wire.EncodedSegment{}, errs.NewSegment(errs.TransportError, seg.Index, "timeout", nil)
		}
		return wire.EncodedSegment{Index: seg.Index, Path: seg.Path}, nil
	})
	endpoints := []*wire.WorkerEndpoint{
		wire.NewWorkerEndpoint("node-bad", 1),
		wire.NewWorkerEndpoint("node-good", 1),
	}
	d := dispatch.New("job-4", endpoints, "", enc, nil, nil)

	_, err := d.Run(context.Background(), segments(8))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var bad dispatch.WorkerSummary
	for _, s := range d.Summary() {
		if s.Address == "node-bad" {
			bad = s
		}
	}
	if !bad.Quarantined {
		t.Fatalf("expected node-bad to be quarantined after repeated failures, got %+v", bad)
	}
}

func TestDeterministicFailureBecomesFatalOnSecondWorkerAgreement(t *testing.T) {
	enc := newFakeEncoder(func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error) {
		return wire.EncodedSegment{}, errs.NewSegment(errs.EncodeFailed, seg.Index, "unsupported codec", nil)
	})
	endpoints := []*wire.WorkerEndpoint{
		wire.NewWorkerEndpoint("node-a", 1),
		wire.NewWorkerEndpoint("node-b", 1),
	}
	d := dispatch.New("job-5", endpoints, "", enc, nil, nil)

	_, err := d.Run(context.Background(), segments(1))
	if err == nil {
		t.Fatal("expected a fatal error once two distinct workers agree on EncodeFailed")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.EncodeFailed {
		t.Fatalf("expected EncodeFailed, got %v", err)
	}
}

func TestRunReturnsImmediatelyForEmptyInput(t *testing.T) {
	enc := newFakeEncoder(func(string, int, wire.Segment) (wire.EncodedSegment, error) {
		t.Fatal("encoder should never be called for zero segments")
		return wire.EncodedSegment{}, nil
	})
	endpoints := []*wire.WorkerEndpoint{wire.NewWorkerEndpoint("node-a", 1)}
	d := dispatch.New("job-6", endpoints, "", enc, nil, nil)

	out, err := d.Run(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("expected (nil, nil) for empty segment list, got (%v, %v)", out, err)
	}
}

func TestDeterministicFailureEscalatesWithSingleWorker(t *testing.T) {
	enc := newFakeEncoder(func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error) {
		return wire.EncodedSegment{}, errs.NewSegment(errs.EncodeFailed, seg.Index, "unsupported codec", nil)
	})
	endpoints := []*wire.WorkerEndpoint{wire.NewWorkerEndpoint("node-a", 1)}
	d := dispatch.New("job-9", endpoints, "", enc, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background(), segments(1))
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a fatal error when the sole worker repeats a deterministic failure")
		}
		e, ok := errs.As(err)
		if !ok || e.Kind != errs.EncodeFailed {
			t.Fatalf("expected EncodeFailed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run hung retrying a single worker's deterministic failure forever")
	}
}

// ctxAwareEncoder lets segment 0 fail deterministically on every attempt
// while segment 1 blocks until its context is cancelled, so tests can
// observe whether a fatal error actually cancels an outstanding RPC rather
// than letting it drain on its own.
type ctxAwareEncoder struct{}

func (ctxAwareEncoder) Encode(ctx context.Context, address string, seg wire.Segment, encoderParams string) (wire.EncodedSegment, error) {
	if seg.Index == 0 {
		return wire.EncodedSegment{}, errs.NewSegment(errs.EncodeFailed, seg.Index, "unsupported codec", nil)
	}
	<-ctx.Done()
	return wire.EncodedSegment{}, ctx.Err()
}

func TestFatalCancelsOutstandingRPCs(t *testing.T) {
	endpoints := []*wire.WorkerEndpoint{wire.NewWorkerEndpoint("node-a", 2)}
	d := dispatch.New("job-10", endpoints, "", ctxAwareEncoder{}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background(), segments(2))
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a fatal error from segment 0's deterministic failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return: the fatal error should have cancelled segment 1's outstanding RPC")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	block := make(chan struct{})
	enc := newFakeEncoder(func(address string, attempt int, seg wire.Segment) (wire.EncodedSegment, error) {
		<-block
		return wire.EncodedSegment{Index: seg.Index, Path: seg.Path}, nil
	})
	endpoints := []*wire.WorkerEndpoint{wire.NewWorkerEndpoint("node-a", 1)}
	d := dispatch.New("job-7", endpoints, "", enc, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Run(ctx, segments(4))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	close(block)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Run to return an error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
