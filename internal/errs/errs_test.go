package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ekifun/transcodefleet/internal/errs"
)

func TestTransientClassification(t *testing.T) {
	transient := []errs.Kind{errs.TransportError, errs.WorkerTimeout, errs.EncodeFailed}
	fatal := []errs.Kind{errs.InvalidInput, errs.SegmentationFailed, errs.NoHealthyWorkers, errs.AssemblyFailed, errs.IOError}

	for _, k := range transient {
		if !k.Transient() {
			t.Errorf("expected %s to be transient", k)
		}
	}
	for _, k := range fatal {
		if k.Transient() {
			t.Errorf("expected %s to be fatal", k)
		}
	}
}

func TestNewSegmentCarriesIndex(t *testing.T) {
	err := errs.NewSegment(errs.EncodeFailed, 3, "bad codec", nil)
	if !err.HasSegment || err.Segment != 3 {
		t.Fatalf("expected segment 3, got %+v", err)
	}
	if err.Error() != "EncodeFailed(3): bad codec" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
}

func TestAsUnwrapsWrappedError(t *testing.T) {
	cause := errs.New(errs.IOError, "disk full", nil)
	wrapped := errors.New("context: " + cause.Error())
	if _, ok := errs.As(wrapped); ok {
		t.Fatal("plain error should not unwrap to *errs.Error")
	}

	var wrappedErr error = fmt.Errorf("wrap: %w", cause)
	e, ok := errs.As(wrappedErr)
	if !ok || e.Kind != errs.IOError {
		t.Fatalf("expected to unwrap IOError, got %v ok=%v", e, ok)
	}
}
