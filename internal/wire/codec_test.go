package wire_test

import (
	"bytes"
	"testing"

	"github.com/ekifun/transcodefleet/internal/wire"
)

func TestHeaderRoundTrip(t *testing.T) {
	want := wire.RequestHeader{SegmentIndex: 7, EncoderParams: "-c:v libx264 -crf 28"}
	encoded, err := wire.EncodeHeader(want)
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	var got wire.RequestHeader
	if err := wire.DecodeHeader(encoded, &got); err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("segment-bytes"), 1000)

	var buf bytes.Buffer
	if err := wire.CompressPayload(&buf, want); err != nil {
		t.Fatalf("CompressPayload: %v", err)
	}
	if buf.Len() >= len(want) {
		t.Fatalf("expected compression to shrink repetitive data: got %d bytes from %d", buf.Len(), len(want))
	}

	got, err := wire.DecompressPayload(&buf)
	if err != nil {
		t.Fatalf("DecompressPayload: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("decompressed payload does not match original")
	}
}
