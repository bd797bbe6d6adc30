package wire

import (
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"
)

// RequestHeader is carried as a JSON blob in the X-Encode-Meta header
// (spec.md §6 EncodeRequest minus the bulk payload, which travels as a
// gzip-compressed body instead of being inlined into JSON).
type RequestHeader struct {
	SegmentIndex  uint32 `json:"segment_index"`
	EncoderParams string `json:"encoder_params"`
}

// ResponseHeader is carried as a JSON blob in the X-Encode-Meta header for
// responses. ErrorCode is empty on success.
type ResponseHeader struct {
	SegmentIndex uint32 `json:"segment_index"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// EncodeHeader marshals a header value to the compact JSON string that goes
// into the X-Encode-Meta header.
func EncodeHeader(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeHeader unmarshals the X-Encode-Meta header value into v.
func DecodeHeader(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}

// CompressPayload gzips raw segment bytes for the wire. Segments are
// already-compressed media containers most of the time, but spec.md §6
// mandates compression unconditionally on both directions, so this never
// branches on content.
func CompressPayload(w io.Writer, payload []byte) error {
	gz, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if _, err := gz.Write(payload); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// DecompressPayload reverses CompressPayload.
func DecompressPayload(r io.Reader) ([]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
