// Package transport carries the Encode operation (spec.md §6) between the
// client and a node over HTTP/1.1. The wire-level contract defined by
// internal/wire (JSON header + gzip body) is carried as a plain POST: the
// node's handler is built on github.com/gofiber/fiber/v2, and the client
// issues requests with a tuned net/http.Client.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ekifun/transcodefleet/internal/errs"
	"github.com/ekifun/transcodefleet/internal/wire"
	"github.com/ekifun/transcodefleet/internal/workspace"
)

// metaHeader carries the JSON-encoded RequestHeader/ResponseHeader on both
// directions (spec.md §6).
const metaHeader = "X-Encode-Meta"

// realtimeMultiple is how many multiples of a segment's own duration the
// client waits before declaring a WorkerTimeout, absent a better signal.
// Chosen generously since software encoders can run well under realtime.
const realtimeMultiple = 60

// minTimeout is the floor applied to every computed timeout, and the timeout
// used when a segment carries no duration hint (e.g. a test double), so a
// slow node still gets a usable deadline.
const minTimeout = 30 * time.Second

// Client implements dispatch.Encoder over HTTP. It writes decoded output
// bytes into ws under the caller's workspace-assigned path, so the
// dispatcher never has to reach into the transport layer's internals.
type Client struct {
	http *http.Client
	ws   *workspace.Workspace
}

// New builds a Client whose connection pool is sized for long-lived,
// segment-sized request bodies rather than many small ones.
func New(ws *workspace.Workspace) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 64,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		ws: ws,
	}
}

// Encode satisfies dispatch.Encoder: it ships segment's bytes to address,
// waits for the node's response, and materializes the decoded result under
// ws.EncodedPath(segment.Index).
func (c *Client) Encode(ctx context.Context, address string, segment wire.Segment, encoderParams string) (wire.EncodedSegment, error) {
	payload, err := os.ReadFile(segment.Path)
	if err != nil {
		return wire.EncodedSegment{}, errs.NewSegment(errs.IOError, segment.Index, fmt.Sprintf("read segment file: %v", err), err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(segment))
	defer cancel()

	var body bytes.Buffer
	if err := wire.CompressPayload(&body, payload); err != nil {
		return wire.EncodedSegment{}, errs.NewSegment(errs.IOError, segment.Index, fmt.Sprintf("compress payload: %v", err), err)
	}

	header, err := wire.EncodeHeader(wire.RequestHeader{
		SegmentIndex:  uint32(segment.Index),
		EncoderParams: encoderParams,
	})
	if err != nil {
		return wire.EncodedSegment{}, errs.NewSegment(errs.IOError, segment.Index, fmt.Sprintf("encode request header: %v", err), err)
	}

	// address is a bare host:port (see cmd/client's --nodes flag help); the
	// client always speaks plain HTTP/1.1 to it, so the scheme is fixed
	// here rather than accepted as part of the address.
	url := "http://" + address + "/encode"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, &body)
	if err != nil {
		return wire.EncodedSegment{}, errs.NewSegment(errs.TransportError, segment.Index, fmt.Sprintf("build request: %v", err), err)
	}
	req.Header.Set(metaHeader, header)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return wire.EncodedSegment{}, errs.NewSegment(errs.WorkerTimeout, segment.Index, err.Error(), err)
		}
		return wire.EncodedSegment{}, errs.NewSegment(errs.TransportError, segment.Index, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return wire.EncodedSegment{}, errs.NewSegment(errs.TransportError, segment.Index, fmt.Sprintf("node returned status %d: %s", resp.StatusCode, string(b)), nil)
	}

	var rh wire.ResponseHeader
	if err := wire.DecodeHeader(resp.Header.Get(metaHeader), &rh); err != nil {
		return wire.EncodedSegment{}, errs.NewSegment(errs.TransportError, segment.Index, fmt.Sprintf("decode response header: %v", err), err)
	}

	if !rh.Success {
		kind := errs.EncodeFailed
		if rh.ErrorCode == errs.TransportError.String() {
			kind = errs.TransportError
		}
		return wire.EncodedSegment{}, errs.NewSegment(kind, segment.Index, rh.ErrorMessage, nil)
	}

	out, err := wire.DecompressPayload(resp.Body)
	if err != nil {
		return wire.EncodedSegment{}, errs.NewSegment(errs.TransportError, segment.Index, fmt.Sprintf("decompress response body: %v", err), err)
	}

	dst := c.ws.EncodedPath(segment.Index)
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return wire.EncodedSegment{}, errs.NewSegment(errs.IOError, segment.Index, fmt.Sprintf("write decoded segment: %v", err), err)
	}

	return wire.EncodedSegment{Index: segment.Index, Path: dst}, nil
}

func (c *Client) timeoutFor(segment wire.Segment) time.Duration {
	if segment.Duration <= 0 {
		return minTimeout
	}
	d := time.Duration(segment.Duration*realtimeMultiple) * time.Second
	if d < minTimeout {
		return minTimeout
	}
	return d
}
