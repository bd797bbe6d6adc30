package transport

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ekifun/transcodefleet/internal/nodeservice"
	"github.com/ekifun/transcodefleet/internal/wire"
)

// maxEncodeWait bounds how long a single encode may hold a connection open.
// fasthttp (fiber's transport) only detects a client disconnect the next
// time it reads the connection, which does not happen while a handler is
// still running, so c.Context() is not reliably cancelled mid-encode on a
// dropped connection. This timeout is the backstop: it guarantees the
// node's procgroup kill-on-cancel (internal/mediatool) eventually fires
// even when the client vanishes without a trace.
const maxEncodeWait = 30 * time.Minute

// NewServer builds the node's fiber app exposing the Encode operation at
// POST /encode over the internal/wire framing. Request bodies are raised
// well above fiber's small default so multi-megabyte segments aren't
// rejected before reaching the handler.
func NewServer(svc *nodeservice.Service, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             512 * 1024 * 1024,
		DisableStartupMessage: true,
		ReadTimeout:           maxEncodeWait,
		WriteTimeout:          maxEncodeWait,
	})

	app.Post("/encode", func(c *fiber.Ctx) error {
		var rh wire.RequestHeader
		if err := wire.DecodeHeader(c.Get(metaHeader), &rh); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("malformed " + metaHeader)
		}

		payload, err := wire.DecompressPayload(bytes.NewReader(c.Body()))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("malformed gzip body")
		}

		ctx, cancel := context.WithTimeout(c.Context(), maxEncodeWait)
		defer cancel()
		out, encErr := svc.Encode(ctx, rh.SegmentIndex, rh.EncoderParams, payload)
		if encErr != nil {
			if logger != nil {
				logger.Warn("encode failed", "segment", rh.SegmentIndex, "kind", encErr.Kind.String(), "diagnostic", encErr.Diagnostic)
			}
			header, _ := wire.EncodeHeader(wire.ResponseHeader{
				SegmentIndex: rh.SegmentIndex,
				Success:      false,
				ErrorCode:    encErr.Kind.String(),
				ErrorMessage: encErr.Diagnostic,
			})
			c.Set(metaHeader, header)
			return c.SendStatus(fiber.StatusOK)
		}

		var body bytes.Buffer
		if err := wire.CompressPayload(&body, out); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("compress response: " + err.Error())
		}

		header, err := wire.EncodeHeader(wire.ResponseHeader{SegmentIndex: rh.SegmentIndex, Success: true})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("encode response header: " + err.Error())
		}
		c.Set(metaHeader, header)
		c.Set("Content-Type", "application/octet-stream")
		return c.Send(body.Bytes())
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	return app
}
