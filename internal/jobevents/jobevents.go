// Package jobevents is the optional lifecycle event bus (spec.md §3
// JobEvent): every Dispatcher hook fires a best-effort Kafka publish that
// never blocks or fails the job it describes.
package jobevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const topic = "transcode-events"

// Kind enumerates the lifecycle events a job can emit.
type Kind string

const (
	JobStarted          Kind = "job_started"
	SegmentDispatched   Kind = "segment_dispatched"
	SegmentCompleted    Kind = "segment_completed"
	SegmentFailed       Kind = "segment_failed"
	WorkerQuarantined   Kind = "worker_quarantined"
	WorkerRehabilitated Kind = "worker_rehabilitated"
	JobCompleted        Kind = "job_completed"
	JobAborted          Kind = "job_aborted"
)

// Event is one lifecycle notification (spec.md §3 JobEvent).
type Event struct {
	Kind      Kind      `json:"kind"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Segment   int       `json:"segment,omitempty"`
	Worker    string    `json:"worker,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
}

// Publisher is the capability the Dispatcher's hooks use to emit events.
// A publish failure is logged and otherwise ignored; it is never fatal to
// the job (spec.md §3 JobEvent: "Best-effort").
type Publisher interface {
	Publish(ctx context.Context, ev Event)
	Close() error
}

// noop satisfies Publisher when no broker list is configured, so callers
// never need to branch on whether the event bus is enabled.
type noop struct{}

func (noop) Publish(context.Context, Event) {}
func (noop) Close() error                   { return nil }

// NoopPublisher is the zero-configuration Publisher.
var NoopPublisher Publisher = noop{}

// kafkaPublisher publishes events to the transcode-events topic.
type kafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// New builds a Publisher backed by Kafka when brokers is non-empty, or the
// no-op Publisher otherwise.
func New(brokers []string, logger *slog.Logger) Publisher {
	if len(brokers) == 0 {
		return NoopPublisher
	}
	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		logger: logger,
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logf("marshal job event: %v", err)
		return
	}
	msg := kafka.Message{Key: []byte(ev.JobID), Value: payload}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logf("publish job event %s: %v", ev.Kind, err)
	}
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *kafkaPublisher) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn("jobevents publish failed", "error", fmt.Sprintf(format, args...))
	}
}
