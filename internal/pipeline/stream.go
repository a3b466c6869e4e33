// Package pipeline consumes inbound data-import events with bounded
// concurrency, dispatches them through the handler registry and emits the
// resulting events downstream.
package pipeline

import (
	"context"

	"github.com/vijay-eis/mod-source-record-storage/internal/events"
)

// Stream is the event-stream boundary. Subscribe delivers envelopes to fn
// until ctx is cancelled; delivery order across payloads is not guaranteed.
type Stream interface {
	Publish(ctx context.Context, topic string, envelope events.Envelope) error
	Subscribe(ctx context.Context, topic string, fn func(events.Envelope)) error
	Close() error
}
