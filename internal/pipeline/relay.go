package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/config"
	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/observability/metrics"
)

const relayBatchSize = 50

// Relay drains the outbox onto the outbound topic. Outbound events commit
// with the mutation that produced them; the relay is the only component that
// touches the stream on the way out.
type Relay struct {
	outbox  *events.Outbox
	stream  Stream
	log     *zap.Logger
	cfg     config.PipelineConfig
	metrics *metrics.StoreMetrics
}

func NewRelay(outbox *events.Outbox, stream Stream, cfg config.Config, log *zap.Logger) *Relay {
	return &Relay{
		outbox:  outbox,
		stream:  stream,
		log:     log.Named("pipeline.relay"),
		cfg:     cfg.Pipeline,
		metrics: metrics.Store(),
	}
}

func (r *Relay) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RelayInterval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("outbox relay run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce publishes one batch of pending outbox rows, oldest first. A row
// that fails to publish stays pending and blocks later rows until the stream
// recovers.
func (r *Relay) RunOnce(ctx context.Context) error {
	rows, err := r.outbox.PendingBatch(ctx, relayBatchSize)
	if err != nil {
		return err
	}
	r.metrics.SetOutboxBacklog(len(rows))
	if len(rows) > 0 {
		r.metrics.SetOutboxOldest(time.Since(rows[0].CreatedAt))
	} else {
		r.metrics.SetOutboxOldest(0)
	}
	for _, row := range rows {
		var envelope events.Envelope
		if err := json.Unmarshal(row.Payload, &envelope); err != nil {
			r.log.Error("malformed outbox row, dropping",
				zap.Int64("id", row.ID), zap.Error(err))
			if err := r.outbox.MarkPublished(ctx, row.ID); err != nil {
				return err
			}
			r.metrics.IncRelayPublished("dropped")
			continue
		}
		if envelope.ID == "" {
			envelope.ID = strconv.FormatInt(row.ID, 10)
		}
		if err := r.stream.Publish(ctx, r.cfg.OutboundTopic, envelope); err != nil {
			return err
		}
		if err := r.outbox.MarkPublished(ctx, row.ID); err != nil {
			return err
		}
		r.metrics.IncRelayPublished("published")
	}
	return nil
}
