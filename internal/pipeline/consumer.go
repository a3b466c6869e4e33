package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/vijay-eis/mod-source-record-storage/internal/config"
	"github.com/vijay-eis/mod-source-record-storage/internal/events"
	"github.com/vijay-eis/mod-source-record-storage/internal/handler"
	"github.com/vijay-eis/mod-source-record-storage/internal/observability/metrics"
	"github.com/vijay-eis/mod-source-record-storage/internal/profile"
)

const sensorRetryDelay = 100 * time.Millisecond

// Consumer pulls inbound envelopes, admits them under the local and shared
// load ceilings and runs the matching handler. Failures resolve to a DI_ERROR
// event; the consumer never retries a handler.
type Consumer struct {
	stream   Stream
	registry *handler.Registry
	outbox   *events.Outbox
	profiles *profile.Client
	sensor   LoadSensor
	sem      *semaphore.Weighted
	metrics  *metrics.PipelineMetrics
	log      *zap.Logger
	cfg      config.PipelineConfig

	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewConsumer(stream Stream, registry *handler.Registry, outbox *events.Outbox, profiles *profile.Client, sensor LoadSensor, m *metrics.PipelineMetrics, cfg config.Config, log *zap.Logger) *Consumer {
	return &Consumer{
		stream:   stream,
		registry: registry,
		outbox:   outbox,
		profiles: profiles,
		sensor:   sensor,
		sem:      semaphore.NewWeighted(int64(cfg.Pipeline.LoadLimit)),
		metrics:  m,
		log:      log.Named("pipeline.consumer"),
		cfg:      cfg.Pipeline,
	}
}

// Start begins intake. Intake runs until Stop; in-flight payloads outlive the
// subscription and are waited on during Stop.
func (c *Consumer) Start() error {
	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	if err := c.stream.Subscribe(c.baseCtx, c.cfg.InboundTopic, c.intake); err != nil {
		return err
	}
	c.log.Info("consuming",
		zap.String("topic", c.cfg.InboundTopic),
		zap.String("group", c.cfg.ConsumerGroup),
		zap.Int("loadLimit", c.cfg.LoadLimit))
	return nil
}

// Stop halts intake and waits for in-flight payloads up to the drain timeout.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	defer cancel()
	if err := c.sem.Acquire(drainCtx, int64(c.cfg.LoadLimit)); err != nil {
		c.log.Warn("drain timeout, abandoning in-flight payloads", zap.Error(err))
		return err
	}
	c.sem.Release(int64(c.cfg.LoadLimit))
	c.log.Info("drained")
	return nil
}

// intake runs on the subscriber goroutine. Blocking here pauses further
// intake, which is exactly the cooperative backpressure the load ceilings
// require.
func (c *Consumer) intake(envelope events.Envelope) {
	if err := c.sem.Acquire(c.baseCtx, 1); err != nil {
		return
	}

	paused := false
	for {
		ok, err := c.sensor.TryAcquire(c.baseCtx)
		if err != nil {
			c.log.Warn("load sensor unavailable", zap.Error(err))
		}
		if ok {
			break
		}
		if !paused {
			paused = true
			c.metrics.IncIntakePaused()
		}
		select {
		case <-c.baseCtx.Done():
			c.sem.Release(1)
			return
		case <-time.After(sensorRetryDelay):
		}
	}

	c.metrics.IncInFlight()
	go c.process(envelope)
}

func (c *Consumer) process(envelope events.Envelope) {
	ctx := context.Background()
	defer func() {
		c.metrics.DecInFlight()
		if err := c.sensor.Release(ctx); err != nil {
			c.log.Warn("load sensor release", zap.Error(err))
		}
		c.sem.Release(1)
	}()

	payload, err := events.Unwrap(envelope)
	if err != nil {
		c.metrics.IncProcessed("error")
		c.log.Error("malformed inbound envelope",
			zap.String("eventType", envelope.EventType), zap.Error(err))
		return
	}

	if err := c.resolveNode(ctx, payload); err != nil {
		c.metrics.IncProcessed("error")
		c.log.Error("resolve profile node",
			zap.String("eventType", payload.EventType),
			zap.String("jobExecutionId", payload.JobExecutionID),
			zap.Error(err))
		c.publishError(ctx, payload, err)
		return
	}

	h, ok := c.registry.Resolve(payload)
	if !ok {
		c.metrics.IncProcessed("skipped")
		c.log.Debug("no eligible handler", zap.String("eventType", payload.EventType))
		return
	}

	consumed := payload.EventType
	start := time.Now()
	result, err := h.Handle(ctx, payload)
	c.metrics.ObserveHandleDuration(consumed, time.Since(start))

	if err != nil {
		c.metrics.IncProcessed("error")
		c.log.Error("handler failed",
			zap.String("eventType", consumed),
			zap.String("jobExecutionId", payload.JobExecutionID),
			zap.Error(err))
		c.publishError(ctx, payload, err)
		return
	}

	c.metrics.IncProcessed("handled")
	if h.IsPostProcessingNeeded(result) {
		if post := h.PostProcessingEventType(); post != "" {
			result.EventType = post
		}
	}
	if err := c.publish(ctx, result); err != nil {
		c.log.Error("publish outbound event",
			zap.String("eventType", result.EventType), zap.Error(err))
	}
}

// resolveNode fetches the current profile node when the payload carries only
// the snapshot id of its profile tree.
func (c *Consumer) resolveNode(ctx context.Context, payload *events.Payload) error {
	if payload.CurrentNode != nil || c.profiles == nil {
		return nil
	}
	snapshotID, ok := payload.ContextValue(events.KeyProfileSnapshotID)
	if !ok || snapshotID == "" || payload.OkapiURL == "" {
		return nil
	}
	node, err := c.profiles.GetSnapshot(ctx, payload.OkapiURL, payload.Tenant, payload.Token, snapshotID)
	if err != nil {
		return err
	}
	payload.CurrentNode = node
	return nil
}

// publishError surfaces a handler failure downstream without advancing the
// events chain.
func (c *Consumer) publishError(ctx context.Context, payload *events.Payload, cause error) {
	payload.EventType = events.EventError
	payload.PutContext("ERROR", cause.Error())
	if err := c.publish(ctx, payload); err != nil {
		c.log.Error("publish error event", zap.Error(err))
	}
}

func (c *Consumer) publish(ctx context.Context, payload *events.Payload) error {
	envelope, err := events.Wrap(payload)
	if err != nil {
		return err
	}
	envelope.ID = uuid.NewString()
	return c.outbox.Publish(ctx, events.OutboxEvent{
		Type:     envelope.EventType,
		Envelope: envelope,
	})
}
