package pipeline

import (
	"context"

	"go.uber.org/fx"

	"github.com/vijay-eis/mod-source-record-storage/internal/config"
	"github.com/vijay-eis/mod-source-record-storage/internal/observability/metrics"
)

var Module = fx.Module("pipeline",
	fx.Provide(
		NewRedisStream,
		func(s *RedisStream) Stream { return s },
		func(s *RedisStream, cfg config.Config) LoadSensor {
			return NewRedisLoadSensor(s.Client(), cfg.Pipeline.ConsumerGroup, cfg.Pipeline.GlobalLimit)
		},
		func(cfg config.Config) *metrics.PipelineMetrics {
			return metrics.PipelineWithConfig(metrics.Config{
				ServiceName: "srs",
				Environment: cfg.Env,
			})
		},
		NewConsumer,
		NewRelay,
	),
	fx.Invoke(func(lc fx.Lifecycle, consumer *Consumer, relay *Relay, stream *RedisStream) {
		relayCtx, cancelRelay := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				if err := consumer.Start(); err != nil {
					return err
				}
				go relay.RunForever(relayCtx)
				return nil
			},
			OnStop: func(context.Context) error {
				err := consumer.Stop()
				cancelRelay()
				if closeErr := stream.Close(); err == nil {
					err = closeErr
				}
				return err
			},
		})
	}),
)
