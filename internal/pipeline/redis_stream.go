package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/config"
	"github.com/vijay-eis/mod-source-record-storage/internal/events"
)

// RedisStream carries envelopes over redis pub/sub.
type RedisStream struct {
	rdb *goredis.Client
	log *zap.Logger
}

func NewRedisStream(cfg config.Config, log *zap.Logger) (*RedisStream, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Redis.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStream{rdb: rdb, log: log.Named("pipeline.stream")}, nil
}

func (s *RedisStream) Publish(ctx context.Context, topic string, envelope events.Envelope) error {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, topic, raw).Err()
}

func (s *RedisStream) Subscribe(ctx context.Context, topic string, fn func(events.Envelope)) error {
	sub := s.rdb.Subscribe(ctx, topic)

	// ensures the subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var envelope events.Envelope
				if err := json.Unmarshal([]byte(m.Payload), &envelope); err != nil {
					s.log.Warn("bad stream payload", zap.Error(err))
					continue
				}
				fn(envelope)
			}
		}
	}()

	return nil
}

func (s *RedisStream) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Client exposes the underlying connection for the shared load sensor.
func (s *RedisStream) Client() *goredis.Client { return s.rdb }
