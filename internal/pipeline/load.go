package pipeline

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// LoadSensor bounds the number of payloads in flight across every instance of
// one consumer group.
type LoadSensor interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisLoadSensor keeps a shared in-flight counter in redis, keyed by the
// consumer group. Incr-then-check keeps the sensor race-free without a lock:
// an over-the-limit increment is immediately undone.
type redisLoadSensor struct {
	rdb   *goredis.Client
	key   string
	limit int64
}

func NewRedisLoadSensor(rdb *goredis.Client, consumerGroup string, limit int) LoadSensor {
	return &redisLoadSensor{
		rdb:   rdb,
		key:   "srs:inflight:" + consumerGroup,
		limit: int64(limit),
	}
}

func (s *redisLoadSensor) TryAcquire(ctx context.Context) (bool, error) {
	n, err := s.rdb.Incr(ctx, s.key).Result()
	if err != nil {
		return false, err
	}
	if n > s.limit {
		_ = s.rdb.Decr(ctx, s.key).Err()
		return false, nil
	}
	return true, nil
}

func (s *redisLoadSensor) Release(ctx context.Context) error {
	return s.rdb.Decr(ctx, s.key).Err()
}

// noopLoadSensor admits everything; used when no shared ceiling is
// configured.
type noopLoadSensor struct{}

func (noopLoadSensor) TryAcquire(context.Context) (bool, error) { return true, nil }
func (noopLoadSensor) Release(context.Context) error            { return nil }

func NewNoopLoadSensor() LoadSensor { return noopLoadSensor{} }
