package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terminal-bench/flightsurety/shared/events"
)

// RedisStore deduplicates by event id with SETNX and keeps a capped list
// of recent events.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
	limit int64
}

func NewRedisStore(addr string, ttl time.Duration, limit int64) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisStore{redis: rdb, ttl: ttl, limit: limit}
}

func (s *RedisStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, "surety:seen:"+id, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Remember(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := "surety:recent"
	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Recent returns up to limit remembered events, newest first
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]events.Event, error) {
	data, err := s.redis.LRange(ctx, "surety:recent", 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}

	out := make([]events.Event, 0, len(data))
	for _, d := range data {
		var e events.Event
		if err := json.Unmarshal([]byte(d), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.redis.Close()
}
