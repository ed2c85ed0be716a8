package relay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// RedisCursors keeps sink cursors in Redis so a restarted relay resumes
// where it left off. Replay rebuilds the event log with the same seqs, so
// a saved cursor stays valid across restarts.
type RedisCursors struct {
	redis  *redis.Client
	prefix string
}

// NewRedisCursors connects to addr
func NewRedisCursors(addr, prefix string) *RedisCursors {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCursors{redis: rdb, prefix: prefix}
}

func (c *RedisCursors) key(sink string) string {
	return c.prefix + "relay:cursor:" + sink
}

func (c *RedisCursors) Load(ctx context.Context, sink string) (uint64, error) {
	val, err := c.redis.Get(ctx, c.key(sink)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	seq, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cursor %q: %w", val, err)
	}
	return seq, nil
}

func (c *RedisCursors) Save(ctx context.Context, sink string, seq uint64) error {
	if err := c.redis.Set(ctx, c.key(sink), strconv.FormatUint(seq, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Ping checks the connection
func (c *RedisCursors) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *RedisCursors) Close() error {
	return c.redis.Close()
}
