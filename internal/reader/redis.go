package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// listRanger is the slice of the go-redis API the reader needs.
type listRanger interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// RedisReader reads identifiers from a Redis list, e.g. one filled by an
// upstream collector with RPUSH.
type RedisReader struct {
	client listRanger
	key    string
	filter *Filter
}

// NewRedisReader creates a reader over the list at key.
func NewRedisReader(client listRanger, key string, filter *Filter) *RedisReader {
	return &RedisReader{client: client, key: key, filter: filter}
}

// DialRedis parses a redis:// URL and checks the server answers.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

func (r *RedisReader) Read(ctx context.Context) ([]string, error) {
	ids, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", r.key, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: redis list %q is empty", ErrInvalidInputContent, r.key)
	}
	return r.filter.Filter(ctx, ids)
}
