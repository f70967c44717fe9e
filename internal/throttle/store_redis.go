package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares counters between processes. Each window gets its own key
// that expires with the window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fairrate:throttle"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Incr(ctx context.Context, key string, window int64, ttl time.Duration) (int64, error) {
	k := fmt.Sprintf("%s:%s:%d", r.prefix, key, window)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, ttl+time.Second)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
