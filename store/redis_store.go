package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedPrefix = "processed:"

// RedisStore shares processed uuids between server replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a RedisStore talking to the server at addr. The
// connection is opened lazily; use Ping to check it.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{client: c}
}

// Ping checks that the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Claim sets the uuid's key with SET NX so that only one replica wins it.
func (r *RedisStore) Claim(ctx context.Context, uuid string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, processedPrefix+uuid, "1", ttl).Result()
}

// IsProcessed reports whether the uuid's key exists.
func (r *RedisStore) IsProcessed(ctx context.Context, uuid string) (bool, error) {
	count, err := r.client.Exists(ctx, processedPrefix+uuid).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkProcessed sets the uuid's key, expiring after ttl.
func (r *RedisStore) MarkProcessed(ctx context.Context, uuid string, ttl time.Duration) error {
	return r.client.Set(ctx, processedPrefix+uuid, "1", ttl).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
