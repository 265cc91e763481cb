package session

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStorage keeps the snapshot under two keys sharing a prefix. Save uses
// a single MSET and Clear a single DEL so the keys never diverge.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configures NewRedisStorage.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStorage connects to Redis. The connection is lazy; Ping verifies it.
func NewRedisStorage(opts RedisOptions) *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStorageWithClient(client, opts.Prefix)
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client redis.UniversalClient, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) key(name string) string {
	return r.prefix + name
}

// Ping checks connectivity.
func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (r *RedisStorage) Load(ctx context.Context) (*Snapshot, error) {
	vals, err := r.client.MGet(ctx, r.key(KeyToken), r.key(KeyCurrentUser)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	return decode(stringOf(vals[0]), stringOf(vals[1]))
}

func (r *RedisStorage) Save(ctx context.Context, snap Snapshot) error {
	values, err := encode(snap)
	if err != nil {
		return err
	}
	pairs := []interface{}{
		r.key(KeyToken), values[KeyToken],
		r.key(KeyCurrentUser), values[KeyCurrentUser],
	}
	if err := r.client.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

func (r *RedisStorage) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key(KeyToken), r.key(KeyCurrentUser)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// stringOf converts an MGET slot; missing keys come back as nil.
func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}
