package syncstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV persists items in Redis under a common key prefix, so multiple
// agents can share one instance without colliding. Substrate failures are
// reported as ErrUnavailable; the record layer treats them as soft.
type RedisKV struct {
	client *redis.Client
	prefix string
}

func NewRedisKV(addr, password string, db int, prefix string) *RedisKV {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &RedisKV{client: client, prefix: prefix}
}

// Ping verifies the connection at startup.
func (r *RedisKV) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

func (r *RedisKV) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		slog.Warn("syncstore redis get failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		slog.Warn("syncstore redis set failed", "key", key, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		slog.Warn("syncstore redis del failed", "key", key, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
