package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Redis stores values under a key prefix so several kiosks can share one
// history and counter.
type Redis struct {
	pool   *redis.Pool
	prefix string
}

// OpenRedis dials url (redis://...) lazily through a small pool and checks
// the connection with PING.
func OpenRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url)
		},
	}
	r := NewRedis(pool, prefix)
	conn, err := pool.GetContext(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: dial redis: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	return r, nil
}

func NewRedis(pool *redis.Pool, prefix string) *Redis {
	return &Redis{pool: pool, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: redis conn: %w", err)
	}
	defer conn.Close()
	v, err := redis.Bytes(conn.Do("GET", r.key(key)))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("store: redis conn: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Do("SET", r.key(key), value); err != nil {
		var rerr redis.Error
		if errors.As(err, &rerr) && strings.HasPrefix(string(rerr), "OOM") {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("store: redis conn: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Do("DEL", r.key(key)); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.pool.Close()
}
