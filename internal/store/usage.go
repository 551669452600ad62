package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
)

const UsageKey = "vto_usage_count"

// Usage counts successful generations across all flows.
type Usage struct {
	kv KV
	mu sync.Mutex
}

func NewUsage(kv KV) *Usage {
	return &Usage{kv: kv}
}

// Get returns the current count; a missing or malformed value is zero.
func (u *Usage) Get(ctx context.Context) (int, error) {
	raw, err := u.kv.Get(ctx, UsageKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Increment adds one and returns the new count.
func (u *Usage) Increment(ctx context.Context) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	n, err := u.Get(ctx)
	if err != nil {
		return 0, err
	}
	n++
	if err := u.kv.Set(ctx, UsageKey, []byte(strconv.Itoa(n))); err != nil {
		return 0, err
	}
	return n, nil
}

// Reset sets the count back to zero.
func (u *Usage) Reset(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.kv.Set(ctx, UsageKey, []byte("0"))
}
