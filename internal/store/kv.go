// Package store is the kiosk's bounded key-value persistence: recent-results
// history and the usage counter, over memory, SQLite, Postgres or Redis.
package store

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound      = errors.New("store: key not found")
	ErrQuotaExceeded = errors.New("store: quota exceeded")
)

// KV is the storage contract shared by every backend. Set reports
// ErrQuotaExceeded when the backend is out of space.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Memory is a process-local KV.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }

// Limited caps the combined size of keys and values written through it, the
// way browser storage caps an origin. Keys are accounted the first time they
// are read or written.
type Limited struct {
	kv    KV
	max   int
	mu    sync.Mutex
	sizes map[string]int
}

// NewLimited wraps kv with a byte quota; max <= 0 disables the cap.
func NewLimited(kv KV, max int) *Limited {
	return &Limited{kv: kv, max: max, sizes: make(map[string]int)}
}

func (l *Limited) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := l.kv.Get(ctx, key)
	if err == nil {
		l.mu.Lock()
		l.sizes[key] = len(key) + len(v)
		l.mu.Unlock()
	}
	return v, err
}

func (l *Limited) Set(ctx context.Context, key string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max > 0 {
		if _, ok := l.sizes[key]; !ok {
			if v, err := l.kv.Get(ctx, key); err == nil {
				l.sizes[key] = len(key) + len(v)
			}
		}
		total := len(key) + len(value)
		for k, n := range l.sizes {
			if k != key {
				total += n
			}
		}
		if total > l.max {
			return ErrQuotaExceeded
		}
	}
	if err := l.kv.Set(ctx, key, value); err != nil {
		return err
	}
	l.sizes[key] = len(key) + len(value)
	return nil
}

func (l *Limited) Delete(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.kv.Delete(ctx, key); err != nil {
		return err
	}
	delete(l.sizes, key)
	return nil
}

// Usage returns the bytes currently accounted.
func (l *Limited) Usage() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.sizes {
		total += n
	}
	return total
}

func (l *Limited) Close() error { return l.kv.Close() }
