package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"vtokiosk/internal/infra"
)

const (
	HistoryKey = "vto_history"
	MaxHistory = 5
)

// isoMillis matches the ISO-8601 form with milliseconds used by stored entries.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Entry is one stored result. ID is the creation time in Unix milliseconds.
type Entry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Image     string `json:"image"`
}

// History keeps the most recent results, newest first.
type History struct {
	kv     KV
	logger *infra.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewHistory(kv KV, logger *infra.Logger) *History {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &History{kv: kv, logger: logger, now: time.Now}
}

// All returns the stored entries, newest first. A missing or unreadable
// value reads as empty.
func (h *History) All(ctx context.Context) ([]Entry, error) {
	raw, err := h.kv.Get(ctx, HistoryKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Entry{}, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		h.logger.Warn().Err(err).Msg("history unreadable; treating as empty")
		return []Entry{}, nil
	}
	return entries, nil
}

// Push prepends image and keeps the newest MaxHistory entries. When the
// backend reports ErrQuotaExceeded it retries with the new entry alone, and
// failing that clears the history. Any other write error is returned with
// the stored history left as it was.
func (h *History) Push(ctx context.Context, image string) (Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.All(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("store: read history: %w", err)
	}

	now := h.now().UTC()
	entry := Entry{ID: now.UnixMilli(), Timestamp: now.Format(isoMillis), Image: image}
	if len(entries) > 0 && entry.ID <= entries[0].ID {
		entry.ID = entries[0].ID + 1
	}

	updated := append([]Entry{entry}, entries...)
	if len(updated) > MaxHistory {
		updated = updated[:MaxHistory]
	}

	err = h.write(ctx, updated)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return Entry{}, fmt.Errorf("store: write history: %w", err)
	}
	h.logger.Warn().Err(err).Msg("storage near limit, keeping only the latest result")

	err = h.write(ctx, []Entry{entry})
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return Entry{}, fmt.Errorf("store: write history: %w", err)
	}
	h.logger.Error().Err(err).Msg("storage full, clearing history")

	if err := h.kv.Delete(ctx, HistoryKey); err != nil {
		return entry, fmt.Errorf("store: clear history: %w", err)
	}
	return entry, nil
}

// Clear removes every entry.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kv.Delete(ctx, HistoryKey)
}

func (h *History) write(ctx context.Context, entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return h.kv.Set(ctx, HistoryKey, raw)
}
