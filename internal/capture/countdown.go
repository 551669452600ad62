package capture

import (
	"context"
	"sync"
	"time"

	"vtokiosk/internal/domain"
)

// Countdown is a cancellable shutter timer. It ticks once per Interval with the
// remaining count and fires when the count runs out.
type Countdown struct {
	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCountdown returns a countdown ticking every second.
func NewCountdown() *Countdown {
	return &Countdown{Interval: time.Second}
}

// Start begins a countdown from seconds. onTick receives the remaining count,
// starting with seconds itself; onFire runs once when the count reaches zero.
// A zero count fires synchronously. Start returns domain.ErrBusy while another
// countdown is running.
func (c *Countdown) Start(ctx context.Context, seconds int, onTick func(remaining int), onFire func()) error {
	if seconds <= 0 {
		if onFire != nil {
			onFire()
		}
		return nil
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(seconds)
	}

	go func() {
		defer close(done)
		defer c.release(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		remaining := seconds
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
			if remaining <= 1 {
				c.release(done)
				if onFire != nil {
					onFire()
				}
				return
			}
			remaining--
			if onTick != nil {
				onTick(remaining)
			}
		}
	}()
	return nil
}

// Stop cancels a running countdown. It reports whether a countdown was
// running. Callbacks already in flight may still complete.
func (c *Countdown) Stop() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}
	c.release(done)
	return true
}

// Running reports whether a countdown is in progress.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Countdown) release(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == done && c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.done = nil
	}
}
