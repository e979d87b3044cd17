package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

// LocalBackend keeps fixed-window counters in a per-process map. It is
// correct only within a single process and exists as the fallback when no
// Redis URL is configured. Expired windows are replaced lazily on the
// next take for their key; there is no background sweep.
type LocalBackend struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (b *LocalBackend) Take(ctx context.Context, key string, limit int64, windowDur time.Duration) (Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	w, ok := b.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		b.windows[key] = w
	}

	if w.count < limit {
		w.count++
		return Slot{Allowed: true, Count: w.count, ResetAt: w.resetAt}, nil
	}
	return Slot{Allowed: false, Count: w.count, ResetAt: w.resetAt}, nil
}
