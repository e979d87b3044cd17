package ratelimit

import (
	"context"
	"time"
)

// Slot is the outcome of one counter take against the current window.
type Slot struct {
	Allowed bool
	Count   int64
	ResetAt time.Time
}

// Backend is the quota counter shared by all limiter instances. Take must
// atomically: open a fresh window when the stored one has passed,
// increment the counter only while Count < limit, and leave the counter
// untouched on reject. ResetAt never changes mid-window.
type Backend interface {
	Take(ctx context.Context, key string, limit int64, window time.Duration) (Slot, error)
}
