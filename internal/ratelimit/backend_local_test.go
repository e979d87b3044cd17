package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalBackend_QuotaEnforcement(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackend()

	now := time.Now()
	backend.now = func() time.Time { return now }

	const limit = 3
	window := time.Minute

	for i := 0; i < limit; i++ {
		slot, err := backend.Take(ctx, "contact:1.2.3.4", limit, window)
		if err != nil {
			t.Fatalf("Take %d returned error: %v", i, err)
		}
		if !slot.Allowed {
			t.Fatalf("Request %d was unexpectedly rejected", i+1)
		}
	}

	slot, err := backend.Take(ctx, "contact:1.2.3.4", limit, window)
	if err != nil {
		t.Fatalf("Take returned error: %v", err)
	}
	if slot.Allowed {
		t.Error("Request over the limit should have been rejected")
	}
	if slot.Count != limit {
		t.Errorf("Rejected take must not increment: count = %d, want %d", slot.Count, limit)
	}

	// After the window rolls over the same key gets a fresh quota.
	now = now.Add(window + time.Millisecond)
	slot, err = backend.Take(ctx, "contact:1.2.3.4", limit, window)
	if err != nil {
		t.Fatalf("Take returned error: %v", err)
	}
	if !slot.Allowed {
		t.Error("First request of the new window should be admitted")
	}
	if slot.Count != 1 {
		t.Errorf("New window should start counting from 1, got %d", slot.Count)
	}
}

func TestLocalBackend_ResetAtStableWithinWindow(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackend()

	start := time.Now()
	now := start
	backend.now = func() time.Time { return now }

	first, _ := backend.Take(ctx, "k", 1, time.Minute)

	// A rejection mid-window reports the same reset and it lies in the future.
	now = start.Add(30 * time.Second)
	rejected, _ := backend.Take(ctx, "k", 1, time.Minute)
	if rejected.Allowed {
		t.Fatal("Second take should have been rejected")
	}
	if !rejected.ResetAt.Equal(first.ResetAt) {
		t.Errorf("ResetAt changed mid-window: %v != %v", rejected.ResetAt, first.ResetAt)
	}
	if !rejected.ResetAt.After(now) {
		t.Errorf("ResetAt %v should be in the future relative to %v", rejected.ResetAt, now)
	}
}

func TestLocalBackend_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackend()

	if slot, _ := backend.Take(ctx, "contact:a", 1, time.Minute); !slot.Allowed {
		t.Fatal("First take for key a should be admitted")
	}
	if slot, _ := backend.Take(ctx, "contact:a", 1, time.Minute); slot.Allowed {
		t.Fatal("Second take for key a should be rejected")
	}
	if slot, _ := backend.Take(ctx, "contact:b", 1, time.Minute); !slot.Allowed {
		t.Error("Key b must not be affected by key a's quota")
	}
}

func TestLocalBackend_ConcurrentTakes(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackend()

	const limit = 100
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)

	wg.Add(2 * limit)
	for i := 0; i < 2*limit; i++ {
		go func() {
			defer wg.Done()
			slot, err := backend.Take(ctx, "shared", limit, time.Minute)
			if err != nil {
				t.Errorf("Take returned error: %v", err)
				return
			}
			if slot.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("Exactly %d concurrent takes should be admitted, got %d", limit, allowed)
	}
}
