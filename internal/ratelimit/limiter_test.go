package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// countingBackend records takes and can be forced to fail.
type countingBackend struct {
	takes int
	fail  bool
	inner *LocalBackend
}

func (b *countingBackend) Take(ctx context.Context, key string, limit int64, window time.Duration) (Slot, error) {
	b.takes++
	if b.fail {
		return Slot{}, errors.New("backend unreachable")
	}
	return b.inner.Take(ctx, key, limit, window)
}

func newTestLimiter(backend Backend, allowList, denyList []string) *Limiter {
	return NewLimiter(backend, allowList, denyList, zap.NewNop())
}

func TestLimiter_ScenarioContactQuota(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(NewLocalBackend(), nil, nil)

	// RouteContact allows 3 per minute.
	for i := 0; i < 3; i++ {
		d := limiter.Check(ctx, "1.2.3.4", RouteContact)
		if !d.Allowed {
			t.Fatalf("Call %d should be admitted", i+1)
		}
		if want := int64(3 - i - 1); d.Remaining != want {
			t.Errorf("Call %d: remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d := limiter.Check(ctx, "1.2.3.4", RouteContact)
	if d.Allowed {
		t.Error("4th call within the window should be rejected")
	}
	if d.Remaining != 0 {
		t.Errorf("Rejected call: remaining = %d, want 0", d.Remaining)
	}
	if d.Reason != ReasonRateLimited {
		t.Errorf("Rejected call: reason = %q, want %q", d.Reason, ReasonRateLimited)
	}
	if !d.ResetAt.After(time.Now().Add(-time.Second)) {
		t.Errorf("ResetAt %v should not be in the past", d.ResetAt)
	}
}

func TestLimiter_DenyListPrecedence(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{inner: NewLocalBackend()}
	limiter := newTestLimiter(backend, nil, []string{"10.0.0.9"})

	d := limiter.Check(ctx, "10.0.0.9", RouteDefault)
	if d.Allowed {
		t.Error("Deny-listed identity must be rejected")
	}
	if d.Reason != ReasonForbidden {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonForbidden)
	}
	if backend.takes != 0 {
		t.Errorf("Deny-listed identity must not touch the counter, saw %d takes", backend.takes)
	}
}

func TestLimiter_AllowListBypassesQuota(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{inner: NewLocalBackend()}
	limiter := newTestLimiter(backend, []string{"office-proxy"}, nil)

	// Far beyond the contact quota of 3.
	for i := 0; i < 20; i++ {
		d := limiter.Check(ctx, "office-proxy", RouteContact)
		if !d.Allowed {
			t.Fatalf("Allow-listed identity was rejected on call %d", i+1)
		}
		if d.Reason != ReasonAllowListed {
			t.Fatalf("reason = %q, want %q", d.Reason, ReasonAllowListed)
		}
	}
	if backend.takes != 0 {
		t.Errorf("Allow-listed identity must not mutate quota state, saw %d takes", backend.takes)
	}
}

func TestLimiter_FailsOpenOnBackendError(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{inner: NewLocalBackend(), fail: true}
	limiter := newTestLimiter(backend, nil, nil)

	d := limiter.Check(ctx, "1.2.3.4", RouteEstimate)
	if !d.Allowed {
		t.Error("Backend failure must admit the request")
	}
	if d.Reason != ReasonBackendError {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonBackendError)
	}
	if limiter.BackendErrors() != 1 {
		t.Errorf("BackendErrors() = %d, want 1", limiter.BackendErrors())
	}
}

func TestPolicyFor_UnknownClassFallsBack(t *testing.T) {
	got := PolicyFor(RouteClass("no-such-class"))
	want := PolicyFor(RouteDefault)
	if got != want {
		t.Errorf("PolicyFor(unknown) = %+v, want default %+v", got, want)
	}
}
