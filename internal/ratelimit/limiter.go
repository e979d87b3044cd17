package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"promo-service/internal/util"
)

type Reason string

const (
	ReasonAllowed      Reason = "allowed"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonForbidden    Reason = "forbidden"
	ReasonAllowListed  Reason = "allowlisted"
	ReasonBackendError Reason = "backend_error"
)

// Decision carries the admit/reject outcome plus the metadata the HTTP
// layer needs for the X-RateLimit-* headers.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	Reason    Reason
}

// Limiter decides admission for a (client identity, route class) pair.
// Deny-listed identities are rejected before any counter touch; allow-listed
// identities bypass the counter entirely. Backend failures admit the
// request (fail open) so an outage never blocks legitimate traffic, but
// every failure is logged and counted.
type Limiter struct {
	backend        Backend
	allowList      map[string]struct{}
	denyList       map[string]struct{}
	backendTimeout time.Duration
	backendErrors  atomic.Int64
	logger         *zap.Logger
}

func NewLimiter(backend Backend, allowList, denyList []string, logger *zap.Logger) *Limiter {
	return &Limiter{
		backend:        backend,
		allowList:      toSet(allowList),
		denyList:       toSet(denyList),
		backendTimeout: 2 * time.Second,
		logger:         logger,
	}
}

// Check never returns an error; infrastructure trouble surfaces as an
// admitted decision with ReasonBackendError.
func (l *Limiter) Check(ctx context.Context, identity string, class RouteClass) Decision {
	policy := PolicyFor(class)

	if _, denied := l.denyList[identity]; denied {
		return Decision{
			Allowed:   false,
			Limit:     policy.Tokens,
			Remaining: 0,
			ResetAt:   time.Now(),
			Reason:    ReasonForbidden,
		}
	}

	if _, allowed := l.allowList[identity]; allowed {
		return Decision{
			Allowed:   true,
			Limit:     policy.Tokens,
			Remaining: policy.Tokens,
			ResetAt:   time.Now(),
			Reason:    ReasonAllowListed,
		}
	}

	takeCtx, cancel := context.WithTimeout(ctx, l.backendTimeout)
	defer cancel()

	key := string(class) + ":" + identity
	slot, err := l.backend.Take(takeCtx, key, policy.Tokens, policy.Window)
	if err != nil {
		l.backendErrors.Add(1)
		l.logger.Error("Quota backend failure, admitting request",
			util.String("identity", identity),
			util.String("route_class", string(class)),
			util.ErrorField(err),
		)
		return Decision{
			Allowed:   true,
			Limit:     policy.Tokens,
			Remaining: policy.Tokens,
			ResetAt:   time.Now().Add(policy.Window),
			Reason:    ReasonBackendError,
		}
	}

	if !slot.Allowed {
		l.logger.Debug("Request rejected by quota",
			util.String("identity", identity),
			util.String("route_class", string(class)),
			util.Int64("count", slot.Count),
			util.Time("reset_at", slot.ResetAt),
		)
		return Decision{
			Allowed:   false,
			Limit:     policy.Tokens,
			Remaining: 0,
			ResetAt:   slot.ResetAt,
			Reason:    ReasonRateLimited,
		}
	}

	remaining := policy.Tokens - slot.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   true,
		Limit:     policy.Tokens,
		Remaining: remaining,
		ResetAt:   slot.ResetAt,
		Reason:    ReasonAllowed,
	}
}

// BackendErrors reports how many checks failed open since startup, so a
// persistent backend outage is detectable from the outside.
func (l *Limiter) BackendErrors() int64 {
	return l.backendErrors.Load()
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
