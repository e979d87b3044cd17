package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

type rejectionBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Reset     int64  `json:"reset"`
}

type forbiddenBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Middleware guards a route group with the given class. Every response,
// admitted or not, carries the X-RateLimit-* headers. Quota exhaustion
// answers 429 with a Retry-After; deny-listed identities get 403 and no
// counter is touched.
func Middleware(limiter *Limiter, class RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := ClientIdentity(r)
			decision := limiter.Check(r.Context(), identity, class)

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")

			if decision.Reason == ReasonForbidden {
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(forbiddenBody{
					Error:   "Forbidden",
					Message: "Access denied",
				})
				return
			}

			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rejectionBody{
				Error:     "Too Many Requests",
				Message:   "Rate limit exceeded, please retry later",
				Limit:     decision.Limit,
				Remaining: decision.Remaining,
				Reset:     decision.ResetAt.Unix(),
			})
		})
	}
}
