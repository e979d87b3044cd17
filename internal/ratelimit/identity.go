package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// IdentityUnknown pools clients with no usable address signal into one
// shared bucket, so the absence of headers is not a bypass.
const IdentityUnknown = "unknown"

// ClientIdentity extracts the best-effort client identifier from proxy
// headers. Precedence: first X-Forwarded-For hop, then X-Real-IP, then
// the socket address.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return IdentityUnknown
}
