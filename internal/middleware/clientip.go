package middleware

import (
	"net"
	"net/http"
	"strings"

	"foodies-api/internal/event"
)

// ClientIP resolves the caller address once per request and stores it on the
// context, where the rate limiter and auth event publishers read it.
// Forwarding headers are honoured only behind a trusted proxy.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r, trustProxy)
			next.ServeHTTP(w, r.WithContext(event.WithClientIP(r.Context(), ip)))
		})
	}
}

func clientIP(r *http.Request) string {
	if ip := event.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return extractClientIP(r, false)
}

func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
		if forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}

		realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
		if realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
