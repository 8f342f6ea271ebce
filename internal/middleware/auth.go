package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"foodies-api/internal/metrics"
	"foodies-api/internal/model"
)

type authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

type contextKey string

const identityContextKey contextKey = "identity"

var (
	errNoToken         = fmt.Errorf("no bearer token: %w", model.ErrUnauthenticated)
	errMalformedHeader = fmt.Errorf("malformed authorization header: %w", model.ErrUnauthenticated)
)

// AuthGate resolves the caller from a bearer token and enforces roles. It is
// the only identity mechanism for API routes; the OAuth handshake cookie is
// never consulted here.
type AuthGate struct {
	auth    authenticator
	metrics *metrics.Metrics
}

func NewAuthGate(auth authenticator, m *metrics.Metrics) *AuthGate {
	return &AuthGate{auth: auth, metrics: m}
}

func (g *AuthGate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.resolve(r)
		if err != nil {
			if errors.Is(err, errNoToken) {
				g.metrics.TokenRejected("missing")
			}
			writeGateError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// Optional attaches an identity when a valid token is present and otherwise
// lets the request through anonymously. A store outage is still reported.
func (g *AuthGate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.resolve(r)
		switch {
		case err == nil:
			r = r.WithContext(WithIdentity(r.Context(), identity))
		case errors.Is(err, model.ErrStoreUnavailable):
			writeGateError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole must run after Authenticate. Anonymous callers get 401, never 403.
func (g *AuthGate) RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeGateError(w, errNoToken)
				return
			}

			if !identity.Role.Satisfies(role) {
				slog.Info("role check failed", "user_id", identity.ID, "role", identity.Role, "required", role, "path", r.URL.Path)
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", "requires role "+string(role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *AuthGate) resolve(r *http.Request) (model.Identity, error) {
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		if errors.Is(err, errMalformedHeader) {
			g.metrics.TokenRejected("malformed_header")
		}
		return model.Identity{}, err
	}

	identity, err := g.auth.Authenticate(r.Context(), token)
	if err != nil {
		g.logRejection(r, err)
		return model.Identity{}, err
	}
	return identity, nil
}

func (g *AuthGate) logRejection(r *http.Request, err error) {
	reason := rejectionReason(err)
	if reason != "store_unavailable" {
		g.metrics.TokenRejected(reason)
	}

	switch reason {
	case "expired":
		slog.Debug("expired bearer token", "path", r.URL.Path)
	case "signature", "malformed":
		slog.Warn("invalid bearer token", "reason", reason, "path", r.URL.Path, "client_ip", clientIP(r))
	case "store_unavailable":
		slog.Error("credential store unavailable while authenticating", "path", r.URL.Path, "error", err)
	default:
		slog.Info("bearer token rejected", "reason", reason, "path", r.URL.Path)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, model.ErrTokenExpired):
		return "expired"
	case errors.Is(err, model.ErrTokenSignature):
		return "signature"
	case errors.Is(err, model.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "user_missing"
	}
}

// bearerToken accepts only "Bearer <token>", scheme case-insensitive.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errMalformedHeader
	}
	return token, nil
}

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

func writeGateError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrStoreUnavailable) {
		writeJSONError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "credential store unavailable, try again later", "")
		return
	}

	message := "authentication required"
	if errors.Is(err, model.ErrTokenExpired) {
		message = "token expired"
	} else if !errors.Is(err, errNoToken) {
		message = "invalid or unknown token"
	}

	w.Header().Set("WWW-Authenticate", `Bearer realm="foodies"`)
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", message, "")
}
