package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"foodies-api/internal/model"
)

type fakeAuthenticator struct {
	identities map[string]model.Identity
	errs       map[string]error
}

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (model.Identity, error) {
	if err, ok := f.errs[token]; ok {
		return model.Identity{}, err
	}
	if identity, ok := f.identities[token]; ok {
		return identity, nil
	}
	return model.Identity{}, model.ErrTokenMalformed
}

func newTestGate() *AuthGate {
	return NewAuthGate(fakeAuthenticator{
		identities: map[string]model.Identity{
			"user-token":  {ID: "u-1", Username: "alice", Role: model.RoleUser},
			"admin-token": {ID: "u-2", Username: "root", Role: model.RoleAdmin},
		},
		errs: map[string]error{
			"expired-token": model.ErrTokenExpired,
			"forged-token":  model.ErrTokenSignature,
			"orphan-token":  fmt.Errorf("user u-9 no longer exists: %w", model.ErrUnauthenticated),
			"outage-token":  fmt.Errorf("find user: %w", model.ErrStoreUnavailable),
		},
	}, nil)
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(identity)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	handler := newTestGate().Authenticate(identityEcho())

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "no header", header: "", status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "scheme without token", header: "Bearer   ", status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "garbage token", header: "Bearer nonsense", status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "bad signature", header: "Bearer forged-token", status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "expired", header: "Bearer expired-token", status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "user deleted", header: "Bearer orphan-token", status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "store down", header: "Bearer outage-token", status: http.StatusServiceUnavailable, code: "STORE_UNAVAILABLE"},
		{name: "valid", header: "Bearer user-token", status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer user-token", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				require.Equal(t, tt.code, decodeErrorCode(t, rec))
				return
			}

			var fields map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
			require.Equal(t, "u-1", fields["id"])
			require.NotContains(t, fields, "password_hash")
			require.NotContains(t, fields, "passwordHash")
		})
	}
}

func TestAuthenticateSetsChallengeHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestGate().Authenticate(identityEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestOptional(t *testing.T) {
	t.Parallel()

	handler := newTestGate().Optional(identityEcho())

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "anonymous", header: "", status: http.StatusNoContent},
		{name: "invalid token is anonymous", header: "Bearer forged-token", status: http.StatusNoContent},
		{name: "expired token is anonymous", header: "Bearer expired-token", status: http.StatusNoContent},
		{name: "valid token", header: "Bearer admin-token", status: http.StatusOK},
		{name: "store down", header: "Bearer outage-token", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	gate := newTestGate()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	adminOnly := gate.Authenticate(gate.RequireRole(model.RoleAdmin)(ok))
	usersOnly := gate.Authenticate(gate.RequireRole(model.RoleUser)(ok))

	serve := func(h http.Handler, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(adminOnly, "user-token")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", decodeErrorCode(t, rec))

	require.Equal(t, http.StatusOK, serve(adminOnly, "admin-token").Code)
	require.Equal(t, http.StatusOK, serve(usersOnly, "admin-token").Code)
	require.Equal(t, http.StatusOK, serve(usersOnly, "user-token").Code)
	require.Equal(t, http.StatusUnauthorized, serve(adminOnly, "").Code)

	// Without a preceding Authenticate the role check still refuses with 401.
	rec = httptest.NewRecorder()
	gate.RequireRole(model.RoleAdmin)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	token, err := bearerToken("  BEARER abc.def.ghi ")
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", token)

	_, err = bearerToken("Token abc")
	require.ErrorIs(t, err, model.ErrUnauthenticated)

	_, err = bearerToken("Bearerabc")
	require.ErrorIs(t, err, model.ErrUnauthenticated)
}
