// Package session holds the short-lived server-side state that correlates an
// OAuth redirect with its callback. It is never used to authenticate API calls.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"foodies-api/internal/model"
)

type Session struct {
	ID        string         `json:"id"`
	Provider  model.Provider `json:"provider"`
	Nonce     string         `json:"nonce"`
	ReturnTo  string         `json:"return_to,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Store persists handshake sessions. Take is get-and-delete: a session can be
// consumed by at most one callback.
type Store interface {
	Save(ctx context.Context, s Session) error
	Take(ctx context.Context, id string) (Session, error)
}

// New creates a session with a fresh id and a 32-byte random nonce.
func New(provider model.Provider, returnTo string, now time.Time, ttl time.Duration) (Session, error) {
	nonce, err := randomNonce()
	if err != nil {
		return Session{}, err
	}

	return Session{
		ID:        uuid.NewString(),
		Provider:  provider,
		Nonce:     nonce,
		ReturnTo:  returnTo,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func randomNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
