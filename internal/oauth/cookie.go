package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"foodies-api/internal/model"
)

const cookieIssuer = "foodies-api/oauth"

type handshakeClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// cookieCodec signs the session reference stored in the handshake cookie.
// It uses SESSION_SECRET, never the bearer-token secret.
type cookieCodec struct {
	secret []byte
	now    func() time.Time
}

func (c cookieCodec) encode(sessionID string, provider model.Provider, expiresAt time.Time) (string, error) {
	claims := handshakeClaims{
		Provider: string(provider),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    cookieIssuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign handshake cookie: %w", err)
	}
	return signed, nil
}

func (c cookieCodec) decode(value string) (handshakeClaims, error) {
	if value == "" {
		return handshakeClaims{}, fmt.Errorf("no handshake cookie: %w", model.ErrSessionNotFound)
	}

	var claims handshakeClaims
	_, err := jwt.ParseWithClaims(value, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return handshakeClaims{}, fmt.Errorf("handshake cookie expired: %w", model.ErrSessionNotFound)
	}
	if err != nil || claims.ID == "" {
		return handshakeClaims{}, fmt.Errorf("handshake cookie rejected: %w", model.ErrCSRFMismatch)
	}
	return claims, nil
}
