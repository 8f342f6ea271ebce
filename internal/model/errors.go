package model

import (
	"errors"
	"fmt"
)

var (
	// Authentication
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthenticated)
	ErrTokenMalformed     = fmt.Errorf("token malformed: %w", ErrUnauthenticated)
	ErrTokenSignature     = fmt.Errorf("token signature invalid: %w", ErrUnauthenticated)
	ErrTokenExpired       = fmt.Errorf("token expired: %w", ErrUnauthenticated)

	// Authorization
	ErrForbidden      = errors.New("forbidden")
	ErrSelfDemotion   = fmt.Errorf("admins cannot remove their own admin role: %w", ErrForbidden)
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrNotImplemented = errors.New("not implemented")

	// Users
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// OAuth handshake
	ErrCSRFMismatch        = errors.New("oauth state mismatch")
	ErrSessionNotFound     = errors.New("handshake session not found")
	ErrUnknownProvider     = errors.New("unknown oauth provider")
	ErrProviderUnavailable = errors.New("oauth provider unavailable")
	ErrProviderRejected    = errors.New("oauth provider rejected the request")

	// Generic
	ErrInvalidInput = errors.New("invalid input")
)
