package event

import (
	"context"
	"time"
)

type Type string

const (
	TypeRegister    Type = "register"
	TypeLogin       Type = "login"
	TypeLoginFailed Type = "login_failed"
	TypeOAuthLogin  Type = "oauth_login"
	TypeOAuthFailed Type = "oauth_failed"
	TypeRoleChanged Type = "role_changed"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

type contextKey struct{}

// WithClientIP records the caller address so events published further down
// the call chain can carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}
