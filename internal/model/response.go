package model

import "time"

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type AuthResult struct {
	User      PublicUser `json:"user"`
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresAt time.Time  `json:"expires_at"`
}

type AuthStatus struct {
	IsAuthenticated bool        `json:"isAuthenticated"`
	User            *PublicUser `json:"user"`
}

type UserList struct {
	Users []PublicUser `json:"users"`
}
