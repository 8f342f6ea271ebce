package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Satisfies reports whether r grants at least the privileges of required.
func (r Role) Satisfies(required Role) bool {
	if required == RoleUser {
		return r == RoleUser || r == RoleAdmin
	}
	return r == required
}

type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
)

// User is the canonical identity record. PasswordHash is nil for accounts that
// only ever signed in through an OAuth provider.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	Email        *string
	PasswordHash *string
	AvatarURL    string
	Role         Role
	Provider     Provider
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public strips credential material. It is the only shape a User leaves the
// service layer in.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		Provider:    u.Provider,
		CreatedAt:   u.CreatedAt,
	}
}

type PublicUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       *string   `json:"email"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        Role      `json:"role"`
	Provider    Provider  `json:"provider"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identity is the authenticated caller attached to a request context.
type Identity = PublicUser

// FederatedProfile is what an OAuth provider tells us about a user.
type FederatedProfile struct {
	Provider    Provider
	Subject     string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
}

// FederatedID is the provider-qualified subject used as User.ID.
func (p FederatedProfile) FederatedID() string {
	return string(p.Provider) + ":" + p.Subject
}

func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
