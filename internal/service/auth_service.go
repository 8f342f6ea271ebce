package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"foodies-api/internal/event"
	"foodies-api/internal/metrics"
	"foodies-api/internal/model"
	"foodies-api/internal/repository"
	"foodies-api/pkg/apierror"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

// AuthService owns local registration and login, bearer-token resolution and
// role management. It is constructed once at startup and shared by handlers.
type AuthService struct {
	users     UserStore
	passwords *PasswordAuthenticator
	tokens    *TokenService
	bus       event.Bus
	metrics   *metrics.Metrics
	admins    map[string]struct{}
}

func NewAuthService(users UserStore, passwords *PasswordAuthenticator, tokens *TokenService, bus event.Bus, m *metrics.Metrics, adminEmails []string) *AuthService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		admins[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}

	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		bus:       bus,
		metrics:   m,
		admins:    admins,
	}
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.PublicUser, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := validateRegistration(username, email, req.Password); err != nil {
		s.metrics.AuthOutcome("register", "invalid")
		return model.PublicUser{}, err
	}

	hash, err := s.passwords.Hash(ctx, req.Password)
	if err != nil {
		return model.PublicUser{}, err
	}

	role := model.RoleUser
	if _, ok := s.admins[email]; ok {
		role = model.RoleAdmin
	}

	user, err := s.users.CreateLocal(ctx, repository.NewLocalUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		s.metrics.AuthOutcome("register", "failure")
		return model.PublicUser{}, fmt.Errorf("register %s: %w", username, err)
	}

	s.metrics.AuthOutcome("register", "success")
	s.publish(ctx, event.Event{Type: event.TypeRegister, UserID: user.ID, Provider: string(model.ProviderLocal), Outcome: event.OutcomeSuccess})
	return user.Public(), nil
}

// Login answers ErrInvalidCredentials for both an unknown email and a wrong
// password, and spends one bcrypt comparison either way.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return model.AuthResult{}, apierror.New("BAD_REQUEST", "email and password are required", "", http.StatusBadRequest)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.passwords.VerifyDummy(ctx, req.Password)
		s.loginFailed(ctx, "", "unknown email")
		return model.AuthResult{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("login lookup: %w", err)
	}

	if !s.passwords.Verify(ctx, user, req.Password) {
		s.loginFailed(ctx, user.ID, "password mismatch")
		return model.AuthResult{}, model.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.metrics.AuthOutcome("login", "success")
	s.publish(ctx, event.Event{Type: event.TypeLogin, UserID: user.ID, Provider: string(user.Provider), Outcome: event.OutcomeSuccess})

	return model.AuthResult{
		User:      user.Public(),
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	}, nil
}

// Authenticate resolves a bearer token to the caller's identity. A token whose
// subject no longer exists is Unauthenticated; store failures pass through.
func (s *AuthService) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return model.Identity{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Identity{}, fmt.Errorf("token subject no longer exists: %w", model.ErrUnauthenticated)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("load token subject: %w", err)
	}

	return user.Public(), nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.PublicUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]model.PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// SetRole changes a user's role. An admin removing their own admin role is
// rejected before the store is touched.
func (s *AuthService) SetRole(ctx context.Context, actor model.Identity, targetID string, rawRole string) (model.PublicUser, error) {
	if !actor.Role.Satisfies(model.RoleAdmin) {
		return model.PublicUser{}, model.ErrForbidden
	}

	role, ok := model.ParseRole(rawRole)
	if !ok {
		return model.PublicUser{}, apierror.New("BAD_REQUEST", "role must be one of: user, admin", rawRole, http.StatusBadRequest)
	}

	targetID = strings.TrimSpace(targetID)
	if actor.ID == targetID && role != model.RoleAdmin {
		return model.PublicUser{}, model.ErrSelfDemotion
	}

	user, err := s.users.SetRole(ctx, targetID, role)
	if err != nil {
		return model.PublicUser{}, err
	}

	s.publish(ctx, event.Event{
		Type:    event.TypeRoleChanged,
		UserID:  user.ID,
		Outcome: event.OutcomeSuccess,
		Detail:  fmt.Sprintf("role=%s by=%s", role, actor.ID),
	})
	return user.Public(), nil
}

func (s *AuthService) loginFailed(ctx context.Context, userID string, detail string) {
	s.metrics.AuthOutcome("login", "failure")
	s.publish(ctx, event.Event{Type: event.TypeLoginFailed, UserID: userID, Provider: string(model.ProviderLocal), Outcome: event.OutcomeFailure, Detail: detail})
}

func (s *AuthService) publish(ctx context.Context, e event.Event) {
	if s.bus == nil {
		return
	}
	if e.IP == "" {
		e.IP = event.ClientIPFromContext(ctx)
	}
	s.bus.Publish(e)
}

func validateRegistration(username, email, password string) error {
	if username == "" || email == "" || password == "" {
		return apierror.New("BAD_REQUEST", "username, email and password are required", "", http.StatusBadRequest)
	}

	if n := utf8.RuneCountInString(username); n < minUsernameLength || n > maxUsernameLength {
		return apierror.New("BAD_REQUEST", fmt.Sprintf("username must be %d-%d characters", minUsernameLength, maxUsernameLength), "username", http.StatusBadRequest)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apierror.New("BAD_REQUEST", "email is not a valid address", "email", http.StatusBadRequest)
	}

	if utf8.RuneCountInString(password) < minPasswordLength {
		return apierror.New("BAD_REQUEST", fmt.Sprintf("password must be at least %d characters", minPasswordLength), "password", http.StatusBadRequest)
	}
	if len(password) > maxPasswordBytes {
		return apierror.New("BAD_REQUEST", fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes), "password", http.StatusBadRequest)
	}

	return nil
}
