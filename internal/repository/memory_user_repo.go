package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"foodies-api/internal/model"
)

// MemoryUserRepository is the in-process CredentialStore used when no
// DATABASE_URL is configured and throughout the tests. Each call holds the
// mutex for its whole read-modify-write, which gives it the same per-identity
// atomicity the Postgres statements have.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]model.User
	now   func() time.Time
	// failWith, when set, makes every call fail; lets tests exercise the
	// store-unavailable paths.
	failWith error
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: map[string]model.User{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetFailure makes subsequent calls return err wrapped as ErrStoreUnavailable.
// A nil err restores normal behaviour.
func (r *MemoryUserRepository) SetFailure(err error) {
	r.mu.Lock()
	r.failWith = err
	r.mu.Unlock()
}

// Delete removes a record; it stands in for the out-of-band deletion the
// recipe-management layer performs.
func (r *MemoryUserRepository) Delete(id string) {
	r.mu.Lock()
	delete(r.users, id)
	r.mu.Unlock()
}

func (r *MemoryUserRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("find user by id"); err != nil {
		return model.User{}, err
	}

	u, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("find user by email"); err != nil {
		return model.User{}, err
	}

	var (
		found model.User
		ok    bool
	)
	for _, u := range r.users {
		if u.Email == nil || !strings.EqualFold(*u.Email, strings.TrimSpace(email)) {
			continue
		}
		if !ok || (u.Provider == model.ProviderLocal && found.Provider != model.ProviderLocal) {
			found, ok = u, true
		}
	}
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return cloneUser(found), nil
}

func (r *MemoryUserRepository) UpsertFederated(_ context.Context, profile model.FederatedProfile) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("upsert federated user"); err != nil {
		return model.User{}, err
	}

	now := r.now()
	id := profile.FederatedID()
	u, exists := r.users[id]
	if !exists {
		u = model.User{
			ID:        id,
			Role:      model.RoleUser,
			Provider:  profile.Provider,
			CreatedAt: now,
		}
	}

	u.Username = profile.Username
	u.DisplayName = profile.DisplayName
	u.AvatarURL = profile.AvatarURL
	if u.Email == nil {
		u.Email = model.StringPtr(profile.Email)
	}
	u.UpdatedAt = now

	r.users[id] = u
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) CreateLocal(_ context.Context, in NewLocalUser) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("create local user"); err != nil {
		return model.User{}, err
	}

	for _, existing := range r.users {
		if existing.Provider == model.ProviderLocal && existing.Email != nil && strings.EqualFold(*existing.Email, in.Email) {
			return model.User{}, model.ErrEmailTaken
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.User{}, fmt.Errorf("generate user id: %w", err)
	}

	role := in.Role
	if role == "" {
		role = model.RoleUser
	}

	now := r.now()
	hash := in.PasswordHash
	u := model.User{
		ID:           id.String(),
		Username:     in.Username,
		DisplayName:  in.Username,
		Email:        model.StringPtr(in.Email),
		PasswordHash: &hash,
		Role:         role,
		Provider:     model.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[u.ID] = u
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) SetRole(_ context.Context, id string, role model.Role) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("set user role"); err != nil {
		return model.User{}, err
	}

	u, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = r.now()
	r.users[id] = u
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("list users"); err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, cloneUser(u))
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *MemoryUserRepository) failure(op string) error {
	if r.failWith == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, r.failWith)
}

func cloneUser(u model.User) model.User {
	if u.Email != nil {
		email := *u.Email
		u.Email = &email
	}
	if u.PasswordHash != nil {
		hash := *u.PasswordHash
		u.PasswordHash = &hash
	}
	return u
}
