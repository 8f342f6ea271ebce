package service

import (
	"context"
	"fmt"
	"strings"

	"foodies-api/internal/model"
	"foodies-api/internal/repository"
)

// UserStore is the CredentialStore as the services see it.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	UpsertFederated(ctx context.Context, profile model.FederatedProfile) (model.User, error)
	CreateLocal(ctx context.Context, in repository.NewLocalUser) (model.User, error)
	SetRole(ctx context.Context, id string, role model.Role) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
}

// IdentityReconciler maps a federated profile onto a stable User record. It
// holds no locks; idempotency comes from the store's single-statement upsert.
type IdentityReconciler struct {
	users UserStore
}

func NewIdentityReconciler(users UserStore) *IdentityReconciler {
	return &IdentityReconciler{users: users}
}

func (r *IdentityReconciler) Reconcile(ctx context.Context, profile model.FederatedProfile) (model.User, error) {
	switch profile.Provider {
	case model.ProviderGitHub, model.ProviderGoogle:
	default:
		return model.User{}, fmt.Errorf("reconcile provider %q: %w", profile.Provider, model.ErrUnknownProvider)
	}

	profile = normalizeProfile(profile)
	if profile.Subject == "" {
		return model.User{}, fmt.Errorf("reconcile: empty subject: %w", model.ErrInvalidInput)
	}

	user, err := r.users.UpsertFederated(ctx, profile)
	if err != nil {
		return model.User{}, fmt.Errorf("reconcile %s: %w", profile.FederatedID(), err)
	}
	return user, nil
}

func normalizeProfile(p model.FederatedProfile) model.FederatedProfile {
	p.Subject = strings.TrimSpace(p.Subject)
	p.Username = strings.TrimSpace(p.Username)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.AvatarURL = strings.TrimSpace(p.AvatarURL)

	if p.Username == "" {
		if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
			p.Username = local
		} else {
			p.Username = string(p.Provider) + "-" + p.Subject
		}
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}
	return p
}
