package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"foodies-api/internal/model"
)

var userRowColumns = []string{"id", "username", "display_name", "email", "password_hash", "avatar_url", "role", "provider", "created_at", "updated_at"}

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewUserRepository(db)
	repo.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return repo, mock
}

func TestUserRepositoryFindByID(t *testing.T) {
	t.Parallel()

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WithArgs("u-1").WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "alice", "Alice", "alice@example.com", "$2a$10$hash", "", "admin", "local", created, created))

		u, err := repo.FindByID(context.Background(), "u-1")
		require.NoError(t, err)
		require.Equal(t, "alice", u.Username)
		require.Equal(t, model.RoleAdmin, u.Role)
		require.Equal(t, model.ProviderLocal, u.Provider)
		require.NotNil(t, u.Email)
		require.Equal(t, "alice@example.com", *u.Email)
		require.NotNil(t, u.PasswordHash)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null email and hash", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WithArgs("github:42").WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("github:42", "octo", "Octo Cat", nil, nil, "https://avatars/1", "user", "github", created, created))

		u, err := repo.FindByID(context.Background(), "github:42")
		require.NoError(t, err)
		require.Nil(t, u.Email)
		require.Nil(t, u.PasswordHash)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByID(context.Background(), "ghost")
		require.ErrorIs(t, err, model.ErrUserNotFound)
		require.NotErrorIs(t, err, model.ErrStoreUnavailable)
	})

	t.Run("driver failure", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WithArgs("u-1").WillReturnError(errors.New("connection refused"))

		_, err := repo.FindByID(context.Background(), "u-1")
		require.ErrorIs(t, err, model.ErrStoreUnavailable)
		require.ErrorContains(t, err, "connection refused")
	})
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	t.Parallel()

	repo, mock := newUserRepoWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)\s+ORDER BY \(provider = 'local'\) DESC`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "alice", "alice", "alice@example.com", "$2a$10$hash", "", "user", "local", created, created))

	u, err := repo.FindByEmail(context.Background(), "  alice@example.com ")
	require.NoError(t, err)
	require.Equal(t, "u-1", u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpsertFederated(t *testing.T) {
	t.Parallel()

	q := `(?s)^INSERT\s+INTO\s+users.*ON\s+CONFLICT\s+\(id\)\s+DO\s+UPDATE\s+SET.*email\s+=\s+COALESCE\(users\.email,\s*EXCLUDED\.email\).*RETURNING`
	profile := model.FederatedProfile{
		Provider:    model.ProviderGitHub,
		Subject:     "gh-42",
		Username:    "octo",
		DisplayName: "Octo Cat",
		AvatarURL:   "https://avatars/42",
	}

	t.Run("returns the stored row", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)
		now := repo.now()

		mock.ExpectQuery(q).
			WithArgs("github:gh-42", "octo", "Octo Cat", nil, "https://avatars/42", "github", now).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow("github:gh-42", "octo", "Octo Cat", nil, nil, "https://avatars/42", "user", "github", now, now))

		u, err := repo.UpsertFederated(context.Background(), profile)
		require.NoError(t, err)
		require.Equal(t, "github:gh-42", u.ID)
		require.Equal(t, model.RoleUser, u.Role)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is store unavailable", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WillReturnError(errors.New("db down"))

		_, err := repo.UpsertFederated(context.Background(), profile)
		require.ErrorIs(t, err, model.ErrStoreUnavailable)
	})
}

func TestUserRepositoryCreateLocal(t *testing.T) {
	t.Parallel()

	q := `(?s)^INSERT\s+INTO\s+users\s+\(id,\s*username,\s*display_name,\s*email,\s*password_hash.*'local'.*RETURNING`
	in := NewLocalUser{Username: "alice", Email: "alice@example.com", PasswordHash: "$2a$10$hash"}

	t.Run("success defaults to user role", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)
		now := repo.now()

		mock.ExpectQuery(q).
			WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", "$2a$10$hash", "user", now).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow("0190a5c4-0000-7000-8000-000000000001", "alice", "alice", "alice@example.com", "$2a$10$hash", "", "user", "local", now, now))

		u, err := repo.CreateLocal(context.Background(), in)
		require.NoError(t, err)
		require.Equal(t, model.ProviderLocal, u.Provider)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_local_email_unique_idx"})

		_, err := repo.CreateLocal(context.Background(), in)
		require.ErrorIs(t, err, model.ErrEmailTaken)
	})

	t.Run("other driver failure", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WillReturnError(&pgconn.PgError{Code: "57P01"})

		_, err := repo.CreateLocal(context.Background(), in)
		require.ErrorIs(t, err, model.ErrStoreUnavailable)
		require.NotErrorIs(t, err, model.ErrEmailTaken)
	})
}

func TestUserRepositorySetRole(t *testing.T) {
	t.Parallel()

	q := `(?s)^UPDATE\s+users\s+SET\s+role\s*=\s*\$2.*WHERE\s+id\s*=\s*\$1`

	t.Run("updated", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)
		now := repo.now()

		mock.ExpectQuery(q).WithArgs("u-2", "admin", now).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow("u-2", "bob", "bob", "bob@example.com", "$2a$10$hash", "", "admin", "local", now, now))

		u, err := repo.SetRole(context.Background(), "u-2", model.RoleAdmin)
		require.NoError(t, err)
		require.Equal(t, model.RoleAdmin, u.Role)
	})

	t.Run("missing user", func(t *testing.T) {
		t.Parallel()
		repo, mock := newUserRepoWithMock(t)

		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

		_, err := repo.SetRole(context.Background(), "ghost", model.RoleAdmin)
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})
}

func TestUserRepositoryList(t *testing.T) {
	t.Parallel()

	repo, mock := newUserRepoWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+ORDER\s+BY\s+created_at`).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "alice", "alice", "alice@example.com", "h", "", "admin", "local", created, created).
			AddRow("github:7", "octo", "Octo", nil, nil, "", "user", "github", created, created))

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, model.ProviderGitHub, users[1].Provider)
}
