package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"foodies-api/internal/model"
)

// DBTX is the subset of database/sql the repositories need. *sql.DB and
// *sql.Tx both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const pgUniqueViolation = "23505"

const userColumns = `id, username, display_name, email, password_hash, avatar_url, role, provider, created_at, updated_at`

type NewLocalUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         model.Role
}

type UserRepository struct {
	db  DBTX
	now func() time.Time
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		return model.User{}, storeError("find user by id", err)
	}
	return u, nil
}

// FindByEmail prefers the locally registered account when a federated record
// shares the address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(email) = lower($1)
		 ORDER BY (provider = 'local') DESC, created_at ASC
		 LIMIT 1`, strings.TrimSpace(email))

	u, err := scanUser(row)
	if err != nil {
		return model.User{}, storeError("find user by email", err)
	}
	return u, nil
}

// UpsertFederated inserts or refreshes a federated identity in one statement so
// concurrent first callbacks for the same subject converge on a single row.
// id, role and an already-known email are never overwritten.
func (r *UserRepository) UpsertFederated(ctx context.Context, profile model.FederatedProfile) (model.User, error) {
	now := r.now()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, username, display_name, email, avatar_url, role, provider, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'user', $6, $7, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     username     = EXCLUDED.username,
		     display_name = EXCLUDED.display_name,
		     email        = COALESCE(users.email, EXCLUDED.email),
		     avatar_url   = EXCLUDED.avatar_url,
		     updated_at   = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		profile.FederatedID(), profile.Username, profile.DisplayName,
		nullString(profile.Email), profile.AvatarURL, string(profile.Provider), now)

	u, err := scanUser(row)
	if err != nil {
		return model.User{}, storeError("upsert federated user", err)
	}
	return u, nil
}

func (r *UserRepository) CreateLocal(ctx context.Context, in NewLocalUser) (model.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.User{}, fmt.Errorf("generate user id: %w", err)
	}

	role := in.Role
	if role == "" {
		role = model.RoleUser
	}

	now := r.now()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, username, display_name, email, password_hash, avatar_url, role, provider, created_at, updated_at)
		 VALUES ($1, $2, $2, $3, $4, '', $5, 'local', $6, $6)
		 RETURNING `+userColumns,
		id.String(), in.Username, in.Email, in.PasswordHash, string(role), now)

	u, err := scanUser(row)
	if err != nil {
		return model.User{}, storeError("create local user", err)
	}
	return u, nil
}

func (r *UserRepository) SetRole(ctx context.Context, id string, role model.Role) (model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET role = $2, updated_at = $3 WHERE id = $1
		 RETURNING `+userColumns,
		id, string(role), r.now())

	u, err := scanUser(row)
	if err != nil {
		return model.User{}, storeError("set user role", err)
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, storeError("list users", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeError("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u            model.User
		email        sql.NullString
		passwordHash sql.NullString
		role         string
		provider     string
	)

	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &email, &passwordHash,
		&u.AvatarURL, &role, &provider, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}

	if email.Valid {
		u.Email = &email.String
	}
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	u.Role = model.Role(role)
	u.Provider = model.Provider(provider)
	return u, nil
}

// storeError keeps not-found and uniqueness outcomes distinct and classifies
// everything else as the store being unavailable.
func storeError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrUserNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return model.ErrEmailTaken
	}

	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
