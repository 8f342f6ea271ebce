package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"foodies-api/internal/model"
)

func newTestPasswords(t *testing.T) *PasswordAuthenticator {
	t.Helper()
	p, err := NewPasswordAuthenticator(bcrypt.MinCost, 2, nil)
	require.NoError(t, err)
	return p
}

func userWithHash(hash string) model.User {
	return model.User{ID: "u-1", PasswordHash: &hash}
}

func TestPasswordVerifyMatchesOnlyTheRegisteredPassword(t *testing.T) {
	t.Parallel()

	p := newTestPasswords(t)
	ctx := context.Background()

	pairs := []string{"Password1!", "correct horse battery staple", "ünïcødé-pässwörd", strings.Repeat("x", 72)}
	for _, pw := range pairs {
		hash, err := p.Hash(ctx, pw)
		require.NoError(t, err)
		user := userWithHash(hash)

		require.True(t, p.Verify(ctx, user, pw))
		for _, other := range pairs {
			if other != pw {
				require.False(t, p.Verify(ctx, user, other))
			}
		}
		require.False(t, p.Verify(ctx, user, ""))
		require.False(t, p.Verify(ctx, user, pw+" "))
	}
}

func TestPasswordVerifyFailsClosed(t *testing.T) {
	t.Parallel()

	p := newTestPasswords(t)
	ctx := context.Background()

	t.Run("no hash", func(t *testing.T) {
		require.False(t, p.Verify(ctx, model.User{ID: "github:1"}, "anything"))
		require.False(t, p.Verify(ctx, model.User{ID: "github:1"}, ""))
	})

	t.Run("empty hash", func(t *testing.T) {
		require.False(t, p.Verify(ctx, userWithHash(""), "anything"))
	})

	t.Run("malformed hash", func(t *testing.T) {
		require.False(t, p.Verify(ctx, userWithHash("not-a-bcrypt-hash"), "anything"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		hash, err := p.Hash(ctx, "Password1!")
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		require.NoError(t, p.sem.Acquire(ctx, 2))
		defer p.sem.Release(2)

		require.False(t, p.Verify(cancelled, userWithHash(hash), "Password1!"))
	})
}

func TestPasswordHash(t *testing.T) {
	t.Parallel()

	p := newTestPasswords(t)
	ctx := context.Background()

	a, err := p.Hash(ctx, "Password1!")
	require.NoError(t, err)
	b, err := p.Hash(ctx, "Password1!")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "hashes must be salted")
	require.NotContains(t, a, "Password1!")

	_, err = p.Hash(ctx, "")
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = p.Hash(ctx, strings.Repeat("x", 73))
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestPasswordHashWaitsForSlot(t *testing.T) {
	t.Parallel()

	p := newTestPasswords(t)
	require.NoError(t, p.sem.Acquire(context.Background(), 2))
	defer p.sem.Release(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Hash(ctx, "Password1!")
	require.ErrorIs(t, err, context.Canceled)
}

func TestPasswordCostClamped(t *testing.T) {
	t.Parallel()

	p, err := NewPasswordAuthenticator(1, 1, nil)
	require.NoError(t, err)
	require.Equal(t, bcrypt.MinCost, p.Cost())

	p, err = NewPasswordAuthenticator(0, 1, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultBcryptCost, p.Cost())
}

func TestVerifyDummyAlwaysFalse(t *testing.T) {
	t.Parallel()

	p := newTestPasswords(t)
	require.False(t, p.VerifyDummy(context.Background(), dummyPassword))
	require.False(t, p.VerifyDummy(context.Background(), "Password1!"))
}
