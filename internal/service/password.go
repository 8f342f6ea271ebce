package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"foodies-api/internal/metrics"
	"foodies-api/internal/model"
)

const DefaultBcryptCost = 10

// dummyPassword is compared against when the email is unknown so that the
// response time does not reveal whether an account exists.
const dummyPassword = "foodies-timing-equaliser"

// PasswordAuthenticator hashes and verifies local passwords with bcrypt. At
// most `concurrency` hash operations run at once; callers wait for a slot
// with their request context.
type PasswordAuthenticator struct {
	cost      int
	sem       *semaphore.Weighted
	dummyHash []byte
	metrics   *metrics.Metrics
}

func NewPasswordAuthenticator(cost int, concurrency int, m *metrics.Metrics) (*PasswordAuthenticator, error) {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	cost = max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))

	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &PasswordAuthenticator{
		cost:      cost,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		dummyHash: dummy,
		metrics:   m,
	}, nil
}

func (p *PasswordAuthenticator) Cost() int {
	return p.cost
}

func (p *PasswordAuthenticator) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("password is empty: %w", model.ErrInvalidInput)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hash slot: %w", err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	p.metrics.ObservePasswordHash(time.Since(start))
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("password exceeds 72 bytes: %w", model.ErrInvalidInput)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// Verify reports whether plaintext matches the user's stored hash. It fails
// closed: a missing or malformed hash, a mismatch, or a cancelled context all
// yield false.
func (p *PasswordAuthenticator) Verify(ctx context.Context, user model.User, plaintext string) bool {
	if user.PasswordHash == nil || *user.PasswordHash == "" {
		return false
	}
	return p.compare(ctx, []byte(*user.PasswordHash), plaintext)
}

// VerifyDummy spends the same work as Verify and always reports false.
func (p *PasswordAuthenticator) VerifyDummy(ctx context.Context, plaintext string) bool {
	_ = p.compare(ctx, p.dummyHash, plaintext)
	return false
}

func (p *PasswordAuthenticator) compare(ctx context.Context, hash []byte, plaintext string) bool {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer p.sem.Release(1)

	start := time.Now()
	err := bcrypt.CompareHashAndPassword(hash, []byte(plaintext))
	p.metrics.ObservePasswordHash(time.Since(start))
	return err == nil
}
