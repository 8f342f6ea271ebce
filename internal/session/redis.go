package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"foodies-api/internal/model"
)

const redisKeyPrefix = "oauth:session:"

type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) Save(ctx context.Context, sess Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("save session: already expired")
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+sess.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}

// Take uses GETDEL so two concurrent callbacks cannot both consume a session.
func (s *RedisStore) Take(ctx context.Context, id string) (Session, error) {
	raw, err := s.client.GetDel(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("take session: %w: %w", model.ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", model.ErrSessionNotFound)
	}
	if !s.now().Before(sess.ExpiresAt) {
		return Session{}, model.ErrSessionNotFound
	}
	return sess, nil
}
