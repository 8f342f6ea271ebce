package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"foodies-api/internal/model"
)

const defaultMemoryCapacity = 10000

// MemoryStore keeps sessions in a size- and TTL-bounded LRU. Entries the LRU
// has not yet purged are still checked against ExpiresAt on Take. When the
// store is full the oldest pending handshake is evicted and its callback
// fails as an expired session; evictions are counted and logged.
type MemoryStore struct {
	cache    *lru.LRU[string, Session]
	capacity int
	now      func() time.Time
	evicted  atomic.Int64
	evictLog *rate.Sometimes
}

func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{
		cache:    lru.NewLRU[string, Session](capacity, nil, ttl),
		capacity: capacity,
		now:      time.Now,
		evictLog: &rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// WithClock replaces the clock used for expiry checks.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Save(_ context.Context, sess Session) error {
	if s.cache.Add(sess.ID, sess) {
		total := s.evicted.Add(1)
		s.evictLog.Do(func() {
			slog.Warn("handshake store full, evicting oldest session", "capacity", s.capacity, "evicted_total", total)
		})
	}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, id string) (Session, error) {
	sess, ok := s.cache.Peek(id)
	if !ok {
		return Session{}, model.ErrSessionNotFound
	}
	// Only the caller whose Remove actually deleted the entry owns it.
	if !s.cache.Remove(id) {
		return Session{}, model.ErrSessionNotFound
	}
	if !s.now().Before(sess.ExpiresAt) {
		return Session{}, model.ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Evicted reports how many unexpired sessions were pushed out by capacity.
func (s *MemoryStore) Evicted() int64 {
	return s.evicted.Load()
}
