package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"foodies-api/internal/model"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO auth_events (type, user_id, provider, ip, outcome, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Type, entry.UserID, entry.Provider, entry.IP, entry.Outcome, entry.Detail, occurredAt)
	if err != nil {
		return fmt.Errorf("log auth event: %w: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, error) {
	query.Limit = clampAuditLimit(query.Limit)

	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	argIdx := 1

	if eventType := strings.TrimSpace(query.Type); eventType != "" {
		where = append(where, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, eventType)
		argIdx++
	}
	if userID := strings.TrimSpace(query.UserID); userID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, userID)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, query.Limit)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, type, user_id, provider, ip, outcome, detail, occurred_at
		 FROM auth_events %s
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $%d`, whereClause, argIdx), args...)
	if err != nil {
		return nil, fmt.Errorf("query auth events: %w: %w", model.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e          model.AuditEntry
			occurredAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.UserID, &e.Provider, &e.IP, &e.Outcome, &e.Detail, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w: %w", model.ErrStoreUnavailable, err)
		}
		e.OccurredAt = occurredAt.UTC().Format(time.RFC3339Nano)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query auth events: %w: %w", model.ErrStoreUnavailable, err)
	}

	return entries, nil
}

// MemoryAuditRepository keeps the most recent auth events in a fixed-size ring.
type MemoryAuditRepository struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	next    int
	full    bool
	seq     int64
}

func NewMemoryAuditRepository(capacity int) *MemoryAuditRepository {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditRepository{entries: make([]model.AuditEntry, capacity)}
}

func (r *MemoryAuditRepository) Log(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	entry.ID = r.seq
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Query returns matching entries newest first.
func (r *MemoryAuditRepository) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, error) {
	limit := clampAuditLimit(query.Limit)
	eventType := strings.TrimSpace(query.Type)
	userID := strings.TrimSpace(query.UserID)

	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}

	out := make([]model.AuditEntry, 0, min(limit, size))
	for i := 1; i <= size && len(out) < limit; i++ {
		e := r.entries[(r.next-i+len(r.entries))%len(r.entries)]
		if eventType != "" && e.Type != eventType {
			continue
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func clampAuditLimit(limit int) int {
	if limit <= 0 {
		return defaultAuditLimit
	}
	if limit > maxAuditLimit {
		return maxAuditLimit
	}
	return limit
}
