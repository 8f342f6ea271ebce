package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"foodies-api/internal/event"
	"foodies-api/internal/model"
	"foodies-api/pkg/apierror"
)

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, error)
}

var auditEventTypes = map[string]struct{}{
	string(event.TypeRegister):    {},
	string(event.TypeLogin):       {},
	string(event.TypeLoginFailed): {},
	string(event.TypeOAuthLogin):  {},
	string(event.TypeOAuthFailed): {},
	string(event.TypeRoleChanged): {},
}

// AuditService persists auth events taken off the bus and serves them back to
// admins.
type AuditService struct {
	store        AuditStore
	writeTimeout time.Duration
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, writeTimeout: 5 * time.Second}
}

// Run consumes events until the channel is closed or ctx is done. A failed
// write is logged and the event dropped; auth requests never wait on auditing.
func (s *AuditService) Run(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.record(ctx, e)
		}
	}
}

func (s *AuditService) record(ctx context.Context, e event.Event) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	entry := model.AuditEntry{
		Type:       string(e.Type),
		UserID:     e.UserID,
		Provider:   e.Provider,
		IP:         e.IP,
		Outcome:    e.Outcome,
		Detail:     e.Detail,
		OccurredAt: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	if err := s.store.Log(writeCtx, entry); err != nil {
		slog.Error("persist auth event", "type", e.Type, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, error) {
	query.Type = strings.ToLower(strings.TrimSpace(query.Type))
	if query.Type != "" {
		if _, ok := auditEventTypes[query.Type]; !ok {
			return nil, apierror.New("BAD_REQUEST", "unknown event type", query.Type, http.StatusBadRequest)
		}
	}
	return s.store.Query(ctx, query)
}
