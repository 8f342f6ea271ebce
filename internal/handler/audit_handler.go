package handler

import (
	"net/http"
	"strings"

	"foodies-api/internal/model"
	"foodies-api/internal/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, err := h.service.Query(r.Context(), model.AuditQuery{
		Type:   strings.TrimSpace(query.Get("type")),
		UserID: strings.TrimSpace(query.Get("user_id")),
		Limit:  parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"items": items})
}
