package handler

import (
	"net/http"

	"foodies-api/internal/service"
)

// SearchHandler proxies recipe searches to the upstream recipe API.
type SearchHandler struct {
	service *service.RecipeSearchService
}

func NewSearchHandler(service *service.RecipeSearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	data, err := h.service.Search(r.Context(), query.Get("q"), parseIntOrDefault(query.Get("number"), 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, data)
}
