package handler

import (
	"net/http"

	"foodies-api/internal/middleware"
	"foodies-api/internal/model"
	"foodies-api/internal/service"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// Register creates a local account. No token is issued; the client logs in
// separately.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := model.AuthStatus{}
	if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
		status.IsAuthenticated = true
		status.User = &identity
	}

	writeSuccess(w, http.StatusOK, status)
}

// Logout is advisory: bearer tokens are stateless, so the client discards its
// copy and the token stays valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthenticated)
		return
	}

	writeSuccess(w, http.StatusOK, identity)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	writeError(w, model.ErrNotImplemented)
}
