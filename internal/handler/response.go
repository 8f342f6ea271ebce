package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"foodies-api/internal/model"
	"foodies-api/pkg/apierror"
)

const maxBodyBytes = 1 << 20

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order, so specific kinds precede the generic
// kinds they wrap.
var errorMappings = []errorMapping{
	{model.ErrStoreUnavailable, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Credential store unavailable, try again later"},
	{model.ErrSelfDemotion, http.StatusForbidden, "SELF_DEMOTION", "Admins cannot remove their own admin role"},
	{model.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Access denied"},
	{model.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"},
	{model.ErrTokenExpired, http.StatusUnauthorized, "UNAUTHENTICATED", "Token expired"},
	{model.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required"},
	{model.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests"},
	{model.ErrCSRFMismatch, http.StatusBadRequest, "CSRF_MISMATCH", "OAuth state did not match"},
	{model.ErrSessionNotFound, http.StatusBadRequest, "CSRF_MISMATCH", "OAuth handshake expired or already used"},
	{model.ErrProviderRejected, http.StatusBadGateway, "PROVIDER_REJECTED", "OAuth provider rejected the request"},
	{model.ErrProviderUnavailable, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Upstream provider unavailable"},
	{model.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN", "Email already registered"},
	{model.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND", "User not found"},
	{model.ErrUnknownProvider, http.StatusNotFound, "NOT_FOUND", "Unknown OAuth provider"},
	{model.ErrNotImplemented, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Not implemented"},
	{model.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST", "Invalid input"},
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError is the only place an error kind becomes a status and code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if m, ok := lookupMapping(err); ok {
		status = m.status
		body.Code = m.code
		body.Message = m.message
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func lookupMapping(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierror.Wrap(err, "PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge)
		}
		return apierror.Wrap(err, "BAD_REQUEST", "invalid JSON body", http.StatusBadRequest)
	}
	return nil
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
