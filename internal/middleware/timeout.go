package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"foodies-api/internal/model"
)

// Timeout bounds handler run time. Provider calls carry their own shorter
// deadline, so this only fires for a stuck store or a slow client body.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
