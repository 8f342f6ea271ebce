package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodies-api/internal/oauth"
)

type OAuthHandler struct {
	bridge *oauth.Bridge
}

func NewOAuthHandler(bridge *oauth.Bridge) *OAuthHandler {
	return &OAuthHandler{bridge: bridge}
}

// Providers lists the enabled providers so the front end can render buttons.
func (h *OAuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"providers": h.bridge.Providers().Names()})
}

func (h *OAuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	authURL, cookie, err := h.bridge.Begin(r.Context(), chi.URLParam(r, "provider"), r.URL.Query().Get("return_to"))
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, cookie)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback always clears the handshake cookie and always redirects to the
// front end; failures carry only a reason code.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var cookieValue string
	if c, err := r.Cookie(h.bridge.CookieName()); err == nil {
		cookieValue = c.Value
	}

	query := r.URL.Query()
	completion, err := h.bridge.Complete(r.Context(), provider, cookieValue, oauth.CallbackParams{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})

	http.SetCookie(w, h.bridge.ClearCookie())
	if err != nil {
		http.Redirect(w, r, h.bridge.FailureURL(err), http.StatusFound)
		return
	}

	http.Redirect(w, r, h.bridge.SuccessURL(completion), http.StatusFound)
}
