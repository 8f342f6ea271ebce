package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"foodies-api/internal/event"
	"foodies-api/internal/metrics"
	"foodies-api/internal/model"
	"foodies-api/internal/session"
)

type identityReconciler interface {
	Reconcile(ctx context.Context, profile model.FederatedProfile) (model.User, error)
}

type tokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

type Config struct {
	SessionSecret string
	SessionTTL    time.Duration
	CookieName    string
	CookieSecure  bool
	Timeout       time.Duration
	SuccessURL    string
	FailureURL    string
}

// CallbackParams are the query parameters a provider sends back.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

type Completion struct {
	User      model.PublicUser
	Token     string
	ExpiresAt time.Time
	ReturnTo  string
}

// Bridge runs the three handshake phases. The handshake session it creates is
// the only server-side session in the system and is destroyed by the first
// callback that presents it, successful or not.
type Bridge struct {
	providers  Registry
	sessions   session.Store
	reconciler identityReconciler
	tokens     tokenIssuer
	cookies    cookieCodec
	cfg        Config
	httpClient *http.Client
	bus        event.Bus
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewBridge(providers Registry, sessions session.Store, reconciler identityReconciler, tokens tokenIssuer, cfg Config, bus event.Bus, m *metrics.Metrics) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "foodies_oauth"
	}

	b := &Bridge{
		providers:  providers,
		sessions:   sessions,
		reconciler: reconciler,
		tokens:     tokens,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		bus:        bus,
		metrics:    m,
		now:        time.Now,
	}
	b.cookies = cookieCodec{secret: []byte(cfg.SessionSecret), now: b.clock}
	return b
}

// WithClock replaces the clock used for session expiry and cookie signing.
func (b *Bridge) WithClock(now func() time.Time) *Bridge {
	b.now = now
	return b
}

func (b *Bridge) clock() time.Time { return b.now() }

func (b *Bridge) Providers() Registry { return b.providers }

// Begin creates a handshake session and returns the provider authorize URL
// plus the signed cookie value referencing the session.
func (b *Bridge) Begin(ctx context.Context, providerName string, returnTo string) (string, *http.Cookie, error) {
	p, err := b.providers.Lookup(providerName)
	if err != nil {
		return "", nil, err
	}

	sess, err := session.New(p.Name, sanitizeReturnTo(returnTo), b.now(), b.cfg.SessionTTL)
	if err != nil {
		return "", nil, err
	}
	if err := b.sessions.Save(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("store handshake session: %w", err)
	}

	value, err := b.cookies.encode(sess.ID, p.Name, sess.ExpiresAt)
	if err != nil {
		return "", nil, err
	}

	return p.OAuth.AuthCodeURL(sess.Nonce), b.sessionCookie(value, b.cfg.SessionTTL), nil
}

// Complete validates the callback against the handshake session, exchanges
// the code, reconciles the profile and issues a bearer token, in that order.
func (b *Bridge) Complete(ctx context.Context, providerName string, cookieValue string, params CallbackParams) (Completion, error) {
	p, err := b.providers.Lookup(providerName)
	if err != nil {
		return Completion{}, err
	}

	c, err := b.complete(ctx, p, cookieValue, params)
	if err != nil {
		b.publish(ctx, event.Event{Type: event.TypeOAuthFailed, Provider: string(p.Name), Outcome: event.OutcomeFailure, Detail: FailureReason(err)})
		b.logFailure(p.Name, err)
		return Completion{}, err
	}

	b.metrics.AuthOutcome("oauth", "success")
	b.publish(ctx, event.Event{Type: event.TypeOAuthLogin, UserID: c.User.ID, Provider: string(p.Name), Outcome: event.OutcomeSuccess})
	return c, nil
}

func (b *Bridge) complete(ctx context.Context, p *Provider, cookieValue string, params CallbackParams) (Completion, error) {
	claims, err := b.cookies.decode(cookieValue)
	if err != nil {
		return Completion{}, err
	}

	sess, err := b.sessions.Take(ctx, claims.ID)
	if err != nil {
		return Completion{}, fmt.Errorf("take handshake session: %w", err)
	}
	if sess.Provider != p.Name || claims.Provider != string(p.Name) {
		return Completion{}, fmt.Errorf("session opened for %s: %w", sess.Provider, model.ErrCSRFMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(sess.Nonce)) != 1 {
		return Completion{}, model.ErrCSRFMismatch
	}

	if params.Error != "" {
		return Completion{}, fmt.Errorf("provider returned %q: %w", params.Error, model.ErrProviderRejected)
	}
	if params.Code == "" {
		return Completion{}, fmt.Errorf("callback without code: %w", model.ErrProviderRejected)
	}

	profile, err := b.exchange(ctx, p, params.Code)
	if err != nil {
		return Completion{}, err
	}

	user, err := b.reconciler.Reconcile(ctx, profile)
	if err != nil {
		return Completion{}, err
	}

	token, expiresAt, err := b.tokens.Issue(user.ID)
	if err != nil {
		return Completion{}, fmt.Errorf("issue token: %w", err)
	}

	return Completion{User: user.Public(), Token: token, ExpiresAt: expiresAt, ReturnTo: sess.ReturnTo}, nil
}

func (b *Bridge) exchange(ctx context.Context, p *Provider, code string) (model.FederatedProfile, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	profile, err := b.exchangeAndFetch(ctx, p, code)
	outcome := "success"
	switch {
	case errors.Is(err, model.ErrProviderRejected):
		outcome = "rejected"
	case err != nil:
		outcome = "unavailable"
	}
	b.metrics.ProviderRequest(string(p.Name), outcome, time.Since(start))
	return profile, err
}

func (b *Bridge) exchangeAndFetch(ctx context.Context, p *Provider, code string) (model.FederatedProfile, error) {
	tok, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return model.FederatedProfile{}, classifyExchangeError(err)
	}

	profile, err := p.fetch(ctx, p.OAuth.Client(ctx, tok), p)
	if err != nil {
		return model.FederatedProfile{}, err
	}
	if strings.TrimSpace(profile.Subject) == "" {
		return model.FederatedProfile{}, fmt.Errorf("profile without subject: %w", model.ErrProviderUnavailable)
	}
	return profile, nil
}

// SuccessURL carries the token in the fragment so it never reaches server
// logs or Referer headers.
func (b *Bridge) SuccessURL(c Completion) string {
	base, _, _ := strings.Cut(b.cfg.SuccessURL, "#")

	fragment := url.Values{}
	fragment.Set("token", c.Token)
	if c.ReturnTo != "" {
		fragment.Set("return_to", c.ReturnTo)
	}
	return base + "#" + fragment.Encode()
}

func (b *Bridge) FailureURL(err error) string {
	u, parseErr := url.Parse(b.cfg.FailureURL)
	if parseErr != nil {
		return b.cfg.FailureURL
	}
	q := u.Query()
	q.Set("reason", FailureReason(err))
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Bridge) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     b.cfg.CookieName,
		Value:    value,
		Path:     "/auth",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   b.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (b *Bridge) ClearCookie() *http.Cookie {
	c := b.sessionCookie("", 0)
	c.MaxAge = -1
	return c
}

func (b *Bridge) CookieName() string { return b.cfg.CookieName }

// FailureReason is the stable code appended to the failure redirect.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrCSRFMismatch):
		return "csrf_mismatch"
	case errors.Is(err, model.ErrSessionNotFound):
		return "session_expired"
	case errors.Is(err, model.ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, model.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, model.ErrUnknownProvider):
		return "unknown_provider"
	default:
		return "internal_error"
	}
}

func (b *Bridge) logFailure(provider model.Provider, err error) {
	b.metrics.AuthOutcome("oauth", FailureReason(err))

	switch {
	case errors.Is(err, model.ErrCSRFMismatch):
		slog.Warn("oauth state mismatch", "provider", provider, "error", err)
	case errors.Is(err, model.ErrProviderUnavailable):
		slog.Error("oauth provider unavailable", "provider", provider, "error", err)
	case errors.Is(err, model.ErrStoreUnavailable):
		slog.Error("credential store unavailable during oauth callback", "provider", provider, "error", err)
	default:
		slog.Info("oauth callback failed", "provider", provider, "reason", FailureReason(err), "error", err)
	}
}

func (b *Bridge) publish(ctx context.Context, e event.Event) {
	if b.bus == nil {
		return
	}
	e.IP = event.ClientIPFromContext(ctx)
	b.bus.Publish(e)
}

// sanitizeReturnTo keeps only same-origin relative paths.
func sanitizeReturnTo(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return raw
}
