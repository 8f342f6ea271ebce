package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodies-api/internal/config"
	"foodies-api/internal/handler"
	"foodies-api/internal/metrics"
	"foodies-api/internal/middleware"
	"foodies-api/internal/model"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	OAuth  *handler.OAuthHandler
	User   *handler.UserHandler
	Audit  *handler.AuditHandler
	Search *handler.SearchHandler
	Health *handler.HealthHandler
}

type RateTiers struct {
	General   middleware.Tier
	Sensitive middleware.Tier
	Search    middleware.Tier
}

func TiersFromConfig(cfg *config.Config) RateTiers {
	return RateTiers{
		General:   middleware.Tier{Name: "general", Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow},
		Sensitive: middleware.Tier{Name: "sensitive", Max: cfg.AuthRateLimitMax, Window: cfg.AuthRateLimitWindow, SkipSuccessful: true},
		Search:    middleware.Tier{Name: "search", Max: cfg.SearchRateLimitMax, Window: cfg.SearchRateLimitWindow},
	}
}

func New(cfg *config.Config, gate *middleware.AuthGate, limiter *middleware.RateLimiter, m *metrics.Metrics, h Handlers) http.Handler {
	r := chi.NewRouter()
	tiers := TiersFromConfig(cfg)

	r.Use(middleware.ClientIP(cfg.TrustProxy))
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", h.Health.Health)

	adminOnly := []func(http.Handler) http.Handler{gate.Authenticate, gate.RequireRole(model.RoleAdmin)}
	sensitive := limiter.Limit(tiers.Sensitive)

	// Scrapers authenticate with an admin bearer token.
	if m != nil {
		r.With(limiter.Limit(tiers.General)).With(adminOnly...).Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/auth", func(auth chi.Router) {
		auth.Use(limiter.Limit(tiers.General))
		auth.Use(middleware.Timeout(cfg.RequestTimeout))

		auth.With(sensitive).Post("/login", h.Auth.Login)
		auth.With(sensitive).Post("/register", h.Auth.Register)
		auth.With(sensitive).Post("/forgot-password", h.Auth.ForgotPassword)
		auth.With(gate.Optional).Get("/status", h.Auth.Status)
		auth.Get("/logout", h.Auth.Logout)
		auth.With(gate.Authenticate).Get("/me", h.Auth.Me)

		auth.Get("/providers", h.OAuth.Providers)
		auth.Get("/{provider}", h.OAuth.Begin)
		auth.Get("/{provider}/callback", h.OAuth.Callback)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(limiter.Limit(tiers.General))
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.With(limiter.Limit(tiers.Search), gate.Optional).Get("/recipes/search", h.Search.Search)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(adminOnly...)

			admin.Get("/users", h.User.List)
			admin.Get("/users/{id}", h.User.Get)
			admin.Patch("/users/{id}/role", h.User.UpdateRole)
			admin.Get("/audit", h.Audit.List)
		})
	})

	return r
}
