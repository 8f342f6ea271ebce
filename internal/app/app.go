package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"foodies-api/internal/config"
	"foodies-api/internal/database"
	"foodies-api/internal/event"
	"foodies-api/internal/handler"
	"foodies-api/internal/metrics"
	"foodies-api/internal/middleware"
	"foodies-api/internal/oauth"
	"foodies-api/internal/repository"
	"foodies-api/internal/router"
	"foodies-api/internal/service"
	"foodies-api/internal/session"
)

const (
	auditCapacity = 5000
	eventBuffer   = 256
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	a := &App{}
	checks := map[string]handler.HealthCheck{}

	var (
		users service.UserStore
		audit service.AuditStore
	)
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

		if err := db.EnsureSchema(context.Background()); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}

		users = repository.NewUserRepository(db.SQL)
		audit = repository.NewAuditRepository(db.SQL)
		checks["database"] = db.Health
		slog.Info("database ready")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory credential store")
		users = repository.NewMemoryUserRepository()
		audit = repository.NewMemoryAuditRepository(auditCapacity)
	}

	var (
		sessions session.Store
		limiter  middleware.Limiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		sessions = session.NewRedisStore(client)
		limiter = middleware.NewRedisLimiter(client)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		slog.Info("redis ready")
	} else {
		sessions = session.NewMemoryStore(cfg.SessionCapacity, cfg.SessionTTL)
		limiter = middleware.NewMemoryLimiter()
	}

	m := metrics.New()
	bus := event.NewBus(eventBuffer)

	passwords, err := service.NewPasswordAuthenticator(cfg.BcryptCost, cfg.HashConcurrency, m)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize password authenticator: %w", err)
	}
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := service.NewAuthService(users, passwords, tokens, bus, m, cfg.AdminEmails)

	auditService := service.NewAuditService(audit)
	events, unsubscribe := bus.Subscribe()
	auditCtx, auditCancel := context.WithCancel(context.Background())
	go auditService.Run(auditCtx, events)
	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		auditCancel()
		unsubscribe()
	})

	registry := oauth.NewRegistry(enabledProviders(cfg)...)
	if len(registry) == 0 {
		slog.Warn("no oauth providers configured")
	}
	bridge := oauth.NewBridge(registry, sessions, service.NewIdentityReconciler(users), tokens, oauth.Config{
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		CookieName:    cfg.SessionCookieName,
		CookieSecure:  cfg.CookieSecure,
		Timeout:       cfg.ProviderTimeout,
		SuccessURL:    cfg.FrontendSuccessURL,
		FailureURL:    cfg.FrontendFailureURL,
	}, bus, m)

	appRouter := router.New(cfg,
		middleware.NewAuthGate(authService, m),
		middleware.NewRateLimiter(limiter, m),
		m,
		router.Handlers{
			Auth:   handler.NewAuthHandler(authService),
			OAuth:  handler.NewOAuthHandler(bridge),
			User:   handler.NewUserHandler(authService),
			Audit:  handler.NewAuditHandler(auditService),
			Search: handler.NewSearchHandler(service.NewRecipeSearchService(cfg.RecipeAPIURL, cfg.RecipeAPIKey, cfg.ProviderTimeout)),
			Health: handler.NewHealthHandler(checks),
		},
	)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	slog.Info("application ready",
		"providers", registry.Names(),
		"rate_limit_backend", limiter.Backend(),
	)
	return a, nil
}

// enabledProviders returns the providers whose client id and secret are both set.
func enabledProviders(cfg *config.Config) []*oauth.Provider {
	var providers []*oauth.Provider

	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		providers = append(providers, oauth.NewGitHub(oauth.ProviderConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.CallbackBaseURL + "/auth/github/callback",
		}))
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers = append(providers, oauth.NewGoogle(oauth.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.CallbackBaseURL + "/auth/google/callback",
		}))
	}

	return providers
}

// cleanup runs in reverse order of acquisition.
func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	a.cleanup()
	slog.Info("server stopped")
	return nil
}
