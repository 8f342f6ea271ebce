package config

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	LogLevel  string
	LogFormat string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	RedisURL    string

	JWTSecret string
	JWTTTL    time.Duration
	JWTIssuer string

	SessionSecret     string
	SessionTTL        time.Duration
	SessionCookieName string
	SessionCapacity   int
	CookieSecure      bool

	BcryptCost      int
	HashConcurrency int
	AdminEmails     []string

	CallbackBaseURL    string
	FrontendSuccessURL string
	FrontendFailureURL string
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	ProviderTimeout    time.Duration

	RateLimitWindow       time.Duration
	RateLimitMax          int
	AuthRateLimitWindow   time.Duration
	AuthRateLimitMax      int
	SearchRateLimitWindow time.Duration
	SearchRateLimitMax    int
	TrustProxy            bool

	CORSOrigins []string

	RecipeAPIURL string
	RecipeAPIKey string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 15*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),

		JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTTTL:    getDuration("JWT_TTL", 24*time.Hour),
		JWTIssuer: getEnv("JWT_ISSUER", "foodies-api"),

		SessionSecret:     strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		SessionTTL:        getDuration("SESSION_TTL", 24*time.Hour),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "foodies_oauth"),
		SessionCapacity:   getInt("SESSION_CAPACITY", 10000),
		CookieSecure:      getBool("COOKIE_SECURE", true),

		BcryptCost:      getInt("BCRYPT_COST", 10),
		HashConcurrency: getInt("HASH_CONCURRENCY", runtime.GOMAXPROCS(0)),
		AdminEmails:     splitCSV(strings.ToLower(os.Getenv("ADMIN_EMAILS"))),

		CallbackBaseURL:    strings.TrimRight(getEnv("CALLBACK_BASE_URL", "http://localhost:8080"), "/"),
		FrontendSuccessURL: getEnv("FRONTEND_SUCCESS_URL", "http://localhost:3000/auth/success"),
		FrontendFailureURL: getEnv("FRONTEND_FAILURE_URL", "http://localhost:3000/login?error=oauth"),
		GitHubClientID:     strings.TrimSpace(os.Getenv("GITHUB_CLIENT_ID")),
		GitHubClientSecret: strings.TrimSpace(os.Getenv("GITHUB_CLIENT_SECRET")),
		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		ProviderTimeout:    getDuration("PROVIDER_TIMEOUT", 10*time.Second),

		RateLimitWindow:       getDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:          getInt("RATE_LIMIT_MAX", 100),
		AuthRateLimitWindow:   getDuration("AUTH_RATE_LIMIT_WINDOW", 15*time.Minute),
		AuthRateLimitMax:      getInt("AUTH_RATE_LIMIT_MAX", 5),
		SearchRateLimitWindow: getDuration("SEARCH_RATE_LIMIT_WINDOW", time.Minute),
		SearchRateLimitMax:    getInt("SEARCH_RATE_LIMIT_MAX", 30),
		TrustProxy:            getBool("TRUST_PROXY", false),

		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),

		RecipeAPIURL: strings.TrimRight(strings.TrimSpace(os.Getenv("RECIPE_API_URL")), "/"),
		RecipeAPIKey: strings.TrimSpace(os.Getenv("RECIPE_API_KEY")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET is required and must be at least %d bytes", minSecretLength)
	}

	if len(c.SessionSecret) < minSecretLength {
		return fmt.Errorf("SESSION_SECRET is required and must be at least %d bytes", minSecretLength)
	}

	if c.JWTSecret == c.SessionSecret {
		return fmt.Errorf("JWT_SECRET and SESSION_SECRET must differ")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.SessionCapacity <= 0 {
		return fmt.Errorf("SESSION_CAPACITY must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}

	for name, window := range map[string]time.Duration{
		"RATE_LIMIT_WINDOW":        c.RateLimitWindow,
		"AUTH_RATE_LIMIT_WINDOW":   c.AuthRateLimitWindow,
		"SEARCH_RATE_LIMIT_WINDOW": c.SearchRateLimitWindow,
	} {
		if window <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	for name, raw := range map[string]string{
		"CALLBACK_BASE_URL":    c.CallbackBaseURL,
		"FRONTEND_SUCCESS_URL": c.FrontendSuccessURL,
		"FRONTEND_FAILURE_URL": c.FrontendFailureURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", name)
		}
	}

	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return fmt.Errorf("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}

	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
