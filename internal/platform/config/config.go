package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	TokenTTL      time.Duration

	// Production toggles secure cross-site cookies.
	Production bool

	// FrontendOrigin is where the SPA lives; used for CORS and OAuth redirects.
	FrontendOrigin string

	Google GoogleOAuth
	Redis  RedisConfig

	// DatabaseURL selects the Postgres stores; empty means in-memory stores.
	DatabaseURL string

	// AccessCacheTTL bounds staleness of the conversation participant cache.
	AccessCacheTTL time.Duration
	// AccessCacheSweepInterval drives the background eviction of expired entries.
	AccessCacheSweepInterval time.Duration
}

// GoogleOAuth holds the OAuth client credentials. Empty values disable the
// login flow (the routes answer 501, matching local development without keys).
type GoogleOAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// RedisConfig configures the optional Redis participant cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CHATWALL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SECRET")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production
		jwtSigningKey = "dev-jwt"
	}

	origin := os.Getenv("FRONTEND_URL")
	if origin == "" {
		origin = "http://localhost:5173"
	}

	redirectURL := os.Getenv("GOOGLE_REDIRECT_URL")
	if redirectURL == "" {
		redirectURL = "http://localhost:8080/auth/google/callback"
	}

	return Server{
		Addr:           addr,
		Production:     os.Getenv("APP_ENV") == "production",
		JWTSigningKey:  jwtSigningKey,
		TokenTTL:       durationEnv("TOKEN_TTL", 7*24*time.Hour),
		FrontendOrigin: origin,
		Google: GoogleOAuth{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  redirectURL,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		AccessCacheTTL:           durationEnv("ACCESS_CACHE_TTL", 5*time.Minute),
		AccessCacheSweepInterval: durationEnv("ACCESS_CACHE_SWEEP_INTERVAL", 10*time.Minute),
	}
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
