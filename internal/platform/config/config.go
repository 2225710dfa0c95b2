// Package config centralizes environment-driven configuration so main stays
// lean. Every knob has a development default; production overrides via env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the full server configuration.
type Config struct {
	Addr          string
	Issuer        string
	JWTSigningKey string

	CodeTTL    time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	IDTokenTTL time.Duration

	// LoginWindow bounds how old an authentication may be when the client
	// asks for prompt=login. ConsentWindow does the same for prompt=consent;
	// zero accepts consent of any age.
	LoginWindow   time.Duration
	ConsentWindow time.Duration

	RotateRefreshTokens bool
	AllowPlainPKCE      bool
	RequireNonce        bool

	StoreTimeout time.Duration

	// StoreBackend selects the persistence layer: "memory" or "postgres".
	StoreBackend string
	PostgresURL  string
	RedisURL     string

	// KafkaBrokers enables the Kafka audit sink when non-empty.
	KafkaBrokers     []string
	AuditAsyncBuffer int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          envString("GRANTOR_ADDR", ":8080"),
		Issuer:        envString("GRANTOR_ISSUER", "http://localhost:8080"),
		JWTSigningKey: envString("GRANTOR_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),

		CodeTTL:    envDuration("GRANTOR_CODE_TTL", 5*time.Minute),
		AccessTTL:  envDuration("GRANTOR_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTTL: envDuration("GRANTOR_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		IDTokenTTL: envDuration("GRANTOR_ID_TOKEN_TTL", time.Hour),

		LoginWindow:   envDuration("GRANTOR_LOGIN_WINDOW", 10*time.Minute),
		ConsentWindow: envDuration("GRANTOR_CONSENT_WINDOW", 0),

		RotateRefreshTokens: envBool("GRANTOR_ROTATE_REFRESH_TOKENS", true),
		AllowPlainPKCE:      envBool("GRANTOR_ALLOW_PLAIN_PKCE", true),
		RequireNonce:        envBool("GRANTOR_REQUIRE_NONCE", false),

		StoreTimeout: envDuration("GRANTOR_STORE_TIMEOUT", 5*time.Second),

		StoreBackend: envString("GRANTOR_STORE_BACKEND", "memory"),
		PostgresURL:  os.Getenv("GRANTOR_POSTGRES_URL"),
		RedisURL:     os.Getenv("GRANTOR_REDIS_URL"),

		KafkaBrokers:     envList("GRANTOR_KAFKA_BROKERS"),
		AuditAsyncBuffer: envInt("GRANTOR_AUDIT_ASYNC_BUFFER", 0),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
