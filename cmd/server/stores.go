package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"grantor/internal/oauth/store"
	authcodestore "grantor/internal/oauth/store/authorization-code"
	clientstore "grantor/internal/oauth/store/client"
	consentstore "grantor/internal/oauth/store/consent"
	refreshstore "grantor/internal/oauth/store/refresh-token"
	"grantor/internal/oauth/store/revocation"
	sessionstore "grantor/internal/oauth/store/session"
	"grantor/internal/platform/config"
	platformredis "grantor/internal/platform/redis"
)

// storeSet bundles every persistence dependency the engine needs, plus the
// handles main must close on shutdown.
type storeSet struct {
	clients     store.ClientStore
	codes       store.AuthorizationCodeStore
	refresh     store.RefreshTokenStore
	sessions    store.SessionStore
	consents    store.ConsentStore
	revocations store.RevocationList

	db    *sql.DB
	redis *platformredis.Client
}

// buildStores selects the persistence layer. "postgres" backs the durable
// entities with SQL; sessions and the revocation list prefer Redis when a
// URL is configured, falling back to memory. "memory" runs everything
// in-process for development.
func buildStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*storeSet, error) {
	set := &storeSet{}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	set.redis = redisClient

	if redisClient != nil {
		set.sessions = sessionstore.NewRedis(redisClient.Client)
		set.revocations = revocation.NewRedis(redisClient.Client)
	} else {
		log.Warn("redis not configured, sessions and revocations are in-memory")
		set.sessions = sessionstore.New()
		set.revocations = revocation.New()
	}

	switch cfg.StoreBackend {
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("store backend postgres requires GRANTOR_POSTGRES_URL")
		}
		db, err := sql.Open("pgx", cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		set.db = db
		set.clients = clientstore.NewPostgres(db)
		set.codes = authcodestore.NewPostgres(db)
		set.refresh = refreshstore.NewPostgres(db)
		set.consents = consentstore.NewPostgres(db)
	case "memory":
		log.Warn("store backend is in-memory, state is lost on restart")
		set.clients = clientstore.New()
		set.codes = authcodestore.New()
		set.refresh = refreshstore.New()
		set.consents = consentstore.New()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return set, nil
}

func (s *storeSet) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
