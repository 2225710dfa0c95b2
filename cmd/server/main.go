// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Grant logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	jwttoken "grantor/internal/jwt_token"
	"grantor/internal/oauth/grant"
	"grantor/internal/oauth/service"
	"grantor/internal/platform/config"
	"grantor/internal/platform/httpserver"
	"grantor/internal/platform/logger"
	"grantor/internal/platform/metrics"
	httptransport "grantor/internal/transport/http"
	"grantor/pkg/platform/audit"
	auditpub "grantor/pkg/platform/audit/publisher"
	kafkasink "grantor/pkg/platform/audit/sink/kafka"
	auditmem "grantor/pkg/platform/audit/store/memory"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	publisher, sinkClose, err := buildAuditPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()
	defer sinkClose()

	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.Issuer)
	issuer := service.NewTokenIssuer(jwtSvc, cfg.AccessTTL)
	collectors := metrics.New()
	reporter := service.NewSecurityReporter(stores.revocations, stores.refresh, publisher, log, cfg.AccessTTL+time.Hour,
		service.WithReporterMetrics(collectors))

	registry, err := buildRegistry(cfg, stores, jwtSvc, issuer, reporter)
	if err != nil {
		return err
	}

	svc, err := service.New(registry, stores.clients, stores.sessions, stores.refresh, stores.revocations, jwtSvc,
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(collectors),
		service.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return err
	}

	checkers := map[string]httptransport.HealthChecker{}
	if stores.redis != nil {
		checkers["redis"] = stores.redis
	}
	router := httptransport.NewRouter(httptransport.RouterConfig{
		OAuth:          httptransport.NewOAuthHandler(svc),
		TokenValidator: httptransport.NewAccessTokenValidator(jwtSvc),
		Revocations:    stores.revocations,
		HealthCheckers: checkers,
		ExposeMetrics:  true,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting grantor", "addr", cfg.Addr, "issuer", cfg.Issuer, "store_backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildRegistry assembles the grant registry. Extension order is load-bearing:
// the prompt validator gates on session and consent state first, so an
// unauthenticated caller gets login_required before PKCE or claims processing
// can reject the request for other reasons; PKCE then binds the challenge
// before OpenID freezes the nonce.
func buildRegistry(cfg config.Config, stores *storeSet, jwtSvc *jwttoken.JWTService, issuer grant.AccessTokenIssuer, reporter grant.SecurityReporter) (*grant.Registry, error) {
	var pkceOpts []grant.PKCEOption
	if !cfg.AllowPlainPKCE {
		pkceOpts = append(pkceOpts, grant.WithoutPlain())
	}
	var openIDOpts []grant.OpenIDOption
	if cfg.RequireNonce {
		openIDOpts = append(openIDOpts, grant.WithRequireNonce())
	}

	authCode, err := grant.NewAuthorizationCode(grant.AuthorizationCodeConfig{
		Codes:              stores.codes,
		RefreshTokens:      stores.refresh,
		Issuer:             issuer,
		Security:           reporter,
		CodeTTL:            cfg.CodeTTL,
		RefreshTTL:         cfg.RefreshTTL,
		IssueRefreshTokens: true,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := grant.NewRefreshToken(grant.RefreshTokenConfig{
		RefreshTokens: stores.refresh,
		Issuer:        issuer,
		Security:      reporter,
		RefreshTTL:    cfg.RefreshTTL,
		Rotate:        cfg.RotateRefreshTokens,
	})
	if err != nil {
		return nil, err
	}

	registry := grant.NewRegistry()
	if err := registry.Register(authCode,
		grant.NewPrompt(stores.consents, cfg.LoginWindow, cfg.ConsentWindow),
		grant.NewPKCE(pkceOpts...),
		grant.NewOpenID(jwtSvc, stores.sessions, cfg.IDTokenTTL, openIDOpts...),
	); err != nil {
		return nil, err
	}
	if err := registry.Register(refresh,
		grant.NewOpenID(jwtSvc, stores.sessions, cfg.IDTokenTTL, openIDOpts...),
	); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildAuditPublisher routes audit events to Kafka when brokers are
// configured, otherwise to an in-process store. The returned closer shuts
// down the sink after the publisher has drained.
func buildAuditPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (*auditpub.Publisher, func(), error) {
	var (
		sink      audit.Store
		sinkClose = func() {}
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := kafkasink.New(ctx, cfg.KafkaBrokers)
		if err != nil {
			return nil, nil, err
		}
		sink = kafka
		sinkClose = kafka.Close
	} else {
		log.Warn("kafka not configured, audit events stay in-process")
		sink = auditmem.NewInMemoryStore()
	}

	opts := []auditpub.Option{auditpub.WithLogger(log)}
	if cfg.AuditAsyncBuffer > 0 {
		opts = append(opts, auditpub.WithAsyncBuffer(cfg.AuditAsyncBuffer))
	}
	return auditpub.NewPublisher(sink, opts...), sinkClose, nil
}
