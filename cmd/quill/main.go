package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/api"
	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/billing"
	"github.com/platinummonkey/quill/pkg/config"
	"github.com/platinummonkey/quill/pkg/middleware"
	"github.com/platinummonkey/quill/pkg/notes"
	"github.com/platinummonkey/quill/pkg/observability"
	"github.com/platinummonkey/quill/pkg/storage/postgres"
)

func main() {
	// Startup-phase logging before the structured logger is configured
	boot := logrus.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	// Database
	db, err := postgres.Connect(postgres.Config{
		URL:      cfg.Storage.PostgresURL,
		MaxConns: cfg.Storage.PostgresMaxConns,
		MinConns: cfg.Storage.PostgresMinConns,
		Timeout:  cfg.Storage.PostgresTimeout,
	})
	if err != nil {
		boot.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		boot.Fatalf("failed to run migrations: %v", err)
	}
	logger.Info("database ready")

	// Redis backs the login rate limiter and readiness checks. The rate
	// limiter fails open, so a missing Redis degrades rather than breaks.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.RedisURL,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable, login rate limiting disabled")
	}

	// Observability
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		boot.Fatalf("failed to initialize tracing: %v", err)
	}

	// Plan catalog
	catalog, err := config.LoadPlanCatalog(cfg.Billing.PlansFile)
	if err != nil {
		boot.Fatalf("failed to load plan catalog: %v", err)
	}

	// Services
	accountService := accounts.NewPostgresService(db)
	userStore := auth.NewPostgresStore(db)
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	noteService := notes.NewService(db, notes.NewTagStore(db), accountService)
	gateway := billing.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret)
	billingService := billing.NewService(db, accountService, gateway, catalog)

	sweeper := billing.NewSweeper(billingService, logger, cfg.Billing.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		boot.Fatalf("failed to start subscription sweeper: %v", err)
	}

	loginLimiter := middleware.NewLoginRateLimiter(redisClient, middleware.DefaultLoginRateLimitConfig())
	health := observability.NewHealthChecker(db, redisClient)

	server := api.NewServer(api.Deps{
		Users:        userStore,
		Accounts:     accountService,
		Hasher:       hasher,
		Tokens:       tokens,
		Notes:        noteService,
		Billing:      billingService,
		LoginLimiter: loginLimiter,
		Health:       health,
		Logger:       logger,
		Metrics:      metrics,
	})

	var handler http.Handler = server.Router()
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "quill-api")
	}

	mainServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Separate listener for probes and metrics
	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: opsMux,
	}

	go reportDBStats(ctx, db, metrics)

	shutdown := observability.NewShutdownManager(logger, mainServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return opsServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return redisClient.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	var g errgroup.Group
	g.Go(func() error {
		logger.WithField("addr", mainServer.Addr).Info("starting API server")
		if err := mainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("starting ops server")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(shutdown.WaitForShutdown)

	if err := g.Wait(); err != nil {
		boot.Fatalf("server error: %v", err)
	}
	logger.Info("shutdown complete")
}

// reportDBStats mirrors connection pool stats into the metrics gauges
func reportDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			metrics.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
			metrics.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
		}
	}
}
