// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/admin"
	"github.com/fertilityflow/portal/internal/auth"
	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/checkout"
	"github.com/fertilityflow/portal/internal/config"
	"github.com/fertilityflow/portal/internal/content"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/entitlement"
	"github.com/fertilityflow/portal/internal/health"
	"github.com/fertilityflow/portal/internal/marketing"
	"github.com/fertilityflow/portal/internal/metrics"
	"github.com/fertilityflow/portal/internal/middleware"
	"github.com/fertilityflow/portal/internal/notify"
	"github.com/fertilityflow/portal/internal/payment"
	"github.com/fertilityflow/portal/internal/progress"
	"github.com/fertilityflow/portal/internal/purchase"
	"github.com/fertilityflow/portal/internal/server"
	"github.com/fertilityflow/portal/internal/storage"
	"github.com/fertilityflow/portal/internal/user"
	"github.com/fertilityflow/portal/internal/webhook"
)

const (
	drainDelay = 5 * time.Second

	apiPrefix         = "/v1"
	stripeWebhookPath = apiPrefix + "/webhooks/stripe"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"stripe_mode", cfg.Payments.Mode,
	)

	stopTracing := func(context.Context) error { return nil }
	if cfg.Otel.Enabled {
		stop, traceErr := core.StartTracing(ctx, cfg.Otel, cfg.App)
		if traceErr != nil {
			logger.Warn("tracing disabled", "error", traceErr)
		} else {
			stopTracing = stop
			logger.Info("tracing enabled", "endpoint", cfg.Otel.Endpoint)
		}
	}

	metrics.Register()

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	store, err := storage.NewStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	tokens, err := auth.LoadTokenIssuer(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("token issuer loaded",
		"algorithm", "ES256",
		"key_id", tokens.KeyID(),
	)

	dispatcher := notify.NewDispatcher(
		cfg.Notify.Workers,
		cfg.Notify.QueueSize,
		cfg.Notify.Timeout,
		logger,
	)
	brevo := notify.NewClient(cfg.Notify)
	if !brevo.Configured() {
		logger.Warn("brevo api key not set, emails and CRM sync are disabled")
	}
	notifier := notify.NewNotifier(brevo, dispatcher, cfg.Notify, cfg.App.PublicURL, logger)

	payments := payment.NewClient(cfg.Payments)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	authSvc := auth.NewService(
		auth.NewSessionStore(db.DB),
		auth.NewResetTokenRepository(db.DB),
		tokens,
		userSvc,
		redis.Client,
		notifier,
	)
	authHandler := auth.NewHandler(authSvc, cfg.JWT.CookieSecure)

	catalogSvc := catalog.NewService(catalog.NewRepository(db.DB))

	purchaseRepo := purchase.NewRepository(db.DB)
	purchaseSvc := purchase.NewService(purchaseRepo, catalogSvc)
	purchaseHandler := purchase.NewHandler(purchaseSvc, cfg.App.PublicURL)

	resolver := entitlement.NewResolver(purchaseRepo)
	catalogHandler := catalog.NewHandler(catalogSvc, resolver)

	checkoutSvc := checkout.NewService(payments, userSvc, catalogSvc, purchaseRepo, apiPrefix)
	checkoutHandler := checkout.NewHandler(checkoutSvc, cfg.App.PublicURL)

	reconciler := webhook.NewReconciler(
		payments,
		purchaseRepo,
		catalogSvc,
		userSvc,
		notifier,
		cfg.Payments.PlanInstallments,
	)
	webhookHandler := webhook.NewHandler(payments, reconciler)

	contentSvc := content.NewService(catalogSvc, resolver, store, storage.PageKeys)
	contentHandler := content.NewHandler(contentSvc, cfg.App.PublicURL)

	tracker := progress.NewTracker(
		progress.NewRepository(db.DB),
		catalogSvc,
		cfg.Progress.VideoCompleteThreshold,
	)
	progressHandler := progress.NewHandler(tracker)

	marketingHandler := marketing.NewHandler(notifier)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db, Critical: true},
		health.Dependency{Name: "redis", Checker: redis, Critical: true},
		health.Dependency{Name: "storage", Checker: store},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Backends: []admin.Backend{
			{Name: "database", Ping: db.Ping, Stats: admin.SQLPool(db.Stats)},
			{Name: "redis", Ping: redis.Ping, Stats: admin.RedisPool(redis.PoolStats)},
			{Name: "storage", Ping: store.Ping},
		},
		Purchases: purchaseSvc,
		Plans:     reconciler,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.NewRateLimiter(redis.Client, middleware.RateLimit{
		Scope:    "api",
		Limit:    middleware.Quota(cfg.RateLimit.Requests, cfg.RateLimit.Burst, cfg.RateLimit.Window),
		Key:      middleware.KeyByIP,
		FailOpen: true,
		Skip: func(r *http.Request) bool {
			return r.URL.Path == stripeWebhookPath
		},
	}))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", tokens.JWKSHandler())
	router.Handle("/metrics", metrics.Handler())

	authenticator := middleware.Authenticator(authSvc)
	optionalAuth := middleware.OptionalAuth(authSvc)
	adminOnly := middleware.RequireAdmin
	formLimit := middleware.NewRateLimiter(redis.Client, middleware.RateLimit{
		Scope:    "forms",
		Limit:    middleware.Quota(cfg.RateLimit.FormRequests, cfg.RateLimit.FormBurst, cfg.RateLimit.Window),
		Key:      middleware.KeyByCallerAndRoute,
		FailOpen: true,
	})

	router.Route(apiPrefix, func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, formLimit)

		userHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)

		catalogHandler.RegisterRoutes(r, optionalAuth)
		purchaseHandler.RegisterRoutes(r, authenticator, optionalAuth)
		checkoutHandler.RegisterRoutes(r, authenticator, optionalAuth)
		webhookHandler.RegisterRoutes(r)
		contentHandler.RegisterRoutes(r, authenticator, optionalAuth)
		progressHandler.RegisterRoutes(r, authenticator)
		marketingHandler.RegisterRoutes(r, formLimit)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("notification dispatcher shutdown error", "error", err)
	}

	if err := stopTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
