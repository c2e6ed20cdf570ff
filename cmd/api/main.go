package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/relaygate-platform/relaygate/internal/admin"
	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/auth"
	"github.com/relaygate-platform/relaygate/internal/billing"
	"github.com/relaygate-platform/relaygate/internal/clients"
	"github.com/relaygate-platform/relaygate/internal/config"
	"github.com/relaygate-platform/relaygate/internal/conversations"
	"github.com/relaygate-platform/relaygate/internal/dashboard"
	"github.com/relaygate-platform/relaygate/internal/database"
	"github.com/relaygate-platform/relaygate/internal/dispatch"
	"github.com/relaygate-platform/relaygate/internal/events"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
	"github.com/relaygate-platform/relaygate/internal/middleware"
	"github.com/relaygate-platform/relaygate/internal/provider"
	iredis "github.com/relaygate-platform/relaygate/internal/redis"
	"github.com/relaygate-platform/relaygate/internal/server"
	"github.com/relaygate-platform/relaygate/internal/webhooks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var eventsClient *events.Client
	var js jetstream.JetStream
	if cfg.NATS.Enabled {
		eventsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		js = eventsClient.JetStream()
	}
	publisher := events.NewPublisher(js)

	// Provider
	providerClient := provider.NewClient(cfg.Provider)

	// Auth
	keys := auth.NewKeyManager(cfg.Auth.KeySecret, cfg.Auth.KeyLifetime)
	clientRepo := clients.NewRepository(pool)
	clientSvc := clients.NewService(clientRepo)
	authHandler := auth.NewHandler(keys, clientSvc)

	// Message log
	logRepo := messagelog.NewRepository(pool)

	// Dispatch engine
	tiers := dispatch.NewTierResolver(providerClient, redisClient, cfg.Provider.PhoneID, cfg.Provider.TierCacheTTL)
	windows := dispatch.NewWindowTracker(logRepo)
	evaluator := dispatch.NewEvaluator(tiers, windows)
	store := dispatch.NewStore(pool)
	coordinator := dispatch.NewCoordinator(evaluator, providerClient, store, publisher)
	dispatchHandler := dispatch.NewHandler(coordinator, tiers, logRepo)

	// Tenant surfaces
	conversationsHandler := conversations.NewHandler(logRepo)
	dashboardHandler := dashboard.NewHandler(logRepo)
	billingRepo := billing.NewRepository(pool)
	billingHandler := billing.NewHandler(billingRepo, clientSvc)

	// Operator surface
	adminHandler := admin.NewHandler(clientSvc, billingRepo, logRepo, keys, providerClient)

	// Provider webhook
	webhookRepo := webhooks.NewRepository(pool)
	webhookHandler := webhooks.NewHandler(cfg.Provider.VerifyToken, logRepo, webhookRepo, publisher)

	loginLimiter := middleware.NewRateLimiter(redisClient, 10, 60)

	// Router
	router := api.NewRouter(pool, eventsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		LoginRateLimiter:   loginLimiter.Middleware,
	}, api.HandlerSet{
		Login:          authHandler.Login,
		Plans:          billingHandler.Plans,
		WebhookVerify:  webhookHandler.Verify,
		WebhookReceive: webhookHandler.Receive,

		ChangePassword:     authHandler.ChangePassword,
		SendMessage:        dispatchHandler.Send,
		MessagingTier:      dispatchHandler.Tier,
		RegisteredNumbers:  dispatchHandler.Recipients,
		MessageLog:         dispatchHandler.Log,
		Conversations:      conversationsHandler.List,
		ConversationCheck:  conversationsHandler.CanSendText,
		ConversationThread: conversationsHandler.Messages,
		DashboardUsage:     dashboardHandler.Usage,
		Subscription:       billingHandler.Subscription,
		BillingHistory:     billingHandler.BillingHistory,
		CreateSubRequest:   billingHandler.CreateRequest,
		ListSubRequests:    billingHandler.ListRequests,

		Onboard:           adminHandler.Onboard,
		CreatePlan:        adminHandler.CreatePlan,
		ListClients:       adminHandler.ListClients,
		UpdateClient:      adminHandler.UpdateClient,
		DeleteClient:      adminHandler.DeleteClient,
		RevokeKey:         adminHandler.RevokeKey,
		RestoreKey:        adminHandler.RestoreKey,
		Analytics:         adminHandler.Analytics,
		ProviderStatus:    adminHandler.ProviderStatus,
		AdminListRequests: adminHandler.ListRequests,
		ProcessRequest:    adminHandler.ProcessRequest,

		AuthMiddleware:  auth.Middleware(keys, clientSvc),
		AdminMiddleware: auth.AdminMiddleware(cfg.Auth.AdminToken),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
