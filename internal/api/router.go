package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaygate-platform/relaygate/internal/database"
	"github.com/relaygate-platform/relaygate/internal/events"
	mw "github.com/relaygate-platform/relaygate/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Public
	Login          http.HandlerFunc
	Plans          http.HandlerFunc
	WebhookVerify  http.HandlerFunc
	WebhookReceive http.HandlerFunc

	// Tenant surface (API key)
	ChangePassword     http.HandlerFunc
	SendMessage        http.HandlerFunc
	MessagingTier      http.HandlerFunc
	RegisteredNumbers  http.HandlerFunc
	MessageLog         http.HandlerFunc
	Conversations      http.HandlerFunc
	ConversationCheck  http.HandlerFunc
	ConversationThread http.HandlerFunc
	DashboardUsage     http.HandlerFunc
	Subscription       http.HandlerFunc
	BillingHistory     http.HandlerFunc
	CreateSubRequest   http.HandlerFunc
	ListSubRequests    http.HandlerFunc

	// Operator surface (admin token)
	Onboard           http.HandlerFunc
	CreatePlan        http.HandlerFunc
	ListClients       http.HandlerFunc
	UpdateClient      http.HandlerFunc
	DeleteClient      http.HandlerFunc
	RevokeKey         http.HandlerFunc
	RestoreKey        http.HandlerFunc
	Analytics         http.HandlerFunc
	ProviderStatus    http.HandlerFunc
	AdminListRequests http.HandlerFunc
	ProcessRequest    http.HandlerFunc

	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	LoginRateLimiter   func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, eventsClient *events.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if eventsClient != nil && !eventsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if eventsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhook, verified by token rather than API key
	r.Get("/webhook", h.WebhookVerify)
	r.Post("/webhook", h.WebhookReceive)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes; login optionally rate-limited
		r.Group(func(r chi.Router) {
			if cfg.LoginRateLimiter != nil {
				r.Use(cfg.LoginRateLimiter)
			}
			r.Post("/auth/login", h.Login)
		})
		r.Get("/plans", h.Plans)

		// Tenant routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/auth/change-password", h.ChangePassword)

			r.Post("/messages", h.SendMessage)
			r.Get("/messages/tier", h.MessagingTier)
			r.Get("/messages/recipients", h.RegisteredNumbers)
			r.Get("/messages/log", h.MessageLog)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.Conversations)
				r.Get("/{number}/can-send-text", h.ConversationCheck)
				r.Get("/{number}/messages", h.ConversationThread)
			})

			r.Get("/dashboard/usage", h.DashboardUsage)

			r.Route("/subscription", func(r chi.Router) {
				r.Get("/", h.Subscription)
				r.Get("/billing", h.BillingHistory)
				r.Post("/requests", h.CreateSubRequest)
				r.Get("/requests", h.ListSubRequests)
			})
		})

		// Operator routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.AdminMiddleware)

			r.Post("/clients", h.Onboard)
			r.Get("/clients", h.ListClients)
			r.Patch("/clients/{id}", h.UpdateClient)
			r.Delete("/clients/{id}", h.DeleteClient)
			r.Post("/clients/{id}/revoke-key", h.RevokeKey)
			r.Post("/clients/{id}/restore-key", h.RestoreKey)

			r.Post("/plans", h.CreatePlan)
			r.Get("/analytics", h.Analytics)
			r.Get("/provider/status", h.ProviderStatus)

			r.Get("/requests", h.AdminListRequests)
			r.Post("/requests/{id}/process", h.ProcessRequest)
		})
	})

	return r
}
