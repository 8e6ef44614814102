package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robloxar/giftcard-bot/internal/http/handlers"
	httpmiddleware "github.com/robloxar/giftcard-bot/internal/http/middleware"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WebhookHandler     *handlers.WebhookHandler
	DashboardHandler   *handlers.DashboardHandler
	AuthHandler        *handlers.AuthHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health check, metrics)
	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// The webhook receiver stays public: MercadoLibre does not sign
		// notifications, the dedupe store and engine guards absorb noise.
		if cfg.WebhookHandler != nil {
			api.Post("/webhook", cfg.WebhookHandler.Receive)
		}

		// OAuth bootstrap is public too: the marketplace redirects the
		// operator's browser here without a bearer token.
		if cfg.AuthHandler != nil {
			api.Get("/auth/meli", cfg.AuthHandler.Login)
			api.Get("/auth/meli/callback", cfg.AuthHandler.Callback)
		}

		// Admin routes (protected by JWT)
		if cfg.AdminAuthSecret != "" {
			api.Group(func(admin chi.Router) {
				admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
				if cfg.WebhookHandler != nil {
					admin.Post("/webhook/simulate", cfg.WebhookHandler.Simulate)
				}
				if cfg.DashboardHandler != nil {
					admin.Get("/stats", cfg.DashboardHandler.Stats)
					admin.Get("/chats", cfg.DashboardHandler.Chats)
					admin.Get("/chats/{saleID}", cfg.DashboardHandler.ChatDetail)
					admin.Post("/chats/{saleID}/deliver", cfg.DashboardHandler.Deliver)
					admin.Get("/inventory", cfg.DashboardHandler.Inventory)
					admin.Post("/inventory/codes", cfg.DashboardHandler.Restock)
					admin.Get("/activity", cfg.DashboardHandler.Activity)
					admin.Get("/questions", cfg.DashboardHandler.Questions)
					admin.Get("/bot", cfg.DashboardHandler.BotStatus)
					admin.Post("/bot", cfg.DashboardHandler.SetBot)
					admin.Post("/check-messages", cfg.DashboardHandler.CheckMessages)
				}
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
