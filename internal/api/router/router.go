package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/chat-moderator/internal/conversation"
	httpmiddleware "github.com/wolfman30/chat-moderator/internal/http/middleware"
	"github.com/wolfman30/chat-moderator/internal/room"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	RoomHub             *room.Hub
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// ChatLimiter throttles POST /chat per client; nil disables limiting.
	ChatLimiter *httpmiddleware.RateLimiter

	// HealthCheck pings backing stores; nil reports healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.RoomHub != nil {
		r.Get("/chat/ws", cfg.RoomHub.HandleWebSocket)
	}

	if h := cfg.ConversationHandler; h != nil {
		r.Group(func(api chi.Router) {
			api.Use(middleware.Compress(5))
			api.With(httpmiddleware.RateLimit(cfg.ChatLimiter)).Post("/chat", h.Chat)
			api.Get("/chat/history", h.History)
			api.Post("/chat/reset", h.Reset)
			api.Post("/admin/archive", h.Archive)
		})
	}

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body = map[string]string{"status": "degraded", "error": err.Error()}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
