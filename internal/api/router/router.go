package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/usmanalidev/demo-agent-ai/internal/http/handlers"
	httpmiddleware "github.com/usmanalidev/demo-agent-ai/internal/http/middleware"
	"github.com/usmanalidev/demo-agent-ai/internal/webchat"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Demos              *handlers.DemosHandler
	Sessions           *handlers.SessionsHandler
	WebChat            *webchat.Handler
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
}

// New creates the chi router with every route configured. Nil handlers
// leave their routes unregistered.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(cfg.RateLimiter.Middleware)
		}

		if cfg.Demos != nil {
			api.Get("/demos", cfg.Demos.List)
			api.Get("/demos/{feature}", cfg.Demos.Get)
		}

		api.Route("/chat", func(chat chi.Router) {
			if cfg.WebChat != nil {
				chat.Get("/ws", cfg.WebChat.HandleWebSocket)
			}
			if cfg.Sessions == nil {
				return
			}
			h := cfg.Sessions
			chat.Post("/sessions", h.Create)
			chat.Route("/sessions/{id}", func(s chi.Router) {
				s.Get("/", h.Get)
				s.Delete("/", h.Delete)
				s.Post("/messages", h.Submit)
				s.Put("/credential", h.SetCredential)
				s.Post("/replay/{messageID}", h.Replay)
				s.Get("/audio", h.Audio)
				s.Post("/demos/{feature}", h.StartDemo)
			})
		})
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
