// Package router assembles the public HTTP surface of the service.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clientela-ai/clientela/internal/channels/instagram"
	"github.com/clientela-ai/clientela/internal/channels/whatsapp"
	"github.com/clientela-ai/clientela/internal/http/middleware"
	"github.com/clientela-ai/clientela/internal/pipeline"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// Config carries the handlers the router mounts. Nil handlers leave their
// routes unregistered so partial deployments stay possible.
type Config struct {
	Logger *logging.Logger

	PipelineHandler  *pipeline.Handler
	InstagramAdapter *instagram.Adapter
	WhatsAppAdapter  *whatsapp.Adapter
	MetricsHandler   http.Handler

	CORSAllowedOrigins []string
}

// New builds the chi router with the standard middleware stack and mounts
// every configured handler.
func New(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)

	if cfg.PipelineHandler != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/conversations/message", cfg.PipelineHandler.ProcessMessage)
		})
	}

	r.Route("/webhooks", func(r chi.Router) {
		if cfg.InstagramAdapter != nil {
			r.Get("/instagram", cfg.InstagramAdapter.HandleVerification)
			r.Post("/instagram", cfg.InstagramAdapter.HandleWebhook)
		}
		if cfg.WhatsAppAdapter != nil {
			r.Post("/whatsapp", cfg.WhatsAppAdapter.HandleWebhook)
		}
	})

	if cfg.MetricsHandler != nil {
		r.Get("/metrics", cfg.MetricsHandler.ServeHTTP)
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
