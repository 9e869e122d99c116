package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/ports"
)

type RouterConfig struct {
	Service   *application.Service
	Handler   *Handler
	Logger    *slog.Logger
	Metrics   ports.MetricsRecorder
	JWTSecret []byte
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(observeMiddleware(logger, cfg.Metrics))

	r.Get("/healthz", cfg.Handler.healthz)
	r.Get("/readyz", cfg.Handler.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identityMiddleware(cfg.Service, cfg.JWTSecret))

		r.Group(func(r chi.Router) {
			r.Use(admissionMiddleware(cfg.Service, domain.EndpointClassGeneration))
			r.Post("/generations", cfg.Handler.createGeneration)
		})

		r.Group(func(r chi.Router) {
			r.Use(admissionMiddleware(cfg.Service, domain.EndpointClassStatus))
			r.Get("/tasks/{task_id}", cfg.Handler.getTask)
			r.Get("/tasks/{task_id}/result", cfg.Handler.getTaskResult)
			r.Get("/webhooks/{webhook_id}/deliveries", cfg.Handler.listDeliveries)
		})

		r.Group(func(r chi.Router) {
			r.Use(admissionMiddleware(cfg.Service, domain.EndpointClassAdmin))
			r.Post("/webhooks", cfg.Handler.createSubscription)
			r.Get("/admin/alerts", cfg.Handler.listAlerts)
			r.Get("/admin/thresholds", cfg.Handler.getThresholds)
			r.Put("/admin/thresholds", cfg.Handler.putThresholds)
			r.Post("/admin/blocks", cfg.Handler.createBlock)
		})
	})
	return r
}
