package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailcast/internal/auth"
	"github.com/sungwon/mailcast/internal/provider"
	"github.com/sungwon/mailcast/internal/storage"
)

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
// The quota parameter is optional; when nil, the quota endpoint reports unsupported.
func NewRouter(
	queries storage.Querier,
	db *storage.DB,
	submitter Submitter,
	topics Topics,
	events EventProcessor,
	quota provider.QuotaReporter,
	jwtService *auth.JWTService,
	log zerolog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	// Provider-facing endpoints (no auth required - called by SNS and
	// by recipients' mail clients)
	r.Post("/api/v1/events/results", CreateEventHandler(events))
	r.Get("/api/v1/events/open", OpenMessageHandler(events))

	// API routes (auth required)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.BearerAuth(jwtService))

		r.Post("/messages", SubmitMessagesHandler(submitter))

		r.Get("/topics/{topicID}", GetTopicHandler(topics))
		r.Delete("/topics/{topicID}", CancelTopicHandler(topics))

		r.Get("/events/counts/sent", GetSentCountHandler(queries))
		r.Get("/quota", GetQuotaHandler(quota))
	})

	return r
}
