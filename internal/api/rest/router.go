package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// RouterConfig carries everything the router wires together
type RouterConfig struct {
	Service  ComplianceService
	Stream   StreamRegistrar
	Health   *HealthService
	Auth     *AuthMiddleware
	Limiter  Limiter
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// NewRouter builds the HTTP handler for the compliance API
func NewRouter(cfg RouterConfig) http.Handler {
	h := NewHandler(cfg.Service, cfg.Stream, cfg.Logger)

	protected := []Middleware{cfg.Auth.Middleware}
	if cfg.Limiter != nil {
		protected = append(protected, RateLimitMiddleware(cfg.Limiter, cfg.Logger))
	}
	secure := func(fn http.HandlerFunc) http.Handler {
		return Chain(fn, protected...)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", cfg.Health.LivenessHandler)
	mux.HandleFunc("GET /health", cfg.Health.ReadinessHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	mux.Handle("GET /v1/compliance/config", secure(h.handleGetConfig))
	mux.Handle("PATCH /v1/compliance/config", secure(h.handleUpdateConfig))
	mux.Handle("POST /v1/compliance/check", secure(h.handleCheck))
	mux.Handle("POST /v1/compliance/sends", secure(h.handleRecordSend))

	mux.Handle("GET /v1/contacts/{contactID}/violations", secure(h.handleContactViolations))
	mux.Handle("GET /v1/journeys/{journeyID}/violations", secure(h.handleJourneyViolations))
	mux.Handle("POST /v1/violations/{violationID}/override", secure(h.handleOverride))
	mux.Handle("POST /v1/violations/{violationID}/resolve", secure(h.handleResolve))
	mux.Handle("GET /v1/violations/stream", secure(h.handleStream))

	return Chain(mux,
		RecoveryMiddleware(cfg.Logger),
		RequestIDMiddleware,
		TracingMiddleware(otel.Tracer("tcpa.api")),
		LoggingMiddleware(cfg.Logger),
		NewHTTPMetrics(cfg.Registry).Middleware,
	)
}
