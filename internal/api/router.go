package api

import (
	"github.com/ayo6706/anchor-platform/internal/api/handler"
	"github.com/ayo6706/anchor-platform/internal/api/middleware"
	"github.com/ayo6706/anchor-platform/internal/api/spec"
	"github.com/ayo6706/anchor-platform/internal/config"
	"github.com/ayo6706/anchor-platform/internal/idempotency"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

const publicRateLimitRPS = 20

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	rpc    handler.RPCDispatcher
	idem   *idempotency.Store
	health *handler.HealthHandler
}

// NewRouter wires the platform API. idem may be nil, which disables
// Idempotency-Key replay.
func NewRouter(cfg *config.Config, logger *zap.Logger, rpc handler.RPCDispatcher, idem *idempotency.Store, health *handler.HealthHandler) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, rpc: rpc, idem: idem, health: health}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	rpcHandler := handler.NewRPCHandler(api.rpc)

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(publicRateLimitRPS))
		if api.health != nil {
			r.Get("/health", api.health.Ready)
			r.Get("/health/live", api.health.Live)
		}
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/docs/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/openapi.yaml")))
	})

	// Platform API
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.RPCRateLimitRPS))
		r.With(middleware.IdempotencyMiddleware(api.idem, api.logger)).Post("/rpc", rpcHandler.Handle)
	})

	return r
}
