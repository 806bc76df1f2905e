package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"eventproxy/internal/api/controllers"
	"eventproxy/internal/api/handlers"
	"eventproxy/internal/middleware"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/services"
)

// Dependencies are the components the HTTP surface is assembled from.
type Dependencies struct {
	Auth         services.AuthService
	Deployments  services.DeploymentService
	Quota        services.QuotaService
	Metrics      services.MetricsService
	Forwarder    handlers.Forwarder
	RateLimiter  *middleware.RateLimiter
	MaxBodyBytes int64
	HealthChecks map[string]controllers.Check
}

func SetupRoutes(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.LoggingMiddleware)
	// router middleware does not run for unmatched requests
	router.NotFoundHandler = middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, apperrors.RouteNotFound())
	}))
	router.MethodNotAllowedHandler = middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, apperrors.MethodNotAllowed(r.Method))
	}))

	proxyHandler := handlers.NewProxyHandler(deps.Deployments, deps.Quota, deps.Forwarder)
	eventInfoHandler := handlers.NewEventInfoHandler(deps.Deployments, deps.Quota, deps.Metrics)

	router.HandleFunc("/health", controllers.HealthCheckHandler(deps.HealthChecks)).Methods(http.MethodGet)

	eventAuth := middleware.AuthMiddleware(deps.Auth)

	// Azure-style paths, served both at the root and under /api/v1
	for _, prefix := range []string{"", "/api/v1"} {
		deployments := router.PathPrefix(prefix + "/openai/deployments").Subrouter()
		deployments.Use(eventAuth)
		if deps.RateLimiter != nil {
			deployments.Use(deps.RateLimiter.RateLimit)
		}
		deployments.Use(middleware.BodyLimit(deps.MaxBodyBytes))
		deployments.HandleFunc("/{deployment}/{operation:.+}", proxyHandler.Proxy)
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(eventAuth)
	apiRouter.HandleFunc("/eventinfo", eventInfoHandler.GetEventInfo).Methods(http.MethodGet)

	return router
}
