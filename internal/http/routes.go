package httpx

import (
	"context"
	"log/slog"
	"net/http"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Dispatch DispatchAPI // Required
	// BaseContext scopes background dispatch jobs; cancelled on shutdown.
	BaseContext context.Context
	// APIToken enables bearer auth on /api routes when non-empty.
	APIToken string
	// AllowedOrigins restricts CORS and the event stream. Empty allows any origin.
	AllowedOrigins []string
	// Readiness checks run by GET /readyz, keyed by dependency name.
	Readiness map[string]ReadinessCheck
	Logger    *slog.Logger
}

// NewRouter creates and configures the HTTP router with CORS handling.
// Logging, recovery, and compression are layered on by the caller.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	origins := NewOriginPolicy(services.AllowedOrigins)

	dispatchHandlers := &DispatchHandlers{
		Svc:         services.Dispatch,
		BaseContext: services.BaseContext,
		Logger:      logger.With("component", "http_dispatch"),
	}
	registerDispatchRoutes(mux, dispatchHandlers, dispatchRouteConfig{
		Auth:    RequireToken(services.APIToken),
		Origins: origins,
	})

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Readiness))

	return CORS(origins)(mux)
}

type dispatchRouteConfig struct {
	Auth    func(http.Handler) http.Handler
	Origins *OriginPolicy
}

func registerDispatchRoutes(mux *http.ServeMux, h *DispatchHandlers, cfg dispatchRouteConfig) {
	wrap := cfg.Auth
	if wrap == nil {
		wrap = func(hh http.Handler) http.Handler { return hh }
	}
	mux.Handle("POST /api/dispatch/start", wrap(http.HandlerFunc(h.Start)))
	mux.Handle("POST /api/dispatch/stop", wrap(http.HandlerFunc(h.Stop)))
	mux.Handle("POST /api/dispatch/reset", wrap(http.HandlerFunc(h.Reset)))
	mux.Handle("GET /api/dispatch/state", wrap(http.HandlerFunc(h.State)))
	mux.Handle("GET /api/dispatch/logs", wrap(http.HandlerFunc(h.Logs)))
	mux.Handle("POST /api/dispatch/logs/clear", wrap(http.HandlerFunc(h.ClearLogs)))
	mux.Handle("GET /api/dispatch/ws", wrap(h.EventStream(cfg.Origins)))
}
