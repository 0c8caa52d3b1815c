package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/replicore/permcore/internal/adapters/httpapi/middleware"
	"github.com/replicore/permcore/internal/platform/logger"
)

// NewRouter assembles the HTTP surface: health probes are public, every
// /v1 route runs behind the auth middleware (which still admits
// anonymous sessions - it resolves identity, it does not gate).
func NewRouter(
	authMiddleware *middleware.AuthMiddleware,
	permissionsHandler *PermissionsHandler,
	healthHandler *HealthHandler,
	log logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", healthHandler.GetLiveness)
	r.Get("/readyz", healthHandler.GetReadiness)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Middleware)

		r.Post("/tx/validate", permissionsHandler.ValidateWrite)
		r.Post("/tx/filter", permissionsHandler.FilterRead)
		r.Post("/tx/receive", permissionsHandler.ReceiveTransaction)
		r.Get("/roles", permissionsHandler.AssignedRoles)
		r.Post("/refresh", permissionsHandler.Refresh)
	})

	return r
}

// requestLogger logs each completed request with its status and timing.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info(r.Context(), "HTTP request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
