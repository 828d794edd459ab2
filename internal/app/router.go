package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/fleetgate/fleetgate/internal/auth"
	"github.com/fleetgate/fleetgate/internal/devices"
	"github.com/fleetgate/fleetgate/internal/observability"
	"github.com/fleetgate/fleetgate/internal/permissions"
	"github.com/fleetgate/fleetgate/internal/roles"
	"github.com/fleetgate/fleetgate/internal/users"
	"github.com/fleetgate/fleetgate/internal/vehicles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	AuthMiddleware     auth.Middleware
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	DevicesHandler     *devices.Handler
	VehiclesHandler    *vehicles.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Fleetgate defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Tighter limit on credential endpoints than the global API limiter.
			r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.AuthHandler.MountRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(params.AuthMiddleware.Authenticate)
				params.AuthHandler.MountProtectedRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate)
			params.UsersHandler.MountRoutes(r)
			params.RolesHandler.MountRoutes(r)
			params.PermissionsHandler.MountRoutes(r)
			params.DevicesHandler.MountRoutes(r)
			params.VehiclesHandler.MountRoutes(r)
		})
	})

	return r
}
