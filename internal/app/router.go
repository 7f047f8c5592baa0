package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tatkal-desk/tatkal/internal/activity"
	"github.com/tatkal-desk/tatkal/internal/auth"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/dashboard"
	"github.com/tatkal-desk/tatkal/internal/i18n"
	"github.com/tatkal-desk/tatkal/internal/live"
	"github.com/tatkal-desk/tatkal/internal/observability"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/reports"
	"github.com/tatkal-desk/tatkal/internal/shared"
	tokenshttp "github.com/tatkal-desk/tatkal/internal/tokens/http"
	"github.com/tatkal-desk/tatkal/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Clock          *clock.Clock
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	AuthHandler      *auth.Handler
	I18nHandler      *i18n.Handler
	DashboardHandler *dashboard.Handler
	TokensHandler    *tokenshttp.Handler
	LiveHandler      *live.Handler
	ReportsHandler   *reports.Handler
	ActivityHandler  *activity.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the desk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Clock != nil {
		r.Get("/clock", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, params.Clock.Snapshot())
		})
	}

	if params.I18nHandler != nil {
		r.Route("/i18n", params.I18nHandler.MountRoutes)
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/passenger", func(r chi.Router) {
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountPassengerRoutes(r)
		}
		if params.TokensHandler != nil {
			params.TokensHandler.MountPassengerRoutes(r)
		}
	})

	r.Route("/admin", func(r chi.Router) {
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountAdminRoutes(r)
		}
		if params.TokensHandler != nil {
			params.TokensHandler.MountAdminRoutes(r)
		}
		if params.LiveHandler != nil {
			params.LiveHandler.MountRoutes(r)
		}
		if params.ReportsHandler != nil {
			params.ReportsHandler.MountRoutes(r)
		}
		if params.ActivityHandler != nil {
			params.ActivityHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" "+r.URL.Path)
	})
	return r
}
