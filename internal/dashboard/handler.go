package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/shared"
)

// Handler serves the dashboards.
type Handler struct {
	logger  *slog.Logger
	service *Service
	access  access.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, mw access.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, access: mw}
}

// MountPassengerRoutes registers routes relative to /passenger.
func (h *Handler) MountPassengerRoutes(r chi.Router) {
	r.With(h.access.RequireRole(access.RolePassenger)).Get("/dashboard", h.passenger)
}

// MountAdminRoutes registers routes relative to /admin.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.With(h.access.RequireRole(access.AdminRoles...)).Get("/dashboard", h.admin)
}

func (h *Handler) passenger(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	view, err := h.service.Passenger(r.Context(), p.Identity)
	if err != nil {
		h.logger.Error("passenger dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	role, _ := access.CurrentRole(r)
	p := shared.PrincipalFromContext(r.Context())
	view, err := h.service.Admin(r.Context(), role, p.Name)
	if err != nil {
		h.logger.Error("admin dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
