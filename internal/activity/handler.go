package activity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/shared"
)

// Handler serves the activity monitor.
type Handler struct {
	logger *slog.Logger
	log    *Log
	access access.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, log *Log, mw access.Middleware) *Handler {
	return &Handler{logger: logger, log: log, access: mw}
}

// MountRoutes registers the activity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.access.RequireCapability(access.ViewAdminActivity)).Get("/activity", h.list)
}

type listResponse struct {
	Entries    []Entry           `json:"entries"`
	Stats      Stats             `json:"stats"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role, _ := access.ParseRole(q.Get("role"))
	filter := Filter{
		Search: q.Get("search"),
		Role:   role,
		Status: Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
	}
	if filter.Status == "all" {
		filter.Status = ""
	}
	entries := h.log.List(filter)
	page := shared.PaginationFromRequest(r, len(entries))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, listResponse{
		Entries:    entries[start:end],
		Stats:      Summarize(entries),
		Pagination: page,
	})
}
