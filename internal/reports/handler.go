package reports

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
)

// Handler serves report pages and downloads.
type Handler struct {
	logger   *slog.Logger
	catalog  *Catalog
	now      func() time.Time
	validate *validator.Validate
	access   access.Middleware
}

// NewHandler constructs a Handler. now supplies the default report date.
func NewHandler(logger *slog.Logger, catalog *Catalog, now func() time.Time, mw access.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{logger: logger, catalog: catalog, now: now, validate: httpx.NewValidator(), access: mw}
}

// MountRoutes registers report routes relative to /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.access.RequireCapability(access.ViewReports))
		r.Get("/reports", h.show)
		r.Get("/reports/export", h.export)
	})
}

type reportQuery struct {
	Type string `json:"type" validate:"omitempty,oneof=daily weekly monthly"`
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type reportResponse struct {
	Type     Period   `json:"type"`
	Date     string   `json:"date"`
	Periods  []Period `json:"periods"`
	Summary  Summary  `json:"summary"`
	Insights Insights `json:"insights"`
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (Period, string, Summary, bool) {
	q := reportQuery{Type: r.URL.Query().Get("type"), Date: r.URL.Query().Get("date")}
	if err := h.validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			httpx.ValidationProblem(w, httpx.FieldErrors(verrs))
		} else {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		}
		return "", "", Summary{}, false
	}
	period := Period(q.Type)
	if period == "" {
		period = Daily
	}
	date := q.Date
	if date == "" {
		date = h.now().Format(time.DateOnly)
	}
	summary, err := h.catalog.Get(period)
	if err != nil {
		httpx.RespondError(w, err)
		return "", "", Summary{}, false
	}
	return period, date, summary, true
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	period, date, summary, ok := h.parse(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, reportResponse{
		Type:     period,
		Date:     date,
		Periods:  Periods,
		Summary:  summary,
		Insights: Derive(period, summary),
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	period, date, summary, ok := h.parse(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-report-%s.csv", period, date)))
	if err := WriteCSV(w, period, date, summary); err != nil {
		h.logger.ErrorContext(r.Context(), "write report csv", slog.Any("error", err))
	}
}
