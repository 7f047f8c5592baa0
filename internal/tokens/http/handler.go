package tokenshttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/registration"
	"github.com/tatkal-desk/tatkal/internal/shared"
	"github.com/tatkal-desk/tatkal/internal/tokens"
)

const idempotencyModule = "registration"

type tokenService interface {
	SendRegistrationOTP(ctx context.Context, mobile, purpose string) error
	RegisterSelf(ctx context.Context, in tokens.SelfInput) (tokens.Registration, string, error)
	RegisterRepresentative(ctx context.Context, in tokens.RepresentativeInput) (tokens.Registration, string, error)
	IssueManual(ctx context.Context, in tokens.ManualInput) (tokens.Registration, error)
	Confirmation(ctx context.Context, reference, mobile string) (tokens.Registration, string, error)
	ToggleRegistration(ctx context.Context, actor tokens.Actor) (bool, error)
	GenerateList(ctx context.Context, actor tokens.Actor) error
	State() registration.Snapshot
	List(ctx context.Context, f tokens.ListFilter) ([]tokens.Token, tokens.Stats, error)
	Live(ctx context.Context, f tokens.ListFilter) ([]tokens.Token, tokens.Stats, error)
	PassengerList(ctx context.Context, search string) ([]tokens.Token, error)
	Cancel(ctx context.Context, in tokens.CancelInput) (tokens.Token, error)
	MarkServed(ctx context.Context, number string, actor tokens.Actor) (tokens.Token, error)
	Cancelled(ctx context.Context, f tokens.CancelledFilter) ([]tokens.Token, tokens.CancelledStats, error)
	Now() time.Time
}

type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler wires the registration and token monitoring endpoints.
type Handler struct {
	logger      *slog.Logger
	service     tokenService
	validate    *validator.Validate
	idempotency idempotencyStore
	access      access.Middleware
}

// NewHandler constructs a tokens HTTP handler. idem may be nil.
func NewHandler(logger *slog.Logger, service tokenService, idem idempotencyStore, mw access.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		validate:    httpx.NewValidator(),
		idempotency: idem,
		access:      mw,
	}
}

// MountPassengerRoutes registers passenger routes relative to /passenger.
func (h *Handler) MountPassengerRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.access.RequireRole(access.RolePassenger))
		r.Post("/register/self/otp", h.sendSelfOTP)
		r.Post("/register/self", h.registerSelf)
		r.Post("/register/representative/otp", h.sendRepresentativeOTP)
		r.Post("/register/representative", h.registerRepresentative)
		r.Get("/registrations/{ref}/confirmation", h.confirmation)
		r.Get("/token-list", h.passengerList)
		r.Get("/token-list.csv", h.passengerCSV)
	})
}

// MountAdminRoutes registers admin routes relative to /admin.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.With(h.access.RequireCapability(access.ManageRegistration)).Post("/registration/toggle", h.toggle)
	r.With(h.access.RequireCapability(access.IssueManualTokens)).Post("/manual-tokens", h.issueManual)
	r.Group(func(r chi.Router) {
		r.Use(h.access.RequireCapability(access.GenerateTokenList))
		r.Post("/token-list/generate", h.generate)
		r.Get("/token-list", h.adminList)
		r.Get("/token-list.csv", h.adminCSV)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.access.RequireCapability(access.ViewLiveMonitoring))
		r.Get("/live", h.live)
		r.Post("/live/{number}/cancel", h.cancel)
		r.Post("/live/{number}/serve", h.serve)
	})
	r.With(h.access.RequireCapability(access.ViewCancelledTokens)).Get("/cancelled", h.cancelled)
}

type selfOTPRequest struct {
	Aadhaar string `json:"aadhaar" validate:"required,len=12,numeric"`
	Name    string `json:"name" validate:"required,max=100"`
}

type representativeOTPRequest struct {
	PassengerAadhaar string `json:"passenger_aadhaar" validate:"required,len=12,numeric"`
	PassengerName    string `json:"passenger_name" validate:"required,max=100"`
	RepAadhaar       string `json:"rep_aadhaar" validate:"required,len=12,numeric"`
	RepName          string `json:"rep_name" validate:"required,max=100"`
}

type selfRequest struct {
	Aadhaar    string `json:"aadhaar" validate:"required,len=12,numeric"`
	Name       string `json:"name" validate:"required,max=100"`
	OTP        string `json:"otp" validate:"required,len=6,numeric"`
	Class      string `json:"class" validate:"required,oneof=AC Sleeper"`
	Passengers int    `json:"passengers" validate:"required,min=1,max=4"`
}

type representativeRequest struct {
	PassengerAadhaar string `json:"passenger_aadhaar" validate:"required,len=12,numeric"`
	PassengerName    string `json:"passenger_name" validate:"required,max=100"`
	PassengerOTP     string `json:"passenger_otp" validate:"required,len=6,numeric"`
	RepAadhaar       string `json:"rep_aadhaar" validate:"required,len=12,numeric"`
	RepName          string `json:"rep_name" validate:"required,max=100"`
	RepOTP           string `json:"rep_otp" validate:"required,len=6,numeric"`
	Class            string `json:"class" validate:"required,oneof=AC Sleeper"`
	Passengers       int    `json:"passengers" validate:"required,min=1,max=4"`
}

type manualRequest struct {
	PassengerName string `json:"passenger_name" validate:"required,max=100"`
	Class         string `json:"class" validate:"required,oneof=AC Sleeper"`
	Passengers    int    `json:"passengers" validate:"required,min=1,max=4"`
	Reason        string `json:"reason" validate:"required"`
	CustomReason  string `json:"custom_reason" validate:"required_if=Reason Other,max=200"`
}

type cancelRequest struct {
	Reason       string `json:"reason" validate:"required"`
	CustomReason string `json:"custom_reason" validate:"required_if=Reason Other,max=200"`
}

type registrationResponse struct {
	Registration tokens.Registration `json:"registration"`
	Slip         string              `json:"slip"`
}

type listResponse struct {
	Tokens     []tokens.Token        `json:"tokens"`
	Stats      tokens.Stats          `json:"stats"`
	State      registration.Snapshot `json:"state"`
	Pagination shared.Pagination     `json:"pagination"`
}

type cancelledResponse struct {
	Tokens     []tokens.Token        `json:"tokens"`
	Stats      tokens.CancelledStats `json:"stats"`
	Reasons    []string              `json:"reasons"`
	Pagination shared.Pagination     `json:"pagination"`
}

func (h *Handler) sendSelfOTP(w http.ResponseWriter, r *http.Request) {
	var req selfOTPRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	mobile := shared.PrincipalFromContext(r.Context()).Identity
	if err := h.service.SendRegistrationOTP(r.Context(), mobile, tokens.PurposeSelf); err != nil {
		h.fail(w, r, "send self otp", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "otp_sent"})
}

func (h *Handler) sendRepresentativeOTP(w http.ResponseWriter, r *http.Request) {
	var req representativeOTPRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if req.PassengerAadhaar == req.RepAadhaar {
		httpx.ValidationProblem(w, map[string]string{"rep_aadhaar": "must differ from passenger_aadhaar"})
		return
	}
	mobile := shared.PrincipalFromContext(r.Context()).Identity
	if err := h.service.SendRegistrationOTP(r.Context(), mobile, tokens.PurposeRepresentative); err != nil {
		h.fail(w, r, "send representative otp", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "otp_sent"})
}

func (h *Handler) registerSelf(w http.ResponseWriter, r *http.Request) {
	var req selfRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	h.withIdempotency(w, r, func() (tokens.Registration, string, error) {
		return h.service.RegisterSelf(r.Context(), tokens.SelfInput{
			Mobile:     shared.PrincipalFromContext(r.Context()).Identity,
			Aadhaar:    req.Aadhaar,
			Name:       req.Name,
			OTP:        req.OTP,
			Class:      tokens.Class(req.Class),
			Passengers: req.Passengers,
		})
	})
}

func (h *Handler) registerRepresentative(w http.ResponseWriter, r *http.Request) {
	var req representativeRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	h.withIdempotency(w, r, func() (tokens.Registration, string, error) {
		return h.service.RegisterRepresentative(r.Context(), tokens.RepresentativeInput{
			Mobile:           shared.PrincipalFromContext(r.Context()).Identity,
			PassengerAadhaar: req.PassengerAadhaar,
			PassengerName:    req.PassengerName,
			PassengerOTP:     req.PassengerOTP,
			RepAadhaar:       req.RepAadhaar,
			RepName:          req.RepName,
			RepOTP:           req.RepOTP,
			Class:            tokens.Class(req.Class),
			Passengers:       req.Passengers,
		})
	})
}

func (h *Handler) withIdempotency(w http.ResponseWriter, r *http.Request, register func() (tokens.Registration, string, error)) {
	key := strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
				return
			}
			h.fail(w, r, "idempotency check", err)
			return
		}
	}
	reg, slip, err := register()
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key, idempotencyModule); derr != nil {
				h.logger.WarnContext(r.Context(), "release idempotency key", slog.Any("error", derr))
			}
		}
		h.fail(w, r, "register", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/passenger/registrations/%s/confirmation", reg.Reference))
	httpx.JSON(w, http.StatusCreated, registrationResponse{Registration: reg, Slip: slip})
}

func (h *Handler) confirmation(w http.ResponseWriter, r *http.Request) {
	mobile := shared.PrincipalFromContext(r.Context()).Identity
	reg, slip, err := h.service.Confirmation(r.Context(), chi.URLParam(r, "ref"), mobile)
	if err != nil {
		h.fail(w, r, "confirmation", err)
		return
	}
	if r.URL.Query().Get("format") == "txt" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="registration-confirmation.txt"`)
		_, _ = w.Write([]byte(slip))
		return
	}
	httpx.JSON(w, http.StatusOK, registrationResponse{Registration: reg, Slip: slip})
}

func (h *Handler) passengerList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.PassengerList(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, r, "passenger token list", err)
		return
	}
	page := shared.PaginationFromRequest(r, len(list))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, listResponse{
		Tokens:     list[start:end],
		Stats:      tokens.Summarize(list),
		State:      h.service.State(),
		Pagination: page,
	})
}

func (h *Handler) passengerCSV(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.PassengerList(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, r, "passenger token csv", err)
		return
	}
	h.writeCSV(w, r, "token-list.csv", list, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	open, err := h.service.ToggleRegistration(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, "toggle registration", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"registration_open": open})
}

func (h *Handler) issueManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	reg, err := h.service.IssueManual(r.Context(), tokens.ManualInput{
		PassengerName: req.PassengerName,
		Class:         tokens.Class(req.Class),
		Passengers:    req.Passengers,
		Reason:        req.Reason,
		CustomReason:  req.CustomReason,
		Actor:         actorFrom(r),
	})
	if err != nil {
		h.fail(w, r, "issue manual token", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"registration": reg,
		"message":      "Manual token registered successfully! Token will be generated at 9:15 AM.",
	})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.GenerateList(r.Context(), actorFrom(r)); err != nil {
		h.fail(w, r, "generate token list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.State())
}

func (h *Handler) adminList(w http.ResponseWriter, r *http.Request) {
	h.listTokens(w, r, "admin token list", h.service.List)
}

func (h *Handler) live(w http.ResponseWriter, r *http.Request) {
	h.listTokens(w, r, "live monitoring", h.service.Live)
}

type listFunc func(context.Context, tokens.ListFilter) ([]tokens.Token, tokens.Stats, error)

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request, op string, list listFunc) {
	found, stats, err := list(r.Context(), listFilter(r))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	page := shared.PaginationFromRequest(r, len(found))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, listResponse{
		Tokens:     found[start:end],
		Stats:      stats,
		State:      h.service.State(),
		Pagination: page,
	})
}

func (h *Handler) adminCSV(w http.ResponseWriter, r *http.Request) {
	list, _, err := h.service.List(r.Context(), listFilter(r))
	if err != nil {
		h.fail(w, r, "admin token csv", err)
		return
	}
	name := fmt.Sprintf("token-list-%s.csv", h.service.Now().Format(time.DateOnly))
	h.writeCSV(w, r, name, list, true)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	t, err := h.service.Cancel(r.Context(), tokens.CancelInput{
		Number:       chi.URLParam(r, "number"),
		Reason:       req.Reason,
		CustomReason: req.CustomReason,
		Actor:        actorFrom(r),
	})
	if err != nil {
		h.fail(w, r, "cancel token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.MarkServed(r.Context(), chi.URLParam(r, "number"), actorFrom(r))
	if err != nil {
		h.fail(w, r, "serve token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) cancelled(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role, _ := access.ParseRole(allToEmpty(q.Get("role")))
	f := tokens.CancelledFilter{
		Search: q.Get("search"),
		Class:  tokens.Class(allToEmpty(q.Get("class"))),
		Type:   tokens.Kind(allToEmpty(q.Get("type"))),
		ByRole: role,
		Reason: allToEmpty(q.Get("reason")),
		Date:   q.Get("date"),
	}
	list, stats, err := h.service.Cancelled(r.Context(), f)
	if err != nil {
		h.fail(w, r, "cancelled tokens", err)
		return
	}
	page := shared.PaginationFromRequest(r, len(list))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, cancelledResponse{
		Tokens:     list[start:end],
		Stats:      stats,
		Reasons:    tokens.CancellationReasons,
		Pagination: page,
	})
}

func (h *Handler) writeCSV(w http.ResponseWriter, r *http.Request, filename string, list []tokens.Token, admin bool) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := tokens.WriteTokensCSV(w, list, admin); err != nil {
		h.logger.ErrorContext(r.Context(), "write token csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrConflict), errors.Is(err, httpx.ErrValidation):
		h.logger.DebugContext(r.Context(), op, slog.Any("error", err))
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func listFilter(r *http.Request) tokens.ListFilter {
	q := r.URL.Query()
	return tokens.ListFilter{
		Search: q.Get("search"),
		Class:  tokens.Class(allToEmpty(q.Get("class"))),
		Type:   tokens.Kind(allToEmpty(q.Get("type"))),
		Status: tokens.Status(allToEmpty(q.Get("status"))),
	}
}

func allToEmpty(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

func actorFrom(r *http.Request) tokens.Actor {
	p := shared.PrincipalFromContext(r.Context())
	return tokens.Actor{Name: p.Identity, Role: access.Role(p.Role)}
}
