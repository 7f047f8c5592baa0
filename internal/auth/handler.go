package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      httpx.NewValidator(),
	}
}

// MountRoutes registers auth routes relative to /auth.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrf)
	r.Get("/me", h.me)
	r.Post("/passenger/otp", h.passengerOTP)
	r.Post("/passenger/login", h.passengerLogin)
	r.Post("/admin/login", h.adminLogin)
	r.Post("/logout", h.logout)
}

type otpForm struct {
	Mobile string `json:"mobile" validate:"required,len=10,numeric"`
}

type passengerLoginForm struct {
	Mobile string `json:"mobile" validate:"required,len=10,numeric"`
	OTP    string `json:"otp" validate:"required,len=6,numeric"`
}

type adminLoginForm struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type meResponse struct {
	Authenticated bool                `json:"authenticated"`
	Role          access.Role         `json:"role"`
	RoleLabel     string              `json:"role_label,omitempty"`
	Identity      string              `json:"identity,omitempty"`
	Name          string              `json:"name,omitempty"`
	Capabilities  []access.Capability `json:"capabilities"`
	CSRFToken     string              `json:"csrf_token,omitempty"`
}

func (h *Handler) csrf(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, describe(shared.PrincipalFromContext(r.Context())))
}

func (h *Handler) passengerOTP(w http.ResponseWriter, r *http.Request) {
	var form otpForm
	if !httpx.DecodeAndValidate(w, r, h.validator, &form) {
		return
	}
	sess, ok := h.anonymousSession(w, r)
	if !ok {
		return
	}
	if err := h.service.RequestPassengerOTP(r.Context(), form.Mobile); err != nil {
		h.logger.Error("request passenger otp", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "could not send OTP")
		return
	}
	sess.Set(otpMobileKey, form.Mobile)
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "otp_sent"})
}

func (h *Handler) passengerLogin(w http.ResponseWriter, r *http.Request) {
	var form passengerLoginForm
	if !httpx.DecodeAndValidate(w, r, h.validator, &form) {
		return
	}
	sess, ok := h.anonymousSession(w, r)
	if !ok {
		return
	}
	if sess.Get(otpMobileKey) != form.Mobile {
		httpx.Problem(w, http.StatusConflict, "Conflict", "request an OTP for this mobile number first")
		return
	}
	if err := h.service.AuthenticatePassenger(r.Context(), form.Mobile, form.OTP); err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid OTP")
		return
	}
	sess.Delete(otpMobileKey)
	h.login(w, sess, shared.Principal{Role: string(access.RolePassenger), Identity: form.Mobile})
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var form adminLoginForm
	if !httpx.DecodeAndValidate(w, r, h.validator, &form) {
		return
	}
	sess, ok := h.anonymousSession(w, r)
	if !ok {
		return
	}
	admin, err := h.service.AuthenticateAdmin(r.Context(), form.Username, form.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("admin login", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
		return
	}
	h.login(w, sess, shared.Principal{Role: string(admin.Role), Identity: admin.Username, Name: admin.Name})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.service.RecordLogout(r.Context(), sess.Principal())
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

// anonymousSession returns the request session, refusing a second login on
// an authenticated one.
func (h *Handler) anonymousSession(w http.ResponseWriter, r *http.Request) (*shared.Session, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return nil, false
	}
	if !sess.Principal().IsZero() {
		httpx.Problem(w, http.StatusConflict, "Conflict", shared.ErrSessionActive.Error()+": log out first")
		return nil, false
	}
	return sess, true
}

func (h *Handler) login(w http.ResponseWriter, sess *shared.Session, p shared.Principal) {
	if err := sess.SetPrincipal(p); err != nil {
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		return
	}
	token, err := h.csrfManager.RotateToken(sess)
	if err != nil {
		h.logger.Error("rotate csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	resp := describe(p)
	resp.CSRFToken = token
	httpx.JSON(w, http.StatusOK, resp)
}

func describe(p shared.Principal) meResponse {
	role, _ := access.ParseRole(p.Role)
	resp := meResponse{
		Authenticated: !p.IsZero(),
		Role:          role,
		Identity:      p.Identity,
		Name:          p.Name,
		Capabilities:  access.CapabilitiesFor(role).Sorted(),
	}
	if role.IsAdmin() {
		resp.RoleLabel = role.DisplayName()
	}
	return resp
}
