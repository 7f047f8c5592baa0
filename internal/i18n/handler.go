package i18n

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/shared"
)

// Handler serves language selection and message tables.
type Handler struct {
	catalog  *Catalog
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog, validate: httpx.NewValidator()}
}

// MountRoutes registers routes relative to /i18n.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/languages", h.languages)
	r.Get("/messages", h.messages)
	r.Post("/language", h.choose)
}

// Resolve picks the language for r: an explicit ?lang, then the session
// choice, then Accept-Language.
func (h *Handler) Resolve(r *http.Request) string {
	if code := r.URL.Query().Get("lang"); h.catalog.Supports(code) {
		return code
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if code := sess.Get(SessionKey); h.catalog.Supports(code) {
			return code
		}
	}
	return h.catalog.Negotiate(r.Header.Get("Accept-Language"))
}

type chooseRequest struct {
	Code string `json:"code" validate:"required,max=8"`
}

func (h *Handler) languages(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"default":   h.catalog.Default(),
		"current":   h.Resolve(r),
		"languages": h.catalog.Languages(),
	})
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	code := h.Resolve(r)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"language": code,
		"messages": h.catalog.Messages(code),
	})
}

func (h *Handler) choose(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if !h.catalog.Supports(req.Code) {
		httpx.ValidationProblem(w, map[string]string{"code": "is not a supported language"})
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.Set(SessionKey, req.Code)
	httpx.JSON(w, http.StatusOK, map[string]string{"language": req.Code})
}
