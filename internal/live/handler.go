package live

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/clock"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header and those whose
// Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Handler upgrades monitoring clients onto the hub.
type Handler struct {
	hub    *Hub
	clock  *clock.Clock
	logger *slog.Logger
	access access.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, hub *Hub, clk *clock.Clock, mw access.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, clock: clk, logger: logger, access: mw}
}

// MountRoutes registers routes relative to /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.access.RequireCapability(access.ViewLiveMonitoring)).Get("/live/ws", h.serveWS)
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live upgrade failed", slog.Any("error", err))
		return
	}
	c := &client{hub: h.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	if h.clock != nil {
		if first, err := encode(TypeClock, h.clock.Snapshot()); err == nil {
			c.send <- first
		}
	}
	if !h.hub.attach(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
