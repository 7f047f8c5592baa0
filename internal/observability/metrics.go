package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the desk.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	registrations   *prometheus.CounterVec
	tokenEvents     *prometheus.CounterVec
	logins          *prometheus.CounterVec
	phase           *prometheus.GaugeVec
	liveClients     prometheus.Gauge
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tatkal_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tatkal_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tatkal_registrations_total",
		Help: "Accepted registrations by type and class.",
	}, []string{"type", "class"})
	tokenEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tatkal_token_events_total",
		Help: "Token lifecycle events (issued, served, cancelled).",
	}, []string{"event"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tatkal_logins_total",
		Help: "Login attempts by role and outcome.",
	}, []string{"role", "outcome"})
	phase := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tatkal_clock_phase",
		Help: "1 for the current daily phase, 0 otherwise.",
	}, []string{"phase"})
	liveClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tatkal_live_clients",
		Help: "Connected live monitoring websocket clients.",
	})
	registry.MustRegister(requests, duration, registrations, tokenEvents, logins, phase, liveClients)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		registrations:   registrations,
		tokenEvents:     tokenEvents,
		logins:          logins,
		phase:           phase,
		liveClients:     liveClients,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// RecordRegistration counts an accepted registration.
func (m *Metrics) RecordRegistration(kind, class string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(kind, class).Inc()
}

// RecordTokenEvent counts a token lifecycle event.
func (m *Metrics) RecordTokenEvent(event string) {
	if m == nil {
		return
	}
	m.tokenEvents.WithLabelValues(event).Inc()
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(role, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(role, outcome).Inc()
}

// SetPhase marks current as the active phase among all.
func (m *Metrics) SetPhase(current string, all ...string) {
	if m == nil {
		return
	}
	for _, p := range all {
		v := 0.0
		if p == current {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

// SetLiveClients reports the number of connected live feed clients.
func (m *Metrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.liveClients.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observability: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
