// Package metrics owns the Prometheus collectors the service exports on
// /metrics.
//
// Collectors live on a private registry instead of the global default one,
// so tests can build as many Metrics as they like without "duplicate
// registration" panics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes used as the "outcome" label.
const (
	OutcomeSuccess              = "success"
	OutcomeInsufficientCapacity = "insufficient_capacity"
	OutcomeNotFound             = "not_found"
	OutcomeInvalid              = "invalid"
	OutcomeConflict             = "conflict"
	OutcomeError                = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	Bookings            *prometheus.CounterVec
	BookingRetries      prometheus.Counter
	CapacityAdjustments *prometheus.CounterVec
	Logins              *prometheus.CounterVec
	LiveClients         prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradphoto",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gradphoto",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradphoto",
			Name:      "bookings_total",
			Help:      "Booking engine operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		BookingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gradphoto",
			Name:      "booking_retries_total",
			Help:      "Booking attempts repeated after a transaction conflict.",
		}),
		CapacityAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradphoto",
			Name:      "capacity_adjustments_total",
			Help:      "Administrative capacity adjustments by outcome.",
		}, []string{"outcome"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradphoto",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gradphoto",
			Name:      "live_clients",
			Help:      "Websocket clients subscribed to slot updates.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.Bookings,
		m.BookingRetries,
		m.CapacityAdjustments,
		m.Logins,
		m.LiveClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Booking records one booking engine call. A nil *Metrics records nothing.
func (m *Metrics) Booking(op, outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.BookingRetries.Inc()
}

func (m *Metrics) CapacityAdjusted(outcome string) {
	if m == nil {
		return
	}
	m.CapacityAdjustments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.LiveClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.LiveClients.Dec()
}

// Middleware counts requests per chi route pattern. Raw paths would give one
// series per user or slot ID.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
