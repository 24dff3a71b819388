package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtrntr/energytrade/internal/auth"
)

var statuses = []auth.Status{
	auth.StatusUnauthenticated,
	auth.StatusValidating,
	auth.StatusAuthenticated,
	auth.StatusInvalid,
}

// Metrics owns a registry and every collector of the client and simulator
type Metrics struct {
	registry *prometheus.Registry

	SessionTransitions *prometheus.CounterVec
	Validations        *prometheus.CounterVec
	SessionStatus      *prometheus.GaugeVec
	APIRequestDuration *prometheus.HistogramVec

	HTTPRequestDuration *prometheus.HistogramVec
	OrdersTotal         *prometheus.CounterVec
	TradesTotal         prometheus.Counter
	FeedSubscribers     prometheus.Gauge
	FeedDropped         prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		SessionTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energy_session_transitions_total",
				Help: "Session state transitions",
			},
			[]string{"from", "to"},
		),
		Validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energy_session_validations_total",
				Help: "Finished token validations by outcome",
			},
			[]string{"outcome"},
		),
		SessionStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energy_session_status",
				Help: "1 for the current session status, 0 otherwise",
			},
			[]string{"status"},
		),
		APIRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "energy_api_request_duration_seconds",
				Help:    "Exchange API request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "energysim_http_request_duration_seconds",
				Help:    "Simulator HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path", "status"},
		),
		OrdersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energysim_orders_total",
				Help: "Orders handled by the simulator by action",
			},
			[]string{"action", "type"},
		),
		TradesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "energysim_trades_total",
				Help: "Fills executed by the simulator",
			},
		),
		FeedSubscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "energysim_feed_subscribers",
				Help: "Open market feed connections",
			},
		),
		FeedDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "energysim_feed_dropped_total",
				Help: "Market feed messages dropped for slow subscribers",
			},
		),
	}
	m.setStatus(auth.StatusUnauthenticated)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionTransition implements auth.Observer
func (m *Metrics) SessionTransition(from, to auth.Status) {
	m.SessionTransitions.WithLabelValues(from.String(), to.String()).Inc()
	m.setStatus(to)
}

// ValidationOutcome implements auth.Observer
func (m *Metrics) ValidationOutcome(outcome auth.Outcome) {
	m.Validations.WithLabelValues(string(outcome)).Inc()
}

// ObserveRequest implements exchangeapi.Observer. Status 0 means the
// request never got a response.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.APIRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

// OrderAction counts a simulator order action such as create or cancel
func (m *Metrics) OrderAction(action, orderType string) {
	m.OrdersTotal.WithLabelValues(action, orderType).Inc()
}

// TradeExecuted counts one simulator fill
func (m *Metrics) TradeExecuted() {
	m.TradesTotal.Inc()
}

// FeedSubscribed adjusts the market feed subscriber gauge by delta
func (m *Metrics) FeedSubscribed(delta int) {
	m.FeedSubscribers.Add(float64(delta))
}

// FeedDrop counts one market feed message not delivered
func (m *Metrics) FeedDrop() {
	m.FeedDropped.Inc()
}

// Middleware records simulator request metrics under the matched route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestDuration.WithLabelValues(r.Method, path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) setStatus(current auth.Status) {
	for _, s := range statuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.SessionStatus.WithLabelValues(s.String()).Set(v)
	}
}
