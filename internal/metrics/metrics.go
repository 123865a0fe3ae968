package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/batch"
)

const namespace = "paddydryer"

// Login outcomes.
const (
	LoginSuccess    = "success"
	LoginInvalidPIN = "invalid_pin"
	LoginLockedOut  = "locked_out"
	LoginError      = "error"
)

// Collector records core metrics into a private registry.
//
// It implements batch.EventSink, and SessionEnded has the signature of an
// auth.SessionManager session-end listener.
//
// Thread Safety: All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	logins       *prometheus.CounterVec
	sessionEnds  *prometheus.CounterVec
	batchEvents  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a collector with the Go runtime and process collectors
// already registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "PIN login attempts by outcome",
		}, []string{"outcome"}),
		sessionEnds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_ends_total",
			Help:      "Ended operator sessions by reason",
		}, []string{"reason"}),
		batchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "events_total",
			Help:      "Committed batch events by type",
		}, []string{"type"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveLogin counts a login attempt by the error Login returned.
func (c *Collector) ObserveLogin(err error) {
	c.logins.WithLabelValues(loginOutcome(err)).Inc()
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return LoginSuccess
	case errors.Is(err, auth.ErrLockedOut):
		return LoginLockedOut
	case errors.Is(err, auth.ErrInvalidPIN):
		return LoginInvalidPIN
	default:
		return LoginError
	}
}

// SessionEnded counts an ended session.
func (c *Collector) SessionEnded(reason auth.EndReason) {
	c.sessionEnds.WithLabelValues(string(reason)).Inc()
}

// BatchEvent counts a committed batch event.
func (c *Collector) BatchEvent(_ context.Context, e batch.Event) {
	c.batchEvents.WithLabelValues(string(e.Type)).Inc()
}

// ObserveRequest records one routed HTTP request. route is the matched
// pattern, not the raw path, so IDs do not explode label cardinality.
func (c *Collector) ObserveRequest(method, route string, code int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
// It returns an error if a metric with the same name is already registered.
func (c *Collector) GaugeFunc(subsystem, name, help string, fn func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
	return c.registry.Register(g)
}
