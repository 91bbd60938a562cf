// Package metrics holds the Prometheus collectors of wlt.
//
// Every recording method is safe on a nil *Metrics, so components built
// without metrics need no special casing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wlt-go/wlt/src/internal/errors"
)

// Result labels of Operations.
const (
	ResultOK         = "ok"
	ResultValidation = "validation_error"
	ResultTable      = "table_error"
	ResultInternal   = "internal_error"
)

// Metrics holds all wlt Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Service metrics
	Operations  *prometheus.CounterVec
	TableErrors *prometheus.CounterVec
	LockWait    prometheus.Histogram
	LockedKeys  prometheus.Gauge

	// Front-end metrics
	HTTPRequests *prometheus.CounterVec
	SSHSessions  prometheus.Counter
	SSHActive    prometheus.Gauge

	// Config metrics
	Reloads *prometheus.CounterVec

	// Listener metrics
	ListenerRestarts *prometheus.CounterVec
	ListenerUp       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on a private registry
// together with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wlt_operations_total",
			Help: "Total number of mark operations by kind and result",
		}, []string{"op", "result"}),
		TableErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wlt_table_errors_total",
			Help: "Total number of mark map failures by kind",
		}, []string{"kind"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wlt_address_lock_wait_seconds",
			Help:    "Time spent waiting for the per-address lock",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		LockedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wlt_address_locks",
			Help: "Number of addresses with an operation in flight",
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wlt_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		SSHSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wlt_ssh_sessions_total",
			Help: "Total number of SSH sessions",
		}),
		SSHActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wlt_ssh_sessions_active",
			Help: "Number of open SSH sessions",
		}),

		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wlt_config_reloads_total",
			Help: "Total number of configuration reloads by result",
		}, []string{"result"}),

		ListenerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wlt_listener_restarts_total",
			Help: "Total number of front-end listener restarts by listener and reason",
		}, []string{"listener", "reason"}),
		ListenerUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wlt_listener_up",
			Help: "Whether a front-end listener is serving (1) or not (0)",
		}, []string{"listener"}),
	}

	m.registry.MustRegister(
		m.Operations,
		m.TableErrors,
		m.LockWait,
		m.LockedKeys,
		m.HTTPRequests,
		m.SSHSessions,
		m.SSHActive,
		m.Reloads,
		m.ListenerRestarts,
		m.ListenerUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ResultOf maps an operation error to its result label.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.IsValidation(err):
		return ResultValidation
	case errors.IsTable(err):
		return ResultTable
	default:
		return ResultInternal
	}
}

// ObserveOperation counts one apply, reset or status call.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, ResultOf(err)).Inc()
	if kind := errors.TableKindOf(err); kind != "" {
		m.TableErrors.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

func (m *Metrics) SetLockedKeys(n int) {
	if m == nil {
		return
	}
	m.LockedKeys.Set(float64(n))
}

func (m *Metrics) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) SSHSessionStarted() {
	if m == nil {
		return
	}
	m.SSHSessions.Inc()
	m.SSHActive.Inc()
}

func (m *Metrics) SSHSessionEnded() {
	if m == nil {
		return
	}
	m.SSHActive.Dec()
}

func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = "error"
	}
	m.Reloads.WithLabelValues(result).Inc()
}

// ObserveListenerRestart counts a front-end that failed or panicked.
func (m *Metrics) ObserveListenerRestart(listener string, panicked bool) {
	if m == nil {
		return
	}
	reason := "error"
	if panicked {
		reason = "panic"
	}
	m.ListenerRestarts.WithLabelValues(listener, reason).Inc()
}

func (m *Metrics) SetListenerUp(listener string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.ListenerUp.WithLabelValues(listener).Set(v)
}
