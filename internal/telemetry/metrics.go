package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventregistration"

// Metrics exposes Prometheus collectors for the seat ledger and the HTTP layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ledgerOps       *prometheus.CounterVec
	ledgerDuration  *prometheus.HistogramVec
	ledgerRetries   *prometheus.CounterVec
	integrityIssues prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them with reg. If a collector
// is already registered (tests building several servers against the default
// registry), the existing one is reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seat_ledger",
			Name:      "operations_total",
			Help:      "Seat ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ledgerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "seat_ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in seat ledger operations, retries included.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		ledgerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seat_ledger",
			Name:      "retries_total",
			Help:      "Atomic units retried after a version conflict.",
		}, []string{"operation"}),
		integrityIssues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seat_ledger",
			Name:      "integrity_warnings_total",
			Help:      "Seat counter clamps and dangling registrations detected on cancel.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	var err error
	if m.ledgerOps, err = register(reg, m.ledgerOps); err != nil {
		return nil, err
	}
	if m.ledgerDuration, err = register(reg, m.ledgerDuration); err != nil {
		return nil, err
	}
	if m.ledgerRetries, err = register(reg, m.ledgerRetries); err != nil {
		return nil, err
	}
	if m.integrityIssues, err = register(reg, m.integrityIssues); err != nil {
		return nil, err
	}
	if m.httpRequests, err = register(reg, m.httpRequests); err != nil {
		return nil, err
	}
	if m.httpDuration, err = register(reg, m.httpDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveLedger records one finished ledger operation.
func (m *Metrics) ObserveLedger(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(operation, outcome).Inc()
	m.ledgerDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncLedgerRetry counts one retried atomic unit.
func (m *Metrics) IncLedgerRetry(operation string) {
	if m == nil {
		return
	}
	m.ledgerRetries.WithLabelValues(operation).Inc()
}

// IncIntegrityWarning counts one seat ledger integrity warning.
func (m *Metrics) IncIntegrityWarning() {
	if m == nil {
		return
	}
	m.integrityIssues.Inc()
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
