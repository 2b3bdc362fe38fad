package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "coraza_store"

type Metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LoginAttempts   *prometheus.CounterVec
	AuditFailures   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors on registry. Collectors that are
// already registered are reused, so building the runtime twice in one
// process is safe.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	requestCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	loginAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by channel and result",
		},
		[]string{"channel", "result"},
	)
	auditFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Action log writes that failed and were dropped",
		},
	)

	var err error
	if requestCount, err = register(registry, requestCount); err != nil {
		return nil, err
	}
	if requestDuration, err = register(registry, requestDuration); err != nil {
		return nil, err
	}
	if loginAttempts, err = register(registry, loginAttempts); err != nil {
		return nil, err
	}
	if auditFailures, err = register(registry, auditFailures); err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		LoginAttempts:   loginAttempts,
		AuditFailures:   auditFailures,
		gatherer:        registry,
	}, nil
}

func register[T prometheus.Collector](registry *prometheus.Registry, collector T) (T, error) {
	if err := registry.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveLogin counts one login attempt. Safe on a nil receiver.
func (m *Metrics) ObserveLogin(channel, result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
