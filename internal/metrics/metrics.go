package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "okrtracker"

// Metrics holds all Prometheus collectors for the tracker.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Auth and access.
	AuthFailuresTotal   *prometheus.CounterVec
	AuthSuccessesTotal  *prometheus.CounterVec
	AccessDenialsTotal  *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec

	// Activity collector.
	ActivityFlushesTotal *prometheus.CounterVec
	ActivityEntriesTotal prometheus.Counter

	// Domain.
	SummariesTotal       *prometheus.CounterVec
	KeyResultHealthTotal *prometheus.CounterVec

	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "route"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures by reason.",
		}, []string{"reason"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_successes_total",
			Help:      "Total number of successful logins, registrations and refreshes.",
		}, []string{"method"}),

		AccessDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_denials_total",
			Help:      "Total number of requests denied by team access checks.",
		}, []string{"reason"}),

		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejections_total",
			Help:      "Total number of rate limit rejections.",
		}, []string{"scope"}),

		ActivityFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_flushes_total",
			Help:      "Total number of activity log flushes.",
		}, []string{"status"}),

		ActivityEntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_entries_total",
			Help:      "Total number of activity entries written.",
		}),

		SummariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Objective summaries by outcome.",
		}, []string{"outcome"}),

		KeyResultHealthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_result_health_evaluations_total",
			Help:      "Key result health evaluations by resulting status.",
		}, []string{"status"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_start_time_seconds",
			Help:      "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.AccessDenialsTotal,
		m.RateLimitRejections,
		m.ActivityFlushesTotal,
		m.ActivityEntriesTotal,
		m.SummariesTotal,
		m.KeyResultHealthTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAuthFailure increments the auth failure counter.
func (m *Metrics) IncAuthFailure(reason string) {
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// IncAuthSuccess increments the auth success counter.
func (m *Metrics) IncAuthSuccess(method string) {
	m.AuthSuccessesTotal.WithLabelValues(method).Inc()
}

// IncAccessDenied increments the access denial counter.
func (m *Metrics) IncAccessDenied(reason string) {
	m.AccessDenialsTotal.WithLabelValues(reason).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejections.WithLabelValues(scope).Inc()
}

// ObserveActivityFlush has the signature of activity.FlushFunc.
func (m *Metrics) ObserveActivityFlush(count int, err error) {
	if err != nil {
		m.ActivityFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	m.ActivityFlushesTotal.WithLabelValues("ok").Inc()
	m.ActivityEntriesTotal.Add(float64(count))
}

// ObserveSummary counts one summary request by outcome.
func (m *Metrics) ObserveSummary(outcome string) {
	m.SummariesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHealth counts one key result health evaluation.
func (m *Metrics) ObserveHealth(status string) {
	m.KeyResultHealthTotal.WithLabelValues(status).Inc()
}
