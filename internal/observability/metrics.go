package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "helpdesk_sla"

// Metrics holds the Prometheus collectors exported by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec

	sweepsTotal      *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	alertsTotal      *prometheus.CounterVec
	suppressedTotal  *prometheus.CounterVec
	dedupEntries     prometheus.Gauge

	notificationFailures prometheus.Counter
	notificationDropped  prometheus.Counter
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses, by route, method and error code.",
		}, []string{"path", "method", "code"}),
		sweepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Monitor sweeps run, by tier and outcome.",
		}, []string{"tier", "outcome"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Monitor sweep latency, by tier.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"tier"}),
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Ledger phase transitions, by phase and resulting status.",
		}, []string{"phase", "status"}),
		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts handed to the notification sink, by kind.",
		}, []string{"kind"}),
		suppressedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts suppressed by the deduplication set, by kind.",
		}, []string{"kind"}),
		dedupEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_entries",
			Help:      "Keys currently held by the deduplication set.",
		}),
		notificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Alerts the sink failed to deliver.",
		}),
		notificationDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_dropped_total",
			Help:      "Alerts dropped because the notification queue was full.",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(path, method, code).Inc()
}

// RecordSweep observes one completed sweep.
func (m *Metrics) RecordSweep(tier string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sweepsTotal.WithLabelValues(tier, outcome).Inc()
	m.sweepDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordTransition counts a ledger phase transition.
func (m *Metrics) RecordTransition(phase, status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(phase, status).Inc()
}

// RecordAlert counts an alert handed to the sink.
func (m *Metrics) RecordAlert(kind string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(kind).Inc()
}

// RecordSuppressed counts an alert swallowed by deduplication.
func (m *Metrics) RecordSuppressed(kind string) {
	if m == nil {
		return
	}
	m.suppressedTotal.WithLabelValues(kind).Inc()
}

// SetDedupEntries publishes the current size of the deduplication set.
func (m *Metrics) SetDedupEntries(n int) {
	if m == nil {
		return
	}
	m.dedupEntries.Set(float64(n))
}

// RecordNotificationFailure counts a failed delivery.
func (m *Metrics) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}

// RecordNotificationDropped counts an alert rejected by a full queue.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.notificationDropped.Inc()
}
