package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordSweep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSweep("ALL", time.Second, nil)
	m.RecordSweep("ALL", time.Second, errors.New("store down"))
	m.RecordSweep("CRITICAL", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepsTotal.WithLabelValues("ALL", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepsTotal.WithLabelValues("ALL", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepsTotal.WithLabelValues("CRITICAL", "ok")))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAlert("BREACH")
	m.RecordAlert("BREACH")
	m.RecordSuppressed("WARNING")
	m.RecordTransition("RESPONSE", "BREACHED")
	m.RecordNotificationDropped()
	m.RecordNotificationFailure()
	m.SetDedupEntries(7)
	m.RecordRequest("/health/live", "GET", 200, time.Millisecond)
	m.RecordError("/internal/sla/tickets/:id", "GET", "NOT_FOUND")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsTotal.WithLabelValues("BREACH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suppressedTotal.WithLabelValues("WARNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("RESPONSE", "BREACHED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.dedupEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/health/live", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("/internal/sla/tickets/:id", "GET", "NOT_FOUND")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSweep("ALL", time.Second, nil)
		m.RecordAlert("BREACH")
		m.SetDedupEntries(1)
		m.RecordRequest("/", "GET", 200, 0)
	})
}
