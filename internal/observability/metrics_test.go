package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordIntoRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("/issues", "POST", 201, 15*time.Millisecond)
	m.RecordRequest("/issues", "POST", 201, 5*time.Millisecond)
	m.RecordError("/issues", "POST", "QUOTA_EXCEEDED")
	m.IncrementQuotaRejections()
	m.RecordPaymentVerified("subscription", "duplicate")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("/issues", "POST", "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("/issues", "POST", "QUOTA_EXCEEDED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.quotaRejections))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.paymentsVerified.WithLabelValues("subscription", "duplicate")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "INTERNAL_ERROR")
		m.IncrementIssuesCreated()
		m.IncrementLedgerAnomalies()
		m.IncrementEntitlementRetries()
		m.IncrementReconciled()
	})
}
