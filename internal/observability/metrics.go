package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errors            *prometheus.CounterVec
	issuesCreated     prometheus.Counter
	quotaRejections   prometheus.Counter
	ledgerAnomalies   prometheus.Counter
	paymentsVerified  *prometheus.CounterVec
	entitlementRetry  prometheus.Counter
	reconciledPayment prometheus.Counter
}

// NewMetrics registers collectors with reg. Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_service_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issue_service_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_service_http_errors_total",
			Help: "HTTP errors by route, method and error code",
		}, []string{"path", "method", "code"}),
		issuesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "issue_service_issues_created_total",
			Help: "Issues successfully reported",
		}),
		quotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "issue_service_quota_rejections_total",
			Help: "Issue reports refused because the free limit was reached",
		}),
		ledgerAnomalies: factory.NewCounter(prometheus.CounterOpts{
			Name: "issue_service_ledger_anomalies_total",
			Help: "Quota releases that found the counter already at zero",
		}),
		paymentsVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_service_payments_verified_total",
			Help: "Payment verifications by outcome",
		}, []string{"type", "outcome"}),
		entitlementRetry: factory.NewCounter(prometheus.CounterOpts{
			Name: "issue_service_entitlement_retries_total",
			Help: "Boost applications retried after a concurrent issue update",
		}),
		reconciledPayment: factory.NewCounter(prometheus.CounterOpts{
			Name: "issue_service_entitlements_reconciled_total",
			Help: "Entitlements applied by the reconciliation worker",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) IncrementIssuesCreated() {
	if m == nil {
		return
	}
	m.issuesCreated.Inc()
}

func (m *Metrics) IncrementQuotaRejections() {
	if m == nil {
		return
	}
	m.quotaRejections.Inc()
}

func (m *Metrics) IncrementLedgerAnomalies() {
	if m == nil {
		return
	}
	m.ledgerAnomalies.Inc()
}

// RecordPaymentVerified counts a verification; outcome is processed, duplicate or entitlement_pending.
func (m *Metrics) RecordPaymentVerified(paymentType, outcome string) {
	if m == nil {
		return
	}
	m.paymentsVerified.WithLabelValues(paymentType, outcome).Inc()
}

func (m *Metrics) IncrementEntitlementRetries() {
	if m == nil {
		return
	}
	m.entitlementRetry.Inc()
}

func (m *Metrics) IncrementReconciled() {
	if m == nil {
		return
	}
	m.reconciledPayment.Inc()
}
