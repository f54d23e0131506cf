package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requestsTotal  *prometheus.CounterVec
	latencySeconds *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec

	reviewTransitionsTotal      *prometheus.CounterVec
	otpIssuedTotal              prometheus.Counter
	otpConfirmFailuresTotal     prometheus.Counter
	notificationsPublishedTotal *prometheus.CounterVec
	emailsDispatchedTotal       *prometheus.CounterVec
	sseClientsActive            prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unicore_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unicore_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unicore_errors_total",
			Help: "Total number of error responses returned.",
		}, []string{"method", "route", "status"})

		reviewTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unicore_review_transitions_total",
			Help: "Review state transitions applied, labelled by history action.",
		}, []string{"action"})

		otpIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unicore_review_otp_issued_total",
			Help: "Review confirmation codes issued to professors.",
		})

		otpConfirmFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unicore_review_otp_confirm_failures_total",
			Help: "Review confirmation attempts rejected as expired or invalid.",
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unicore_notifications_published_total",
			Help: "Notifications created, labelled by type.",
		}, []string{"type"})

		emailsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unicore_emails_dispatched_total",
			Help: "Outbound emails attempted, labelled by outcome.",
		}, []string{"outcome"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unicore_sse_clients_active",
			Help: "Currently connected notification stream clients.",
		})

		prometheus.MustRegister(
			requestsTotal, latencySeconds, errorsTotal,
			reviewTransitionsTotal, otpIssuedTotal, otpConfirmFailuresTotal,
			notificationsPublishedTotal, emailsDispatchedTotal, sseClientsActive,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// ReviewTransitions exposes the counter for applied state transitions.
func ReviewTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewTransitionsTotal
}

// OTPIssued exposes the counter for issued confirmation codes.
func OTPIssued() prometheus.Counter {
	RegisterMetrics()
	return otpIssuedTotal
}

// OTPConfirmFailures exposes the counter for rejected confirmations.
func OTPConfirmFailures() prometheus.Counter {
	RegisterMetrics()
	return otpConfirmFailuresTotal
}

// NotificationsPublished exposes the counter for created notifications.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// EmailsDispatched exposes the counter for outbound email attempts.
func EmailsDispatched() *prometheus.CounterVec {
	RegisterMetrics()
	return emailsDispatchedTotal
}

// SSEClientsActive exposes the gauge for connected stream clients.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}
