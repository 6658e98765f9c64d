package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts all HTTP requests by method, endpoint and status
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight tracks requests currently being handled
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being handled",
		},
	)

	// PaymentsInitiated counts mobile money charge requests by provider
	PaymentsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Total number of mobile money charges initiated",
		},
		[]string{"provider"},
	)

	// PaymentOutcomes counts settled payment polls by provider and outcome
	PaymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Total number of payment poll outcomes",
		},
		[]string{"provider", "outcome"},
	)

	// NotificationsDelivered counts notification deliveries by channel
	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total number of notifications delivered",
		},
		[]string{"kind", "channel"},
	)

	// WebsocketConnections tracks currently connected websocket clients
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Number of currently connected websocket clients",
		},
	)
)

// PrometheusMiddleware collects HTTP metrics for every request
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()

		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// TrackPayment records a payment initiation
func TrackPayment(provider string) {
	PaymentsInitiated.WithLabelValues(provider).Inc()
}

// TrackPaymentOutcome records a settled payment poll
func TrackPaymentOutcome(provider, outcome string) {
	PaymentOutcomes.WithLabelValues(provider, outcome).Inc()
}

// TrackNotification records a notification delivery
func TrackNotification(kind, channel string) {
	NotificationsDelivered.WithLabelValues(kind, channel).Inc()
}
