package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Webhook delivery metrics
	WebhookDeliveriesTotal    *prometheus.CounterVec
	WebhookDeliveryDuration   prometheus.Histogram
	WebhookQueueDepth         prometheus.Gauge
	WebhookDeadLettersTotal   prometheus.Counter
	WebhookRateLimitDeferrals prometheus.Counter

	// Session store metrics
	SessionsTotal  prometheus.Gauge
	MessagesStored prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "duetboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "duetboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "duetboard_webhook_deliveries_total",
				Help: "Resolved webhook deliveries by event type and outcome",
			},
			[]string{"event", "status"},
		),
		WebhookDeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "duetboard_webhook_delivery_duration_seconds",
				Help:    "Outbound webhook request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		WebhookQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "duetboard_webhook_queue_depth",
				Help: "Unresolved deliveries currently in the queue",
			},
		),
		WebhookDeadLettersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "duetboard_webhook_dead_letters_total",
				Help: "Deliveries that terminally failed",
			},
		),
		WebhookRateLimitDeferrals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "duetboard_webhook_rate_limit_deferrals_total",
				Help: "Deliveries deferred by the per-endpoint rate limit",
			},
		),
		SessionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "duetboard_sessions_total",
				Help: "Number of stored agent sessions",
			},
		),
		MessagesStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "duetboard_messages_stored_total",
				Help: "Total messages appended to sessions",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookDeliveriesTotal,
		m.WebhookDeliveryDuration,
		m.WebhookQueueDepth,
		m.WebhookDeadLettersTotal,
		m.WebhookRateLimitDeferrals,
		m.SessionsTotal,
		m.MessagesStored,
	)

	return m
}

// Handler returns the Prometheus scrape handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware instruments HTTP handlers with request count and duration
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
