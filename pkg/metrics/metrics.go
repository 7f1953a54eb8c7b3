package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Webhook metrics
	WebhookEventsTotal   *prometheus.CounterVec
	WebhookEventDuration *prometheus.HistogramVec

	// Extraction metrics
	ExtractionDuration  *prometheus.HistogramVec
	LLMRequestsTotal    *prometheus.CounterVec
	LLMErrors           *prometheus.CounterVec
	ClaimNumbersDecoded *prometheus.CounterVec

	// Tracking metrics
	FactsRecorded       *prometheus.CounterVec
	LeadsCreated        *prometheus.CounterVec
	ConversionsDetected *prometheus.CounterVec
	TrackingSkipped     *prometheus.CounterVec

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionErrors  *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		// Initialize webhook metrics
		WebhookEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_webhook_events_total",
				Help: "Total number of webhook events received",
			},
			[]string{"event_type", "status"},
		)

		WebhookEventDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_webhook_event_duration_seconds",
				Help:    "End-to-end processing time for one webhook event",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"event_type"},
		)

		// Initialize extraction metrics
		ExtractionDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_extraction_duration_seconds",
				Help:    "Time taken to extract structured fields from a transcript",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"category"},
		)

		LLMRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_llm_requests_total",
				Help: "Total number of LLM extraction requests",
			},
			[]string{"model", "status"},
		)

		LLMErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_llm_errors_total",
				Help: "Total number of LLM extraction errors",
			},
			[]string{"model", "error_type"},
		)

		ClaimNumbersDecoded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_claim_numbers_decoded_total",
				Help: "Total number of claim numbers recovered from confirmed readbacks",
			},
			[]string{"status"},
		)

		// Initialize tracking metrics
		FactsRecorded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_caller_facts_recorded_total",
				Help: "Total number of caller facts appended",
			},
			[]string{"field_name"},
		)

		LeadsCreated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_leads_created_total",
				Help: "Total number of leads created",
			},
			[]string{"tenant_id"},
		)

		ConversionsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_conversions_detected_total",
				Help: "Total number of lead-to-client conversions detected",
			},
			[]string{"tenant_id"},
		)

		TrackingSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_tracking_skipped_total",
				Help: "Total number of calls skipped by caller/lead tracking",
			},
			[]string{"reason"},
		)

		// Initialize AMQP metrics
		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_amqp_published_messages_total",
				Help: "Total number of messages published to AMQP",
			},
			[]string{"queue", "status"},
		)

		AMQPConnectionErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_amqp_connection_errors_total",
				Help: "Total number of AMQP connection errors",
			},
			[]string{"error_type"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "intake_amqp_connection_status",
				Help: "Status of AMQP connection (1 = connected, 0 = disconnected)",
			},
		)

		// Register all metrics
		registry.MustRegister(
			// Webhook metrics
			WebhookEventsTotal,
			WebhookEventDuration,

			// Extraction metrics
			ExtractionDuration,
			LLMRequestsTotal,
			LLMErrors,
			ClaimNumbersDecoded,

			// Tracking metrics
			FactsRecorded,
			LeadsCreated,
			ConversionsDetected,
			TrackingSkipped,

			// AMQP metrics
			AMQPPublishedMessages,
			AMQPConnectionErrors,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled && registry != nil {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// Helper functions, nil-safe so callers never have to check Init ordering

// ObserveWebhookEvent records one processed webhook event
func ObserveWebhookEvent(eventType, status string, duration time.Duration) {
	if !metricsEnabled || WebhookEventsTotal == nil {
		return
	}
	WebhookEventsTotal.WithLabelValues(eventType, status).Inc()
	WebhookEventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// ObserveExtraction records the latency of one extraction run
func ObserveExtraction(category string, duration time.Duration) {
	if !metricsEnabled || ExtractionDuration == nil {
		return
	}
	ExtractionDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordLLMRequest records one LLM extraction attempt
func RecordLLMRequest(model, status string) {
	if !metricsEnabled || LLMRequestsTotal == nil {
		return
	}
	LLMRequestsTotal.WithLabelValues(model, status).Inc()
}

// RecordLLMError records one LLM extraction failure
func RecordLLMError(model, errorType string) {
	if !metricsEnabled || LLMErrors == nil {
		return
	}
	LLMErrors.WithLabelValues(model, errorType).Inc()
}

// RecordClaimNumberDecoded records one claim-number decode outcome
func RecordClaimNumberDecoded(status string) {
	if !metricsEnabled || ClaimNumbersDecoded == nil {
		return
	}
	ClaimNumbersDecoded.WithLabelValues(status).Inc()
}

// RecordFactRecorded records one appended caller fact
func RecordFactRecorded(fieldName string) {
	if !metricsEnabled || FactsRecorded == nil {
		return
	}
	FactsRecorded.WithLabelValues(fieldName).Inc()
}

// RecordLeadCreated records one created lead
func RecordLeadCreated(tenantID string) {
	if !metricsEnabled || LeadsCreated == nil {
		return
	}
	LeadsCreated.WithLabelValues(tenantID).Inc()
}

// RecordConversionDetected records one detected conversion
func RecordConversionDetected(tenantID string) {
	if !metricsEnabled || ConversionsDetected == nil {
		return
	}
	ConversionsDetected.WithLabelValues(tenantID).Inc()
}

// RecordTrackingSkipped records one skipped tracking attempt
func RecordTrackingSkipped(reason string) {
	if !metricsEnabled || TrackingSkipped == nil {
		return
	}
	TrackingSkipped.WithLabelValues(reason).Inc()
}

// RecordAMQPPublish records one AMQP publish attempt
func RecordAMQPPublish(queue, status string) {
	if !metricsEnabled || AMQPPublishedMessages == nil {
		return
	}
	AMQPPublishedMessages.WithLabelValues(queue, status).Inc()
}

// RecordAMQPConnectionError records one AMQP connection error
func RecordAMQPConnectionError(errorType string) {
	if !metricsEnabled || AMQPConnectionErrors == nil {
		return
	}
	AMQPConnectionErrors.WithLabelValues(errorType).Inc()
}

// SetAMQPConnectionStatus sets the AMQP connection gauge
func SetAMQPConnectionStatus(connected bool) {
	if !metricsEnabled || AMQPConnectionStatus == nil {
		return
	}
	if connected {
		AMQPConnectionStatus.Set(1)
	} else {
		AMQPConnectionStatus.Set(0)
	}
}
