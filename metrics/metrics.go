package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RabbitMQConnected is 1 when the subscriber considers itself connected.
	RabbitMQConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_connected",
		Help:      "Whether the scorer RabbitMQ subscriber is currently connected (best-effort).",
	})

	// RabbitMQLastConnectSeconds is a unix timestamp (seconds) of last successful connect.
	RabbitMQLastConnectSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_last_connect_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last successful RabbitMQ connect (best-effort).",
	})

	// RabbitMQLastDeliverySeconds is a unix timestamp (seconds) of the last delivery seen.
	RabbitMQLastDeliverySeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_last_delivery_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last RabbitMQ delivery handed to a worker (best-effort).",
	})

	// WorkerInFlight is the current number of deliveries being processed by workers.
	WorkerInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_worker_in_flight",
		Help:      "Current number of RabbitMQ deliveries being processed by worker goroutines.",
	})

	// ProcessedTotal counts processed deliveries by outcome.
	ProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_processed_total",
		Help:      "Total number of RabbitMQ deliveries processed by the scorer subscriber, labeled by result.",
	}, []string{"result"})

	// ProcessingDurationSeconds is end-to-end time spent handling one delivery.
	ProcessingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_processing_duration_seconds",
		Help:      "Time to process one RabbitMQ delivery end-to-end, labeled by result.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"})

	// AckErrorTotal counts failed acks.
	AckErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_ack_error_total",
		Help:      "Total number of failed RabbitMQ acks.",
	})

	// NackErrorTotal counts failed nacks.
	NackErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_nack_error_total",
		Help:      "Total number of failed RabbitMQ nacks.",
	})

	// RetryPublishErrorTotal counts failed publishes to the retry exchange.
	RetryPublishErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "rabbitmq_retry_publish_error_total",
		Help:      "Total number of failed publishes to the retry exchange.",
	})

	// ScoredTotal counts scored reports by the strategy that produced the
	// result and the assigned risk level.
	ScoredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "scored_reports_total",
		Help:      "Total number of scored reports, labeled by scoring source and risk level.",
	}, []string{"source", "risk_level"})

	// ScoringDurationSeconds is time spent inside the scoring engine per report.
	ScoringDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "scoring_duration_seconds",
		Help:      "Time to run the scoring engine over one report.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// AlertsSentTotal counts alert emails by outcome.
	AlertsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "alerts_sent_total",
		Help:      "Total number of alert emails attempted, labeled by result.",
	}, []string{"result"})

	// DuplicatesTotal counts reports suppressed as perceptual duplicates.
	DuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecowatch",
		Subsystem: "scorer",
		Name:      "duplicate_reports_total",
		Help:      "Total number of reports flagged as perceptual duplicates of a recent nearby report.",
	})
)

// Register registers scorer metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RabbitMQConnected,
			RabbitMQLastConnectSeconds,
			RabbitMQLastDeliverySeconds,
			WorkerInFlight,
			ProcessedTotal,
			ProcessingDurationSeconds,
			AckErrorTotal,
			NackErrorTotal,
			RetryPublishErrorTotal,
			ScoredTotal,
			ScoringDurationSeconds,
			AlertsSentTotal,
			DuplicatesTotal,
		)
	})
}

func NowUnixSeconds() float64 {
	return float64(time.Now().Unix())
}
