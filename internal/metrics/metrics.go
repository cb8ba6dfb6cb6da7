package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logframe_batches_total",
			Help: "Total number of batches by final outcome.",
		},
		[]string{"outcome"}, // delivered, dropped
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logframe_events_total",
			Help: "Total number of events by final outcome of their batch.",
		},
		[]string{"outcome"},
	)

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logframe_attempts_total",
			Help: "Total number of transport calls by result.",
		},
		[]string{"result"}, // success, retryable_status, fatal_status, retryable_error, fatal_error
	)

	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logframe_responses_total",
			Help: "Total number of ingestion API responses by status code.",
		},
		[]string{"code"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logframe_retries_total",
			Help: "Total number of delivery retries by reason.",
		},
		[]string{"reason"}, // http_429, http_5xx, timeout, connection_reset, dns_failure, protocol_error
	)

	DropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logframe_drops_total",
			Help: "Total number of dropped batches by reason.",
		},
		[]string{"reason"},
	)

	DeliveryLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logframe_delivery_latency_seconds",
			Help:    "Wall time of a delivery call including retries and backoff.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	BackoffSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logframe_backoff_seconds",
			Help:    "Backoff delays slept before retrying a batch.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	// Backlog of batch envelopes waiting in NSQ, polled from nsqd /stats.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logframe_queue_depth",
			Help: "Batch envelopes waiting in an NSQ channel.",
		},
		[]string{"topic", "channel"},
	)

	QueueInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logframe_queue_in_flight",
			Help: "Batch envelopes handed to shippers and not yet finished.",
		},
		[]string{"topic", "channel"},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		BatchesTotal,
		EventsTotal,
		AttemptsTotal,
		ResponsesTotal,
		RetriesTotal,
		DropsTotal,
		DeliveryLatencySeconds,
		BackoffSeconds,
		QueueDepth,
		QueueInFlight,
	)
}

// RecordDelivery records the final outcome of one batch.
func RecordDelivery(outcome string, events int, latency time.Duration) {
	BatchesTotal.WithLabelValues(outcome).Inc()
	EventsTotal.WithLabelValues(outcome).Add(float64(events))
	DeliveryLatencySeconds.WithLabelValues(outcome).Observe(latency.Seconds())
}

// RecordAttempt records the result of a single transport call.
func RecordAttempt(result string) {
	AttemptsTotal.WithLabelValues(result).Inc()
}

// RecordResponse counts a response from the ingestion API.
func RecordResponse(code int) {
	ResponsesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

func RecordDrop(reason string) {
	DropsTotal.WithLabelValues(reason).Inc()
}

func ObserveBackoff(d time.Duration) {
	BackoffSeconds.Observe(d.Seconds())
}

// UpdateQueueStats sets the backlog gauges for one topic/channel pair.
func UpdateQueueStats(topic, channel string, depth, inFlight int64) {
	QueueDepth.WithLabelValues(topic, channel).Set(float64(depth))
	QueueInFlight.WithLabelValues(topic, channel).Set(float64(inFlight))
}
