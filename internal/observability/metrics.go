// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scan metrics
	ScanCyclesTotal   *prometheus.CounterVec
	ScanCycleDuration prometheus.Histogram
	MovementsDetected *prometheus.CounterVec
	AlertsAdmitted    *prometheus.CounterVec

	// Dispatch metrics
	DeliveriesTotal     *prometheus.CounterVec
	DeliveryLatency     prometheus.Histogram
	DispatchQueueDepth  prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	DeliveriesDropped   prometheus.Counter

	// Settlement metrics
	PredictionsSubmitted prometheus.Counter
	PredictionsSettled   *prometheus.CounterVec

	// Source metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastProcessedHeight prometheus.Gauge
	RetainedMovements   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "whale_watch"
	}

	return &Metrics{
		// Scan metrics
		ScanCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycles_total",
			Help:      "Total number of scan cycles by status",
		}, []string{"status"}),
		ScanCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cycle_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		MovementsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "movements_detected_total",
			Help:      "Total number of threshold-crossing movements detected by asset",
		}, []string{"asset"}),
		AlertsAdmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "alerts_admitted_total",
			Help:      "Total number of alerts admitted by severity",
		}, []string{"severity"}),

		// Dispatch metrics
		DeliveriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Total number of webhook delivery attempts by outcome",
		}, []string{"outcome"}),
		DeliveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "delivery_latency_seconds",
			Help:      "Webhook delivery latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		DispatchQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Current number of alerts waiting in the dispatch queue",
		}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "active_subscriptions",
			Help:      "Current number of active webhook subscriptions",
		}),
		DeliveriesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_dropped_total",
			Help:      "Total number of deliveries abandoned after exhausting retries",
		}),

		// Settlement metrics
		PredictionsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "predictions_submitted_total",
			Help:      "Total number of predictions accepted with a locked stake",
		}),
		PredictionsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "predictions_settled_total",
			Help:      "Total number of predictions settled by verdict",
		}, []string{"verdict"}),

		// Source metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastProcessedHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_processed_height",
			Help:      "Highest ledger height fully processed by the scan loop",
		}),
		RetainedMovements: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "retained_movements",
			Help:      "Number of movements currently held within the retention window",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordScanCycle records a completed scan cycle.
func RecordScanCycle(status string, durationSeconds float64) {
	DefaultMetrics.ScanCyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ScanCycleDuration.Observe(durationSeconds)
}

// RecordMovementDetected increments the detected movements counter.
func RecordMovementDetected(asset string) {
	DefaultMetrics.MovementsDetected.WithLabelValues(asset).Inc()
}

// RecordAlertAdmitted increments the admitted alerts counter.
func RecordAlertAdmitted(severity string) {
	DefaultMetrics.AlertsAdmitted.WithLabelValues(severity).Inc()
}

// RecordDelivery records a webhook delivery attempt.
func RecordDelivery(outcome string, seconds float64) {
	DefaultMetrics.DeliveriesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.DeliveryLatency.Observe(seconds)
}

// RecordDeliveryDropped increments the abandoned deliveries counter.
func RecordDeliveryDropped() {
	DefaultMetrics.DeliveriesDropped.Inc()
}

// UpdateDispatchQueueDepth updates the dispatch queue depth gauge.
func UpdateDispatchQueueDepth(depth int) {
	DefaultMetrics.DispatchQueueDepth.Set(float64(depth))
}

// UpdateActiveSubscriptions updates the active subscriptions gauge.
func UpdateActiveSubscriptions(count int) {
	DefaultMetrics.ActiveSubscriptions.Set(float64(count))
}

// RecordPredictionSubmitted increments the submitted predictions counter.
func RecordPredictionSubmitted() {
	DefaultMetrics.PredictionsSubmitted.Inc()
}

// RecordPredictionSettled increments the settled predictions counter.
func RecordPredictionSettled(verdict string) {
	DefaultMetrics.PredictionsSettled.WithLabelValues(verdict).Inc()
}

// RecordRPCLatency records ledger RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateLastProcessedHeight updates the last processed height gauge.
func UpdateLastProcessedHeight(height int64) {
	DefaultMetrics.LastProcessedHeight.Set(float64(height))
}

// UpdateRetainedMovements updates the retained movements gauge.
func UpdateRetainedMovements(count int) {
	DefaultMetrics.RetainedMovements.Set(float64(count))
}
