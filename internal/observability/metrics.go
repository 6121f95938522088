// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Price lookup outcomes.
const (
	PriceCache    = "cache"
	PriceBracket  = "bracket"
	PriceBackfill = "backfill"
	PriceUnknown  = "unknown"
	PriceError    = "error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Engine metrics
	EventsProcessed        *prometheus.CounterVec
	EventsSkipped          *prometheus.CounterVec
	EventProcessingErrors  *prometheus.CounterVec
	EventProcessingLatency *prometheus.HistogramVec
	PositionsOpened        prometheus.Counter
	TradesRecorded         *prometheus.CounterVec

	// Pricing metrics
	PriceLookups         *prometheus.CounterVec
	ProviderLatency      *prometheus.HistogramVec
	ProviderErrors       *prometheus.CounterVec
	HourPricesBackfilled prometheus.Counter

	// Chain metrics
	RPCCallLatency     *prometheus.HistogramVec
	ResolverRetries    *prometheus.CounterVec
	HighestBlockSeen   *prometheus.GaugeVec
	LastProcessedBlock *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	ChainWorkersRunning     prometheus.Gauge
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "perp_stats"
	}

	return &Metrics{
		// Engine metrics
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_processed_total",
			Help:      "Total number of trading events applied to aggregates",
		}, []string{"event_type"}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_skipped_total",
			Help:      "Total number of trading events that produced no writes",
		}, []string{"event_type", "reason"}),
		EventProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "event_processing_errors_total",
			Help:      "Total number of event processing errors by type",
		}, []string{"event_type", "error_type"}),
		EventProcessingLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "event_processing_latency_seconds",
			Help:      "Event processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "positions_opened_total",
			Help:      "Total number of positions opened",
		}),
		TradesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_recorded_total",
			Help:      "Total number of close trades recorded",
		}, []string{"full_close", "liquidated"}),

		// Pricing metrics
		PriceLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "lookups_total",
			Help:      "Total number of USD price lookups by outcome",
		}, []string{"outcome"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "provider_latency_seconds",
			Help:      "Price provider request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "provider_errors_total",
			Help:      "Total number of failed price provider requests",
		}, []string{"endpoint"}),
		HourPricesBackfilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "hour_prices_backfilled_total",
			Help:      "Total number of hourly prices written by backfill",
		}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ResolverRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "resolver_retries_total",
			Help:      "Total number of retried chain id or block timestamp resolutions",
		}, []string{"operation"}),
		HighestBlockSeen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "highest_block_seen",
			Help:      "Highest block number seen per chain",
		}, []string{"chain_id"}),
		LastProcessedBlock: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "last_processed_block",
			Help:      "Last fully processed block per chain",
		}, []string{"chain_id"}),

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
		ChainWorkersRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "chain_workers_running",
			Help:      "Number of chain workers currently consuming events",
		}),
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successfully handled event",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventProcessed records a successfully applied event.
func RecordEventProcessed(eventType string, seconds float64) {
	DefaultMetrics.EventsProcessed.WithLabelValues(eventType).Inc()
	DefaultMetrics.EventProcessingLatency.WithLabelValues(eventType).Observe(seconds)
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(time.Now().Unix()))
}

// RecordEventSkipped records an event that was accepted without writes.
func RecordEventSkipped(eventType, reason string) {
	DefaultMetrics.EventsSkipped.WithLabelValues(eventType, reason).Inc()
}

// RecordEventError records an event processing error.
func RecordEventError(eventType, errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(eventType, errorType).Inc()
}

// RecordPositionOpened increments the opened positions counter.
func RecordPositionOpened() {
	DefaultMetrics.PositionsOpened.Inc()
}

// RecordTrade increments the recorded trades counter.
func RecordTrade(fullClose, liquidated bool) {
	DefaultMetrics.TradesRecorded.WithLabelValues(strconv.FormatBool(fullClose), strconv.FormatBool(liquidated)).Inc()
}

// RecordPriceLookup records how a USD price was resolved.
func RecordPriceLookup(outcome string) {
	DefaultMetrics.PriceLookups.WithLabelValues(outcome).Inc()
}

// RecordProviderRequest records one price provider HTTP request.
func RecordProviderRequest(endpoint string, seconds float64, err error) {
	DefaultMetrics.ProviderLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderErrors.WithLabelValues(endpoint).Inc()
	}
}

// RecordHourPricesBackfilled adds n to the backfilled prices counter.
func RecordHourPricesBackfilled(n int) {
	DefaultMetrics.HourPricesBackfilled.Add(float64(n))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordResolverRetry records one retried resolution attempt.
func RecordResolverRetry(operation string) {
	DefaultMetrics.ResolverRetries.WithLabelValues(operation).Inc()
}

// UpdateHighestBlock updates the highest block seen gauge.
func UpdateHighestBlock(chainID int64, block uint64) {
	DefaultMetrics.HighestBlockSeen.WithLabelValues(strconv.FormatInt(chainID, 10)).Set(float64(block))
}

// UpdateLastProcessedBlock updates the last processed block gauge.
func UpdateLastProcessedBlock(chainID int64, block uint64) {
	DefaultMetrics.LastProcessedBlock.WithLabelValues(strconv.FormatInt(chainID, 10)).Set(float64(block))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// AddChainWorkers moves the running chain workers gauge by delta.
func AddChainWorkers(delta int) {
	DefaultMetrics.ChainWorkersRunning.Add(float64(delta))
}
