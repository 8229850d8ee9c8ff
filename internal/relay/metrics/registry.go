package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state
type Registry struct {
	registry *prometheus.Registry

	// Publisher metrics
	publishTotal    *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec

	// Consumer metrics
	consumeTotal     *prometheus.CounterVec
	consumeDuration  *prometheus.HistogramVec
	recordsConsumed  *prometheus.CounterVec
	parseFailures    prometheus.Counter
	unrecognizedKind prometheus.Counter

	// Router metrics
	routeTotal    *prometheus.CounterVec
	routeDuration *prometheus.HistogramVec
	fanoutSize    *prometheus.HistogramVec

	// Broadcast metrics
	broadcastTotal *prometheus.CounterVec
	framesDropped  prometheus.Counter

	// Channel/Database metrics
	databaseOperationTotal    *prometheus.CounterVec
	databaseOperationDuration *prometheus.HistogramVec
	leaseOperationTotal       *prometheus.CounterVec

	// Enrichment metrics
	enrichmentTotal *prometheus.CounterVec

	// Session metrics
	sessionsActive prometheus.Gauge
	usersActive    prometheus.Gauge

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_publish_total",
				Help: "Total number of publish operations",
			},
			[]string{"kind", "status"}, // status: success, error
		),

		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_publish_duration_seconds",
				Help:    "Time spent publishing notifications",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		consumeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_consume_total",
				Help: "Total number of pull operations",
			},
			[]string{"subscription", "status"}, // status: success, error, empty
		),

		consumeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_consume_duration_seconds",
				Help:    "Time spent pulling and routing record batches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"subscription"},
		),

		recordsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_records_consumed_total",
				Help: "Total number of records pulled off the channel",
			},
			[]string{"subscription"},
		),

		parseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_parse_failures_total",
				Help: "Records dropped because their body could not be decoded",
			},
		),

		unrecognizedKind: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_unrecognized_kind_total",
				Help: "Records dropped because their kind is unknown to this consumer",
			},
		),

		routeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_route_total",
				Help: "Total number of routing decisions",
			},
			[]string{"kind", "status"}, // status: success, error
		),

		routeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_route_duration_seconds",
				Help:    "Time spent resolving topics, including enrichment",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		fanoutSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_fanout_size",
				Help:    "Number of outbound payloads per routed notification",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 13},
			},
			[]string{"kind"},
		),

		broadcastTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_broadcast_total",
				Help: "Total number of topic broadcasts to live sessions",
			},
			[]string{"scope", "status"}, // status: success, error
		),

		framesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_frames_dropped_total",
				Help: "Frames dropped because a session's send queue was full",
			},
		),

		databaseOperationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_database_operation_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"}, // operation: get_cursor, append_record, etc.
		),

		databaseOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),

		leaseOperationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_lease_operation_total",
				Help: "Total number of lease operations",
			},
			[]string{"operation", "status"}, // operation: acquire, release
		),

		enrichmentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_enrichment_total",
				Help: "Snapshot lookups by outcome",
			},
			[]string{"outcome"}, // outcome: hit, absent, error
		),

		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_sessions_active",
				Help: "Number of live client sessions",
			},
		),

		usersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_users_active",
				Help: "Number of distinct authenticated users with a live session",
			},
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"version", "build_time"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_start_time_seconds",
				Help: "Unix timestamp when the application started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Register application metrics
	registry.MustRegister(
		r.publishTotal,
		r.publishDuration,
		r.consumeTotal,
		r.consumeDuration,
		r.recordsConsumed,
		r.parseFailures,
		r.unrecognizedKind,
		r.routeTotal,
		r.routeDuration,
		r.fanoutSize,
		r.broadcastTotal,
		r.framesDropped,
		r.databaseOperationTotal,
		r.databaseOperationDuration,
		r.leaseOperationTotal,
		r.enrichmentTotal,
		r.sessionsActive,
		r.usersActive,
		r.systemInfo,
		r.startTime,
	)

	// Set start time
	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// RecordPublish records a publish operation
func (r *Registry) RecordPublish(kind string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.publishTotal.WithLabelValues(kind, status).Inc()
	r.publishDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordConsumerPull records one pull over the channel
func (r *Registry) RecordConsumerPull(subscription string, processed int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else if processed == 0 {
		status = "empty"
	}

	r.consumeTotal.WithLabelValues(subscription, status).Inc()
	r.consumeDuration.WithLabelValues(subscription).Observe(duration.Seconds())
	if processed > 0 {
		r.recordsConsumed.WithLabelValues(subscription).Add(float64(processed))
	}
}

// RecordParseFailure counts a record dropped for an undecodable body
func (r *Registry) RecordParseFailure() {
	r.parseFailures.Inc()
}

// RecordUnrecognizedKind counts a record dropped for an unknown kind
func (r *Registry) RecordUnrecognizedKind() {
	r.unrecognizedKind.Inc()
}

// RecordRoute records one routing decision and its fan-out width
func (r *Registry) RecordRoute(kind string, payloads int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.routeTotal.WithLabelValues(kind, status).Inc()
	r.routeDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err == nil {
		r.fanoutSize.WithLabelValues(kind).Observe(float64(payloads))
	}
}

// RecordBroadcast records delivery of one payload to a topic's audience
func (r *Registry) RecordBroadcast(scope string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.broadcastTotal.WithLabelValues(scope, status).Inc()
}

// RecordFrameDropped counts a frame discarded for a slow session
func (r *Registry) RecordFrameDropped() {
	r.framesDropped.Inc()
}

// RecordDatabaseOperation records a database operation
func (r *Registry) RecordDatabaseOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.databaseOperationTotal.WithLabelValues(operation, status).Inc()
	r.databaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLeaseOperation records a lease operation
func (r *Registry) RecordLeaseOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.leaseOperationTotal.WithLabelValues(operation, status).Inc()
}

// RecordEnrichment records the outcome of a snapshot lookup
func (r *Registry) RecordEnrichment(outcome string) {
	r.enrichmentTotal.WithLabelValues(outcome).Inc()
}

// UpdateSessionCounts updates the live session and user gauges
func (r *Registry) UpdateSessionCounts(sessions, users int) {
	r.sessionsActive.Set(float64(sessions))
	r.usersActive.Set(float64(users))
}

// SetSystemInfo sets system information metrics
func (r *Registry) SetSystemInfo(version, buildTime string) {
	r.systemInfo.WithLabelValues(version, buildTime).Set(1)
}
