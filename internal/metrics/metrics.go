// Package metrics provides the Prometheus collectors exposed at /metrics,
// adapted from the ambient HTTP/database/service-health metrics this
// codebase always registers, plus domain gauges for the ingestion queue,
// cache hit rate, and broadcast hub.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every registered collector.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec
	DatabaseConnOpen      prometheus.Gauge

	IngestedTransfersTotal *prometheus.CounterVec
	QueueDepth             prometheus.Gauge
	QueueDropsTotal        prometheus.Counter
	WatermarkBlock         prometheus.Gauge

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	BroadcastClients      prometheus.Gauge
	BroadcastSentTotal    prometheus.Counter
	BroadcastDroppedTotal prometheus.Counter

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New builds a Metrics registered against prometheus.DefaultRegisterer.
func New(serviceName, version string) *Metrics {
	return NewWithRegistry(serviceName, version, prometheus.DefaultRegisterer)
}

// NewWithRegistry builds a Metrics registered against a custom registerer,
// for test isolation.
func NewWithRegistry(serviceName, version string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight", Help: "Current number of HTTP requests being processed",
		}),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"component", "operation"},
		),
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "database_queries_total", Help: "Total number of database queries"},
			[]string{"operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		DatabaseConnOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_open", Help: "Current number of open database connections",
		}),
		IngestedTransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ingested_transfers_total", Help: "Total number of decoded Transfer events persisted"},
			[]string{"token"},
		),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingestion_queue_depth", Help: "Current number of events queued awaiting persistence",
		}),
		QueueDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestion_queue_drops_total", Help: "Total number of events evicted by queue overflow",
		}),
		WatermarkBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingestion_watermark_block", Help: "Last durably persisted block number",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total", Help: "Total number of cache reads served from cache",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total", Help: "Total number of cache reads that missed",
		}),
		BroadcastClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_clients", Help: "Current number of connected WebSocket subscribers",
		}),
		BroadcastSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_sent_total", Help: "Total number of frames successfully enqueued to subscribers",
		}),
		BroadcastDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_dropped_total", Help: "Total number of frame sends dropped due to a full subscriber buffer",
		}),
		ServiceUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_uptime_seconds", Help: "Service uptime in seconds",
		}),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service build information"},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
			m.ErrorsTotal,
			m.DatabaseQueriesTotal, m.DatabaseQueryDuration, m.DatabaseConnOpen,
			m.IngestedTransfersTotal, m.QueueDepth, m.QueueDropsTotal, m.WatermarkBlock,
			m.CacheHitsTotal, m.CacheMissesTotal,
			m.BroadcastClients, m.BroadcastSentTotal, m.BroadcastDroppedTotal,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, version).Set(1)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments the error counter for a component/operation pair.
func (m *Metrics) RecordError(component, operation string) {
	m.ErrorsTotal.WithLabelValues(component, operation).Inc()
}

// RecordDatabaseQuery records one completed database query.
func (m *Metrics) RecordDatabaseQuery(operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateUptime sets the uptime gauge relative to startTime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}
