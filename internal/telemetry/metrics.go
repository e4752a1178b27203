// Package telemetry provides application-level observability for EstateDesk.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<ESD_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router and
// is therefore absent from the OpenAPI/Swagger spec.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit trail write counters (success/failure) and external shipper errors
//   - Login attempt counters by outcome
//   - Audit retention sweep duration and deleted-row counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/communications/:threadId)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as thread or user IDs.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/estatedesk/estatedesk/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.AuditWritesTotal.WithLabelValues("success").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/communications/:threadId/status),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Audit trail metrics — recorded by the audit middleware and shippers.
//
// AuditWritesTotal is a CounterVec with label {result} ("success" or "failure")
// incremented once per attempted audit record insert.  Audit writes are
// best-effort and never fail the originating request, so a rising failure
// counter is the only in-band signal that the trail is losing records.
//
// Example PromQL queries:
//   - Loss rate (%):  sum(rate(audit_writes_total{result="failure"}[5m])) / sum(rate(audit_writes_total[5m])) * 100
//   - Alert:          increase(audit_writes_total{result="failure"}[15m]) > 0
//
// AuditShipErrorsTotal is a CounterVec with label {destination} incremented when
// delivery to an external audit destination (webhook, file) fails.
var (
	AuditWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Total number of attempted audit trail writes, by result.",
		},
		[]string{"result"},
	)

	AuditShipErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_errors_total",
			Help: "Total number of failed deliveries to external audit destinations, by destination type.",
		},
		[]string{"destination"},
	)
)

// LoginAttemptsTotal is a CounterVec with label {outcome} ("success", "failure",
// "rate_limited") incremented once per POST /api/auth/login.
//
// Example PromQL queries:
//   - Failed login rate:  rate(login_attempts_total{outcome="failure"}[5m])
//   - Brute-force alert:  increase(login_attempts_total{outcome="rate_limited"}[10m]) > 50
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// Audit retention sweep metrics — recorded by the retention background job.
//
// AuditRetentionSweepDuration is a Histogram using the default Prometheus buckets.
// Each observation represents one complete sweep.
//
// AuditRetentionDeletedTotal is a plain Counter of audit rows removed by the
// retention sweep since process start.
var (
	AuditRetentionSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_retention_sweep_duration_seconds",
			Help:    "Duration of a single audit retention sweep.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditRetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_retention_deleted_total",
			Help: "Total number of audit records removed by the retention sweep.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <ESD_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
