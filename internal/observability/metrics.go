package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vivaha_redis_error_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vivaha_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ModerationActions counts moderation mutations by action type and outcome.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vivaha_moderation_actions_total",
		Help: "Total moderation actions by type and outcome",
	}, []string{"action", "outcome"})

	// BansReconciled counts accounts unbanned by the expiry sweep.
	BansReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vivaha_bans_reconciled_total",
		Help: "Total temporary bans cleared by the expiry sweep",
	})

	// RefreshRuns counts refresh-scheduler passes by trigger source.
	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vivaha_refresh_runs_total",
		Help: "Total refresh passes by trigger source",
	}, []string{"trigger"})

	// RefreshThrottled counts refresh triggers suppressed by the throttle window.
	RefreshThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vivaha_refresh_throttled_total",
		Help: "Total refresh triggers collapsed by the throttle or single-flight guard",
	})

	// ChangeFeedEvents counts change-feed events delivered by resource.
	ChangeFeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vivaha_changefeed_events_total",
		Help: "Total change-feed events delivered to handlers by resource",
	}, []string{"resource"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
