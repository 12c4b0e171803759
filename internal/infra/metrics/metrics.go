// Package metrics provides Prometheus metrics for the karma ledger:
// recorded activities, points, awards, challenges, contention and cache
// behaviour.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Activities ─────────────────────────────────────────────────────────────

// ActivitiesRecorded counts accepted activities by type and streak transition.
var ActivitiesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "activities_recorded_total",
	Help:      "Activities recorded, by activity type and streak transition.",
}, []string{"activity_type", "transition"})

// ActivitiesRejected counts RecordActivity failures by reason.
var ActivitiesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "activities_rejected_total",
	Help:      "Activities rejected, by reason.",
}, []string{"reason"})

// ActivitiesReplayed counts idempotent replays.
var ActivitiesReplayed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "activities_replayed_total",
	Help:      "Activities acknowledged as replays of an earlier idempotency key.",
})

// RecordLatency tracks RecordActivity duration including retries.
var RecordLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "karma",
	Name:      "record_latency_seconds",
	Help:      "RecordActivity duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
})

// ─── Points & awards ────────────────────────────────────────────────────────

// PointsAwarded tracks points credited by source.
var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "points_awarded_total",
	Help:      "Points credited, by source.",
}, []string{"source"})

// AwardsGranted counts one-time awards by kind.
var AwardsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "awards_granted_total",
	Help:      "Badges, milestones, levels and completed challenges granted.",
}, []string{"kind"})

// BalanceRepairs counts balance cache rows rewritten by reconcile.
var BalanceRepairs = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "balance_repairs_total",
	Help:      "Balance cache rows repaired from the transaction log.",
})

// ─── Contention & maintenance ───────────────────────────────────────────────

// ConflictRetries counts transactions retried after a concurrency conflict.
var ConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "conflict_retries_total",
	Help:      "Ledger transactions retried after lock or serialization contention.",
})

// StreaksDeactivated counts streaks marked inactive by the sweep.
var StreaksDeactivated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "streaks_deactivated_total",
	Help:      "Streaks marked inactive by the stale streak sweep.",
})

// ChallengesExpired counts challenges closed unfinished by the sweep.
var ChallengesExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "challenges_expired_total",
	Help:      "Challenges whose window ended before they were completed.",
})

// SweepRuns counts sweep executions by outcome.
var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "sweep_runs_total",
	Help:      "Stale streak sweep executions.",
}, []string{"result"})

// ─── Client cache ───────────────────────────────────────────────────────────

// CacheRequests counts client cache lookups by cache name and result
// (hit, miss, shared, abandoned).
var CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "karma",
	Name:      "cache_requests_total",
	Help:      "Client read cache lookups.",
}, []string{"cache", "result"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthStatus tracks health check status (1 = healthy, 0 = unhealthy).
var HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "karma",
	Name:      "health_check_status",
	Help:      "Health check status (1 = healthy, 0 = unhealthy).",
}, []string{"check"})
