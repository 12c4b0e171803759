package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestActivityMetrics_Registered(t *testing.T) {
	ActivitiesRecorded.WithLabelValues("journal_entry", "started").Inc()
	ActivitiesRejected.WithLabelValues("validation").Inc()
	ActivitiesReplayed.Inc()
	RecordLatency.Observe(0.012)

	names := gatheredNames(t)
	for _, name := range []string{
		"karma_activities_recorded_total",
		"karma_activities_rejected_total",
		"karma_activities_replayed_total",
		"karma_record_latency_seconds",
	} {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestLedgerMetrics_Registered(t *testing.T) {
	PointsAwarded.WithLabelValues("activity").Add(15)
	AwardsGranted.WithLabelValues("badge").Inc()
	BalanceRepairs.Inc()
	ConflictRetries.Inc()
	StreaksDeactivated.Add(3)
	SweepRuns.WithLabelValues("ok").Inc()
	CacheRequests.WithLabelValues("profile", "hit").Inc()
	HealthStatus.WithLabelValues("database").Set(1)

	names := gatheredNames(t)
	for _, name := range []string{
		"karma_points_awarded_total",
		"karma_awards_granted_total",
		"karma_balance_repairs_total",
		"karma_conflict_retries_total",
		"karma_streaks_deactivated_total",
		"karma_sweep_runs_total",
		"karma_cache_requests_total",
		"karma_health_check_status",
	} {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
