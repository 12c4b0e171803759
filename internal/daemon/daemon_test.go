package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("KARMA_HOME", home)

	cfg := DefaultConfig()
	cfg.API.Port = 0
	cfg.Logging.File = filepath.Join(home, "logs", "karma.log")
	cfg.Logging.Level = "error"
	return cfg
}

func TestNewWithConfig_WiresServices(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.DB == nil || d.Ledger == nil || d.Server == nil || d.Health == nil || d.Catalog == nil {
		t.Fatalf("daemon not fully wired: %+v", d)
	}

	ctx := context.Background()
	sum, err := d.Ledger.RecordActivity(ctx, domain.ActivityEvent{
		UserID:       "u1",
		ActivityType: "journal_entry",
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("RecordActivity() error: %v", err)
	}
	if sum.PointsAwarded != 15 {
		t.Errorf("points = %d, want 15", sum.PointsAwarded)
	}

	open, err := d.Ledger.Challenges(ctx, "u1")
	if err != nil {
		t.Fatalf("Challenges() error: %v", err)
	}
	if len(open) != cfg.Challenges.Daily+cfg.Challenges.Weekly {
		t.Errorf("open challenges = %d, want %d", len(open), cfg.Challenges.Daily+cfg.Challenges.Weekly)
	}

	statuses := d.Health.RunOnce(ctx)
	if !d.Health.IsHealthy() {
		t.Errorf("health = %+v", statuses)
	}
}

func TestNewWithConfig_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.BackfillPolicy = "rewrite"
	if _, err := NewWithConfig(cfg); err == nil {
		t.Error("expected error for unknown backfill policy")
	}

	cfg = testConfig(t)
	cfg.Catalog.File = filepath.Join(t.TempDir(), "missing.toml")
	if _, err := NewWithConfig(cfg); err == nil {
		t.Error("expected error for missing catalog file")
	}
}

func TestDaemon_Sweep(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx := context.Background()
	old := domain.Today().AddDays(-5).Time().Add(9 * time.Hour)
	if _, err := d.Ledger.RecordActivity(ctx, domain.ActivityEvent{UserID: "u1", ActivityType: "mood_logging", Timestamp: old}); err != nil {
		t.Fatal(err)
	}

	res, err := d.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if res.StreaksDeactivated != 1 {
		t.Errorf("deactivated = %d, want 1", res.StreaksDeactivated)
	}
	if res.ChallengesExpired != 0 {
		t.Errorf("expired = %d, want 0 for challenges assigned today", res.ChallengesExpired)
	}
}

func TestDaemon_ServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sweep.Interval = "10ms"
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
