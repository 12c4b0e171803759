// Package engagement turns completed wellness activities into daily counts,
// per-activity streaks, milestone/badge/level awards and a single summary.
// Every write goes through the store in one transaction per activity.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

// DailyStore is the daily activity persistence.
type DailyStore interface {
	UpsertDaily(ctx context.Context, userID, activityType string, day domain.Date, payload string, now time.Time) (int, error)
	DailyCount(ctx context.Context, userID, activityType string, day domain.Date) (int, error)
}

// DailyLedger counts completions per (user, activity type, calendar date).
type DailyLedger struct {
	now func() time.Time
}

// NewDailyLedger creates a daily ledger.
func NewDailyLedger() *DailyLedger {
	return &DailyLedger{now: time.Now}
}

// RecordDaily increments the day's completion count and returns it. The
// first completion of a day returns 1. payload is stored as the row's
// latest context.
func (d *DailyLedger) RecordDaily(ctx context.Context, s DailyStore, userID, activityType string, day domain.Date, payload string) (int, error) {
	if day.IsZero() {
		return 0, domain.Invalid("activity_date", "required")
	}
	n, err := s.UpsertDaily(ctx, userID, activityType, day, payload, d.now())
	if err != nil {
		return 0, fmt.Errorf("record daily: %w", err)
	}
	return n, nil
}

// CountForDay returns how many times the activity was completed on day.
func (d *DailyLedger) CountForDay(ctx context.Context, s DailyStore, userID, activityType string, day domain.Date) (int, error) {
	return s.DailyCount(ctx, userID, activityType, day)
}
