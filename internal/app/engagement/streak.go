package engagement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/domain"
)

// StreakStore is the streak persistence. LockStreak must hold the row for
// the rest of the transaction so the transition is computed against a
// consistent prior state.
type StreakStore interface {
	LockStreak(ctx context.Context, userID, activityType string) (*domain.StreakRecord, error)
	InsertStreak(ctx context.Context, s domain.StreakRecord) (bool, error)
	UpdateStreak(ctx context.Context, s domain.StreakRecord) error
}

// StreakReader serves streak reads and maintenance.
type StreakReader interface {
	ListStreaks(ctx context.Context, userID string) ([]domain.StreakRecord, error)
	DeactivateStaleStreaks(ctx context.Context, cutoff domain.Date, now time.Time) (int64, error)
}

// BackfillPolicy decides what an activity dated before the streak's last
// activity does.
type BackfillPolicy string

const (
	// BackfillReset treats an earlier date like any other gap: the streak
	// restarts at 1 on that date.
	BackfillReset BackfillPolicy = "reset"
	// BackfillIgnore leaves the streak untouched so last activity date
	// never moves backwards.
	BackfillIgnore BackfillPolicy = "ignore"
)

// ParseBackfillPolicy maps a config string to a policy. Empty means reset.
func ParseBackfillPolicy(s string) (BackfillPolicy, error) {
	switch p := BackfillPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", BackfillReset:
		return BackfillReset, nil
	case BackfillIgnore:
		return BackfillIgnore, nil
	default:
		return "", fmt.Errorf("unknown backfill policy %q", s)
	}
}

// StreakEngine advances consecutive-day streaks per activity type.
type StreakEngine struct {
	policy BackfillPolicy
	log    *zap.Logger
	now    func() time.Time
}

// NewStreakEngine creates a streak engine.
func NewStreakEngine(policy BackfillPolicy, log *zap.Logger) *StreakEngine {
	if policy == "" {
		policy = BackfillReset
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StreakEngine{policy: policy, log: log.Named("streak"), now: time.Now}
}

// Advance applies one activity on day to the (user, type) streak and
// returns what happened. Same-day calls write nothing.
func (e *StreakEngine) Advance(ctx context.Context, s StreakStore, userID, activityType string, day domain.Date) (domain.StreakOutcome, error) {
	if day.IsZero() {
		return domain.StreakOutcome{}, domain.Invalid("activity_date", "required")
	}

	rec, err := s.LockStreak(ctx, userID, activityType)
	if err != nil {
		return domain.StreakOutcome{}, fmt.Errorf("lock streak: %w", err)
	}

	if rec == nil {
		fresh := domain.StreakRecord{
			UserID:           userID,
			ActivityType:     activityType,
			CurrentStreak:    1,
			LongestStreak:    1,
			LastActivityDate: day,
			StreakStartDate:  day,
			IsActive:         true,
			UpdatedAt:        e.now(),
		}
		created, err := s.InsertStreak(ctx, fresh)
		if err != nil {
			return domain.StreakOutcome{}, fmt.Errorf("insert streak: %w", err)
		}
		if created {
			return outcome(fresh, 0, domain.TransitionStarted), nil
		}

		// A concurrent first activity created the row between our read and
		// insert. Re-read it under lock and continue as an existing streak.
		rec, err = s.LockStreak(ctx, userID, activityType)
		if err != nil {
			return domain.StreakOutcome{}, fmt.Errorf("relock streak: %w", err)
		}
		if rec == nil {
			return domain.StreakOutcome{}, fmt.Errorf("streak vanished after insert race: %w", domain.ErrConcurrencyConflict)
		}
	}

	prev := rec.CurrentStreak
	next, transition := NextStreak(*rec, day, e.policy)
	if !transition.Changed() {
		return outcome(*rec, prev, transition), nil
	}

	next.UpdatedAt = e.now()
	if err := s.UpdateStreak(ctx, next); err != nil {
		return domain.StreakOutcome{}, fmt.Errorf("update streak: %w", err)
	}

	if transition == domain.TransitionReset && prev > 1 {
		e.log.Debug("streak reset",
			zap.String("user_id", userID),
			zap.String("activity_type", activityType),
			zap.Int("previous", prev),
			zap.Stringer("last", rec.LastActivityDate),
			zap.Stringer("day", day))
	}
	return outcome(next, prev, transition), nil
}

// NextStreak computes the state after an activity on day. It compares
// calendar dates only:
//
//	day == last      same day, nothing changes
//	day == last + 1  streak grows by one
//	otherwise        streak restarts at 1 on day (policy permitting)
//
// LongestStreak is never lowered.
func NextStreak(rec domain.StreakRecord, day domain.Date, policy BackfillPolicy) (domain.StreakRecord, domain.StreakTransition) {
	gap := day.DaysSince(rec.LastActivityDate)

	switch {
	case gap == 0:
		return rec, domain.TransitionSameDay

	case gap == 1:
		rec.CurrentStreak++
		if rec.CurrentStreak > rec.LongestStreak {
			rec.LongestStreak = rec.CurrentStreak
		}
		rec.LastActivityDate = day
		rec.IsActive = true
		return rec, domain.TransitionIncremented

	case gap < 0 && policy == BackfillIgnore:
		return rec, domain.TransitionOutOfOrder

	default:
		rec.CurrentStreak = 1
		if rec.LongestStreak < 1 {
			rec.LongestStreak = 1
		}
		rec.StreakStartDate = day
		rec.LastActivityDate = day
		rec.IsActive = true
		return rec, domain.TransitionReset
	}
}

func outcome(rec domain.StreakRecord, prev int, t domain.StreakTransition) domain.StreakOutcome {
	return domain.StreakOutcome{
		ActivityType: rec.ActivityType,
		Transition:   t,
		Previous:     prev,
		Current:      rec.CurrentStreak,
		Longest:      rec.LongestStreak,
		StartDate:    rec.StreakStartDate,
		LastDate:     rec.LastActivityDate,
	}
}

// Streaks lists a user's streaks with their status as seen on today.
func (e *StreakEngine) Streaks(ctx context.Context, r StreakReader, userID string, today domain.Date) ([]domain.StreakView, error) {
	recs, err := r.ListStreaks(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StreakView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.StreakView{StreakRecord: rec, Status: rec.StatusOn(today)})
	}
	return out, nil
}

// DeactivateStale marks streaks broken as of asOf (no activity today or
// yesterday) as inactive. Streak lengths are not modified.
func (e *StreakEngine) DeactivateStale(ctx context.Context, r StreakReader, asOf domain.Date) (int64, error) {
	n, err := r.DeactivateStaleStreaks(ctx, asOf.AddDays(-1), e.now())
	if err != nil {
		return 0, fmt.Errorf("deactivate stale streaks: %w", err)
	}
	if n > 0 {
		e.log.Info("stale streaks deactivated", zap.Int64("count", n), zap.Stringer("as_of", asOf))
	}
	return n, nil
}
