package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/app/credit"
	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/catalog"
	"github.com/tutu-network/karma/internal/infra/metrics"
	"github.com/tutu-network/karma/internal/infra/store"
)

// LedgerStore is everything RecordActivity touches inside its transaction.
type LedgerStore interface {
	DailyStore
	StreakStore
	BadgeStore
	MilestoneStore
	LevelStore
	ChallengeStore
}

// Options tunes the facade.
type Options struct {
	BackfillPolicy BackfillPolicy
	MaxAttempts    int           // total attempts on concurrency conflict
	RetryInitial   time.Duration // first backoff interval
	RetryMax       time.Duration // backoff interval cap
	Logger         *zap.Logger
	Now            func() time.Time // clock for award times and "today"

	// Challenges held per user for each period. Zero turns the period off.
	DailyChallenges  int
	WeeklyChallenges int
}

// Facade is the single entry point for recording activities. It sequences
// points, daily count, streak, awards and challenge progress inside one
// transaction.
type Facade struct {
	db         *store.DB
	catalog    *catalog.Catalog
	ledger     *credit.Ledger
	daily      *DailyLedger
	streaks    *StreakEngine
	milestones *MilestoneEvaluator
	badges     *BadgeEvaluator
	levels     *LevelEvaluator
	challenges *ChallengeService
	opts       Options
	log        *zap.Logger
	now        func() time.Time
}

// NewFacade wires the ledger services over db.
func NewFacade(db *store.DB, cat *catalog.Catalog, opts Options) *Facade {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 20 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	log := opts.Logger
	ledger := credit.NewLedger(cat, log)
	return &Facade{
		db:         db,
		catalog:    cat,
		ledger:     ledger,
		daily:      NewDailyLedger(),
		streaks:    NewStreakEngine(opts.BackfillPolicy, log),
		milestones: NewMilestoneEvaluator(cat, ledger, log),
		badges:     NewBadgeEvaluator(cat, log),
		levels:     NewLevelEvaluator(cat, log),
		challenges: NewChallengeService(cat, ledger, opts.DailyChallenges, opts.WeeklyChallenges, log),
		opts:       opts,
		log:        log.Named("facade"),
		now:        opts.Now,
	}
}

// Catalog returns the reference data in use.
func (f *Facade) Catalog() *catalog.Catalog { return f.catalog }

// Ledger returns the points ledger.
func (f *Facade) Ledger() *credit.Ledger { return f.ledger }

// RecordActivity applies one completed activity. The whole sequence runs in
// one transaction: on any error nothing is visible. Concurrency conflicts
// are retried with exponential backoff; a replayed idempotency key returns
// the earlier outcome with Duplicate set and writes nothing.
func (f *Facade) RecordActivity(ctx context.Context, ev domain.ActivityEvent) (domain.Summary, error) {
	start := time.Now()
	defer func() { metrics.RecordLatency.Observe(time.Since(start).Seconds()) }()

	if err := validateEvent(&ev); err != nil {
		metrics.ActivitiesRejected.WithLabelValues("validation").Inc()
		return domain.Summary{}, err
	}
	if _, err := f.catalog.Lookup(ev.ActivityType); err != nil {
		metrics.ActivitiesRejected.WithLabelValues("unknown_activity").Inc()
		return domain.Summary{}, err
	}

	day := domain.DateOf(ev.Timestamp)

	attempt := 0
	op := func() (domain.Summary, error) {
		attempt++
		var sum domain.Summary
		err := f.db.InTx(ctx, func(tx *store.Tx) error {
			var err error
			sum, err = f.record(ctx, tx, ev, day)
			return err
		})
		if err == nil {
			return sum, nil
		}
		if domain.IsRetryable(err) && attempt < f.opts.MaxAttempts {
			metrics.ConflictRetries.Inc()
			f.log.Debug("retrying after conflict",
				zap.String("user_id", ev.UserID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return sum, err
		}
		return sum, backoff.Permanent(err)
	}

	sum, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(f.newBackOff()),
		backoff.WithMaxTries(uint(f.opts.MaxAttempts)),
	)
	if err != nil {
		metrics.ActivitiesRejected.WithLabelValues(rejectReason(err)).Inc()
		return domain.Summary{}, fmt.Errorf("record activity: %w", err)
	}

	f.observe(sum)
	return sum, nil
}

func (f *Facade) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.RetryInitial
	b.MaxInterval = f.opts.RetryMax
	return b
}

// record is one transaction attempt.
func (f *Facade) record(ctx context.Context, tx LedgerStore, ev domain.ActivityEvent, day domain.Date) (domain.Summary, error) {
	sum := domain.Summary{
		UserID:       ev.UserID,
		ActivityType: ev.ActivityType,
		Date:         day,
		NewAwards:    []domain.Award{},
	}

	earned, err := f.ledger.Earn(ctx, tx, credit.EarnRequest{
		UserID:         ev.UserID,
		ActivityType:   ev.ActivityType,
		IdempotencyKey: ev.IdempotencyKey,
		OccurredAt:     ev.Timestamp,
	})
	if err != nil {
		return sum, err
	}
	sum.TransactionID = earned.TransactionID
	sum.PointsAwarded = earned.Points
	sum.Balance = earned.Balance

	if earned.Duplicate {
		// Report the stored event, not the resubmitted one.
		sum.ActivityType = earned.ActivityType
		sum.Date = domain.DateOf(earned.OccurredAt)
		return f.replayed(ctx, tx, sum)
	}

	sum.DailyCount, err = f.daily.RecordDaily(ctx, tx, ev.UserID, ev.ActivityType, day, string(ev.Context))
	if err != nil {
		return sum, err
	}

	sum.Streak, err = f.streaks.Advance(ctx, tx, ev.UserID, ev.ActivityType, day)
	if err != nil {
		return sum, err
	}

	at := f.now()
	if sum.Streak.Transitioned() {
		awards, bonus, err := f.milestones.Evaluate(ctx, tx, ev.UserID, sum.Streak, at)
		if err != nil {
			return sum, err
		}
		sum.NewAwards = append(sum.NewAwards, awards...)
		sum.BonusPoints = bonus
		if bonus > 0 {
			if sum.Balance, err = tx.Balance(ctx, ev.UserID); err != nil {
				return sum, err
			}
		}
	}

	if f.challenges.Enabled() {
		awards, reward, err := f.challenges.Advance(ctx, tx, ev.UserID, ev.ActivityType, day, domain.DateOf(at), sum.Streak.Current, at)
		if err != nil {
			return sum, err
		}
		sum.NewAwards = append(sum.NewAwards, awards...)
		sum.ChallengePoints = reward
		if reward > 0 {
			if sum.Balance, err = tx.Balance(ctx, ev.UserID); err != nil {
				return sum, err
			}
		}
	}

	level, levelAwards, err := f.levels.Evaluate(ctx, tx, ev.UserID, sum.Balance, at)
	if err != nil {
		return sum, err
	}
	sum.NewLevel = level
	sum.NewAwards = append(sum.NewAwards, levelAwards...)

	badges, err := f.badges.Evaluate(ctx, tx, ev.UserID, at)
	if err != nil {
		return sum, err
	}
	sum.NewAwards = append(sum.NewAwards, badges...)

	return sum, nil
}

// replayed fills a summary for an already-recorded idempotency key from
// current state, without writing.
func (f *Facade) replayed(ctx context.Context, tx LedgerStore, sum domain.Summary) (domain.Summary, error) {
	sum.Duplicate = true

	var err error
	if sum.DailyCount, err = f.daily.CountForDay(ctx, tx, sum.UserID, sum.ActivityType, sum.Date); err != nil {
		return sum, err
	}
	rec, err := tx.LockStreak(ctx, sum.UserID, sum.ActivityType)
	if err != nil {
		return sum, err
	}
	if rec != nil {
		sum.Streak = outcome(*rec, rec.CurrentStreak, "")
	}
	return sum, nil
}

func (f *Facade) observe(sum domain.Summary) {
	if sum.Duplicate {
		metrics.ActivitiesReplayed.Inc()
		f.log.Debug("activity replayed", zap.String("user_id", sum.UserID), zap.String("tx", sum.TransactionID))
		return
	}
	metrics.ActivitiesRecorded.WithLabelValues(sum.ActivityType, string(sum.Streak.Transition)).Inc()
	metrics.PointsAwarded.WithLabelValues(string(domain.SourceActivity)).Add(float64(sum.PointsAwarded))
	if sum.BonusPoints > 0 {
		metrics.PointsAwarded.WithLabelValues(string(domain.SourceMilestone)).Add(float64(sum.BonusPoints))
	}
	if sum.ChallengePoints > 0 {
		metrics.PointsAwarded.WithLabelValues(string(domain.SourceChallenge)).Add(float64(sum.ChallengePoints))
	}
	for _, a := range sum.NewAwards {
		metrics.AwardsGranted.WithLabelValues(string(a.Kind)).Inc()
	}

	f.log.Info("activity recorded",
		zap.String("user_id", sum.UserID),
		zap.String("activity_type", sum.ActivityType),
		zap.Stringer("date", sum.Date),
		zap.Int64("points", sum.PointsAwarded+sum.BonusPoints+sum.ChallengePoints),
		zap.Int("daily_count", sum.DailyCount),
		zap.String("transition", string(sum.Streak.Transition)),
		zap.Int("streak", sum.Streak.Current),
		zap.Int("new_awards", len(sum.NewAwards)))
}

// validateEvent rejects malformed input before any write.
func validateEvent(ev *domain.ActivityEvent) error {
	ev.UserID = strings.TrimSpace(ev.UserID)
	ev.ActivityType = strings.TrimSpace(ev.ActivityType)
	ev.IdempotencyKey = strings.TrimSpace(ev.IdempotencyKey)

	switch {
	case ev.UserID == "":
		return domain.Invalid("user_id", "required")
	case ev.ActivityType == "":
		return domain.Invalid("activity_type", "required")
	case ev.Timestamp.IsZero():
		return domain.Invalid("timestamp", "required")
	case ev.Timestamp.Year() < 2000 || ev.Timestamp.Year() > 9999:
		return domain.Invalid("timestamp", "out of range")
	case len(ev.IdempotencyKey) > 200:
		return domain.Invalid("idempotency_key", "longer than 200 characters")
	case len(ev.Context) > 0 && !json.Valid(ev.Context):
		return domain.Invalid("context", "must be valid JSON")
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrUnknownActivityType):
		return "unknown_activity"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transient"
	}
}
