package engagement

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/metrics"
	"github.com/tutu-network/karma/internal/infra/store"
)

// recentLimit is how many transactions a profile carries.
const recentLimit = 10

// Profile assembles a user's dashboard. The independent reads run
// concurrently; any failure fails the whole profile.
func (f *Facade) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, domain.Invalid("user_id", "required")
	}

	p := domain.Profile{UserID: userID}
	today := domain.DateOf(f.now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := f.ledger.Balance(gctx, f.db, userID)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		p.Balance = bal
		return nil
	})
	g.Go(func() error {
		views, err := f.streaks.Streaks(gctx, f.db, userID, today)
		if err != nil {
			return fmt.Errorf("streaks: %w", err)
		}
		p.Streaks = views
		return nil
	})
	g.Go(func() error {
		awards, err := f.awards(gctx, userID)
		if err != nil {
			return err
		}
		p.Badges, p.Milestones, p.Levels = awards.Badges, awards.Milestones, awards.Levels
		return nil
	})
	g.Go(func() error {
		recent, err := f.ledger.History(gctx, f.db, userID, recentLimit)
		if err != nil {
			return fmt.Errorf("recent transactions: %w", err)
		}
		p.Recent = recent
		return nil
	})
	g.Go(func() error {
		open, err := f.challenges.Current(gctx, f.db, userID, today)
		if err != nil {
			return fmt.Errorf("challenges: %w", err)
		}
		p.Challenges = open
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, err)
	}

	level, next := f.levels.CurrentLevel(p.Balance)
	p.Level, p.NextLevel = level, next
	return p, nil
}

// Streaks returns the user's streaks with status as of today.
func (f *Facade) Streaks(ctx context.Context, userID string) ([]domain.StreakView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Invalid("user_id", "required")
	}
	return f.streaks.Streaks(ctx, f.db, userID, domain.DateOf(f.now()))
}

// Balance returns the user's point balance.
func (f *Facade) Balance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.Invalid("user_id", "required")
	}
	return f.ledger.Balance(ctx, f.db, userID)
}

// History returns up to limit recent transactions, newest first.
func (f *Facade) History(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Invalid("user_id", "required")
	}
	if limit < 0 {
		return nil, domain.Invalid("limit", "must not be negative")
	}
	return f.ledger.History(ctx, f.db, userID, limit)
}

// Awards returns every award the user holds.
func (f *Facade) Awards(ctx context.Context, userID string) (domain.AwardHistory, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.AwardHistory{}, domain.Invalid("user_id", "required")
	}
	return f.awards(ctx, userID)
}

func (f *Facade) awards(ctx context.Context, userID string) (domain.AwardHistory, error) {
	h := domain.AwardHistory{UserID: userID}
	var err error
	if h.Badges, err = f.db.ListBadgeAwards(ctx, userID); err != nil {
		return h, fmt.Errorf("badges: %w", err)
	}
	if h.Milestones, err = f.db.ListMilestoneAwards(ctx, userID); err != nil {
		return h, fmt.Errorf("milestones: %w", err)
	}
	if h.Levels, err = f.db.ListLevelAwards(ctx, userID); err != nil {
		return h, fmt.Errorf("levels: %w", err)
	}
	return h, nil
}

// Sweep runs the periodic maintenance as of asOf: broken streaks are
// deactivated and challenges whose window has ended are expired.
func (f *Facade) Sweep(ctx context.Context, asOf domain.Date) (domain.SweepResult, error) {
	var res domain.SweepResult
	var err error
	if res.StreaksDeactivated, err = f.DeactivateStale(ctx, asOf); err != nil {
		return res, err
	}
	if res.ChallengesExpired, err = f.ExpireChallenges(ctx, asOf); err != nil {
		return res, err
	}
	return res, nil
}

// DeactivateStale clears is_active on streaks broken as of asOf.
func (f *Facade) DeactivateStale(ctx context.Context, asOf domain.Date) (int64, error) {
	n, err := f.streaks.DeactivateStale(ctx, f.db, asOf)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.SweepRuns.WithLabelValues("ok").Inc()
	metrics.StreaksDeactivated.Add(float64(n))
	return n, nil
}

// Reconcile repairs drifted balance cache rows from the transaction log.
func (f *Facade) Reconcile(ctx context.Context) ([]domain.BalanceDrift, error) {
	var drift []domain.BalanceDrift
	err := f.db.InTx(ctx, func(tx *store.Tx) error {
		var err error
		drift, err = f.ledger.Reconcile(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	metrics.BalanceRepairs.Add(float64(len(drift)))
	return drift, nil
}
