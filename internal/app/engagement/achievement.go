package engagement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/app/credit"
	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/catalog"
)

// StatsStore reads the aggregates badges are measured against.
type StatsStore interface {
	Balance(ctx context.Context, userID string) (int64, error)
	ActivityTotals(ctx context.Context, userID string) (map[string]int64, error)
	CurrentStreaks(ctx context.Context, userID string) (map[string]int, error)
}

// BadgeStore grants badges.
type BadgeStore interface {
	StatsStore
	InsertBadgeAward(ctx context.Context, userID, badgeID string, at time.Time) (bool, error)
}

// MilestoneStore grants milestones and their rewards.
type MilestoneStore interface {
	credit.Store
	InsertMilestoneAward(ctx context.Context, a domain.MilestoneAward) (bool, error)
	InsertBadgeAward(ctx context.Context, userID, badgeID string, at time.Time) (bool, error)
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// BadgeEvaluator awards badges whose threshold the user's current
// aggregates meet. Awards are insert-or-ignore, so evaluating twice, or
// concurrently, never grants twice.
type BadgeEvaluator struct {
	catalog *catalog.Catalog
	log     *zap.Logger
}

// NewBadgeEvaluator creates a badge evaluator.
func NewBadgeEvaluator(cat *catalog.Catalog, log *zap.Logger) *BadgeEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &BadgeEvaluator{catalog: cat, log: log.Named("badges")}
}

// Stats snapshots the user's aggregates.
func (b *BadgeEvaluator) Stats(ctx context.Context, s StatsStore, userID string) (domain.UserStats, error) {
	var stats domain.UserStats
	var err error

	if stats.Balance, err = s.Balance(ctx, userID); err != nil {
		return stats, fmt.Errorf("stats balance: %w", err)
	}
	if stats.ActivityCounts, err = s.ActivityTotals(ctx, userID); err != nil {
		return stats, fmt.Errorf("stats activity totals: %w", err)
	}
	for _, n := range stats.ActivityCounts {
		stats.TotalActivities += n
	}
	if stats.CurrentStreaks, err = s.CurrentStreaks(ctx, userID); err != nil {
		return stats, fmt.Errorf("stats streaks: %w", err)
	}
	return stats, nil
}

// Evaluate awards every badge the user now qualifies for and returns the
// newly granted ones.
func (b *BadgeEvaluator) Evaluate(ctx context.Context, s BadgeStore, userID string, at time.Time) ([]domain.Award, error) {
	stats, err := b.Stats(ctx, s, userID)
	if err != nil {
		return nil, err
	}

	var awarded []domain.Award
	for _, def := range b.catalog.Badges() {
		if !def.Met(stats) {
			continue
		}
		isNew, err := s.InsertBadgeAward(ctx, userID, def.ID, at)
		if err != nil {
			return nil, fmt.Errorf("award badge %s: %w", def.ID, err)
		}
		if isNew {
			awarded = append(awarded, badgeAward(def, at))
			b.log.Info("badge awarded", zap.String("user_id", userID), zap.String("badge", def.ID))
		}
	}
	return awarded, nil
}

func badgeAward(def domain.BadgeDef, at time.Time) domain.Award {
	return domain.Award{
		Kind:         domain.AwardBadge,
		ID:           def.ID,
		Name:         def.Name,
		ActivityType: def.ActivityType,
		AwardedAt:    at,
	}
}

// ─── Milestones ─────────────────────────────────────────────────────────────

// MilestoneEvaluator awards streak-length milestones per activity type and
// credits their reward points exactly once.
type MilestoneEvaluator struct {
	catalog *catalog.Catalog
	ledger  *credit.Ledger
	log     *zap.Logger
}

// NewMilestoneEvaluator creates a milestone evaluator.
func NewMilestoneEvaluator(cat *catalog.Catalog, ledger *credit.Ledger, log *zap.Logger) *MilestoneEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &MilestoneEvaluator{catalog: cat, ledger: ledger, log: log.Named("milestones")}
}

// Evaluate runs after a streak transition. It grants every milestone for
// the activity type whose length the current streak has reached, plus any
// linked badge, and returns the awards and total reward points credited.
// Same-day outcomes are ignored since the streak value did not change.
func (m *MilestoneEvaluator) Evaluate(ctx context.Context, s MilestoneStore, userID string, out domain.StreakOutcome, at time.Time) ([]domain.Award, int64, error) {
	if !out.Transitioned() {
		return nil, 0, nil
	}

	var awarded []domain.Award
	var bonus int64
	for _, def := range m.catalog.MilestonesFor(out.ActivityType) {
		if def.Days > out.Current {
			break // sorted by days
		}

		isNew, err := s.InsertMilestoneAward(ctx, domain.MilestoneAward{
			UserID:       userID,
			ActivityType: out.ActivityType,
			MilestoneID:  def.ID,
			StreakDays:   out.Current,
			AwardedAt:    at,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("award milestone %s: %w", def.ID, err)
		}
		if !isNew {
			continue
		}

		awarded = append(awarded, domain.Award{
			Kind:         domain.AwardMilestone,
			ID:           def.ID,
			Name:         def.Name,
			ActivityType: out.ActivityType,
			RewardPoints: def.RewardPoints,
			AwardedAt:    at,
		})
		m.log.Info("milestone reached",
			zap.String("user_id", userID),
			zap.String("activity_type", out.ActivityType),
			zap.String("milestone", def.ID),
			zap.Int("streak", out.Current))

		if def.RewardPoints > 0 {
			res, err := m.ledger.Grant(ctx, s, credit.Grant{
				UserID:         userID,
				ActivityType:   out.ActivityType,
				Points:         def.RewardPoints,
				Source:         domain.SourceMilestone,
				Description:    "Streak milestone: " + def.Name,
				IdempotencyKey: credit.MilestoneKey(userID, out.ActivityType, def.ID),
				OccurredAt:     at,
			})
			if err != nil {
				return nil, 0, fmt.Errorf("milestone reward %s: %w", def.ID, err)
			}
			if !res.Duplicate {
				bonus += res.Points
			}
		}

		if def.BadgeID != "" {
			badge, ok := m.catalog.Badge(def.BadgeID)
			if !ok {
				continue
			}
			isNew, err := s.InsertBadgeAward(ctx, userID, badge.ID, at)
			if err != nil {
				return nil, 0, fmt.Errorf("milestone badge %s: %w", badge.ID, err)
			}
			if isNew {
				awarded = append(awarded, badgeAward(badge, at))
			}
		}
	}
	return awarded, bonus, nil
}
