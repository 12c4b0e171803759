package engagement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/catalog"
)

// LevelStore records level-ups.
type LevelStore interface {
	InsertLevelAward(ctx context.Context, a domain.LevelAward) (bool, error)
}

// LevelEvaluator walks the wellness level ladder. Levels are derived from
// the point balance; each level above the first is recorded once, with the
// balance at the moment it was reached.
type LevelEvaluator struct {
	catalog *catalog.Catalog
	log     *zap.Logger
}

// NewLevelEvaluator creates a level evaluator.
func NewLevelEvaluator(cat *catalog.Catalog, log *zap.Logger) *LevelEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &LevelEvaluator{catalog: cat, log: log.Named("levels")}
}

// CurrentLevel returns the level for a balance and the next one, if any.
func (l *LevelEvaluator) CurrentLevel(balance int64) (domain.LevelDef, *domain.LevelDef) {
	return l.catalog.LevelFor(balance)
}

// Evaluate records every level reached by balance that was not recorded
// before. It returns the highest newly reached level (0 if none) and the
// corresponding awards.
func (l *LevelEvaluator) Evaluate(ctx context.Context, s LevelStore, userID string, balance int64, at time.Time) (int, []domain.Award, error) {
	var newLevel int
	var awarded []domain.Award

	for _, def := range l.catalog.Levels() {
		if def.PointsRequired == 0 {
			continue // starting level
		}
		if def.PointsRequired > balance {
			break
		}
		isNew, err := s.InsertLevelAward(ctx, domain.LevelAward{
			UserID:        userID,
			Level:         def.Number,
			PointsAtAward: balance,
			AwardedAt:     at,
		})
		if err != nil {
			return 0, nil, fmt.Errorf("award level %d: %w", def.Number, err)
		}
		if !isNew {
			continue
		}
		newLevel = def.Number
		awarded = append(awarded, domain.Award{
			Kind:      domain.AwardLevel,
			ID:        fmt.Sprintf("level_%d", def.Number),
			Name:      def.Name,
			AwardedAt: at,
		})
	}

	if newLevel > 0 {
		l.log.Info("level up", zap.String("user_id", userID), zap.Int("level", newLevel), zap.Int64("balance", balance))
	}
	return newLevel, awarded, nil
}
