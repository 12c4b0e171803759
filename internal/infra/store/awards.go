package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

// ─── Awards ─────────────────────────────────────────────────────────────────
// Every award insert is "insert, treat conflict as already granted": there
// is no check-then-insert window.

// InsertBadgeAward grants a badge. It reports false if already granted.
func (c *conn) InsertBadgeAward(ctx context.Context, userID, badgeID string, at time.Time) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO badge_award (user_id, badge_id, awarded_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, badgeID, millis(at),
	)
	return inserted("insert badge award", res, err)
}

// InsertMilestoneAward grants a milestone for one activity type.
func (c *conn) InsertMilestoneAward(ctx context.Context, a domain.MilestoneAward) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO milestone_award (user_id, activity_type, milestone_id, streak_days, awarded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, activity_type, milestone_id) DO NOTHING`,
		a.UserID, a.ActivityType, a.MilestoneID, a.StreakDays, millis(a.AwardedAt),
	)
	return inserted("insert milestone award", res, err)
}

// InsertLevelAward records reaching a level.
func (c *conn) InsertLevelAward(ctx context.Context, a domain.LevelAward) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO level_award (user_id, level_number, points_at_award, awarded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, level_number) DO NOTHING`,
		a.UserID, a.Level, a.PointsAtAward, millis(a.AwardedAt),
	)
	return inserted("insert level award", res, err)
}

func inserted(op string, res sql.Result, err error) (bool, error) {
	if err != nil {
		err = classify(op, err)
		if errors.Is(err, domain.ErrDuplicateAward) {
			return false, nil
		}
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListBadgeAwards returns a user's badges, oldest first.
func (c *conn) ListBadgeAwards(ctx context.Context, userID string) ([]domain.BadgeAward, error) {
	rows, err := c.query(ctx,
		`SELECT user_id, badge_id, awarded_at FROM badge_award
		 WHERE user_id = ? ORDER BY awarded_at, badge_id`, userID)
	if err != nil {
		return nil, classify("list badge awards", err)
	}
	defer rows.Close()

	var out []domain.BadgeAward
	for rows.Next() {
		var a domain.BadgeAward
		var at int64
		if err := rows.Scan(&a.UserID, &a.BadgeID, &at); err != nil {
			return nil, classify("scan badge award", err)
		}
		a.AwardedAt = fromMillis(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListMilestoneAwards returns a user's milestones, oldest first.
func (c *conn) ListMilestoneAwards(ctx context.Context, userID string) ([]domain.MilestoneAward, error) {
	rows, err := c.query(ctx,
		`SELECT user_id, activity_type, milestone_id, streak_days, awarded_at FROM milestone_award
		 WHERE user_id = ? ORDER BY awarded_at, activity_type, milestone_id`, userID)
	if err != nil {
		return nil, classify("list milestone awards", err)
	}
	defer rows.Close()

	var out []domain.MilestoneAward
	for rows.Next() {
		var a domain.MilestoneAward
		var at int64
		if err := rows.Scan(&a.UserID, &a.ActivityType, &a.MilestoneID, &a.StreakDays, &at); err != nil {
			return nil, classify("scan milestone award", err)
		}
		a.AwardedAt = fromMillis(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListLevelAwards returns a user's reached levels in ascending order.
func (c *conn) ListLevelAwards(ctx context.Context, userID string) ([]domain.LevelAward, error) {
	rows, err := c.query(ctx,
		`SELECT user_id, level_number, points_at_award, awarded_at FROM level_award
		 WHERE user_id = ? ORDER BY level_number`, userID)
	if err != nil {
		return nil, classify("list level awards", err)
	}
	defer rows.Close()

	var out []domain.LevelAward
	for rows.Next() {
		var a domain.LevelAward
		var at int64
		if err := rows.Scan(&a.UserID, &a.Level, &a.PointsAtAward, &at); err != nil {
			return nil, classify("scan level award", err)
		}
		a.AwardedAt = fromMillis(at)
		out = append(out, a)
	}
	return out, rows.Err()
}
