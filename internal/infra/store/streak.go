package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

const streakColumns = `user_id, activity_type, current_streak, longest_streak,
	last_activity_date, streak_start_date, is_active, updated_at`

// LockStreak loads the streak row for (user, type) and, on Postgres, holds
// a row lock until the transaction ends. It returns nil when no row exists.
func (c *conn) LockStreak(ctx context.Context, userID, activityType string) (*domain.StreakRecord, error) {
	row := c.queryRow(ctx,
		`SELECT `+streakColumns+` FROM streak
		 WHERE user_id = ? AND activity_type = ?`+c.forUpdate(),
		userID, activityType,
	)
	s, err := scanStreak(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("lock streak", err)
	}
	return s, nil
}

// InsertStreak creates the first streak row for a key. It reports false
// when a concurrent writer created the row first.
func (c *conn) InsertStreak(ctx context.Context, s domain.StreakRecord) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO streak (`+streakColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, activity_type) DO NOTHING`,
		s.UserID, s.ActivityType, s.CurrentStreak, s.LongestStreak,
		s.LastActivityDate, s.StreakStartDate, s.IsActive, millis(s.UpdatedAt),
	)
	if err != nil {
		return false, classify("insert streak", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateStreak persists a streak transition.
func (c *conn) UpdateStreak(ctx context.Context, s domain.StreakRecord) error {
	_, err := c.exec(ctx,
		`UPDATE streak SET
			current_streak = ?, longest_streak = ?,
			last_activity_date = ?, streak_start_date = ?,
			is_active = ?, updated_at = ?
		 WHERE user_id = ? AND activity_type = ?`,
		s.CurrentStreak, s.LongestStreak,
		s.LastActivityDate, s.StreakStartDate,
		s.IsActive, millis(s.UpdatedAt),
		s.UserID, s.ActivityType,
	)
	return classify("update streak", err)
}

// ListStreaks returns all of a user's streaks, longest current first.
func (c *conn) ListStreaks(ctx context.Context, userID string) ([]domain.StreakRecord, error) {
	rows, err := c.query(ctx,
		`SELECT `+streakColumns+` FROM streak WHERE user_id = ?
		 ORDER BY current_streak DESC, activity_type`, userID)
	if err != nil {
		return nil, classify("list streaks", err)
	}
	defer rows.Close()

	var out []domain.StreakRecord
	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, classify("scan streak", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// CurrentStreaks maps activity type to current streak length.
func (c *conn) CurrentStreaks(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := c.query(ctx,
		`SELECT activity_type, current_streak FROM streak WHERE user_id = ?`, userID)
	if err != nil {
		return nil, classify("current streaks", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, classify("scan current streaks", err)
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// DeactivateStaleStreaks clears is_active on streaks whose last activity
// is before cutoff. Counts are left untouched; the next activity decides
// the transition.
func (c *conn) DeactivateStaleStreaks(ctx context.Context, cutoff domain.Date, now time.Time) (int64, error) {
	res, err := c.exec(ctx,
		`UPDATE streak SET is_active = ?, updated_at = ?
		 WHERE is_active = ? AND last_activity_date < ?`,
		false, millis(now), true, cutoff,
	)
	if err != nil {
		return 0, classify("deactivate stale streaks", err)
	}
	return res.RowsAffected()
}

func scanStreak(s scanner) (*domain.StreakRecord, error) {
	var r domain.StreakRecord
	var updated int64
	err := s.Scan(&r.UserID, &r.ActivityType, &r.CurrentStreak, &r.LongestStreak,
		&r.LastActivityDate, &r.StreakStartDate, &r.IsActive, &updated)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}
