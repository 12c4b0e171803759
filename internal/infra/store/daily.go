package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

// ─── Daily Activity ─────────────────────────────────────────────────────────

// UpsertDaily inserts the (user, type, date) row with count 1, or
// increments the existing count and replaces the context, in a single
// statement. It returns the count after the write.
func (c *conn) UpsertDaily(ctx context.Context, userID, activityType string, day domain.Date, payload string, now time.Time) (int, error) {
	var count int
	err := c.queryRow(ctx,
		`INSERT INTO daily_activity (user_id, activity_type, activity_date, completion_count, context, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT (user_id, activity_type, activity_date) DO UPDATE SET
			completion_count = daily_activity.completion_count + 1,
			context = excluded.context,
			updated_at = excluded.updated_at
		 RETURNING completion_count`,
		userID, activityType, day, nullString(payload), millis(now),
	).Scan(&count)
	if err != nil {
		return 0, classify("upsert daily activity", err)
	}
	return count, nil
}

// DailyCount returns the completion count for one day, 0 if none.
func (c *conn) DailyCount(ctx context.Context, userID, activityType string, day domain.Date) (int, error) {
	var count int
	err := c.queryRow(ctx,
		`SELECT completion_count FROM daily_activity
		 WHERE user_id = ? AND activity_type = ? AND activity_date = ?`,
		userID, activityType, day,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("get daily count", err)
	}
	return count, nil
}

// ActivityTotals returns total completions per activity type.
func (c *conn) ActivityTotals(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := c.query(ctx,
		`SELECT activity_type, SUM(completion_count) FROM daily_activity
		 WHERE user_id = ? GROUP BY activity_type`, userID)
	if err != nil {
		return nil, classify("activity totals", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, classify("scan activity totals", err)
		}
		totals[typ] = n
	}
	return totals, rows.Err()
}

// ListDaily returns the user's daily rows on or after since, newest first.
func (c *conn) ListDaily(ctx context.Context, userID string, since domain.Date) ([]domain.DailyActivityRecord, error) {
	rows, err := c.query(ctx,
		`SELECT user_id, activity_type, activity_date, completion_count, COALESCE(context, ''), updated_at
		 FROM daily_activity WHERE user_id = ? AND activity_date >= ?
		 ORDER BY activity_date DESC, activity_type`,
		userID, since)
	if err != nil {
		return nil, classify("list daily activity", err)
	}
	defer rows.Close()

	var out []domain.DailyActivityRecord
	for rows.Next() {
		var r domain.DailyActivityRecord
		var updated int64
		if err := rows.Scan(&r.UserID, &r.ActivityType, &r.Date, &r.CompletionCount, &r.Context, &updated); err != nil {
			return nil, classify("scan daily activity", err)
		}
		r.UpdatedAt = fromMillis(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
