package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

// ─── Challenges ─────────────────────────────────────────────────────────────

const challengeColumns = `user_id, id, template_id, name, description, period, kind,
	category, activity_type, target, progress, reward_points, status,
	starts_on, expires_on, assigned_at, completed_at, transaction_id`

// InsertChallenge assigns a challenge. It reports false when the user
// already holds a challenge with that id.
func (c *conn) InsertChallenge(ctx context.Context, ch domain.Challenge) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO challenge (`+challengeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, id) DO NOTHING`,
		ch.UserID, ch.ID, ch.TemplateID, ch.Name, ch.Description, string(ch.Period), string(ch.Kind),
		ch.Category, ch.ActivityType, ch.Target, ch.Progress, ch.RewardPoints, string(ch.Status),
		ch.StartsOn, ch.ExpiresOn, millis(ch.AssignedAt), millis(ch.CompletedAt), ch.TransactionID,
	)
	return inserted("insert challenge", res, err)
}

// OpenChallenges returns the user's active challenges still open on today
// and, on Postgres, locks them until the transaction ends.
func (c *conn) OpenChallenges(ctx context.Context, userID string, today domain.Date) ([]domain.Challenge, error) {
	return c.listChallenges(ctx, "list open challenges",
		`SELECT `+challengeColumns+` FROM challenge
		 WHERE user_id = ? AND status = ? AND expires_on > ?
		 ORDER BY period, id`+c.forUpdate(),
		userID, string(domain.ChallengeActive), today)
}

// ListChallenges returns every challenge whose window covers day,
// whatever its status.
func (c *conn) ListChallenges(ctx context.Context, userID string, day domain.Date) ([]domain.Challenge, error) {
	return c.listChallenges(ctx, "list challenges",
		`SELECT `+challengeColumns+` FROM challenge
		 WHERE user_id = ? AND starts_on <= ? AND expires_on > ?
		 ORDER BY period, id`,
		userID, day, day)
}

func (c *conn) listChallenges(ctx context.Context, op, query string, args ...any) ([]domain.Challenge, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []domain.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, classify("scan challenge", err)
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

// SetChallengeProgress records progress on an active challenge.
func (c *conn) SetChallengeProgress(ctx context.Context, userID, id string, progress int) error {
	_, err := c.exec(ctx,
		`UPDATE challenge SET progress = ? WHERE user_id = ? AND id = ? AND status = ?`,
		progress, userID, id, string(domain.ChallengeActive),
	)
	return classify("set challenge progress", err)
}

// CompleteChallenge moves an active challenge to completed. It reports
// false if the challenge was not active.
func (c *conn) CompleteChallenge(ctx context.Context, userID, id string, progress int, txID string, at time.Time) (bool, error) {
	res, err := c.exec(ctx,
		`UPDATE challenge SET status = ?, progress = ?, transaction_id = ?, completed_at = ?
		 WHERE user_id = ? AND id = ? AND status = ?`,
		string(domain.ChallengeCompleted), progress, txID, millis(at),
		userID, id, string(domain.ChallengeActive),
	)
	if err != nil {
		return false, classify("complete challenge", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExpireChallenges marks active challenges whose window ended on or before
// asOf as expired.
func (c *conn) ExpireChallenges(ctx context.Context, asOf domain.Date) (int64, error) {
	res, err := c.exec(ctx,
		`UPDATE challenge SET status = ? WHERE status = ? AND expires_on <= ?`,
		string(domain.ChallengeExpired), string(domain.ChallengeActive), asOf,
	)
	if err != nil {
		return 0, classify("expire challenges", err)
	}
	return res.RowsAffected()
}

func scanChallenge(s scanner) (*domain.Challenge, error) {
	var ch domain.Challenge
	var period, kind, status string
	var assigned, completed int64
	err := s.Scan(&ch.UserID, &ch.ID, &ch.TemplateID, &ch.Name, &ch.Description, &period, &kind,
		&ch.Category, &ch.ActivityType, &ch.Target, &ch.Progress, &ch.RewardPoints, &status,
		&ch.StartsOn, &ch.ExpiresOn, &assigned, &completed, &ch.TransactionID)
	if err != nil {
		return nil, err
	}
	ch.Period = domain.ChallengePeriod(period)
	ch.Kind = domain.ChallengeKind(kind)
	ch.Status = domain.ChallengeStatus(status)
	ch.AssignedAt = fromMillis(assigned)
	ch.CompletedAt = fromMillis(completed)
	return &ch, nil
}

// ─── Challenge streaks ──────────────────────────────────────────────────────

const challengeStreakColumns = `user_id, category, current_streak, longest_streak,
	last_completion_date, updated_at`

// LockChallengeStreak loads the (user, category) streak, nil if none.
func (c *conn) LockChallengeStreak(ctx context.Context, userID, category string) (*domain.ChallengeStreak, error) {
	row := c.queryRow(ctx,
		`SELECT `+challengeStreakColumns+` FROM challenge_streak
		 WHERE user_id = ? AND category = ?`+c.forUpdate(),
		userID, category,
	)
	s, err := scanChallengeStreak(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("lock challenge streak", err)
	}
	return s, nil
}

// PutChallengeStreak inserts or overwrites a challenge streak.
func (c *conn) PutChallengeStreak(ctx context.Context, s domain.ChallengeStreak) error {
	_, err := c.exec(ctx,
		`INSERT INTO challenge_streak (`+challengeStreakColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, category) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_completion_date = excluded.last_completion_date,
			updated_at = excluded.updated_at`,
		s.UserID, s.Category, s.CurrentStreak, s.LongestStreak,
		s.LastCompletionDate, millis(s.UpdatedAt),
	)
	return classify("put challenge streak", err)
}

// ListChallengeStreaks returns a user's challenge streaks, longest current
// first.
func (c *conn) ListChallengeStreaks(ctx context.Context, userID string) ([]domain.ChallengeStreak, error) {
	rows, err := c.query(ctx,
		`SELECT `+challengeStreakColumns+` FROM challenge_streak WHERE user_id = ?
		 ORDER BY current_streak DESC, category`, userID)
	if err != nil {
		return nil, classify("list challenge streaks", err)
	}
	defer rows.Close()

	var out []domain.ChallengeStreak
	for rows.Next() {
		s, err := scanChallengeStreak(rows)
		if err != nil {
			return nil, classify("scan challenge streak", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanChallengeStreak(s scanner) (*domain.ChallengeStreak, error) {
	var r domain.ChallengeStreak
	var updated int64
	if err := s.Scan(&r.UserID, &r.Category, &r.CurrentStreak, &r.LongestStreak,
		&r.LastCompletionDate, &updated); err != nil {
		return nil, err
	}
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

// ─── Challenge stats ────────────────────────────────────────────────────────

// ChallengeTotals counts the user's completed challenges, those completed
// at or after since, and the reward points they carried.
func (c *conn) ChallengeTotals(ctx context.Context, userID string, since time.Time) (total, recent, points int64, err error) {
	err = c.queryRow(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN completed_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(reward_points), 0)
		 FROM challenge WHERE user_id = ? AND status = ?`,
		millis(since), userID, string(domain.ChallengeCompleted),
	).Scan(&total, &recent, &points)
	if err != nil {
		return 0, 0, 0, classify("challenge totals", err)
	}
	return total, recent, points, nil
}

// ChallengeCategories ranks categories by completed challenges.
func (c *conn) ChallengeCategories(ctx context.Context, userID string, limit int) ([]domain.CategoryCount, error) {
	rows, err := c.query(ctx,
		`SELECT category, COUNT(*) AS n FROM challenge
		 WHERE user_id = ? AND status = ?
		 GROUP BY category ORDER BY n DESC, category LIMIT ?`,
		userID, string(domain.ChallengeCompleted), limit)
	if err != nil {
		return nil, classify("challenge categories", err)
	}
	defer rows.Close()

	var out []domain.CategoryCount
	for rows.Next() {
		var cc domain.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Completions); err != nil {
			return nil, classify("scan challenge category", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}
