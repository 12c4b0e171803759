package store

import (
	"context"
	"fmt"
)

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := sqliteSchema
	if d.dialect == DialectPostgres {
		migrations = postgresSchema
	}
	ctx := context.Background()
	for _, m := range migrations {
		if _, err := d.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Dates are ISO text in SQLite and DATE in Postgres; domain.Date scans both.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS daily_activity (
		user_id          TEXT NOT NULL,
		activity_type    TEXT NOT NULL,
		activity_date    TEXT NOT NULL,
		completion_count INTEGER NOT NULL DEFAULT 1 CHECK (completion_count >= 1),
		context          TEXT,
		updated_at       INTEGER NOT NULL,
		PRIMARY KEY (user_id, activity_type, activity_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_user_date ON daily_activity(user_id, activity_date)`,

	`CREATE TABLE IF NOT EXISTS streak (
		user_id            TEXT NOT NULL,
		activity_type      TEXT NOT NULL,
		current_streak     INTEGER NOT NULL CHECK (current_streak >= 0),
		longest_streak     INTEGER NOT NULL,
		last_activity_date TEXT NOT NULL,
		streak_start_date  TEXT NOT NULL,
		is_active          BOOLEAN NOT NULL DEFAULT 1,
		updated_at         INTEGER NOT NULL,
		PRIMARY KEY (user_id, activity_type),
		CHECK (longest_streak >= current_streak)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_streak_last ON streak(is_active, last_activity_date)`,

	`CREATE TABLE IF NOT EXISTS point_transaction (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		activity_type   TEXT NOT NULL DEFAULT '',
		points          INTEGER NOT NULL,
		source          TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		occurred_at     INTEGER NOT NULL,
		created_at      INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ptx_user ON point_transaction(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS point_balance (
		user_id    TEXT PRIMARY KEY,
		balance    INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS badge_award (
		user_id    TEXT NOT NULL,
		badge_id   TEXT NOT NULL,
		awarded_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, badge_id)
	)`,
	`CREATE TABLE IF NOT EXISTS milestone_award (
		user_id       TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		milestone_id  TEXT NOT NULL,
		streak_days   INTEGER NOT NULL,
		awarded_at    INTEGER NOT NULL,
		PRIMARY KEY (user_id, activity_type, milestone_id)
	)`,
	`CREATE TABLE IF NOT EXISTS level_award (
		user_id         TEXT NOT NULL,
		level_number    INTEGER NOT NULL,
		points_at_award INTEGER NOT NULL,
		awarded_at      INTEGER NOT NULL,
		PRIMARY KEY (user_id, level_number)
	)`,

	`CREATE TABLE IF NOT EXISTS challenge (
		user_id        TEXT NOT NULL,
		id             TEXT NOT NULL,
		template_id    TEXT NOT NULL,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		period         TEXT NOT NULL,
		kind           TEXT NOT NULL,
		category       TEXT NOT NULL,
		activity_type  TEXT NOT NULL DEFAULT '',
		target         INTEGER NOT NULL CHECK (target > 0),
		progress       INTEGER NOT NULL DEFAULT 0 CHECK (progress >= 0),
		reward_points  INTEGER NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'active',
		starts_on      TEXT NOT NULL,
		expires_on     TEXT NOT NULL,
		assigned_at    INTEGER NOT NULL,
		completed_at   INTEGER NOT NULL DEFAULT 0,
		transaction_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, id),
		CHECK (progress <= target)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_challenge_open ON challenge(status, expires_on)`,
	`CREATE TABLE IF NOT EXISTS challenge_streak (
		user_id              TEXT NOT NULL,
		category             TEXT NOT NULL,
		current_streak       INTEGER NOT NULL CHECK (current_streak >= 0),
		longest_streak       INTEGER NOT NULL,
		last_completion_date TEXT NOT NULL,
		updated_at           INTEGER NOT NULL,
		PRIMARY KEY (user_id, category),
		CHECK (longest_streak >= current_streak)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS daily_activity (
		user_id          TEXT NOT NULL,
		activity_type    TEXT NOT NULL,
		activity_date    DATE NOT NULL,
		completion_count INTEGER NOT NULL DEFAULT 1 CHECK (completion_count >= 1),
		context          TEXT,
		updated_at       BIGINT NOT NULL,
		PRIMARY KEY (user_id, activity_type, activity_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_user_date ON daily_activity(user_id, activity_date)`,

	`CREATE TABLE IF NOT EXISTS streak (
		user_id            TEXT NOT NULL,
		activity_type      TEXT NOT NULL,
		current_streak     INTEGER NOT NULL CHECK (current_streak >= 0),
		longest_streak     INTEGER NOT NULL,
		last_activity_date DATE NOT NULL,
		streak_start_date  DATE NOT NULL,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at         BIGINT NOT NULL,
		PRIMARY KEY (user_id, activity_type),
		CHECK (longest_streak >= current_streak)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_streak_last ON streak(is_active, last_activity_date)`,

	`CREATE TABLE IF NOT EXISTS point_transaction (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		activity_type   TEXT NOT NULL DEFAULT '',
		points          BIGINT NOT NULL,
		source          TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		occurred_at     BIGINT NOT NULL,
		created_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ptx_user ON point_transaction(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS point_balance (
		user_id    TEXT PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS badge_award (
		user_id    TEXT NOT NULL,
		badge_id   TEXT NOT NULL,
		awarded_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, badge_id)
	)`,
	`CREATE TABLE IF NOT EXISTS milestone_award (
		user_id       TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		milestone_id  TEXT NOT NULL,
		streak_days   INTEGER NOT NULL,
		awarded_at    BIGINT NOT NULL,
		PRIMARY KEY (user_id, activity_type, milestone_id)
	)`,
	`CREATE TABLE IF NOT EXISTS level_award (
		user_id         TEXT NOT NULL,
		level_number    INTEGER NOT NULL,
		points_at_award BIGINT NOT NULL,
		awarded_at      BIGINT NOT NULL,
		PRIMARY KEY (user_id, level_number)
	)`,

	`CREATE TABLE IF NOT EXISTS challenge (
		user_id        TEXT NOT NULL,
		id             TEXT NOT NULL,
		template_id    TEXT NOT NULL,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		period         TEXT NOT NULL,
		kind           TEXT NOT NULL,
		category       TEXT NOT NULL,
		activity_type  TEXT NOT NULL DEFAULT '',
		target         INTEGER NOT NULL CHECK (target > 0),
		progress       INTEGER NOT NULL DEFAULT 0 CHECK (progress >= 0),
		reward_points  BIGINT NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'active',
		starts_on      DATE NOT NULL,
		expires_on     DATE NOT NULL,
		assigned_at    BIGINT NOT NULL,
		completed_at   BIGINT NOT NULL DEFAULT 0,
		transaction_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, id),
		CHECK (progress <= target)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_challenge_open ON challenge(status, expires_on)`,
	`CREATE TABLE IF NOT EXISTS challenge_streak (
		user_id              TEXT NOT NULL,
		category             TEXT NOT NULL,
		current_streak       INTEGER NOT NULL CHECK (current_streak >= 0),
		longest_streak       INTEGER NOT NULL,
		last_completion_date DATE NOT NULL,
		updated_at           BIGINT NOT NULL,
		PRIMARY KEY (user_id, category),
		CHECK (longest_streak >= current_streak)
	)`,
}
