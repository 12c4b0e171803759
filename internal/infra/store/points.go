package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

// ─── Point Ledger ───────────────────────────────────────────────────────────

const txColumns = `id, user_id, activity_type, points, source, description,
	COALESCE(idempotency_key, ''), occurred_at, created_at`

// InsertPointTx appends a transaction. When tx.IdempotencyKey is already
// recorded nothing is written and false is returned.
func (c *conn) InsertPointTx(ctx context.Context, tx domain.PointTransaction) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO point_transaction
			(id, user_id, activity_type, points, source, description, idempotency_key, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		tx.ID, tx.UserID, tx.ActivityType, tx.Points, string(tx.Source), tx.Description,
		nullString(tx.IdempotencyKey), millis(tx.OccurredAt), millis(tx.CreatedAt),
	)
	if err != nil {
		err = classify("insert point transaction", err)
		if errors.Is(err, domain.ErrDuplicateAward) {
			return false, nil
		}
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PointTxByKey returns the transaction recorded under an idempotency key.
func (c *conn) PointTxByKey(ctx context.Context, key string) (*domain.PointTransaction, error) {
	row := c.queryRow(ctx,
		`SELECT `+txColumns+` FROM point_transaction WHERE idempotency_key = ?`, key)
	tx, err := scanPointTx(row)
	if err != nil {
		return nil, classify("get point transaction", err)
	}
	return tx, nil
}

// ListPointTx returns a user's most recent transactions.
func (c *conn) ListPointTx(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.query(ctx,
		`SELECT `+txColumns+` FROM point_transaction WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, classify("list point transactions", err)
	}
	defer rows.Close()

	var out []domain.PointTransaction
	for rows.Next() {
		tx, err := scanPointTx(rows)
		if err != nil {
			return nil, classify("scan point transaction", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// SumPoints re-aggregates a user's balance from the ledger.
func (c *conn) SumPoints(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := c.queryRow(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM point_transaction WHERE user_id = ?`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, classify("sum points", err)
	}
	return sum, nil
}

// ─── Balance Cache ──────────────────────────────────────────────────────────

// AddBalance atomically adds delta to the cached balance and returns the
// new value. Call it in the same transaction as InsertPointTx.
func (c *conn) AddBalance(ctx context.Context, userID string, delta int64, now time.Time) (int64, error) {
	var bal int64
	err := c.queryRow(ctx,
		`INSERT INTO point_balance (user_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			balance = point_balance.balance + excluded.balance,
			updated_at = excluded.updated_at
		 RETURNING balance`,
		userID, delta, millis(now),
	).Scan(&bal)
	if err != nil {
		return 0, classify("add balance", err)
	}
	return bal, nil
}

// Balance returns the cached balance, 0 for unknown users.
func (c *conn) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := c.queryRow(ctx,
		`SELECT balance FROM point_balance WHERE user_id = ?`, userID,
	).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("get balance", err)
	}
	return bal, nil
}

// SetBalance overwrites the cached balance.
func (c *conn) SetBalance(ctx context.Context, userID string, balance int64, now time.Time) error {
	_, err := c.exec(ctx,
		`INSERT INTO point_balance (user_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at`,
		userID, balance, millis(now),
	)
	return classify("set balance", err)
}

// BalanceDrift lists users whose cached balance differs from the sum of
// their transactions. A missing cache row or a cache row with no
// transactions behind it both count as drift.
func (c *conn) BalanceDrift(ctx context.Context) ([]domain.BalanceDrift, error) {
	rows, err := c.query(ctx,
		`SELECT u.user_id, COALESCE(b.balance, 0), COALESCE(t.total, 0)
		 FROM (SELECT user_id FROM point_transaction UNION SELECT user_id FROM point_balance) u
		 LEFT JOIN (SELECT user_id, SUM(points) AS total FROM point_transaction GROUP BY user_id) t
		   ON t.user_id = u.user_id
		 LEFT JOIN point_balance b ON b.user_id = u.user_id
		 WHERE b.balance IS NULL OR b.balance <> COALESCE(t.total, 0)
		 ORDER BY u.user_id`)
	if err != nil {
		return nil, classify("balance drift", err)
	}
	defer rows.Close()

	var out []domain.BalanceDrift
	for rows.Next() {
		var d domain.BalanceDrift
		if err := rows.Scan(&d.UserID, &d.Cached, &d.Ledger); err != nil {
			return nil, classify("scan balance drift", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanPointTx(s scanner) (*domain.PointTransaction, error) {
	var tx domain.PointTransaction
	var source string
	var occurred, created int64
	err := s.Scan(&tx.ID, &tx.UserID, &tx.ActivityType, &tx.Points, &source,
		&tx.Description, &tx.IdempotencyKey, &occurred, &created)
	if err != nil {
		return nil, err
	}
	tx.Source = domain.TxSource(source)
	tx.OccurredAt = fromMillis(occurred)
	tx.CreatedAt = fromMillis(created)
	return &tx, nil
}
