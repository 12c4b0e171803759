// Package credit implements the append-only points ledger.
// A user's balance is always SUM(points) over their transactions; the
// point_balance row is a cache kept in step inside the same transaction.
package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/domain"
)

// Store is the slice of persistence the ledger writes through. Both
// *store.DB and *store.Tx satisfy it.
type Store interface {
	InsertPointTx(ctx context.Context, tx domain.PointTransaction) (bool, error)
	PointTxByKey(ctx context.Context, key string) (*domain.PointTransaction, error)
	AddBalance(ctx context.Context, userID string, delta int64, now time.Time) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// Reader serves balance and history reads.
type Reader interface {
	Balance(ctx context.Context, userID string) (int64, error)
	SumPoints(ctx context.Context, userID string) (int64, error)
	ListPointTx(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error)
}

// Reconciler repairs the balance cache.
type Reconciler interface {
	BalanceDrift(ctx context.Context) ([]domain.BalanceDrift, error)
	SetBalance(ctx context.Context, userID string, balance int64, now time.Time) error
}

// Catalog resolves point values.
type Catalog interface {
	Lookup(activityType string) (domain.ActivityDef, error)
}

// Ledger manages point earning.
type Ledger struct {
	catalog Catalog
	log     *zap.Logger
	now     func() time.Time
}

// NewLedger creates a points ledger.
func NewLedger(cat Catalog, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{catalog: cat, log: log.Named("credit"), now: time.Now}
}

// EarnRequest credits the catalog value of one completed activity.
type EarnRequest struct {
	UserID         string
	ActivityType   string
	IdempotencyKey string
	OccurredAt     time.Time
	Description    string
}

// Grant credits an explicit amount, e.g. a milestone reward.
type Grant struct {
	UserID         string
	ActivityType   string
	Points         int64
	Source         domain.TxSource
	Description    string
	IdempotencyKey string
	OccurredAt     time.Time
}

// Result describes one ledger append.
type Result struct {
	TransactionID string
	Points        int64
	Balance       int64
	// Duplicate is set when the idempotency key was already recorded; the
	// prior transaction's id, amount, type and time are reported and
	// nothing is written.
	Duplicate    bool
	ActivityType string
	OccurredAt   time.Time
}

// Earn records points for a completed activity.
func (l *Ledger) Earn(ctx context.Context, s Store, req EarnRequest) (Result, error) {
	def, err := l.catalog.Lookup(req.ActivityType)
	if err != nil {
		return Result{}, err
	}
	desc := req.Description
	if desc == "" {
		desc = def.Name
	}
	return l.Grant(ctx, s, Grant{
		UserID:         req.UserID,
		ActivityType:   req.ActivityType,
		Points:         def.Points,
		Source:         domain.SourceActivity,
		Description:    desc,
		IdempotencyKey: req.IdempotencyKey,
		OccurredAt:     req.OccurredAt,
	})
}

// Grant appends a transaction and moves the cached balance with it.
func (l *Ledger) Grant(ctx context.Context, s Store, g Grant) (Result, error) {
	if g.UserID == "" {
		return Result{}, domain.Invalid("user_id", "required")
	}
	if g.Points <= 0 {
		return Result{}, fmt.Errorf("grant amount must be positive, got %d", g.Points)
	}

	now := l.now()
	occurred := g.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	tx := domain.PointTransaction{
		ID:             uuid.NewString(),
		UserID:         g.UserID,
		ActivityType:   g.ActivityType,
		Points:         g.Points,
		Source:         g.Source,
		Description:    g.Description,
		IdempotencyKey: g.IdempotencyKey,
		OccurredAt:     occurred,
		CreatedAt:      now,
	}

	ok, err := s.InsertPointTx(ctx, tx)
	if err != nil {
		return Result{}, fmt.Errorf("append transaction: %w", err)
	}
	if !ok {
		return l.replay(ctx, s, g)
	}

	bal, err := s.AddBalance(ctx, g.UserID, g.Points, now)
	if err != nil {
		return Result{}, fmt.Errorf("update balance cache: %w", err)
	}

	l.log.Debug("points credited",
		zap.String("user_id", g.UserID),
		zap.String("source", string(g.Source)),
		zap.Int64("points", g.Points),
		zap.Int64("balance", bal))

	return Result{
		TransactionID: tx.ID,
		Points:        g.Points,
		Balance:       bal,
		ActivityType:  g.ActivityType,
		OccurredAt:    occurred,
	}, nil
}

func (l *Ledger) replay(ctx context.Context, s Store, g Grant) (Result, error) {
	prior, err := s.PointTxByKey(ctx, g.IdempotencyKey)
	if err != nil {
		return Result{}, fmt.Errorf("load replayed transaction: %w", err)
	}
	if prior.UserID != g.UserID {
		return Result{}, domain.Invalid("idempotency_key", "already used by another user")
	}
	if prior.ActivityType != g.ActivityType || prior.Source != g.Source {
		return Result{}, domain.Invalid("idempotency_key", "already used for a different activity")
	}
	bal, err := s.Balance(ctx, g.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("get balance: %w", err)
	}
	l.log.Debug("idempotent replay",
		zap.String("user_id", g.UserID),
		zap.String("idempotency_key", g.IdempotencyKey))
	return Result{
		TransactionID: prior.ID,
		Points:        prior.Points,
		Balance:       bal,
		Duplicate:     true,
		ActivityType:  prior.ActivityType,
		OccurredAt:    prior.OccurredAt,
	}, nil
}

// Balance returns the cached balance.
func (l *Ledger) Balance(ctx context.Context, r Reader, userID string) (int64, error) {
	return r.Balance(ctx, userID)
}

// RecomputeBalance re-aggregates the balance from the transaction log.
func (l *Ledger) RecomputeBalance(ctx context.Context, r Reader, userID string) (int64, error) {
	return r.SumPoints(ctx, userID)
}

// History returns recent transactions for a user.
func (l *Ledger) History(ctx context.Context, r Reader, userID string, limit int) ([]domain.PointTransaction, error) {
	return r.ListPointTx(ctx, userID, limit)
}

// Reconcile rewrites every drifted balance cache row from the ledger and
// returns what it fixed.
func (l *Ledger) Reconcile(ctx context.Context, r Reconciler) ([]domain.BalanceDrift, error) {
	drift, err := r.BalanceDrift(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()
	for _, d := range drift {
		if err := r.SetBalance(ctx, d.UserID, d.Ledger, now); err != nil {
			return nil, fmt.Errorf("repair %s: %w", d.UserID, err)
		}
		l.log.Warn("balance cache repaired",
			zap.String("user_id", d.UserID),
			zap.Int64("cached", d.Cached),
			zap.Int64("ledger", d.Ledger))
	}
	return drift, nil
}

// MilestoneKey is the idempotency key of a milestone reward. A milestone
// is credited at most once per (user, activity type).
func MilestoneKey(userID, activityType, milestoneID string) string {
	return "milestone:" + userID + ":" + activityType + ":" + milestoneID
}

// ChallengeKey is the idempotency key of a challenge reward. Challenge ids
// are unique per user, so a challenge pays out at most once.
func ChallengeKey(userID, challengeID string) string {
	return "challenge:" + userID + ":" + challengeID
}
