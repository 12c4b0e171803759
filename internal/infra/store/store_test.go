package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tutu-network/karma/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var ctx = context.Background()

// ─── Open / migrations ──────────────────────────────────────────────────────

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := Open(Config{Driver: "sqlite", Dir: dir})
		if err != nil {
			t.Fatalf("Open #%d error: %v", i, err)
		}
		if db.Dialect() != DialectSQLite {
			t.Errorf("dialect = %s, want sqlite", db.Dialect())
		}
		db.Close()
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &conn{dialect: DialectPostgres}
	got := pg.rebind(`SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?`)
	want := `SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := &conn{dialect: DialectSQLite}
	if q := lite.rebind(`x = ?`); q != `x = ?` {
		t.Errorf("sqlite rebind changed query: %q", q)
	}
}

// ─── Daily activity ─────────────────────────────────────────────────────────

func TestUpsertDaily_Increments(t *testing.T) {
	db := newTestDB(t)
	day := domain.MustParseDate("2025-09-18")
	now := time.Now()

	for want := 1; want <= 3; want++ {
		got, err := db.UpsertDaily(ctx, "u1", "journal_entry", day, `{"mood":"calm"}`, now)
		if err != nil {
			t.Fatalf("UpsertDaily() error: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	// Different key is independent
	n, _ := db.UpsertDaily(ctx, "u1", "journal_entry", day.AddDays(1), "", now)
	if n != 1 {
		t.Errorf("next day count = %d, want 1", n)
	}

	count, err := db.DailyCount(ctx, "u1", "journal_entry", day)
	if err != nil {
		t.Fatalf("DailyCount() error: %v", err)
	}
	if count != 3 {
		t.Errorf("DailyCount = %d, want 3", count)
	}

	rows, err := db.ListDaily(ctx, "u1", day)
	if err != nil {
		t.Fatalf("ListDaily() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListDaily returned %d rows, want 2", len(rows))
	}
	if rows[1].Date != day || rows[1].Context != `{"mood":"calm"}` {
		t.Errorf("unexpected row: %+v", rows[1])
	}
}

func TestUpsertDaily_ReplacesContext(t *testing.T) {
	db := newTestDB(t)
	day := domain.MustParseDate("2025-09-18")
	now := time.Now()

	contextOf := func() string {
		t.Helper()
		rows, err := db.ListDaily(ctx, "u1", day)
		if err != nil || len(rows) != 1 {
			t.Fatalf("ListDaily() = %+v, %v", rows, err)
		}
		return rows[0].Context
	}

	db.UpsertDaily(ctx, "u1", "mood_logging", day, `{"a":1}`, now)
	db.UpsertDaily(ctx, "u1", "mood_logging", day, `{"b":2}`, now)
	if got := contextOf(); got != `{"b":2}` {
		t.Errorf("context = %q, want the latest payload", got)
	}

	n, err := db.UpsertDaily(ctx, "u1", "mood_logging", day, "", now)
	if err != nil || n != 3 {
		t.Fatalf("UpsertDaily() = %d, %v", n, err)
	}
	if got := contextOf(); got != "" {
		t.Errorf("context = %q, want cleared by a call without context", got)
	}
}

func TestUpsertDaily_Concurrent(t *testing.T) {
	db := newTestDB(t)
	day := domain.MustParseDate("2025-09-18")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.UpsertDaily(ctx, "u1", "mood_logging", day, "", time.Now()); err != nil {
				t.Errorf("UpsertDaily() error: %v", err)
			}
		}()
	}
	wg.Wait()

	count, _ := db.DailyCount(ctx, "u1", "mood_logging", day)
	if count != 20 {
		t.Errorf("count = %d, want 20", count)
	}
}

func TestActivityTotals(t *testing.T) {
	db := newTestDB(t)
	d := domain.MustParseDate("2025-09-18")
	db.UpsertDaily(ctx, "u1", "a", d, "", time.Now())
	db.UpsertDaily(ctx, "u1", "a", d, "", time.Now())
	db.UpsertDaily(ctx, "u1", "a", d.AddDays(1), "", time.Now())
	db.UpsertDaily(ctx, "u1", "b", d, "", time.Now())
	db.UpsertDaily(ctx, "u2", "a", d, "", time.Now())

	totals, err := db.ActivityTotals(ctx, "u1")
	if err != nil {
		t.Fatalf("ActivityTotals() error: %v", err)
	}
	if totals["a"] != 3 || totals["b"] != 1 || len(totals) != 2 {
		t.Errorf("totals = %v", totals)
	}
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func TestStreak_InsertLockUpdate(t *testing.T) {
	db := newTestDB(t)

	s, err := db.LockStreak(ctx, "u1", "breathing_exercise")
	if err != nil || s != nil {
		t.Fatalf("LockStreak() on empty = %v, %v", s, err)
	}

	rec := domain.StreakRecord{
		UserID: "u1", ActivityType: "breathing_exercise",
		CurrentStreak: 1, LongestStreak: 1,
		LastActivityDate: domain.MustParseDate("2025-09-18"),
		StreakStartDate:  domain.MustParseDate("2025-09-18"),
		IsActive:         true, UpdatedAt: time.Now(),
	}
	ok, err := db.InsertStreak(ctx, rec)
	if err != nil || !ok {
		t.Fatalf("InsertStreak() = %v, %v", ok, err)
	}
	ok, err = db.InsertStreak(ctx, rec)
	if err != nil || ok {
		t.Errorf("second InsertStreak() = %v, %v; want false, nil", ok, err)
	}

	rec.CurrentStreak = 2
	rec.LongestStreak = 2
	rec.LastActivityDate = domain.MustParseDate("2025-09-19")
	if err := db.UpdateStreak(ctx, rec); err != nil {
		t.Fatalf("UpdateStreak() error: %v", err)
	}

	got, err := db.LockStreak(ctx, "u1", "breathing_exercise")
	if err != nil {
		t.Fatalf("LockStreak() error: %v", err)
	}
	if got.CurrentStreak != 2 || got.LongestStreak != 2 {
		t.Errorf("streak = %d/%d, want 2/2", got.CurrentStreak, got.LongestStreak)
	}
	if got.LastActivityDate.String() != "2025-09-19" || got.StreakStartDate.String() != "2025-09-18" {
		t.Errorf("dates = %s/%s", got.LastActivityDate, got.StreakStartDate)
	}
	if !got.IsActive {
		t.Error("expected active streak")
	}
}

func TestStreak_CheckConstraint(t *testing.T) {
	db := newTestDB(t)
	bad := domain.StreakRecord{
		UserID: "u1", ActivityType: "x",
		CurrentStreak: 3, LongestStreak: 1,
		LastActivityDate: domain.MustParseDate("2025-09-18"),
		StreakStartDate:  domain.MustParseDate("2025-09-16"),
	}
	if _, err := db.InsertStreak(ctx, bad); err == nil {
		t.Fatal("expected longest >= current check to reject row")
	}
}

func TestDeactivateStaleStreaks(t *testing.T) {
	db := newTestDB(t)
	for i, last := range []string{"2025-09-10", "2025-09-17", "2025-09-18"} {
		d := domain.MustParseDate(last)
		db.InsertStreak(ctx, domain.StreakRecord{
			UserID: fmt.Sprintf("u%d", i), ActivityType: "a",
			CurrentStreak: 1, LongestStreak: 1,
			LastActivityDate: d, StreakStartDate: d, IsActive: true,
		})
	}

	n, err := db.DeactivateStaleStreaks(ctx, domain.MustParseDate("2025-09-17"), time.Now())
	if err != nil {
		t.Fatalf("DeactivateStaleStreaks() error: %v", err)
	}
	if n != 1 {
		t.Errorf("deactivated %d, want 1", n)
	}

	s, _ := db.LockStreak(ctx, "u0", "a")
	if s.IsActive || s.CurrentStreak != 1 {
		t.Errorf("stale streak = %+v", s)
	}

	// Re-running finds nothing new
	n, _ = db.DeactivateStaleStreaks(ctx, domain.MustParseDate("2025-09-17"), time.Now())
	if n != 0 {
		t.Errorf("second sweep deactivated %d, want 0", n)
	}
}

// ─── Points ─────────────────────────────────────────────────────────────────

func TestPointTx_Idempotent(t *testing.T) {
	db := newTestDB(t)
	tx := domain.PointTransaction{
		ID: "t1", UserID: "u1", ActivityType: "journal_entry", Points: 15,
		Source: domain.SourceActivity, IdempotencyKey: "evt-1",
		OccurredAt: time.Now(), CreatedAt: time.Now(),
	}
	ok, err := db.InsertPointTx(ctx, tx)
	if err != nil || !ok {
		t.Fatalf("InsertPointTx() = %v, %v", ok, err)
	}

	tx.ID = "t2"
	ok, err = db.InsertPointTx(ctx, tx)
	if err != nil || ok {
		t.Errorf("replay InsertPointTx() = %v, %v; want false, nil", ok, err)
	}

	got, err := db.PointTxByKey(ctx, "evt-1")
	if err != nil {
		t.Fatalf("PointTxByKey() error: %v", err)
	}
	if got.ID != "t1" || got.Points != 15 || got.Source != domain.SourceActivity {
		t.Errorf("PointTxByKey = %+v", got)
	}

	if _, err := db.PointTxByKey(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing key error = %v, want ErrNotFound", err)
	}

	// Transactions without keys never collide
	for _, id := range []string{"t3", "t4"} {
		ok, err := db.InsertPointTx(ctx, domain.PointTransaction{
			ID: id, UserID: "u1", Points: 5, Source: domain.SourceAdjust,
			OccurredAt: time.Now(), CreatedAt: time.Now(),
		})
		if err != nil || !ok {
			t.Errorf("InsertPointTx(%s) = %v, %v", id, ok, err)
		}
	}

	sum, _ := db.SumPoints(ctx, "u1")
	if sum != 25 {
		t.Errorf("SumPoints = %d, want 25", sum)
	}

	list, err := db.ListPointTx(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListPointTx() error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListPointTx returned %d, want 2", len(list))
	}
}

func TestBalanceCache(t *testing.T) {
	db := newTestDB(t)

	bal, err := db.Balance(ctx, "nobody")
	if err != nil || bal != 0 {
		t.Fatalf("Balance(unknown) = %d, %v", bal, err)
	}

	db.AddBalance(ctx, "u1", 10, time.Now())
	bal, _ = db.AddBalance(ctx, "u1", 15, time.Now())
	if bal != 25 {
		t.Errorf("AddBalance = %d, want 25", bal)
	}

	if err := db.SetBalance(ctx, "u1", 7, time.Now()); err != nil {
		t.Fatalf("SetBalance() error: %v", err)
	}
	bal, _ = db.Balance(ctx, "u1")
	if bal != 7 {
		t.Errorf("Balance = %d, want 7", bal)
	}
}

func TestBalanceDrift(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	db.InsertPointTx(ctx, domain.PointTransaction{ID: "a", UserID: "ok", Points: 10, Source: domain.SourceActivity, OccurredAt: now, CreatedAt: now})
	db.AddBalance(ctx, "ok", 10, now)
	db.InsertPointTx(ctx, domain.PointTransaction{ID: "b", UserID: "drifted", Points: 20, Source: domain.SourceActivity, OccurredAt: now, CreatedAt: now})
	db.AddBalance(ctx, "drifted", 5, now)
	db.InsertPointTx(ctx, domain.PointTransaction{ID: "c", UserID: "uncached", Points: 8, Source: domain.SourceActivity, OccurredAt: now, CreatedAt: now})
	db.AddBalance(ctx, "orphan", 7, now)

	drift, err := db.BalanceDrift(ctx)
	if err != nil {
		t.Fatalf("BalanceDrift() error: %v", err)
	}
	if len(drift) != 3 {
		t.Fatalf("drift = %+v, want 3 entries", drift)
	}
	if drift[0].UserID != "drifted" || drift[0].Cached != 5 || drift[0].Ledger != 20 {
		t.Errorf("drift[0] = %+v", drift[0])
	}
	if drift[1].UserID != "orphan" || drift[1].Cached != 7 || drift[1].Ledger != 0 {
		t.Errorf("drift[1] = %+v", drift[1])
	}
	if drift[2].UserID != "uncached" || drift[2].Cached != 0 || drift[2].Ledger != 8 {
		t.Errorf("drift[2] = %+v", drift[2])
	}
}

// ─── Awards ─────────────────────────────────────────────────────────────────

func TestAwards_InsertOnce(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	ok, _ := db.InsertBadgeAward(ctx, "u1", "first_step", now)
	again, _ := db.InsertBadgeAward(ctx, "u1", "first_step", now)
	if !ok || again {
		t.Errorf("badge insert = %v then %v, want true then false", ok, again)
	}

	m := domain.MilestoneAward{UserID: "u1", ActivityType: "a", MilestoneID: "week", StreakDays: 7, AwardedAt: now}
	ok, _ = db.InsertMilestoneAward(ctx, m)
	again, _ = db.InsertMilestoneAward(ctx, m)
	if !ok || again {
		t.Errorf("milestone insert = %v then %v", ok, again)
	}
	m.ActivityType = "b"
	if ok, _ := db.InsertMilestoneAward(ctx, m); !ok {
		t.Error("same milestone for another activity type should be granted")
	}

	l := domain.LevelAward{UserID: "u1", Level: 2, PointsAtAward: 100, AwardedAt: now}
	ok, _ = db.InsertLevelAward(ctx, l)
	again, _ = db.InsertLevelAward(ctx, l)
	if !ok || again {
		t.Errorf("level insert = %v then %v", ok, again)
	}

	badges, _ := db.ListBadgeAwards(ctx, "u1")
	milestones, _ := db.ListMilestoneAwards(ctx, "u1")
	levels, _ := db.ListLevelAwards(ctx, "u1")
	if len(badges) != 1 || len(milestones) != 2 || len(levels) != 1 {
		t.Errorf("awards = %d badges, %d milestones, %d levels", len(badges), len(milestones), len(levels))
	}
}

func TestAwards_ConcurrentSingleRow(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.InsertBadgeAward(ctx, "u1", "streak_7", time.Now())
			if err != nil {
				t.Errorf("InsertBadgeAward() error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Errorf("granted %d times, want 1", granted)
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestInTx_RollbackOnError(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")

	err := db.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertDaily(ctx, "u1", "a", domain.MustParseDate("2025-09-18"), "", time.Now()); err != nil {
			return err
		}
		if _, err := tx.AddBalance(ctx, "u1", 10, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	count, _ := db.DailyCount(ctx, "u1", "a", domain.MustParseDate("2025-09-18"))
	bal, _ := db.Balance(ctx, "u1")
	if count != 0 || bal != 0 {
		t.Errorf("rolled back state visible: count=%d balance=%d", count, bal)
	}
}

func TestInTx_Commit(t *testing.T) {
	db := newTestDB(t)
	err := db.InTx(ctx, func(tx *Tx) error {
		_, err := tx.AddBalance(ctx, "u1", 12, time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("InTx() error: %v", err)
	}
	bal, _ := db.Balance(ctx, "u1")
	if bal != 12 {
		t.Errorf("balance = %d, want 12", bal)
	}
}

// ─── Error classification ───────────────────────────────────────────────────

type fakeSQLiteErr int

func (e fakeSQLiteErr) Error() string { return fmt.Sprintf("sqlite error %d", int(e)) }
func (e fakeSQLiteErr) Code() int     { return int(e) }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pg serialization", &pgconn.PgError{Code: "40001"}, domain.ErrConcurrencyConflict},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, domain.ErrConcurrencyConflict},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, domain.ErrConcurrencyConflict},
		{"pg unique", &pgconn.PgError{Code: "23505"}, domain.ErrDuplicateAward},
		{"pg other", &pgconn.PgError{Code: "42P01"}, domain.ErrTransient},
		{"sqlite busy", fakeSQLiteErr(5), domain.ErrConcurrencyConflict},
		{"sqlite busy snapshot", fakeSQLiteErr(517), domain.ErrConcurrencyConflict},
		{"sqlite locked", fakeSQLiteErr(6), domain.ErrConcurrencyConflict},
		{"sqlite unique", fakeSQLiteErr(2067), domain.ErrDuplicateAward},
		{"sqlite pk", fakeSQLiteErr(1555), domain.ErrDuplicateAward},
		{"plain", errors.New("disk on fire"), domain.ErrTransient},
	}
	for _, tt := range tests {
		got := classify("op", tt.err)
		if !errors.Is(got, tt.want) {
			t.Errorf("%s: classify() = %v, want %v", tt.name, got, tt.want)
		}
		if !errors.Is(got, tt.err) {
			t.Errorf("%s: original error lost from chain", tt.name)
		}
	}

	if classify("op", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	if err := classify("op", context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrTransient) {
		t.Errorf("classify(Canceled) = %v", err)
	}
}

// ─── Postgres (opt-in) ──────────────────────────────────────────────────────

func TestPostgres_Smoke(t *testing.T) {
	dsn := os.Getenv("KARMA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KARMA_TEST_POSTGRES_DSN not set")
	}
	db, err := OpenPostgres(dsn, 4)
	if err != nil {
		t.Fatalf("OpenPostgres() error: %v", err)
	}
	defer db.Close()

	user := fmt.Sprintf("pg-smoke-%d", time.Now().UnixNano())
	day := domain.MustParseDate("2025-09-18")

	err = db.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertDaily(ctx, user, "a", day, "", time.Now()); err != nil {
			return err
		}
		if _, err := tx.InsertStreak(ctx, domain.StreakRecord{
			UserID: user, ActivityType: "a", CurrentStreak: 1, LongestStreak: 1,
			LastActivityDate: day, StreakStartDate: day, IsActive: true, UpdatedAt: time.Now(),
		}); err != nil {
			return err
		}
		s, err := tx.LockStreak(ctx, user, "a")
		if err != nil {
			return err
		}
		if s == nil || s.LastActivityDate != day {
			return fmt.Errorf("unexpected streak %+v", s)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx() error: %v", err)
	}
}
