package store

import (
	"testing"
	"time"

	"github.com/tutu-network/karma/internal/domain"
)

func testChallenge(user, id, period, start, end string, target int) domain.Challenge {
	return domain.Challenge{
		ID: id, UserID: user, TemplateID: id, Name: id,
		Period: domain.ChallengePeriod(period), Kind: domain.KindCompletions,
		Category: "dhyana", Target: target, RewardPoints: 10,
		Status:     domain.ChallengeActive,
		StartsOn:   domain.MustParseDate(start),
		ExpiresOn:  domain.MustParseDate(end),
		AssignedAt: time.Date(2025, 9, 18, 6, 0, 0, 0, time.UTC),
	}
}

// ─── Challenges ─────────────────────────────────────────────────────────────

func TestChallenge_InsertOnceAndList(t *testing.T) {
	db := newTestDB(t)
	daily := testChallenge("u1", "d1", "daily", "2025-09-18", "2025-09-19", 2)
	weekly := testChallenge("u1", "w1", "weekly", "2025-09-15", "2025-09-22", 5)

	ok, err := db.InsertChallenge(ctx, daily)
	if err != nil || !ok {
		t.Fatalf("InsertChallenge() = %v, %v", ok, err)
	}
	if again, _ := db.InsertChallenge(ctx, daily); again {
		t.Error("second insert of the same challenge should be ignored")
	}
	if _, err := db.InsertChallenge(ctx, weekly); err != nil {
		t.Fatalf("InsertChallenge(weekly) error: %v", err)
	}

	got, err := db.ListChallenges(ctx, "u1", domain.MustParseDate("2025-09-18"))
	if err != nil {
		t.Fatalf("ListChallenges() error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "d1" || got[1].ID != "w1" {
		t.Fatalf("challenges = %+v", got)
	}
	if !got[0].AssignedAt.Equal(daily.AssignedAt) || !got[0].CompletedAt.IsZero() {
		t.Errorf("times = %v / %v", got[0].AssignedAt, got[0].CompletedAt)
	}

	got, _ = db.ListChallenges(ctx, "u1", domain.MustParseDate("2025-09-19"))
	if len(got) != 1 || got[0].ID != "w1" {
		t.Errorf("next day = %+v, want weekly only", got)
	}
}

func TestChallenge_ProgressAndComplete(t *testing.T) {
	db := newTestDB(t)
	ch := testChallenge("u1", "d1", "daily", "2025-09-18", "2025-09-19", 2)
	db.InsertChallenge(ctx, ch)

	if err := db.SetChallengeProgress(ctx, "u1", "d1", 1); err != nil {
		t.Fatalf("SetChallengeProgress() error: %v", err)
	}
	if err := db.SetChallengeProgress(ctx, "u1", "d1", 3); err == nil {
		t.Error("expected progress <= target check to reject the update")
	}

	at := time.Date(2025, 9, 18, 20, 0, 0, 0, time.UTC)
	ok, err := db.CompleteChallenge(ctx, "u1", "d1", 2, "tx-1", at)
	if err != nil || !ok {
		t.Fatalf("CompleteChallenge() = %v, %v", ok, err)
	}
	if again, _ := db.CompleteChallenge(ctx, "u1", "d1", 2, "tx-2", at); again {
		t.Error("completed challenge completed twice")
	}

	open, err := db.OpenChallenges(ctx, "u1", domain.MustParseDate("2025-09-18"))
	if err != nil {
		t.Fatalf("OpenChallenges() error: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open = %+v, want none", open)
	}

	got, _ := db.ListChallenges(ctx, "u1", domain.MustParseDate("2025-09-18"))
	if got[0].Status != domain.ChallengeCompleted || got[0].TransactionID != "tx-1" || !got[0].CompletedAt.Equal(at) {
		t.Errorf("completed challenge = %+v", got[0])
	}

	total, recent, points, err := db.ChallengeTotals(ctx, "u1", at.Add(-time.Hour))
	if err != nil || total != 1 || recent != 1 || points != 10 {
		t.Errorf("totals = %d, %d, %d, %v", total, recent, points, err)
	}
	_, recent, _, _ = db.ChallengeTotals(ctx, "u1", at.Add(time.Hour))
	if recent != 0 {
		t.Errorf("recent = %d, want 0 after since", recent)
	}

	cats, err := db.ChallengeCategories(ctx, "u1", 5)
	if err != nil || len(cats) != 1 || cats[0].Category != "dhyana" || cats[0].Completions != 1 {
		t.Errorf("categories = %+v, %v", cats, err)
	}
}

func TestExpireChallenges(t *testing.T) {
	db := newTestDB(t)
	db.InsertChallenge(ctx, testChallenge("u1", "d1", "daily", "2025-09-17", "2025-09-18", 1))
	db.InsertChallenge(ctx, testChallenge("u1", "d2", "daily", "2025-09-18", "2025-09-19", 1))
	db.InsertChallenge(ctx, testChallenge("u2", "d3", "daily", "2025-09-17", "2025-09-18", 1))
	db.CompleteChallenge(ctx, "u2", "d3", 1, "tx", time.Now())

	n, err := db.ExpireChallenges(ctx, domain.MustParseDate("2025-09-18"))
	if err != nil {
		t.Fatalf("ExpireChallenges() error: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	got, _ := db.ListChallenges(ctx, "u1", domain.MustParseDate("2025-09-17"))
	if len(got) != 1 || got[0].Status != domain.ChallengeExpired {
		t.Errorf("d1 = %+v, want expired", got)
	}
}

// ─── Challenge streaks ──────────────────────────────────────────────────────

func TestChallengeStreak_PutAndLock(t *testing.T) {
	db := newTestDB(t)

	s, err := db.LockChallengeStreak(ctx, "u1", "dhyana")
	if err != nil || s != nil {
		t.Fatalf("LockChallengeStreak() on empty = %+v, %v", s, err)
	}

	rec := domain.ChallengeStreak{
		UserID: "u1", Category: "dhyana", CurrentStreak: 1, LongestStreak: 1,
		LastCompletionDate: domain.MustParseDate("2025-09-17"),
		UpdatedAt:          time.Date(2025, 9, 17, 20, 0, 0, 0, time.UTC),
	}
	if err := db.PutChallengeStreak(ctx, rec); err != nil {
		t.Fatalf("PutChallengeStreak() error: %v", err)
	}
	rec.CurrentStreak, rec.LongestStreak = 2, 2
	rec.LastCompletionDate = domain.MustParseDate("2025-09-18")
	if err := db.PutChallengeStreak(ctx, rec); err != nil {
		t.Fatalf("PutChallengeStreak() overwrite error: %v", err)
	}

	s, err = db.LockChallengeStreak(ctx, "u1", "dhyana")
	if err != nil || s == nil {
		t.Fatalf("LockChallengeStreak() = %+v, %v", s, err)
	}
	if s.CurrentStreak != 2 || s.LastCompletionDate.String() != "2025-09-18" {
		t.Errorf("streak = %+v", s)
	}

	db.PutChallengeStreak(ctx, domain.ChallengeStreak{
		UserID: "u1", Category: "pranayama", CurrentStreak: 1, LongestStreak: 4,
		LastCompletionDate: domain.MustParseDate("2025-09-18"),
	})
	all, err := db.ListChallengeStreaks(ctx, "u1")
	if err != nil || len(all) != 2 || all[0].Category != "dhyana" {
		t.Errorf("streaks = %+v, %v", all, err)
	}
}
