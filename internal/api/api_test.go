package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tutu-network/karma/internal/app/engagement"
	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/health"
	"github.com/tutu-network/karma/internal/infra/catalog"
	"github.com/tutu-network/karma/internal/infra/store"
)

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	return newTestServerWith(t, engagement.Options{})
}

func newTestServerWith(t *testing.T, opts engagement.Options) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cat := catalog.New()
	facade := engagement.NewFacade(db, cat, opts)
	srv := NewServer(facade, cat, nil)
	srv.now = func() time.Time { return time.Date(2025, 9, 18, 10, 0, 0, 0, time.UTC) }
	return srv, db
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

// ─── Health ─────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthEndpoint_WithChecker(t *testing.T) {
	srv, db := newTestServer(t)
	checker := health.NewChecker(db, catalog.New(), nil, nil)
	checker.RunOnce(context.Background())
	srv.SetHealth(checker)

	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode[struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}](t, w)
	if body.Status != "ok" || len(body.Checks) != 3 {
		t.Errorf("health = %+v", body)
	}
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/api/version", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), Version) {
		t.Errorf("version = %d %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	if w := do(t, srv.Handler(), "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled: status = %d, want 404", w.Code)
	}

	srv.EnableMetrics()
	w := do(t, srv.Handler(), "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics enabled: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in output")
	}
}

// ─── Record Activity ────────────────────────────────────────────────────────

func TestRecordActivity(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, "POST", "/api/v1/users/u1/activities",
		`{"activity_type":"journal_entry","timestamp":"2025-09-18T08:00:00Z","context":{"words":120}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	sum := decode[domain.Summary](t, w)
	if sum.UserID != "u1" || sum.PointsAwarded != 15 || sum.DailyCount != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Date.String() != "2025-09-18" || sum.Streak.Current != 1 {
		t.Errorf("date/streak = %s/%d", sum.Date, sum.Streak.Current)
	}
	if len(sum.NewAwards) == 0 {
		t.Error("expected first_step badge in new awards")
	}
}

func TestRecordActivity_DefaultsTimestamp(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), "POST", "/api/v1/users/u1/activities", `{"activity_type":"mood_logging"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if sum := decode[domain.Summary](t, w); sum.Date.String() != "2025-09-18" {
		t.Errorf("date = %s, want server date 2025-09-18", sum.Date)
	}
}

func TestRecordActivity_IdempotencyHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/users/u1/activities",
			bytes.NewBufferString(`{"activity_type":"daily_checkin"}`))
		req.Header.Set("Idempotency-Key", "checkin-2025-09-18")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := send(); w.Code != http.StatusCreated {
		t.Fatalf("first status = %d", w.Code)
	}
	w := send()
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", w.Code)
	}
	if sum := decode[domain.Summary](t, w); !sum.Duplicate || sum.Balance != 10 {
		t.Errorf("replay = %+v", sum)
	}
}

func TestRecordActivity_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name   string
		body   string
		status int
		typ    string
	}{
		{"bad json", `{"activity_type":`, http.StatusBadRequest, "validation_error"},
		{"missing type", `{}`, http.StatusBadRequest, "validation_error"},
		{"scalar context", `{"activity_type":"journal_entry","context":"calm"}`, http.StatusCreated, ""},
		{"unknown type", `{"activity_type":"cold_plunge"}`, http.StatusUnprocessableEntity, "unknown_activity_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/v1/users/u1/activities", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.typ == "" {
				return
			}
			if body := decode[ErrorBody](t, w); body.Error.Type != tt.typ {
				t.Errorf("error type = %q, want %q", body.Error.Type, tt.typ)
			}
		})
	}
}

type conflictLedger struct{ Ledger }

func (conflictLedger) RecordActivity(context.Context, domain.ActivityEvent) (domain.Summary, error) {
	return domain.Summary{}, errors.Join(errors.New("record activity"), domain.ErrConcurrencyConflict)
}

func (conflictLedger) Balance(context.Context, string) (int64, error) {
	return 0, errors.New("disk on fire")
}

func TestErrorMapping_ConflictAndInternal(t *testing.T) {
	srv := NewServer(conflictLedger{}, catalog.New(), nil)
	h := srv.Handler()

	if w := do(t, h, "POST", "/api/v1/users/u1/activities", `{"activity_type":"journal_entry"}`); w.Code != http.StatusConflict {
		t.Errorf("conflict status = %d, want 409", w.Code)
	}

	w := do(t, h, "GET", "/api/v1/users/u1/balance", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("internal status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk on fire") {
		t.Error("internal error details leaked to the client")
	}
}

func TestRecordActivity_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetRateLimit(0.001, 2)
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		if w := do(t, h, "POST", "/api/v1/users/u1/activities", `{"activity_type":"mood_logging"}`); w.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := do(t, h, "POST", "/api/v1/users/u1/activities", `{"activity_type":"mood_logging"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	// Other users have their own bucket; reads are never limited.
	if w := do(t, h, "POST", "/api/v1/users/u2/activities", `{"activity_type":"mood_logging"}`); w.Code != http.StatusCreated {
		t.Errorf("u2 status = %d, want 201", w.Code)
	}
	if w := do(t, h, "GET", "/api/v1/users/u1/balance", ""); w.Code != http.StatusOK {
		t.Errorf("balance status = %d, want 200", w.Code)
	}
}

func TestKeyedLimiter_DropsIdleBuckets(t *testing.T) {
	l := newKeyedLimiter(1, 1, time.Minute)
	now := time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.allow("a")
	l.allow("b")
	now = now.Add(2 * time.Minute)
	l.allow("c")

	if len(l.limiters) != 1 {
		t.Errorf("limiters = %d, want 1 after expiry", len(l.limiters))
	}
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func seed(t *testing.T, h http.Handler) {
	t.Helper()
	for _, day := range []string{"2025-09-16", "2025-09-17", "2025-09-18"} {
		w := do(t, h, "POST", "/api/v1/users/u1/activities",
			`{"activity_type":"breathing_exercise","timestamp":"`+day+`T07:00:00Z"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("seed %s: status = %d %s", day, w.Code, w.Body.String())
		}
	}
}

func TestReadEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	seed(t, h)

	t.Run("balance", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/users/u1/balance", "")
		b := decode[BalanceResponse](t, w)
		// 3 x 12 plus the streak_3 reward.
		if b.Balance != 46 || b.Level.Number != 1 || b.NextLevel == nil {
			t.Errorf("balance = %+v", b)
		}
	})

	t.Run("streaks", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/users/u1/streaks", "")
		s := decode[StreaksResponse](t, w)
		if len(s.Streaks) != 1 || s.Streaks[0].CurrentStreak != 3 {
			t.Errorf("streaks = %+v", s)
		}
	})

	t.Run("transactions", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/users/u1/transactions?limit=2", "")
		tx := decode[TransactionsResponse](t, w)
		if len(tx.Transactions) != 2 {
			t.Errorf("transactions = %d, want 2", len(tx.Transactions))
		}
		if w := do(t, h, "GET", "/api/v1/users/u1/transactions?limit=0", ""); w.Code != http.StatusBadRequest {
			t.Errorf("limit=0 status = %d, want 400", w.Code)
		}
	})

	t.Run("awards", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/users/u1/awards", "")
		a := decode[domain.AwardHistory](t, w)
		if len(a.Milestones) != 1 || a.Milestones[0].MilestoneID != "streak_3" {
			t.Errorf("milestones = %+v", a.Milestones)
		}
	})

	t.Run("profile", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/users/u1/profile", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		p := decode[domain.Profile](t, w)
		if p.UserID != "u1" || p.Balance != 46 || len(p.Recent) != 4 {
			t.Errorf("profile = %+v", p)
		}
	})

	t.Run("empty user", func(t *testing.T) {
		w := do(t, h, "GET", "/api/v1/users/nobody/streaks", "")
		if s := decode[StreaksResponse](t, w); s.Streaks == nil || len(s.Streaks) != 0 {
			t.Errorf("streaks = %+v, want empty list", s)
		}
	})
}

func TestChallengeEndpoints(t *testing.T) {
	now := time.Date(2025, 9, 18, 10, 0, 0, 0, time.UTC)
	srv, _ := newTestServerWith(t, engagement.Options{
		DailyChallenges:  10,
		WeeklyChallenges: 10,
		Now:              func() time.Time { return now },
	})
	h := srv.Handler()

	w := do(t, h, "GET", "/api/v1/users/u1/challenges", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	if resp := decode[ChallengesResponse](t, w); resp.UserID != "u1" || len(resp.Challenges) != 10 {
		t.Fatalf("challenges = %d, want every template", len(resp.Challenges))
	}

	for i := 0; i < 2; i++ {
		w := do(t, h, "POST", "/api/v1/users/u1/activities", `{"activity_type":"mood_logging"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("record %d: status = %d %s", i, w.Code, w.Body.String())
		}
		sum := decode[domain.Summary](t, w)
		if i == 1 && (sum.ChallengePoints != 8 || !hasChallenge(sum.NewAwards, "daily-2025-09-18-mood_twice")) {
			t.Errorf("second mood log summary = %+v", sum)
		}
	}

	resp := decode[ChallengesResponse](t, do(t, h, "GET", "/api/v1/users/u1/challenges", ""))
	for _, ch := range resp.Challenges {
		if ch.TemplateID == "mood_twice" && (ch.Status != domain.ChallengeCompleted || ch.Progress != 2) {
			t.Errorf("mood_twice = %+v", ch)
		}
		if ch.TemplateID == "three_practices" && ch.Progress != 2 {
			t.Errorf("three_practices progress = %d, want 2", ch.Progress)
		}
	}

	w = do(t, h, "GET", "/api/v1/users/u1/challenges/stats", "")
	stats := decode[domain.ChallengeStats](t, w)
	if stats.TotalCompleted != 1 || stats.WeeklyCompleted != 1 || stats.PointsEarned != 8 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.ActiveStreaks) != 1 || stats.ActiveStreaks[0].Category != "antardarshan" {
		t.Errorf("active streaks = %+v", stats.ActiveStreaks)
	}

	if w := do(t, h, "GET", "/api/v1/users/u1/balance", ""); decode[BalanceResponse](t, w).Balance != 24 {
		t.Errorf("balance should include the challenge reward")
	}
}

func hasChallenge(awards []domain.Award, id string) bool {
	for _, a := range awards {
		if a.Kind == domain.AwardChallenge && a.ID == id {
			return true
		}
	}
	return false
}

func TestCatalogEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for path, key := range map[string]string{
		"/api/v1/catalog/challenges": "daily",
		"/api/v1/catalog/activities": "activities",
		"/api/v1/catalog/badges":     "badges",
		"/api/v1/catalog/milestones": "milestones",
		"/api/v1/catalog/levels":     "levels",
	} {
		w := do(t, h, "GET", path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
			continue
		}
		body := decode[map[string][]json.RawMessage](t, w)
		if len(body[key]) == 0 {
			t.Errorf("%s: no %s", path, key)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "OPTIONS", "/api/v1/users/u1/activities", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key") {
		t.Error("Idempotency-Key not allowed by CORS")
	}
}
