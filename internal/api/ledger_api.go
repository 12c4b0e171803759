package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/karma/internal/domain"
)

// maxBodyBytes caps activity submissions.
const maxBodyBytes = 64 << 10

// RecordRequest is the body of POST /api/v1/users/{userID}/activities.
type RecordRequest struct {
	ActivityType   string          `json:"activity_type"`
	Timestamp      *time.Time      `json:"timestamp,omitempty"` // defaults to server time
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Context        json.RawMessage `json:"context,omitempty"`
}

// BalanceResponse is the body of GET .../balance.
type BalanceResponse struct {
	UserID    string           `json:"user_id"`
	Balance   int64            `json:"balance"`
	Level     domain.LevelDef  `json:"level"`
	NextLevel *domain.LevelDef `json:"next_level,omitempty"`
}

// StreaksResponse is the body of GET .../streaks.
type StreaksResponse struct {
	UserID  string              `json:"user_id"`
	Streaks []domain.StreakView `json:"streaks"`
}

// TransactionsResponse is the body of GET .../transactions.
type TransactionsResponse struct {
	UserID       string                    `json:"user_id"`
	Transactions []domain.PointTransaction `json:"transactions"`
}

// ChallengesResponse is the body of GET .../challenges.
type ChallengesResponse struct {
	UserID     string             `json:"user_id"`
	Challenges []domain.Challenge `json:"challenges"`
}

// --- POST /api/v1/users/{userID}/activities ---

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "validation_error", "request body too large")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body: "+err.Error())
		return
	}

	ev := domain.ActivityEvent{
		UserID:         chi.URLParam(r, "userID"),
		ActivityType:   req.ActivityType,
		IdempotencyKey: req.IdempotencyKey,
		Context:        req.Context,
		Timestamp:      s.now(),
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}
	if ev.IdempotencyKey == "" {
		ev.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	sum, err := s.ledger.RecordActivity(r.Context(), ev)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if sum.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, sum)
}

// --- GET /api/v1/users/{userID}/... ---

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	views, err := s.ledger.Streaks(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if views == nil {
		views = []domain.StreakView{}
	}
	writeJSON(w, http.StatusOK, StreaksResponse{UserID: userID, Streaks: views})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	bal, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	level, next := s.catalog.LevelFor(bal)
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: bal, Level: level, NextLevel: next})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
				Message: "limit must be between 1 and 100", Type: "validation_error", Field: "limit",
			}})
			return
		}
		limit = n
	}

	txs, err := s.ledger.History(r.Context(), userID, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.PointTransaction{}
	}
	writeJSON(w, http.StatusOK, TransactionsResponse{UserID: userID, Transactions: txs})
}

func (s *Server) handleAwards(w http.ResponseWriter, r *http.Request) {
	h, err := s.ledger.Awards(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	chs, err := s.ledger.Challenges(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if chs == nil {
		chs = []domain.Challenge{}
	}
	writeJSON(w, http.StatusOK, ChallengesResponse{UserID: userID, Challenges: chs})
}

func (s *Server) handleChallengeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.ChallengeStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- GET /api/v1/catalog/... ---

func (s *Server) handleCatalogActivities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"activities": s.catalog.Activities()})
}

func (s *Server) handleCatalogBadges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": s.catalog.Badges()})
}

func (s *Server) handleCatalogMilestones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"milestones": s.catalog.Milestones()})
}

func (s *Server) handleCatalogLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": s.catalog.Levels()})
}

func (s *Server) handleCatalogChallenges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"daily":  s.catalog.Challenges(domain.PeriodDaily),
		"weekly": s.catalog.Challenges(domain.PeriodWeekly),
	})
}
