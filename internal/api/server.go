// Package api provides the HTTP server for the karma ledger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/health"
	"github.com/tutu-network/karma/internal/infra/catalog"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// Ledger is the service the API fronts.
type Ledger interface {
	RecordActivity(ctx context.Context, ev domain.ActivityEvent) (domain.Summary, error)
	Profile(ctx context.Context, userID string) (domain.Profile, error)
	Streaks(ctx context.Context, userID string) ([]domain.StreakView, error)
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error)
	Awards(ctx context.Context, userID string) (domain.AwardHistory, error)
	Challenges(ctx context.Context, userID string) ([]domain.Challenge, error)
	ChallengeStats(ctx context.Context, userID string) (domain.ChallengeStats, error)
}

// Server is the karma HTTP API server.
type Server struct {
	ledger         Ledger
	catalog        *catalog.Catalog
	health         *health.Checker
	limiter        *keyedLimiter
	metricsEnabled bool
	timeout        time.Duration
	log            *zap.Logger
	now            func() time.Time
}

// NewServer creates a new API server.
func NewServer(ledger Ledger, cat *catalog.Catalog, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		ledger:  ledger,
		catalog: cat,
		timeout: 30 * time.Second,
		log:     log.Named("api"),
		now:     time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth reports checker results on /health.
func (s *Server) SetHealth(h *health.Checker) { s.health = h }

// SetRateLimit throttles activity submissions per user. perSecond <= 0
// disables the limit.
func (s *Server) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = newKeyedLimiter(perSecond, burst, 5*time.Minute)
}

// SetTimeout bounds each request.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.With(s.rateLimit).Post("/activities", s.handleRecordActivity)
			r.Get("/profile", s.handleProfile)
			r.Get("/streaks", s.handleStreaks)
			r.Get("/balance", s.handleBalance)
			r.Get("/transactions", s.handleTransactions)
			r.Get("/awards", s.handleAwards)
			r.Get("/challenges", s.handleChallenges)
			r.Get("/challenges/stats", s.handleChallengeStats)
		})
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/activities", s.handleCatalogActivities)
			r.Get("/badges", s.handleCatalogBadges)
			r.Get("/milestones", s.handleCatalogMilestones)
			r.Get("/levels", s.handleCatalogLevels)
			r.Get("/challenges", s.handleCatalogChallenges)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Message: msg, Type: typ}})
}

// writeDomainError maps ledger errors to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Message: verr.Error(), Type: "validation_error", Field: verr.Field,
		}})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrUnknownActivityType):
		writeError(w, http.StatusUnprocessableEntity, "unknown_activity_type", err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "conflict", "too much contention, retry later")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
