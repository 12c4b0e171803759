package engagement

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/app/credit"
	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/catalog"
	"github.com/tutu-network/karma/internal/infra/metrics"
	"github.com/tutu-network/karma/internal/infra/store"
)

// ChallengeStore is what challenge progress writes inside RecordActivity.
type ChallengeStore interface {
	credit.Store
	InsertChallenge(ctx context.Context, ch domain.Challenge) (bool, error)
	OpenChallenges(ctx context.Context, userID string, today domain.Date) ([]domain.Challenge, error)
	SetChallengeProgress(ctx context.Context, userID, id string, progress int) error
	CompleteChallenge(ctx context.Context, userID, id string, progress int, txID string, at time.Time) (bool, error)
	LockChallengeStreak(ctx context.Context, userID, category string) (*domain.ChallengeStreak, error)
	PutChallengeStreak(ctx context.Context, s domain.ChallengeStreak) error
}

// ChallengeReader serves challenge reads and maintenance.
type ChallengeReader interface {
	ListChallenges(ctx context.Context, userID string, day domain.Date) ([]domain.Challenge, error)
	ListChallengeStreaks(ctx context.Context, userID string) ([]domain.ChallengeStreak, error)
	ChallengeTotals(ctx context.Context, userID string, since time.Time) (total, recent, points int64, err error)
	ChallengeCategories(ctx context.Context, userID string, limit int) ([]domain.CategoryCount, error)
	ExpireChallenges(ctx context.Context, asOf domain.Date) (int64, error)
}

// topCategories is how many categories ChallengeStats ranks.
const topCategories = 5

// ChallengeService hands out daily and weekly challenges from the catalog
// pool and advances them from recorded activities. A daily set opens every
// UTC day and a weekly set every Monday; both close when their window ends.
type ChallengeService struct {
	catalog   *catalog.Catalog
	ledger    *credit.Ledger
	perPeriod map[domain.ChallengePeriod]int
	log       *zap.Logger
}

// NewChallengeService creates a challenge service that assigns daily and
// weekly challenges per period. Zero turns a period off.
func NewChallengeService(cat *catalog.Catalog, ledger *credit.Ledger, daily, weekly int, log *zap.Logger) *ChallengeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChallengeService{
		catalog: cat,
		ledger:  ledger,
		perPeriod: map[domain.ChallengePeriod]int{
			domain.PeriodDaily:  daily,
			domain.PeriodWeekly: weekly,
		},
		log: log.Named("challenges"),
	}
}

// Enabled reports whether any period hands out challenges.
func (c *ChallengeService) Enabled() bool {
	return c.perPeriod[domain.PeriodDaily] > 0 || c.perPeriod[domain.PeriodWeekly] > 0
}

// Assign makes sure the user holds the daily set for day and the weekly
// set for day's week. Picks are seeded by user and window, so calling it
// again inserts nothing.
func (c *ChallengeService) Assign(ctx context.Context, s ChallengeStore, userID string, day domain.Date, at time.Time) error {
	for _, period := range []domain.ChallengePeriod{domain.PeriodDaily, domain.PeriodWeekly} {
		n := c.perPeriod[period]
		if n <= 0 {
			continue
		}
		start, end := periodBounds(period, day)
		picked := pickChallenges(c.catalog.Challenges(period), n, windowSeed(userID, period, start))

		assigned := 0
		for _, tmpl := range picked {
			isNew, err := s.InsertChallenge(ctx, domain.Challenge{
				ID:           challengeID(period, start, tmpl.ID),
				UserID:       userID,
				TemplateID:   tmpl.ID,
				Name:         tmpl.Name,
				Description:  tmpl.Description,
				Period:       period,
				Kind:         tmpl.Kind,
				Category:     tmpl.Category,
				ActivityType: tmpl.ActivityType,
				Target:       tmpl.Target,
				RewardPoints: tmpl.RewardPoints,
				Status:       domain.ChallengeActive,
				StartsOn:     start,
				ExpiresOn:    end,
				AssignedAt:   at,
			})
			if err != nil {
				return fmt.Errorf("assign challenge %s: %w", tmpl.ID, err)
			}
			if isNew {
				assigned++
			}
		}
		if assigned > 0 {
			c.log.Debug("challenges assigned",
				zap.String("user_id", userID),
				zap.String("period", string(period)),
				zap.Stringer("starts_on", start),
				zap.Int("count", assigned))
		}
	}
	return nil
}

// Advance applies one activity recorded on day to the user's open
// challenges and completes those that reach their target. Only challenges
// whose window covers day and is still open on today move, so a backfilled
// activity never reopens a past window. streak is the activity's current
// streak after the record. It returns the completion awards and the
// reward points credited.
func (c *ChallengeService) Advance(ctx context.Context, s ChallengeStore, userID, activityType string, day, today domain.Date, streak int, at time.Time) ([]domain.Award, int64, error) {
	if !c.Enabled() || day.After(today) {
		return nil, 0, nil
	}
	if err := c.Assign(ctx, s, userID, today, at); err != nil {
		return nil, 0, err
	}

	open, err := s.OpenChallenges(ctx, userID, today)
	if err != nil {
		return nil, 0, err
	}

	var awards []domain.Award
	var reward int64
	for _, ch := range open {
		if !ch.Covers(day) || (ch.ActivityType != "" && ch.ActivityType != activityType) {
			continue
		}

		next := ch.Progress + 1
		if ch.Kind == domain.KindStreak {
			next = max(ch.Progress, streak)
		}
		next = min(next, ch.Target)
		if next == ch.Progress {
			continue
		}
		if next < ch.Target {
			if err := s.SetChallengeProgress(ctx, userID, ch.ID, next); err != nil {
				return nil, 0, fmt.Errorf("challenge %s progress: %w", ch.ID, err)
			}
			continue
		}

		award, credited, err := c.complete(ctx, s, ch, next, day, at)
		if err != nil {
			return nil, 0, err
		}
		if award != nil {
			awards = append(awards, *award)
			reward += credited
		}
	}
	return awards, reward, nil
}

// complete closes a challenge, credits its reward under the challenge key
// and extends the category streak.
func (c *ChallengeService) complete(ctx context.Context, s ChallengeStore, ch domain.Challenge, progress int, day domain.Date, at time.Time) (*domain.Award, int64, error) {
	var txID string
	var credited int64
	if ch.RewardPoints > 0 {
		res, err := c.ledger.Grant(ctx, s, credit.Grant{
			UserID:         ch.UserID,
			Points:         ch.RewardPoints,
			Source:         domain.SourceChallenge,
			Description:    "Challenge: " + ch.Name,
			IdempotencyKey: credit.ChallengeKey(ch.UserID, ch.ID),
			OccurredAt:     at,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("challenge reward %s: %w", ch.ID, err)
		}
		txID = res.TransactionID
		if !res.Duplicate {
			credited = res.Points
		}
	}

	ok, err := s.CompleteChallenge(ctx, ch.UserID, ch.ID, progress, txID, at)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	if err := c.extendStreak(ctx, s, ch.UserID, ch.Category, day, at); err != nil {
		return nil, 0, err
	}

	c.log.Info("challenge completed",
		zap.String("user_id", ch.UserID),
		zap.String("challenge", ch.ID),
		zap.Int64("reward", credited))

	return &domain.Award{
		Kind:         domain.AwardChallenge,
		ID:           ch.ID,
		Name:         ch.Name,
		ActivityType: ch.ActivityType,
		RewardPoints: ch.RewardPoints,
		AwardedAt:    at,
	}, credited, nil
}

// extendStreak counts consecutive completion days per category with the
// same day arithmetic as activity streaks. Completions dated before the
// last one leave the streak alone.
func (c *ChallengeService) extendStreak(ctx context.Context, s ChallengeStore, userID, category string, day domain.Date, at time.Time) error {
	prev, err := s.LockChallengeStreak(ctx, userID, category)
	if err != nil {
		return err
	}
	rec := domain.StreakRecord{UserID: userID, ActivityType: category}
	if prev != nil {
		rec.CurrentStreak = prev.CurrentStreak
		rec.LongestStreak = prev.LongestStreak
		rec.LastActivityDate = prev.LastCompletionDate
	}

	next, transition := NextStreak(rec, day, BackfillIgnore)
	if prev != nil && !transition.Changed() {
		return nil
	}
	return s.PutChallengeStreak(ctx, domain.ChallengeStreak{
		UserID:             userID,
		Category:           category,
		CurrentStreak:      next.CurrentStreak,
		LongestStreak:      next.LongestStreak,
		LastCompletionDate: next.LastActivityDate,
		UpdatedAt:          at,
	})
}

// Current lists the challenges whose window covers today.
func (c *ChallengeService) Current(ctx context.Context, r ChallengeReader, userID string, today domain.Date) ([]domain.Challenge, error) {
	return r.ListChallenges(ctx, userID, today)
}

// Stats summarizes completed challenges. WeeklyCompleted counts the seven
// days ending on today; only streaks still alive on today are listed.
func (c *ChallengeService) Stats(ctx context.Context, r ChallengeReader, userID string, today domain.Date) (domain.ChallengeStats, error) {
	stats := domain.ChallengeStats{UserID: userID}

	var err error
	stats.TotalCompleted, stats.WeeklyCompleted, stats.PointsEarned, err =
		r.ChallengeTotals(ctx, userID, today.AddDays(-6).Time())
	if err != nil {
		return stats, fmt.Errorf("challenge totals: %w", err)
	}

	streaks, err := r.ListChallengeStreaks(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("challenge streaks: %w", err)
	}
	stats.ActiveStreaks = []domain.ChallengeStreak{}
	for _, s := range streaks {
		if s.CurrentStreak > 0 && today.DaysSince(s.LastCompletionDate) <= 1 {
			stats.ActiveStreaks = append(stats.ActiveStreaks, s)
		}
	}

	if stats.TopCategories, err = r.ChallengeCategories(ctx, userID, topCategories); err != nil {
		return stats, fmt.Errorf("challenge categories: %w", err)
	}
	if stats.TopCategories == nil {
		stats.TopCategories = []domain.CategoryCount{}
	}
	return stats, nil
}

// Expire closes active challenges whose window ended on or before asOf.
func (c *ChallengeService) Expire(ctx context.Context, r ChallengeReader, asOf domain.Date) (int64, error) {
	n, err := r.ExpireChallenges(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("expire challenges: %w", err)
	}
	if n > 0 {
		c.log.Info("challenges expired", zap.Int64("count", n), zap.Stringer("as_of", asOf))
	}
	return n, nil
}

// ─── Facade ─────────────────────────────────────────────────────────────────

// Challenges returns the user's daily and weekly challenges open today,
// assigning today's sets first if the user has none yet.
func (f *Facade) Challenges(ctx context.Context, userID string) ([]domain.Challenge, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.Invalid("user_id", "required")
	}
	now := f.now()
	today := domain.DateOf(now)
	if f.challenges.Enabled() {
		err := f.db.InTx(ctx, func(tx *store.Tx) error {
			return f.challenges.Assign(ctx, tx, userID, today, now)
		})
		if err != nil {
			return nil, fmt.Errorf("assign challenges: %w", err)
		}
	}
	return f.challenges.Current(ctx, f.db, userID, today)
}

// ChallengeStats returns the user's challenge history summary.
func (f *Facade) ChallengeStats(ctx context.Context, userID string) (domain.ChallengeStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ChallengeStats{}, domain.Invalid("user_id", "required")
	}
	return f.challenges.Stats(ctx, f.db, userID, domain.DateOf(f.now()))
}

// ExpireChallenges closes challenges whose window ended on or before asOf.
func (f *Facade) ExpireChallenges(ctx context.Context, asOf domain.Date) (int64, error) {
	n, err := f.challenges.Expire(ctx, f.db, asOf)
	if err != nil {
		return 0, err
	}
	metrics.ChallengesExpired.Add(float64(n))
	return n, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// periodBounds returns the window [start, end) of period containing day.
// Weeks start on Monday.
func periodBounds(period domain.ChallengePeriod, day domain.Date) (domain.Date, domain.Date) {
	if period == domain.PeriodWeekly {
		sinceMonday := (int(day.Time().Weekday()) + 6) % 7
		start := day.AddDays(-sinceMonday)
		return start, start.AddDays(7)
	}
	return day, day.AddDays(1)
}

func challengeID(period domain.ChallengePeriod, start domain.Date, templateID string) string {
	return fmt.Sprintf("%s-%s-%s", period, start, templateID)
}

func windowSeed(userID string, period domain.ChallengePeriod, start domain.Date) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", userID, period, start)
	return int64(h.Sum64())
}

// pickChallenges selects n random templates, preferring unique categories.
func pickChallenges(pool []domain.ChallengeTemplate, n int, seed int64) []domain.ChallengeTemplate {
	r := rand.New(rand.NewSource(seed))

	shuffled := make([]domain.ChallengeTemplate, len(pool))
	copy(shuffled, pool)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	// Unique categories first
	seen := make(map[string]bool)
	picked := make(map[string]bool)
	var result []domain.ChallengeTemplate
	for _, tmpl := range shuffled {
		if len(result) >= n {
			break
		}
		if !seen[tmpl.Category] {
			seen[tmpl.Category] = true
			picked[tmpl.ID] = true
			result = append(result, tmpl)
		}
	}

	// Then fill with whatever is left
	for _, tmpl := range shuffled {
		if len(result) >= n {
			break
		}
		if !picked[tmpl.ID] {
			picked[tmpl.ID] = true
			result = append(result, tmpl)
		}
	}
	return result
}
