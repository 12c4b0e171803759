// Package domain holds the pure types of the wellness gamification ledger:
// daily activity counts, per-activity streaks, point transactions and
// one-time awards. Nothing here touches storage.
package domain

import (
	"encoding/json"
	"time"
)

// ─── Daily Activity ─────────────────────────────────────────────────────────

// DailyActivityRecord counts completions of one activity type on one date.
// Exactly one row exists per (UserID, ActivityType, Date).
type DailyActivityRecord struct {
	UserID          string    `json:"user_id"`
	ActivityType    string    `json:"activity_type"`
	Date            Date      `json:"activity_date"`
	CompletionCount int       `json:"completion_count"`
	Context         string    `json:"context,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ─── Streak Types ───────────────────────────────────────────────────────────

// StreakRecord tracks consecutive days of one activity type.
// LongestStreak >= CurrentStreak always holds.
type StreakRecord struct {
	UserID           string    `json:"user_id"`
	ActivityType     string    `json:"activity_type"`
	CurrentStreak    int       `json:"current_streak"`
	LongestStreak    int       `json:"longest_streak"`
	LastActivityDate Date      `json:"last_activity_date"`
	StreakStartDate  Date      `json:"streak_start_date"`
	IsActive         bool      `json:"is_active"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StreakStatus is a read-side classification relative to today.
type StreakStatus string

const (
	StreakActive StreakStatus = "active"  // activity recorded today
	StreakAtRisk StreakStatus = "at_risk" // last activity yesterday
	StreakBroken StreakStatus = "broken"
)

// StatusOn classifies the streak as seen on today.
func (s StreakRecord) StatusOn(today Date) StreakStatus {
	switch today.DaysSince(s.LastActivityDate) {
	case 0:
		return StreakActive
	case 1:
		return StreakAtRisk
	default:
		return StreakBroken
	}
}

// StreakTransition names what Advance did to a streak.
type StreakTransition string

const (
	TransitionStarted     StreakTransition = "started"
	TransitionSameDay     StreakTransition = "same_day"
	TransitionIncremented StreakTransition = "incremented"
	TransitionReset       StreakTransition = "reset"
	// TransitionOutOfOrder is only produced under the "ignore" backfill
	// policy, for a date earlier than the last recorded one.
	TransitionOutOfOrder StreakTransition = "out_of_order"
)

// Changed reports whether the streak value was written.
func (t StreakTransition) Changed() bool {
	switch t {
	case TransitionStarted, TransitionIncremented, TransitionReset:
		return true
	}
	return false
}

// StreakOutcome is the result of a single streak advance.
type StreakOutcome struct {
	ActivityType string           `json:"activity_type"`
	Transition   StreakTransition `json:"transition"`
	Previous     int              `json:"previous_streak"`
	Current      int              `json:"current_streak"`
	Longest      int              `json:"longest_streak"`
	StartDate    Date             `json:"streak_start_date"`
	LastDate     Date             `json:"last_activity_date"`
}

// Transitioned reports whether milestone evaluation should run.
func (o StreakOutcome) Transitioned() bool {
	return o.Transition.Changed()
}

// ─── Points ─────────────────────────────────────────────────────────────────

// TxSource categorizes how points were earned.
type TxSource string

const (
	SourceActivity  TxSource = "activity"
	SourceMilestone TxSource = "milestone"
	SourceChallenge TxSource = "challenge"
	SourceAdjust    TxSource = "adjustment"
)

// PointTransaction is an immutable ledger entry. A user's balance is the
// sum of Points over all their transactions.
type PointTransaction struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ActivityType   string    `json:"activity_type,omitempty"`
	Points         int64     `json:"points"`
	Source         TxSource  `json:"source"`
	Description    string    `json:"description,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// BalanceDrift reports a cached balance that disagrees with its ledger.
type BalanceDrift struct {
	UserID string `json:"user_id"`
	Cached int64  `json:"cached"`
	Ledger int64  `json:"ledger"`
}

// ─── Awards ─────────────────────────────────────────────────────────────────

// AwardKind distinguishes the award tables.
type AwardKind string

const (
	AwardBadge     AwardKind = "badge"
	AwardMilestone AwardKind = "milestone"
	AwardLevel     AwardKind = "level"
	AwardChallenge AwardKind = "challenge"
)

// Award is one newly granted achievement reported back to the caller.
type Award struct {
	Kind         AwardKind `json:"kind"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ActivityType string    `json:"activity_type,omitempty"`
	RewardPoints int64     `json:"reward_points,omitempty"`
	AwardedAt    time.Time `json:"awarded_at"`
}

// BadgeAward is a persisted (user, badge) grant.
type BadgeAward struct {
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
}

// MilestoneAward is a persisted (user, activity type, milestone) grant.
type MilestoneAward struct {
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	MilestoneID  string    `json:"milestone_id"`
	StreakDays   int       `json:"streak_days"`
	AwardedAt    time.Time `json:"awarded_at"`
}

// LevelAward is a persisted (user, level) grant.
type LevelAward struct {
	UserID        string    `json:"user_id"`
	Level         int       `json:"level"`
	PointsAtAward int64     `json:"points_at_award"`
	AwardedAt     time.Time `json:"awarded_at"`
}

// UserStats is a snapshot of user state fed to badge thresholds.
type UserStats struct {
	Balance         int64            `json:"balance"`
	TotalActivities int64            `json:"total_activities"`
	ActivityCounts  map[string]int64 `json:"activity_counts"`
	CurrentStreaks  map[string]int   `json:"current_streaks"`
}

// BestStreak returns the longest current streak across activity types.
func (s UserStats) BestStreak() int {
	best := 0
	for _, v := range s.CurrentStreaks {
		if v > best {
			best = v
		}
	}
	return best
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// ChallengeStatus is the lifecycle state of an assigned challenge.
type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeExpired   ChallengeStatus = "expired"
)

// Challenge is a template assigned to one user for one period. It is open
// on dates in [StartsOn, ExpiresOn).
type Challenge struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	TemplateID    string          `json:"template_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Period        ChallengePeriod `json:"period"`
	Kind          ChallengeKind   `json:"kind"`
	Category      string          `json:"category"`
	ActivityType  string          `json:"activity_type,omitempty"`
	Target        int             `json:"target"`
	Progress      int             `json:"progress"`
	RewardPoints  int64           `json:"reward_points"`
	Status        ChallengeStatus `json:"status"`
	StartsOn      Date            `json:"starts_on"`
	ExpiresOn     Date            `json:"expires_on"`
	AssignedAt    time.Time       `json:"assigned_at"`
	CompletedAt   time.Time       `json:"completed_at,omitzero"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// Covers reports whether day falls inside the challenge window.
func (c Challenge) Covers(day Date) bool {
	return !day.Before(c.StartsOn) && day.Before(c.ExpiresOn)
}

// ProgressPct returns completion percentage (0-100).
func (c Challenge) ProgressPct() float64 {
	if c.Target <= 0 {
		return 100.0
	}
	pct := float64(c.Progress) / float64(c.Target) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// ChallengeStreak counts consecutive days with a completed challenge in
// one category.
type ChallengeStreak struct {
	UserID             string    `json:"user_id"`
	Category           string    `json:"category"`
	CurrentStreak      int       `json:"current_streak"`
	LongestStreak      int       `json:"longest_streak"`
	LastCompletionDate Date      `json:"last_completion_date"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CategoryCount is the number of completed challenges in a category.
type CategoryCount struct {
	Category    string `json:"category"`
	Completions int64  `json:"completions"`
}

// ChallengeStats summarizes a user's challenge history.
type ChallengeStats struct {
	UserID          string            `json:"user_id"`
	TotalCompleted  int64             `json:"total_completed"`
	WeeklyCompleted int64             `json:"weekly_completed"` // completed in the last 7 days
	PointsEarned    int64             `json:"points_earned"`
	ActiveStreaks   []ChallengeStreak `json:"active_streaks"`
	TopCategories   []CategoryCount   `json:"top_categories"`
}

// ─── Facade I/O ─────────────────────────────────────────────────────────────

// ActivityEvent is one "user completed activity X at time T" report.
// IdempotencyKey identifies the activity instance; replays with the same
// key are acknowledged without mutating any state.
type ActivityEvent struct {
	UserID         string          `json:"user_id"`
	ActivityType   string          `json:"activity_type"`
	Timestamp      time.Time       `json:"timestamp"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Context        json.RawMessage `json:"context,omitempty"`
}

// Summary is what RecordActivity reports back.
type Summary struct {
	UserID          string        `json:"user_id"`
	ActivityType    string        `json:"activity_type"`
	Date            Date          `json:"activity_date"`
	TransactionID   string        `json:"transaction_id"`
	PointsAwarded   int64         `json:"points_awarded"`
	BonusPoints     int64         `json:"bonus_points"`
	ChallengePoints int64         `json:"challenge_points,omitempty"`
	DailyCount      int           `json:"daily_count"`
	Streak          StreakOutcome `json:"streak"`
	NewAwards       []Award       `json:"new_awards"`
	NewLevel        int           `json:"new_level,omitempty"`
	Balance         int64         `json:"balance"`
	Duplicate       bool          `json:"duplicate"`
}

// StreakView pairs a streak with its status for display.
type StreakView struct {
	StreakRecord
	Status StreakStatus `json:"status"`
}

// Profile is the read-side aggregate shown on a user's dashboard.
type Profile struct {
	UserID     string             `json:"user_id"`
	Balance    int64              `json:"balance"`
	Level      LevelDef           `json:"level"`
	NextLevel  *LevelDef          `json:"next_level,omitempty"`
	Streaks    []StreakView       `json:"streaks"`
	Badges     []BadgeAward       `json:"badges"`
	Milestones []MilestoneAward   `json:"milestones"`
	Levels     []LevelAward       `json:"levels"`
	Recent     []PointTransaction `json:"recent_transactions"`
	Challenges []Challenge        `json:"challenges"`
}

// SweepResult reports what one maintenance sweep changed.
type SweepResult struct {
	StreaksDeactivated int64 `json:"streaks_deactivated"`
	ChallengesExpired  int64 `json:"challenges_expired"`
}

// AwardHistory lists every award a user holds, oldest first.
type AwardHistory struct {
	UserID     string           `json:"user_id"`
	Badges     []BadgeAward     `json:"badges"`
	Milestones []MilestoneAward `json:"milestones"`
	Levels     []LevelAward     `json:"levels"`
}
