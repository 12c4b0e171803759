package domain

// ─── Catalog Definitions ────────────────────────────────────────────────────
// Read-only reference data, loaded once at startup.

// ActivityDef is a completable wellness activity and its point value.
type ActivityDef struct {
	Type        string `json:"activity_type" toml:"type"`
	Name        string `json:"name" toml:"name"`
	Description string `json:"description,omitempty" toml:"description"`
	Theme       string `json:"theme,omitempty" toml:"theme"`
	Points      int64  `json:"points" toml:"points"`
	Disabled    bool   `json:"disabled,omitempty" toml:"disabled"`
}

// ThresholdType selects which aggregate a badge is measured against.
type ThresholdType string

const (
	ThresholdPoints        ThresholdType = "points"
	ThresholdStreak        ThresholdType = "streak"
	ThresholdActivityCount ThresholdType = "activity_count"
)

// BadgeDef defines a one-time badge. An empty ActivityType means the
// badge is measured across all activity types.
type BadgeDef struct {
	ID           string        `json:"id" toml:"id"`
	Name         string        `json:"name" toml:"name"`
	Description  string        `json:"description,omitempty" toml:"description"`
	Icon         string        `json:"icon,omitempty" toml:"icon"`
	Threshold    ThresholdType `json:"threshold_type" toml:"threshold_type"`
	Value        int64         `json:"threshold_value" toml:"threshold_value"`
	ActivityType string        `json:"activity_type,omitempty" toml:"activity_type"`
}

// Met reports whether stats satisfy the badge threshold.
func (b BadgeDef) Met(stats UserStats) bool {
	switch b.Threshold {
	case ThresholdPoints:
		return stats.Balance >= b.Value
	case ThresholdStreak:
		if b.ActivityType != "" {
			return int64(stats.CurrentStreaks[b.ActivityType]) >= b.Value
		}
		return int64(stats.BestStreak()) >= b.Value
	case ThresholdActivityCount:
		if b.ActivityType != "" {
			return stats.ActivityCounts[b.ActivityType] >= b.Value
		}
		return stats.TotalActivities >= b.Value
	}
	return false
}

// MilestoneDef is a one-time award for reaching a streak length. An empty
// ActivityType applies the milestone to every activity type separately.
type MilestoneDef struct {
	ID           string `json:"id" toml:"id"`
	Name         string `json:"name" toml:"name"`
	Days         int    `json:"days" toml:"days"`
	ActivityType string `json:"activity_type,omitempty" toml:"activity_type"`
	RewardPoints int64  `json:"reward_points" toml:"reward_points"`
	BadgeID      string `json:"badge_id,omitempty" toml:"badge_id"`
}

// AppliesTo reports whether the milestone is tracked for activityType.
func (m MilestoneDef) AppliesTo(activityType string) bool {
	return m.ActivityType == "" || m.ActivityType == activityType
}

// LevelDef is one step of the wellness level ladder.
type LevelDef struct {
	Number         int    `json:"level" toml:"number"`
	Name           string `json:"name" toml:"name"`
	PointsRequired int64  `json:"points_required" toml:"points_required"`
}

// ChallengePeriod is how long an assigned challenge stays open.
type ChallengePeriod string

const (
	PeriodDaily  ChallengePeriod = "daily"
	PeriodWeekly ChallengePeriod = "weekly" // Monday to Sunday, UTC
)

// ChallengeKind selects how progress is measured.
type ChallengeKind string

const (
	// KindCompletions counts matching activities recorded in the period.
	KindCompletions ChallengeKind = "completions"
	// KindStreak tracks the best current streak of a matching activity.
	KindStreak ChallengeKind = "streak"
)

// ChallengeTemplate is one entry of the challenge pool. An empty
// ActivityType matches every activity.
type ChallengeTemplate struct {
	ID           string          `json:"id" toml:"id"`
	Name         string          `json:"name" toml:"name"`
	Description  string          `json:"description,omitempty" toml:"description"`
	Period       ChallengePeriod `json:"period" toml:"period"`
	Kind         ChallengeKind   `json:"kind" toml:"kind"`
	Category     string          `json:"category" toml:"category"`
	ActivityType string          `json:"activity_type,omitempty" toml:"activity_type"`
	Target       int             `json:"target" toml:"target"`
	RewardPoints int64           `json:"reward_points" toml:"reward_points"`
	Disabled     bool            `json:"disabled,omitempty" toml:"disabled"`
}

// Matches reports whether an activity of activityType counts toward t.
func (t ChallengeTemplate) Matches(activityType string) bool {
	return t.ActivityType == "" || t.ActivityType == activityType
}
