package catalog

import "github.com/tutu-network/karma/internal/domain"

// BuiltinActivities are the core wellness activities and their point values.
var BuiltinActivities = []domain.ActivityDef{
	{Type: "breathing_exercise", Name: "Breathing Exercise", Points: 12, Theme: "pranayama",
		Description: "Complete a guided breathing exercise session"},
	{Type: "mindfulness_practice", Name: "Mindfulness Practice", Points: 20, Theme: "dhyana",
		Description: "Complete a mindfulness meditation session"},
	{Type: "body_scan_relaxation", Name: "Body Scan Relaxation", Points: 30, Theme: "yoga_nidra",
		Description: "Complete a body scan relaxation session"},
	{Type: "journal_entry", Name: "Journal Entry", Points: 15, Theme: "svadhyaya",
		Description: "Write a reflective journal entry"},
	{Type: "mood_logging", Name: "Mood Logging", Points: 8, Theme: "antardarshan",
		Description: "Log your current mood and emotions"},
	{Type: "daily_checkin", Name: "Daily Check-in", Points: 10, Theme: "dinacharya",
		Description: "Complete your daily mental health check-in"},
	{Type: "chat_completion", Name: "Meaningful Chat Session", Points: 15, Theme: "seva",
		Description: "Complete a meaningful conversation (3+ messages)"},
	{Type: "meditation_completion", Name: "Meditation Session Completed", Points: 20, Theme: "dhyana",
		Description: "Complete a full meditation session with timer"},
}

// BuiltinBadges covers each threshold type.
var BuiltinBadges = []domain.BadgeDef{
	{ID: "first_step", Name: "First Step", Icon: "🌱", Threshold: domain.ThresholdActivityCount, Value: 1,
		Description: "Complete your first wellness activity"},
	{ID: "steady_practice", Name: "Steady Practice", Icon: "🪷", Threshold: domain.ThresholdActivityCount, Value: 25,
		Description: "Complete 25 wellness activities"},
	{ID: "devoted", Name: "Devoted", Icon: "🕉️", Threshold: domain.ThresholdActivityCount, Value: 100,
		Description: "Complete 100 wellness activities"},
	{ID: "reflective_writer", Name: "Reflective Writer", Icon: "📓", Threshold: domain.ThresholdActivityCount, Value: 10,
		ActivityType: "journal_entry", Description: "Write 10 journal entries"},
	{ID: "calm_breather", Name: "Calm Breather", Icon: "🌬️", Threshold: domain.ThresholdActivityCount, Value: 10,
		ActivityType: "breathing_exercise", Description: "Complete 10 breathing exercises"},
	{ID: "karma_100", Name: "Karma Seed", Icon: "✨", Threshold: domain.ThresholdPoints, Value: 100,
		Description: "Earn 100 karma points"},
	{ID: "karma_500", Name: "Karma Sapling", Icon: "🌿", Threshold: domain.ThresholdPoints, Value: 500,
		Description: "Earn 500 karma points"},
	{ID: "karma_2000", Name: "Karma Tree", Icon: "🌳", Threshold: domain.ThresholdPoints, Value: 2000,
		Description: "Earn 2000 karma points"},
	{ID: "week_warrior", Name: "Week Warrior", Icon: "🔥", Threshold: domain.ThresholdStreak, Value: 7,
		Description: "Keep any activity streak for 7 days"},
	{ID: "monthly_master", Name: "Monthly Master", Icon: "🏆", Threshold: domain.ThresholdStreak, Value: 30,
		Description: "Keep any activity streak for 30 days"},
	{ID: "centurion", Name: "Centurion", Icon: "💯", Threshold: domain.ThresholdStreak, Value: 100,
		Description: "Keep any activity streak for 100 days"},
}

// BuiltinMilestones apply to every activity type.
var BuiltinMilestones = []domain.MilestoneDef{
	{ID: "streak_3", Name: "Three Day Spark", Days: 3, RewardPoints: 10},
	{ID: "streak_7", Name: "One Week Flame", Days: 7, RewardPoints: 25, BadgeID: "week_warrior"},
	{ID: "streak_14", Name: "Fortnight Focus", Days: 14, RewardPoints: 50},
	{ID: "streak_30", Name: "Monthly Devotion", Days: 30, RewardPoints: 100, BadgeID: "monthly_master"},
	{ID: "streak_100", Name: "Hundred Day Sadhana", Days: 100, RewardPoints: 500, BadgeID: "centurion"},
}

// BuiltinLevels is the wellness level ladder.
var BuiltinLevels = []domain.LevelDef{
	{Number: 1, Name: "Seeker", PointsRequired: 0},
	{Number: 2, Name: "Sadhaka", PointsRequired: 100},
	{Number: 3, Name: "Abhyasi", PointsRequired: 300},
	{Number: 4, Name: "Yogi", PointsRequired: 700},
	{Number: 5, Name: "Sthitaprajna", PointsRequired: 1500},
	{Number: 6, Name: "Jnani", PointsRequired: 3000},
	{Number: 7, Name: "Guru", PointsRequired: 6000},
}

// BuiltinChallenges is the pool daily and weekly challenges are drawn from.
var BuiltinChallenges = []domain.ChallengeTemplate{
	{ID: "morning_breath", Name: "Pranayama Pause", Period: domain.PeriodDaily, Kind: domain.KindCompletions,
		Category: "pranayama", ActivityType: "breathing_exercise", Target: 1, RewardPoints: 10,
		Description: "Take one guided breathing break today"},
	{ID: "still_mind", Name: "Dhyana Moment", Period: domain.PeriodDaily, Kind: domain.KindCompletions,
		Category: "dhyana", ActivityType: "mindfulness_practice", Target: 1, RewardPoints: 10,
		Description: "Sit for one mindfulness practice today"},
	{ID: "mood_twice", Name: "Antardarshan Check", Period: domain.PeriodDaily, Kind: domain.KindCompletions,
		Category: "antardarshan", ActivityType: "mood_logging", Target: 2, RewardPoints: 8,
		Description: "Log your mood in the morning and the evening"},
	{ID: "daily_reflection", Name: "Svadhyaya Page", Period: domain.PeriodDaily, Kind: domain.KindCompletions,
		Category: "svadhyaya", ActivityType: "journal_entry", Target: 1, RewardPoints: 10,
		Description: "Write one reflective journal entry today"},
	{ID: "three_practices", Name: "Triple Sadhana", Period: domain.PeriodDaily, Kind: domain.KindCompletions,
		Category: "dinacharya", Target: 3, RewardPoints: 15,
		Description: "Complete any three wellness activities today"},
	{ID: "breath_week", Name: "Week of Breath", Period: domain.PeriodWeekly, Kind: domain.KindCompletions,
		Category: "pranayama", ActivityType: "breathing_exercise", Target: 5, RewardPoints: 40,
		Description: "Complete five breathing exercises this week"},
	{ID: "journal_week", Name: "Reflective Week", Period: domain.PeriodWeekly, Kind: domain.KindCompletions,
		Category: "svadhyaya", ActivityType: "journal_entry", Target: 4, RewardPoints: 40,
		Description: "Write four journal entries this week"},
	{ID: "meditation_week", Name: "Meditation Path", Period: domain.PeriodWeekly, Kind: domain.KindCompletions,
		Category: "dhyana", ActivityType: "meditation_completion", Target: 3, RewardPoints: 40,
		Description: "Finish three timed meditation sessions this week"},
	{ID: "steady_week", Name: "Steady Sadhana", Period: domain.PeriodWeekly, Kind: domain.KindCompletions,
		Category: "dinacharya", Target: 15, RewardPoints: 60,
		Description: "Complete fifteen wellness activities this week"},
	{ID: "five_day_flame", Name: "Five Day Flame", Period: domain.PeriodWeekly, Kind: domain.KindStreak,
		Category: "dinacharya", Target: 5, RewardPoints: 50,
		Description: "Reach a five day streak in any activity this week"},
}
