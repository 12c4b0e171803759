// Package catalog is the read-only reference data of the ledger: which
// activities can be completed and what they are worth, plus the badge,
// streak milestone and level ladders. Built-in definitions can be extended
// or overridden by a TOML file.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/karma/internal/domain"
)

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	activities map[string]domain.ActivityDef
	order      []string
	badges     []domain.BadgeDef
	badgeIndex map[string]domain.BadgeDef
	milestones []domain.MilestoneDef
	levels     []domain.LevelDef
	challenges []domain.ChallengeTemplate
}

// File is the on-disk override format.
//
//	[[activity]]
//	type = "gratitude_note"
//	name = "Gratitude Note"
//	points = 10
type File struct {
	Activities []domain.ActivityDef       `toml:"activity"`
	Badges     []domain.BadgeDef          `toml:"badge"`
	Milestones []domain.MilestoneDef      `toml:"milestone"`
	Levels     []domain.LevelDef          `toml:"level"`
	Challenges []domain.ChallengeTemplate `toml:"challenge"`
}

// New returns the built-in catalog.
func New() *Catalog {
	c, err := build(File{
		Activities: BuiltinActivities,
		Badges:     BuiltinBadges,
		Milestones: BuiltinMilestones,
		Levels:     BuiltinLevels,
		Challenges: BuiltinChallenges,
	})
	if err != nil {
		panic(fmt.Sprintf("builtin catalog invalid: %v", err))
	}
	return c
}

// Load returns the built-in catalog merged with the definitions in path.
// Entries with the same key (activity type, badge id, milestone id, level
// number, challenge id) replace the built-in one. An empty path returns New().
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("catalog file: %w", err)
	}

	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	merged := File{
		Activities: mergeBy(BuiltinActivities, f.Activities, func(a domain.ActivityDef) string { return a.Type }),
		Badges:     mergeBy(BuiltinBadges, f.Badges, func(b domain.BadgeDef) string { return b.ID }),
		Milestones: mergeBy(BuiltinMilestones, f.Milestones, func(m domain.MilestoneDef) string { return m.ID }),
		Levels:     mergeBy(BuiltinLevels, f.Levels, func(l domain.LevelDef) string { return fmt.Sprint(l.Number) }),
		Challenges: mergeBy(BuiltinChallenges, f.Challenges, func(t domain.ChallengeTemplate) string { return t.ID }),
	}
	return build(merged)
}

func mergeBy[T any](base, override []T, key func(T) string) []T {
	out := make([]T, 0, len(base)+len(override))
	pos := make(map[string]int, len(base))
	for _, v := range base {
		pos[key(v)] = len(out)
		out = append(out, v)
	}
	for _, v := range override {
		if i, ok := pos[key(v)]; ok {
			out[i] = v
			continue
		}
		pos[key(v)] = len(out)
		out = append(out, v)
	}
	return out
}

func build(f File) (*Catalog, error) {
	c := &Catalog{
		activities: make(map[string]domain.ActivityDef, len(f.Activities)),
		badgeIndex: make(map[string]domain.BadgeDef, len(f.Badges)),
	}
	for _, a := range f.Activities {
		c.activities[a.Type] = a
		c.order = append(c.order, a.Type)
	}
	c.badges = append(c.badges, f.Badges...)
	for _, b := range f.Badges {
		c.badgeIndex[b.ID] = b
	}
	c.milestones = append(c.milestones, f.Milestones...)
	sort.SliceStable(c.milestones, func(i, j int) bool { return c.milestones[i].Days < c.milestones[j].Days })
	c.levels = append(c.levels, f.Levels...)
	sort.Slice(c.levels, func(i, j int) bool { return c.levels[i].Number < c.levels[j].Number })
	for _, t := range f.Challenges {
		if !t.Disabled {
			c.challenges = append(c.challenges, t)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks catalog integrity. It is also run by the health checker.
func (c *Catalog) Validate() error {
	if len(c.activities) == 0 {
		return fmt.Errorf("catalog has no activities")
	}
	for _, a := range c.activities {
		if a.Type == "" {
			return fmt.Errorf("activity with empty type")
		}
		if a.Points <= 0 {
			return fmt.Errorf("activity %s: points must be positive, got %d", a.Type, a.Points)
		}
	}
	for _, b := range c.badges {
		switch b.Threshold {
		case domain.ThresholdPoints, domain.ThresholdStreak, domain.ThresholdActivityCount:
		default:
			return fmt.Errorf("badge %s: unknown threshold type %q", b.ID, b.Threshold)
		}
		if b.ID == "" || b.Value <= 0 {
			return fmt.Errorf("badge %q: id and positive threshold required", b.ID)
		}
	}
	for _, m := range c.milestones {
		if m.ID == "" || m.Days <= 0 {
			return fmt.Errorf("milestone %q: id and positive days required", m.ID)
		}
		if m.RewardPoints < 0 {
			return fmt.Errorf("milestone %s: negative reward", m.ID)
		}
		if m.BadgeID != "" {
			if _, ok := c.badgeIndex[m.BadgeID]; !ok {
				return fmt.Errorf("milestone %s: unknown badge %q", m.ID, m.BadgeID)
			}
		}
	}
	for i, l := range c.levels {
		if i == 0 && l.PointsRequired != 0 {
			return fmt.Errorf("level %d: first level must require 0 points", l.Number)
		}
		if i > 0 && l.PointsRequired <= c.levels[i-1].PointsRequired {
			return fmt.Errorf("level %d: points must increase with level", l.Number)
		}
	}
	seen := make(map[string]bool, len(c.challenges))
	for _, t := range c.challenges {
		if t.ID == "" || seen[t.ID] {
			return fmt.Errorf("challenge %q: id missing or repeated", t.ID)
		}
		seen[t.ID] = true
		switch t.Period {
		case domain.PeriodDaily, domain.PeriodWeekly:
		default:
			return fmt.Errorf("challenge %s: unknown period %q", t.ID, t.Period)
		}
		switch t.Kind {
		case domain.KindCompletions, domain.KindStreak:
		default:
			return fmt.Errorf("challenge %s: unknown kind %q", t.ID, t.Kind)
		}
		if t.Target <= 0 || t.RewardPoints < 0 {
			return fmt.Errorf("challenge %s: target must be positive and reward not negative", t.ID)
		}
		if t.ActivityType != "" {
			if _, ok := c.activities[t.ActivityType]; !ok {
				return fmt.Errorf("challenge %s: unknown activity %q", t.ID, t.ActivityType)
			}
		}
	}
	return nil
}

// ─── Lookups ────────────────────────────────────────────────────────────────

// Lookup resolves an activity type to its definition. Unknown and disabled
// types return domain.ErrUnknownActivityType.
func (c *Catalog) Lookup(activityType string) (domain.ActivityDef, error) {
	a, ok := c.activities[activityType]
	if !ok || a.Disabled {
		return domain.ActivityDef{}, fmt.Errorf("%w: %q", domain.ErrUnknownActivityType, activityType)
	}
	return a, nil
}

// Activities returns enabled activities in definition order.
func (c *Catalog) Activities() []domain.ActivityDef {
	out := make([]domain.ActivityDef, 0, len(c.order))
	for _, t := range c.order {
		if a := c.activities[t]; !a.Disabled {
			out = append(out, a)
		}
	}
	return out
}

// Badges returns all badge definitions.
func (c *Catalog) Badges() []domain.BadgeDef {
	return append([]domain.BadgeDef(nil), c.badges...)
}

// BadgesByThreshold returns badges measured against t.
func (c *Catalog) BadgesByThreshold(t domain.ThresholdType) []domain.BadgeDef {
	var out []domain.BadgeDef
	for _, b := range c.badges {
		if b.Threshold == t {
			out = append(out, b)
		}
	}
	return out
}

// Badge returns one badge definition by id.
func (c *Catalog) Badge(id string) (domain.BadgeDef, bool) {
	b, ok := c.badgeIndex[id]
	return b, ok
}

// Milestones returns all milestones, shortest streak first.
func (c *Catalog) Milestones() []domain.MilestoneDef {
	return append([]domain.MilestoneDef(nil), c.milestones...)
}

// MilestonesFor returns milestones tracked for activityType.
func (c *Catalog) MilestonesFor(activityType string) []domain.MilestoneDef {
	var out []domain.MilestoneDef
	for _, m := range c.milestones {
		if m.AppliesTo(activityType) {
			out = append(out, m)
		}
	}
	return out
}

// Levels returns the level ladder in ascending order.
func (c *Catalog) Levels() []domain.LevelDef {
	return append([]domain.LevelDef(nil), c.levels...)
}

// LevelFor returns the highest level reachable with points, and the next
// level if there is one.
func (c *Catalog) LevelFor(points int64) (domain.LevelDef, *domain.LevelDef) {
	var cur domain.LevelDef
	for i, l := range c.levels {
		if l.PointsRequired > points {
			next := c.levels[i]
			return cur, &next
		}
		cur = l
	}
	return cur, nil
}

// Challenges returns the enabled challenge templates for period in
// definition order.
func (c *Catalog) Challenges(period domain.ChallengePeriod) []domain.ChallengeTemplate {
	var out []domain.ChallengeTemplate
	for _, t := range c.challenges {
		if t.Period == period {
			out = append(out, t)
		}
	}
	return out
}
