package domain

import (
	"encoding/json"
	"testing"
	"time"
)

// ─── Date ───────────────────────────────────────────────────────────────────

func TestDateOf_IgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2025, 9, 18, 0, 0, 1, 0, time.UTC)
	night := time.Date(2025, 9, 18, 23, 59, 59, 0, time.UTC)
	if DateOf(morning) != DateOf(night) {
		t.Errorf("expected same date, got %s and %s", DateOf(morning), DateOf(night))
	}
}

func TestDateOf_NormalizesToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	// 2025-09-19 02:00 IST is still 2025-09-18 in UTC.
	local := time.Date(2025, 9, 19, 2, 0, 0, 0, ist)
	if got := DateOf(local).String(); got != "2025-09-18" {
		t.Errorf("DateOf(%v) = %s, want 2025-09-18", local, got)
	}

	pst := time.FixedZone("PST", -8*3600)
	late := time.Date(2025, 9, 18, 20, 0, 0, 0, pst)
	if got := DateOf(late).String(); got != "2025-09-19" {
		t.Errorf("DateOf(%v) = %s, want 2025-09-19", late, got)
	}
}

func TestParseDate_AcceptsTimestampForms(t *testing.T) {
	want := MustParseDate("2025-09-18")
	for _, in := range []string{
		"2025-09-18",
		"2025-09-18T00:00:00Z",
		"2025-09-18 00:00:00+00:00",
		" 2025-09-18T13:45:00.123Z",
	} {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("ParseDate(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDate(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseDate_Rejects(t *testing.T) {
	for _, in := range []string{"", "2025-9-1", "yesterday", "2025-13-01"} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("ParseDate(%q) expected error", in)
		}
	}
}

func TestDate_Arithmetic(t *testing.T) {
	d := MustParseDate("2025-02-28")
	if got := d.AddDays(1).String(); got != "2025-03-01" {
		t.Errorf("AddDays(1) = %s, want 2025-03-01", got)
	}
	if got := MustParseDate("2024-02-28").AddDays(1).String(); got != "2024-02-29" {
		t.Errorf("leap AddDays(1) = %s, want 2024-02-29", got)
	}
	if got := MustParseDate("2025-01-01").AddDays(-1).String(); got != "2024-12-31" {
		t.Errorf("AddDays(-1) = %s, want 2024-12-31", got)
	}

	a := MustParseDate("2025-09-18")
	b := MustParseDate("2025-09-21")
	if n := b.DaysSince(a); n != 3 {
		t.Errorf("DaysSince = %d, want 3", n)
	}
	if n := a.DaysSince(b); n != -3 {
		t.Errorf("DaysSince reversed = %d, want -3", n)
	}
	if !a.Before(b) || !b.After(a) || a.After(b) {
		t.Error("Before/After ordering wrong")
	}
}

func TestDate_Scan(t *testing.T) {
	want := MustParseDate("2025-09-18")
	inputs := []any{
		"2025-09-18",
		[]byte("2025-09-18"),
		time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC),
		"2025-09-18T00:00:00Z",
	}
	for _, in := range inputs {
		var d Date
		if err := d.Scan(in); err != nil {
			t.Fatalf("Scan(%T) error: %v", in, err)
		}
		if d != want {
			t.Errorf("Scan(%T %v) = %s, want %s", in, in, d, want)
		}
	}

	var d Date
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Errorf("Scan(nil) = %v, %v; want zero", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
}

func TestDate_Value(t *testing.T) {
	v, err := MustParseDate("2025-09-18").Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	if v != "2025-09-18" {
		t.Errorf("Value() = %v, want 2025-09-18", v)
	}
	v, _ = Date{}.Value()
	if v != nil {
		t.Errorf("zero Value() = %v, want nil", v)
	}
}

func TestDate_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
		Z Date `json:"z"`
	}{D: MustParseDate("2025-09-18")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2025-09-18","z":null}` {
		t.Errorf("marshal = %s", b)
	}

	var out struct {
		D Date `json:"d"`
		Z Date `json:"z"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.D.String() != "2025-09-18" || !out.Z.IsZero() {
		t.Errorf("unmarshal = %+v", out)
	}
}

// ─── Streak status / badges ─────────────────────────────────────────────────

func TestStreakRecord_StatusOn(t *testing.T) {
	s := StreakRecord{LastActivityDate: MustParseDate("2025-09-18")}
	cases := map[string]StreakStatus{
		"2025-09-18": StreakActive,
		"2025-09-19": StreakAtRisk,
		"2025-09-20": StreakBroken,
	}
	for today, want := range cases {
		if got := s.StatusOn(MustParseDate(today)); got != want {
			t.Errorf("StatusOn(%s) = %s, want %s", today, got, want)
		}
	}
}

func TestStreakTransition_Changed(t *testing.T) {
	for tr, want := range map[StreakTransition]bool{
		TransitionStarted:     true,
		TransitionIncremented: true,
		TransitionReset:       true,
		TransitionSameDay:     false,
		TransitionOutOfOrder:  false,
	} {
		if tr.Changed() != want {
			t.Errorf("%s.Changed() = %v, want %v", tr, !want, want)
		}
	}
}

func TestBadgeDef_Met(t *testing.T) {
	stats := UserStats{
		Balance:         120,
		TotalActivities: 9,
		ActivityCounts:  map[string]int64{"journal_entry": 6, "mood_logging": 3},
		CurrentStreaks:  map[string]int{"journal_entry": 4, "mood_logging": 7},
	}

	tests := []struct {
		name  string
		badge BadgeDef
		want  bool
	}{
		{"points met", BadgeDef{Threshold: ThresholdPoints, Value: 100}, true},
		{"points unmet", BadgeDef{Threshold: ThresholdPoints, Value: 121}, false},
		{"best streak", BadgeDef{Threshold: ThresholdStreak, Value: 7}, true},
		{"scoped streak", BadgeDef{Threshold: ThresholdStreak, Value: 7, ActivityType: "journal_entry"}, false},
		{"total count", BadgeDef{Threshold: ThresholdActivityCount, Value: 9}, true},
		{"scoped count", BadgeDef{Threshold: ThresholdActivityCount, Value: 5, ActivityType: "journal_entry"}, true},
		{"unknown scope", BadgeDef{Threshold: ThresholdActivityCount, Value: 1, ActivityType: "yoga"}, false},
		{"bad threshold", BadgeDef{Threshold: "karma", Value: 0}, false},
	}
	for _, tt := range tests {
		if got := tt.badge.Met(stats); got != tt.want {
			t.Errorf("%s: Met() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidationError_Is(t *testing.T) {
	err := Invalid("timestamp", "required")
	if !IsValidation(err) {
		t.Error("expected validation error to match ErrValidation")
	}
	if err.Error() != "invalid timestamp: required" {
		t.Errorf("Error() = %q", err.Error())
	}
}
