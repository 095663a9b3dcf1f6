package timeparse

import (
	"testing"
	"time"
)

func TestParseUnixSeconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := Parse("1700000000", now)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := time.Unix(1700000000, 0).UTC()
	if !got.Equal(want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}
}

func TestParseShorthand(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"1d", now.Add(-24 * time.Hour)},
		{"2h", now.Add(-2 * time.Hour)},
		{"1w", now.Add(-7 * 24 * time.Hour)},
		{"1mo", now.AddDate(0, -1, 0)},
		{"1y", now.AddDate(-1, 0, 0)},
	}
	for _, tc := range tests {
		got, err := Parse(tc.in, now)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseHumanized(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	got, err := Parse("3 days ago", now)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := now.Add(-3 * 24 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}

	got, err = Parse("1 hour ago", now)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !got.Equal(now.Add(-time.Hour)) {
		t.Errorf("Parse(1 hour ago) = %v", got)
	}
}

func TestParseISO(t *testing.T) {
	now := time.Now()
	got, err := Parse("2026-01-15T10:30:00Z", now)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}

	got, err = Parse("2026-01-15", now)
	if err != nil {
		t.Fatalf("Parse(date-only) error = %v", err)
	}
	if got.Year() != 2026 || got.Month() != 1 || got.Day() != 15 {
		t.Errorf("Parse(date-only) = %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("not-a-time", time.Now()); err == nil {
		t.Error("Parse() expected error for garbage input")
	}
	if _, err := Parse("", time.Now()); err == nil {
		t.Error("Parse() expected error for empty input")
	}
}

func TestFormatUTC(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	got := FormatUTC(ts)
	want := "2026-03-04T04:06:07.000Z"
	if got != want {
		t.Errorf("FormatUTC() = %q, want %q", got, want)
	}
}
