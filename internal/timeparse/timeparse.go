// Package timeparse accepts the time-string forms specification §6 requires
// for query filters (since/until) and normalizes them to UTC.
//
// Every accepted form is a plain lexical/arithmetic parse with no natural
// fit in the pack's dependency set (it is not a general-purpose date library
// problem — it's a closed set of four shapes this system alone defines), so
// this is stdlib-only by design; see DESIGN.md.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/boshu2/recall/internal/types"
)

// minUnixSeconds is 2000-01-01T00:00:00Z, the spec's floor for a bare
// integer to be treated as unix seconds rather than something else.
const minUnixSeconds = 946684800

var (
	shorthandPattern  = regexp.MustCompile(`^(\d+)(s|m|h|d|w|mo|y)$`)
	humanizedPattern  = regexp.MustCompile(`^(\d+)\s*(second|minute|hour|day|week|month|year)s?\s+ago$`)
)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

var humanizedDurations = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// Parse interprets s relative to now and returns a UTC time. It accepts:
//
//   - unix seconds (integer >= 946684800)
//   - shorthand duration "\d+(s|m|h|d|w|mo|y)" relative to now
//   - humanized relative "\d+\s*(second|minute|hour|day|week|month|year)s?\s+ago"
//   - ISO-8601 date or datetime; timezone-less inputs are assumed UTC
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", errInvalid)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= minUnixSeconds {
		return time.Unix(n, 0).UTC(), nil
	}

	if m := shorthandPattern.FindStringSubmatch(s); m != nil {
		return applyShorthand(now, m[1], m[2])
	}

	if m := humanizedPattern.FindStringSubmatch(s); m != nil {
		return applyHumanized(now, m[1], m[2])
	}

	if t, ok := parseISO(s); ok {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", errInvalid, s)
}

func applyShorthand(now time.Time, amount, unit string) (time.Time, error) {
	n, err := strconv.Atoi(amount)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", errInvalid, amount)
	}
	switch unit {
	case "mo":
		return now.AddDate(0, -n, 0).UTC(), nil
	case "y":
		return now.AddDate(-n, 0, 0).UTC(), nil
	default:
		d, ok := unitDurations[unit]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unit %s", errInvalid, unit)
		}
		return now.Add(-time.Duration(n) * d).UTC(), nil
	}
}

func applyHumanized(now time.Time, amount, unit string) (time.Time, error) {
	n, err := strconv.Atoi(amount)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", errInvalid, amount)
	}
	switch unit {
	case "month":
		return now.AddDate(0, -n, 0).UTC(), nil
	case "year":
		return now.AddDate(-n, 0, 0).UTC(), nil
	default:
		d, ok := humanizedDurations[unit]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unit %s", errInvalid, unit)
		}
		return now.Add(-time.Duration(n) * d).UTC(), nil
	}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var errInvalid = types.ErrInvalidTimeString

// FormatUTC renders t the way Recall stores timestamps internally: UTC
// ISO-8601 with a literal "Z" suffix.
func FormatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
