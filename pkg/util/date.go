package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339 (with or without fractional seconds), a plain
// date, or unix seconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ResolveRange fills an open query range: to defaults to now and from to
// to minus lookback. ok is false when a bound is present but unparseable.
func ResolveRange(fromStr, toStr string, now time.Time, lookback time.Duration) (from, to time.Time, ok bool) {
	to = now.UTC()
	if toStr != "" {
		if to, ok = ParseTime(toStr); !ok {
			return time.Time{}, time.Time{}, false
		}
	}
	from = to.Add(-lookback)
	if fromStr != "" {
		if from, ok = ParseTime(fromStr); !ok {
			return time.Time{}, time.Time{}, false
		}
	}
	return from, to, true
}
