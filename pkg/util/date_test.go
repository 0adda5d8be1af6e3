package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2025-03-01T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2025-03-01")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2025, 3, 1, 10, 10, 10, 0, time.UTC)
	if got := ParseTimeDefault("yesterday", def); !got.Equal(def) {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	from, to, ok := ResolveRange("", "", now, 24*time.Hour)
	if !ok || !to.Equal(now) || !from.Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("unexpected open range %v..%v ok=%v", from, to, ok)
	}

	from, to, ok = ResolveRange("2025-03-01", "2025-03-02", now, time.Hour)
	if !ok || to.Sub(from) != 24*time.Hour {
		t.Fatalf("unexpected explicit range %v..%v ok=%v", from, to, ok)
	}

	if _, _, ok = ResolveRange("garbage", "", now, time.Hour); ok {
		t.Fatalf("expected failure for bad from")
	}
}
