package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("icu-a"))
	assert.True(t, l.Allow("icu-a"))
	assert.False(t, l.Allow("icu-a"))
	assert.True(t, l.Allow("ward-b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("icu-a"))
	assert.False(t, l.Allow("icu-a"))
}

func TestLimiterDropsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, 0.001)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("icu-a"))
	now = now.Add(time.Hour)
	assert.True(t, l.Allow("ward-b"))
	_, kept := l.buckets["icu-a"]
	assert.False(t, kept)
}
