package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDisabled(t *testing.T) {
	require.Nil(t, New(0, 10, 0))
	require.Nil(t, New(1, 0, 0))

	var l *Limiter
	ok, wait := l.Allow("team", time.Now())
	require.True(t, ok)
	require.Zero(t, wait)
	require.Zero(t, l.Len())
}

func TestAllowBurstThenThrottle(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("team-a", now)
		require.True(t, ok)
	}
	ok, wait := l.Allow("team-a", now)
	require.False(t, ok)
	require.Greater(t, wait, time.Duration(0))

	ok, _ = l.Allow("team-b", now)
	require.True(t, ok, "keys are independent")

	ok, _ = l.Allow("team-a", now.Add(time.Second))
	require.True(t, ok, "bucket refills")
}

func TestAllowBlankKey(t *testing.T) {
	l := New(1, 1, time.Minute)
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("  ", time.Now())
		require.True(t, ok)
	}
	require.Zero(t, l.Len())
}

func TestIdleBucketsEvicted(t *testing.T) {
	l := New(100, 100, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("stale", start)

	later := start.Add(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.Allow(fmt.Sprintf("k%d", i%4), later)
	}
	require.Equal(t, 4, l.Len())
}
