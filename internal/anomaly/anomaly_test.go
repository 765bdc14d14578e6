package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func observe(d *Detector, n int) {
	for i := 0; i < n; i++ {
		d.Observe()
	}
}

func TestNoJudgementWithoutHistory(t *testing.T) {
	d := New(5, 5.0, base)

	observe(d, 100000)
	res := d.Check(base.Add(30 * time.Second))
	assert.False(t, res.Throttled)
	assert.False(t, d.Throttled())

	// One completed minute is still not enough.
	res = d.Check(base.Add(61 * time.Second))
	require.True(t, res.Rotated)
	observe(d, 100000)
	res = d.Check(base.Add(90 * time.Second))
	assert.False(t, res.Throttled)
}

func TestThrottleBoundaryIsStrict(t *testing.T) {
	d := New(5, 5.0, base)

	// History [10, 12], mean 11, ceiling 55.
	observe(d, 10)
	require.True(t, d.Check(base.Add(1*time.Minute)).Rotated)
	observe(d, 12)
	require.True(t, d.Check(base.Add(2*time.Minute)).Rotated)

	observe(d, 55)
	res := d.Check(base.Add(2*time.Minute + 30*time.Second))
	assert.False(t, res.Throttled, "55 is not strictly above 11*5")

	observe(d, 1)
	res = d.Check(base.Add(2*time.Minute + 40*time.Second))
	assert.True(t, res.Throttled, "56 is strictly above 11*5")
	assert.True(t, d.Throttled())
}

func TestQuietMinuteClearsThrottle(t *testing.T) {
	d := New(5, 5.0, base)

	observe(d, 10)
	d.Check(base.Add(1 * time.Minute))
	observe(d, 12)
	d.Check(base.Add(2 * time.Minute))
	observe(d, 200)
	require.True(t, d.Check(base.Add(2*time.Minute+30*time.Second)).Throttled)

	// Rotation resets the live counter; no hysteresis.
	res := d.Check(base.Add(3 * time.Minute))
	require.True(t, res.Rotated)
	assert.False(t, res.Throttled)
	assert.False(t, d.Throttled())
}

func TestHistoryTrimmedToDepth(t *testing.T) {
	d := New(5, 5.0, base)

	for i := 1; i <= 8; i++ {
		observe(d, i)
		require.True(t, d.Check(base.Add(time.Duration(i)*time.Minute)).Rotated)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.history, 5)
	// Oldest samples were evicted; counts 4..8 remain.
	assert.Equal(t, int64(4), d.history[0].count)
	assert.Equal(t, int64(8), d.history[4].count)
}

func TestNoRotationWithinMinute(t *testing.T) {
	d := New(5, 5.0, base)

	observe(d, 3)
	res := d.Check(base.Add(59 * time.Second))
	assert.False(t, res.Rotated)

	res = d.Check(base.Add(60 * time.Second))
	assert.True(t, res.Rotated)
}
