package vstab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateStats_EmptyReturnsNotOk(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())

	fps, ok := r.Rate(time.Now())
	assert.False(t, ok)
	assert.Equal(t, 0.0, fps)
}

func TestRateStats_SingleArrivalReturnsNotOk(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	t0 := time.Now()
	r.Update(t0)

	_, ok := r.Rate(t0)
	assert.False(t, ok, "one arrival has no interval")
}

func TestRateStats_ThirtyFPS(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	t0 := time.Now()
	interval := time.Second / 30

	now := t0
	for i := 0; i < 90; i++ {
		now = t0.Add(time.Duration(i) * interval)
		r.Update(now)
	}

	fps, ok := r.Rate(now)
	assert.True(t, ok)
	assert.InDelta(t, 30.0, fps, 0.01)
}

func TestRateStats_WindowExpiry(t *testing.T) {
	r := NewRateStats(RateStatsConfig{WindowSize: 500 * time.Millisecond})
	t0 := time.Now()

	// 10 fps for a second, then 50 fps.
	for i := 0; i < 10; i++ {
		r.Update(t0.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	t1 := t0.Add(time.Second)
	now := t1
	for i := 0; i < 50; i++ {
		now = t1.Add(time.Duration(i) * 20 * time.Millisecond)
		r.Update(now)
	}

	fps, ok := r.Rate(now)
	assert.True(t, ok)
	assert.InDelta(t, 50.0, fps, 0.01)
}

func TestRateStats_GapClearsWindow(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	t0 := time.Now()
	r.Update(t0)
	r.Update(t0.Add(33 * time.Millisecond))

	_, ok := r.Rate(t0.Add(5 * time.Second))
	assert.False(t, ok)
}

func TestRateStats_Reset(t *testing.T) {
	r := NewRateStats(DefaultRateStatsConfig())
	t0 := time.Now()
	r.Update(t0)
	r.Update(t0.Add(100 * time.Millisecond))
	r.Reset()

	_, ok := r.Rate(t0.Add(100 * time.Millisecond))
	assert.False(t, ok)
}

func TestRateStats_DefaultWindow(t *testing.T) {
	r := NewRateStats(RateStatsConfig{})
	assert.Equal(t, time.Second, r.windowSize)
}
