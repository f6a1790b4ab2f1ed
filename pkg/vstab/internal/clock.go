// Package internal holds the small building blocks shared by the vstab
// packages: a bounded ring buffer, a clock abstraction and a stopwatch.
package internal

import "time"

// Clock supplies monotonic time. Tests substitute MockClock to make timing
// statistics deterministic.
type Clock interface {
	// Now returns the current time. Successive calls must not go backwards.
	Now() time.Time
}

// MonotonicClock reads the system clock. time.Now carries a monotonic
// reading, so differences are immune to wall-clock adjustments.
type MonotonicClock struct{}

// Now returns time.Now().
func (MonotonicClock) Now() time.Time {
	return time.Now()
}

// MockClock is a manually driven Clock. It is not safe for concurrent use.
type MockClock struct {
	current time.Time
}

// NewMockClock returns a MockClock reading t, or a fixed epoch when t is zero.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Unix(1000000000, 0)
	}
	return &MockClock{current: t}
}

// Now returns the mock time.
func (m *MockClock) Now() time.Time {
	return m.current
}

// Advance moves the clock forward by d.
// Panics if d is negative.
func (m *MockClock) Advance(d time.Duration) {
	if d < 0 {
		panic("vstab: MockClock.Advance with negative duration")
	}
	m.current = m.current.Add(d)
}
