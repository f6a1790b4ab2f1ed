package internal

import "time"

// Stopwatch measures repeated intervals and keeps a bounded history of the
// most recent ones for averaging.
type Stopwatch struct {
	clock   Clock
	running bool
	start   time.Time
	elapsed time.Duration
	history *Ring[time.Duration]
}

// NewStopwatch creates a stopped stopwatch remembering the last history
// intervals. A nil clock selects MonotonicClock.
// Panics if history is less than 1.
func NewStopwatch(clock Clock, history int) *Stopwatch {
	if clock == nil {
		clock = MonotonicClock{}
	}
	return &Stopwatch{
		clock:   clock,
		history: NewRing[time.Duration](history),
	}
}

// Start begins a new interval.
func (s *Stopwatch) Start() {
	s.running = true
	s.start = s.clock.Now()
}

// Stop ends the current interval, records it and returns its length.
// Panics if the stopwatch is not running.
func (s *Stopwatch) Stop() time.Duration {
	if !s.running {
		panic("vstab: Stopwatch.Stop without Start")
	}
	s.elapsed = s.clock.Now().Sub(s.start)
	s.running = false
	s.history.Push(s.elapsed)
	return s.elapsed
}

// Running reports whether an interval is being measured.
func (s *Stopwatch) Running() bool {
	return s.running
}

// Elapsed returns the running interval so far, or the last completed one.
func (s *Stopwatch) Elapsed() time.Duration {
	if s.running {
		return s.clock.Now().Sub(s.start)
	}
	return s.elapsed
}

// Average returns the mean of the recorded intervals, or 0 with no history.
func (s *Stopwatch) Average() time.Duration {
	n := s.history.Len()
	if n == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += s.history.At(i)
	}
	return total / time.Duration(n)
}

// Deviation returns the mean absolute deviation of the recorded intervals.
// It needs at least two samples and returns 0 otherwise.
func (s *Stopwatch) Deviation() time.Duration {
	n := s.history.Len()
	if n < 2 {
		return 0
	}
	avg := s.Average()
	var total time.Duration
	for i := 0; i < n; i++ {
		d := s.history.At(i) - avg
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total / time.Duration(n)
}

// Reset stops the stopwatch and forgets its history.
func (s *Stopwatch) Reset() {
	s.running = false
	s.elapsed = 0
	s.history.Clear()
}
