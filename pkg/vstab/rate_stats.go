package vstab

import "time"

// RateStatsConfig configures the sliding window frame rate measurement.
type RateStatsConfig struct {
	// WindowSize is the duration of the sliding window.
	// Default: 1 second.
	WindowSize time.Duration
}

// DefaultRateStatsConfig returns a one second window.
func DefaultRateStatsConfig() RateStatsConfig {
	return RateStatsConfig{WindowSize: time.Second}
}

// RateStats measures the rate of frame arrivals over a sliding time window.
//
// Usage:
//
//	r := NewRateStats(DefaultRateStatsConfig())
//	r.Update(arrivalTime)
//	if fps, ok := r.Rate(now); ok {
//	    fmt.Printf("input: %.1f fps\n", fps)
//	}
type RateStats struct {
	windowSize time.Duration
	arrivals   []time.Time
}

// NewRateStats creates a frame rate tracker with the given configuration.
func NewRateStats(config RateStatsConfig) *RateStats {
	windowSize := config.WindowSize
	if windowSize <= 0 {
		windowSize = time.Second
	}
	return &RateStats{
		windowSize: windowSize,
		arrivals:   make([]time.Time, 0, 128),
	}
}

// Update records one frame arriving at now.
func (r *RateStats) Update(now time.Time) {
	r.removeExpired(now)
	r.arrivals = append(r.arrivals, now)
}

// Rate returns the frame rate in frames per second, measured from the
// intervals between arrivals still inside the window.
// Returns (0, false) with fewer than two arrivals or when they span less
// than a millisecond.
func (r *RateStats) Rate(now time.Time) (fps float64, ok bool) {
	r.removeExpired(now)
	if len(r.arrivals) < 2 {
		return 0, false
	}
	elapsed := r.arrivals[len(r.arrivals)-1].Sub(r.arrivals[0])
	if elapsed < time.Millisecond {
		return 0, false
	}
	return float64(len(r.arrivals)-1) / elapsed.Seconds(), true
}

// Reset clears all arrivals.
func (r *RateStats) Reset() {
	r.arrivals = r.arrivals[:0]
}

// removeExpired drops arrivals older than windowSize before now.
func (r *RateStats) removeExpired(now time.Time) {
	cutoff := now.Add(-r.windowSize)
	expired := 0
	for _, t := range r.arrivals {
		if !t.Before(cutoff) {
			break
		}
		expired++
	}
	if expired > 0 {
		r.arrivals = r.arrivals[expired:]
	}
}
