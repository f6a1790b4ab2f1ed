package interceptor

import "time"

// TimestampUnwrapper extends 32-bit RTP timestamps to a monotonic 64-bit
// timeline. Consecutive timestamps are assumed to be less than half the
// 32-bit range apart, so a backwards step larger than that is read as a
// wraparound.
type TimestampUnwrapper struct {
	last    uint32
	value   int64
	started bool
}

// Unwrap returns the extended value of ts.
func (u *TimestampUnwrapper) Unwrap(ts uint32) int64 {
	if !u.started {
		u.started = true
		u.last = ts
		u.value = int64(ts)
		return u.value
	}
	// int32 of the unsigned difference is the half-range comparison.
	u.value += int64(int32(ts - u.last))
	u.last = ts
	return u.value
}

// Reset forgets the timeline; the next timestamp starts it again.
func (u *TimestampUnwrapper) Reset() {
	*u = TimestampUnwrapper{}
}

// RTPToDuration converts 90 kHz ticks to a duration, truncating to the
// nanosecond.
//
// Example: 90000 ticks equals exactly 1 second.
func RTPToDuration(ticks int64) time.Duration {
	whole := ticks / ClockRate
	frac := ticks % ClockRate
	return time.Duration(whole)*time.Second + time.Duration(frac)*time.Second/ClockRate
}

// DurationToRTP converts a duration to the nearest number of 90 kHz ticks.
// It inverts RTPToDuration exactly.
func DurationToRTP(d time.Duration) int64 {
	whole := int64(d / time.Second)
	frac := int64(d % time.Second)
	return whole*ClockRate + (frac*9+50000)/100000
}
