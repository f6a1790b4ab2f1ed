package interceptor

import (
	"errors"
	"time"

	"github.com/pion/rtcp"
)

// ErrNotPLI is returned by ParsePLI when the compound packet holds no
// Picture Loss Indication.
var ErrNotPLI = errors.New("vstab: no picture loss indication in RTCP packet")

// BuildPLI marshals a Picture Loss Indication asking mediaSSRC for a
// fresh frame.
func BuildPLI(senderSSRC, mediaSSRC uint32) ([]byte, error) {
	pli := rtcp.PictureLossIndication{
		SenderSSRC: senderSSRC,
		MediaSSRC:  mediaSSRC,
	}
	return pli.Marshal()
}

// ParsePLI extracts the first Picture Loss Indication from a compound RTCP
// packet.
func ParsePLI(data []byte) (senderSSRC, mediaSSRC uint32, err error) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range pkts {
		if pli, ok := p.(*rtcp.PictureLossIndication); ok {
			return pli.SenderSSRC, pli.MediaSSRC, nil
		}
	}
	return 0, 0, ErrNotPLI
}

// PLISchedulerConfig configures PLI rate limiting.
type PLISchedulerConfig struct {
	// Interval is the minimum spacing between two PLIs for the same stream
	// (default: 500ms).
	Interval time.Duration

	// SenderSSRC is the SSRC written into PLI packets.
	SenderSSRC uint32
}

// DefaultPLISchedulerConfig returns default scheduler configuration.
func DefaultPLISchedulerConfig() PLISchedulerConfig {
	return PLISchedulerConfig{
		Interval:   500 * time.Millisecond,
		SenderSSRC: 0,
	}
}

// PLIScheduler rate-limits Picture Loss Indications for one media stream.
// A burst of lost frames produces a single request per interval.
type PLIScheduler struct {
	config    PLISchedulerConfig
	mediaSSRC uint32
	lastSent  time.Time
	requested uint64
}

// NewPLIScheduler creates a scheduler for mediaSSRC.
func NewPLIScheduler(config PLISchedulerConfig, mediaSSRC uint32) *PLIScheduler {
	return &PLIScheduler{
		config:    config,
		mediaSSRC: mediaSSRC,
	}
}

// ShouldSend reports whether a PLI may be sent at now.
func (s *PLIScheduler) ShouldSend(now time.Time) bool {
	return s.lastSent.IsZero() || now.Sub(s.lastSent) >= s.config.Interval
}

// MaybeBuildPLI returns a marshalled PLI and records the send when the
// interval allows one. Returns (nil, false, nil) otherwise.
func (s *PLIScheduler) MaybeBuildPLI(now time.Time) ([]byte, bool, error) {
	if !s.ShouldSend(now) {
		return nil, false, nil
	}
	data, err := BuildPLI(s.config.SenderSSRC, s.mediaSSRC)
	if err != nil {
		return nil, false, err
	}
	s.lastSent = now
	s.requested++
	return data, true, nil
}

// LastSentTime returns when the last PLI was built, or the zero time.
func (s *PLIScheduler) LastSentTime() time.Time {
	return s.lastSent
}

// Requested returns how many PLIs were built.
func (s *PLIScheduler) Requested() uint64 {
	return s.requested
}

// Reset clears the send history.
func (s *PLIScheduler) Reset() {
	s.lastSent = time.Time{}
	s.requested = 0
}
