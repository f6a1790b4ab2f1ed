package interceptor

import (
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/thesyncim/vstab/pkg/vstab"
)

// StreamStats is a snapshot of one stabilized stream.
type StreamStats struct {
	SSRC uint32

	PacketsIn  uint64
	PacketsOut uint64

	// FramesLost counts frames the assembler had to discard.
	FramesLost uint64

	// PLIsSent counts Picture Loss Indications written for the stream.
	PLIsSent uint64

	Stabilizer vstab.Stats
}

// streamState is the per-SSRC pipeline of the interceptor.
//
// Everything but lastPacketTime and stats belongs to the goroutine reading
// the stream. The cleanup loop only reads lastPacketTime, and Stats only
// loads the published snapshot.
type streamState struct {
	ssrc           uint32
	lastPacketTime atomic.Value // stores time.Time
	stats          atomic.Pointer[StreamStats]

	readBuf    []byte
	assembler  *FrameAssembler
	unwrapper  TimestampUnwrapper
	stabilizer *vstab.Stabilizer
	packetizer rtp.Packetizer
	pli        *PLIScheduler
	configSeq  uint64

	pending    []*rtp.Packet
	packetsIn  uint64
	packetsOut uint64
	plisSent   uint64
}

func newStreamState(ssrc uint32, now time.Time) *streamState {
	s := &streamState{
		ssrc:      ssrc,
		assembler: NewFrameAssembler(),
	}
	s.lastPacketTime.Store(now)
	return s
}

// UpdateLastPacket records a packet arrival.
func (s *streamState) UpdateLastPacket(t time.Time) {
	s.lastPacketTime.Store(t)
}

// LastPacket returns the arrival time of the most recent packet.
func (s *streamState) LastPacket() time.Time {
	return s.lastPacketTime.Load().(time.Time)
}

// SSRC returns the stream's SSRC identifier.
func (s *streamState) SSRC() uint32 {
	return s.ssrc
}

// next pops the oldest stabilized packet waiting to be read.
func (s *streamState) next() *rtp.Packet {
	if len(s.pending) == 0 {
		return nil
	}
	pkt := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return pkt
}

func (s *streamState) publish() {
	s.stats.Store(&StreamStats{
		SSRC:       s.ssrc,
		PacketsIn:  s.packetsIn,
		PacketsOut: s.packetsOut,
		FramesLost: s.assembler.Dropped(),
		PLIsSent:   s.plisSent,
		Stabilizer: s.stabilizer.Stats(),
	})
}
