package interceptor

import (
	"errors"
	"fmt"
	"image"

	"github.com/pion/rtp"
)

// ErrFrameLost reports that at least one frame could not be reassembled,
// either because of a sequence number gap or an inconsistent packet.
var ErrFrameLost = errors.New("vstab: luma frame lost")

// AssembledFrame is a frame rebuilt from luma RTP packets.
type AssembledFrame struct {
	Image *image.Gray

	// Timestamp is the RTP timestamp shared by the frame's packets.
	Timestamp uint32

	// SequenceNumber is the sequence number of the packet that closed the frame.
	SequenceNumber uint16
}

// FrameAssembler rebuilds luma frames from an RTP packet stream.
// Packets must arrive in order; any sequence gap discards the frame in
// progress. A FrameAssembler is not safe for concurrent use.
type FrameAssembler struct {
	depacketizer LumaDepacketizer

	frame     *image.Gray
	timestamp uint32
	filled    int

	lastSeq uint16
	started bool
	dropped uint64
}

// NewFrameAssembler creates an assembler waiting for the head of a frame.
func NewFrameAssembler() *FrameAssembler {
	return &FrameAssembler{}
}

// Push consumes one packet. complete is true when pkt closed a frame whose
// every byte was received. ErrFrameLost is returned whenever a frame was
// abandoned, alongside any frame completed by the same packet; malformed
// payloads return ErrShortPayload or ErrFrameGeometry.
func (a *FrameAssembler) Push(pkt *rtp.Packet) (frame AssembledFrame, complete bool, err error) {
	lost := false
	if a.started && pkt.SequenceNumber != a.lastSeq+1 {
		a.abandon()
		a.dropped++
		lost = true
	}
	a.lastSeq, a.started = pkt.SequenceNumber, true

	luma, err := a.depacketizer.Unmarshal(pkt.Payload)
	if err != nil {
		if a.abandon() {
			a.dropped++
		}
		return AssembledFrame{}, false, err
	}

	d := &a.depacketizer
	if d.Offset == 0 {
		if a.abandon() {
			a.dropped++
			lost = true
		}
		if d.Width == 0 || d.Height == 0 {
			return AssembledFrame{}, false, fmt.Errorf("%w: empty %dx%d frame", ErrFrameGeometry, d.Width, d.Height)
		}
		a.frame = image.NewGray(image.Rect(0, 0, d.Width, d.Height))
		a.timestamp = pkt.Timestamp
		a.filled = 0
	}

	switch {
	case a.frame == nil:
		// Tail of a frame that was already abandoned.
		return AssembledFrame{}, false, lostError(lost)
	case pkt.Timestamp != a.timestamp, d.Offset != a.filled,
		d.Width != a.frame.Rect.Dx(), d.Height != a.frame.Rect.Dy():
		a.abandon()
		a.dropped++
		return AssembledFrame{}, false, ErrFrameLost
	}

	copy(a.frame.Pix[a.filled:], luma)
	a.filled += len(luma)

	if !pkt.Marker {
		return AssembledFrame{}, false, lostError(lost)
	}
	if a.filled != len(a.frame.Pix) {
		a.abandon()
		a.dropped++
		return AssembledFrame{}, false, ErrFrameLost
	}
	frame = AssembledFrame{Image: a.frame, Timestamp: a.timestamp, SequenceNumber: pkt.SequenceNumber}
	a.frame = nil
	return frame, true, lostError(lost)
}

// abandon drops the frame in progress and reports whether there was one.
func (a *FrameAssembler) abandon() bool {
	if a.frame == nil {
		return false
	}
	a.frame = nil
	a.filled = 0
	return true
}

// Dropped returns the number of frames lost so far.
func (a *FrameAssembler) Dropped() uint64 {
	return a.dropped
}

// Reset forgets the frame in progress and the sequence history.
func (a *FrameAssembler) Reset() {
	a.abandon()
	a.started = false
}

func lostError(lost bool) error {
	if lost {
		return ErrFrameLost
	}
	return nil
}
