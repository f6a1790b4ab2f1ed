package interceptor

import (
	"encoding/binary"
	"testing"

	"github.com/pion/rtp"

	"github.com/thesyncim/vstab/pkg/vstab"
)

// benchResult keeps the compiler from eliminating benchmark loops.
var benchResult int

func BenchmarkLumaPayloader(b *testing.B) {
	payload := MarshalLumaFrame(testFrame(320, 180, 0))
	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))
	for b.Loop() {
		benchResult = len(LumaPayloader{}.Payload(DefaultMTU, payload))
	}
}

func BenchmarkFrameAssembler_Push(b *testing.B) {
	p := rtp.NewPacketizer(DefaultMTU, DefaultPayloadType, 0xCAFE, LumaPayloader{}, rtp.NewFixedSequencer(0), ClockRate)
	pkts := p.Packetize(MarshalLumaFrame(testFrame(320, 180, 0)), 3000)
	a := NewFrameAssembler()
	var seq uint16

	b.ReportAllocs()
	for b.Loop() {
		for _, pkt := range pkts {
			pkt.SequenceNumber = seq
			seq++
			if _, complete, _ := a.Push(pkt); complete {
				benchResult++
			}
		}
	}
}

// BenchmarkProcessRTP measures one frame through the stream pipeline:
// assembly, stabilization and re-packetization.
func BenchmarkProcessRTP(b *testing.B) {
	i, err := NewStabilizerInterceptor(
		WithConfig(testConfig()),
		WithTrackerFactory(func() vstab.Tracker { return &stillTracker{} }),
	)
	if err != nil {
		b.Fatal(err)
	}
	defer i.Close()

	state, err := i.newStream(lumaInfo(0xBEEF))
	if err != nil {
		b.Fatal(err)
	}

	p := rtp.NewPacketizer(DefaultMTU, DefaultPayloadType, 0xBEEF, LumaPayloader{}, rtp.NewFixedSequencer(0), ClockRate)
	var frame [][]byte
	for _, pkt := range p.Packetize(MarshalLumaFrame(testFrame(160, 120, 0)), 0) {
		raw, err := pkt.Marshal()
		if err != nil {
			b.Fatal(err)
		}
		frame = append(frame, raw)
	}

	var seq uint16
	var ts uint32
	b.ReportAllocs()
	for b.Loop() {
		for _, raw := range frame {
			binary.BigEndian.PutUint16(raw[2:4], seq)
			binary.BigEndian.PutUint32(raw[4:8], ts)
			seq++
			i.processRTP(state, raw)
		}
		ts += 3000
		for pkt := state.next(); pkt != nil; pkt = state.next() {
			benchResult += len(pkt.Payload)
		}
	}
}
