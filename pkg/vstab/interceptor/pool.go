package interceptor

import (
	"sync"

	"github.com/pion/rtp"
)

// packetPool recycles the packets incoming RTP is parsed into. The
// assembler copies payload bytes out, so a packet can go back to the pool
// as soon as it has been pushed.
var packetPool = sync.Pool{
	New: func() any {
		return &rtp.Packet{}
	},
}

func getPacket() *rtp.Packet {
	return packetPool.Get().(*rtp.Packet)
}

// putPacket resets pkt, keeping the CSRC and extension capacity.
func putPacket(pkt *rtp.Packet) {
	csrc := pkt.CSRC[:0]
	ext := pkt.Extensions[:0]
	*pkt = rtp.Packet{}
	pkt.CSRC = csrc
	pkt.Extensions = ext
	packetPool.Put(pkt)
}
