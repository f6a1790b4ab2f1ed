package interceptor

import (
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

const (
	// MimeType identifies the raw luma video format in SDP. Streams with any
	// other codec pass through the interceptor untouched.
	MimeType = "video/x-vstab-luma"

	// ClockRate is the RTP clock rate of luma streams.
	ClockRate = 90000

	// DefaultPayloadType is the dynamic payload type used when negotiating
	// the luma codec.
	DefaultPayloadType = 96
)

// IsLumaStream reports whether a negotiated stream carries raw luma video.
func IsLumaStream(info *interceptor.StreamInfo) bool {
	return info != nil && strings.EqualFold(info.MimeType, MimeType)
}

// LumaCodec returns the codec parameters advertised for luma video. NACK
// and PLI feedback are negotiated so senders answer lost packets and frames.
func LumaCodec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  MimeType,
			ClockRate: ClockRate,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
			},
		},
		PayloadType: DefaultPayloadType,
	}
}

// RegisterLumaCodec adds the luma codec to a MediaEngine.
func RegisterLumaCodec(m *webrtc.MediaEngine) error {
	return m.RegisterCodec(LumaCodec(), webrtc.RTPCodecTypeVideo)
}
