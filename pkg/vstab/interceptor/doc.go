// Package interceptor provides a Pion WebRTC interceptor that stabilizes
// incoming raw luma video.
//
// Frames travel as video/x-vstab-luma RTP: every packet carries an 8-byte
// header (width, height and the byte offset of the chunk) followed by 8-bit
// luma rows, and the marker bit closes a frame. The interceptor reassembles
// frames, runs a vstab.Stabilizer per stream and hands the application
// stabilized frames re-packetized in the same format.
//
// # Quick Start
//
//	import (
//	    "github.com/pion/interceptor"
//	    "github.com/pion/webrtc/v4"
//	    vsint "github.com/thesyncim/vstab/pkg/vstab/interceptor"
//	)
//
//	func setupPeerConnection() (*webrtc.PeerConnection, error) {
//	    m := &webrtc.MediaEngine{}
//	    if err := vsint.RegisterLumaCodec(m); err != nil {
//	        return nil, err
//	    }
//
//	    i := &interceptor.Registry{}
//	    factory, err := vsint.NewStabilizerInterceptorFactory()
//	    if err != nil {
//	        return nil, err
//	    }
//	    i.Add(factory)
//
//	    api := webrtc.NewAPI(
//	        webrtc.WithMediaEngine(m),
//	        webrtc.WithInterceptorRegistry(i),
//	    )
//	    return api.NewPeerConnection(webrtc.Configuration{})
//	}
//
// # How It Works
//
// 1. BindRemoteStream wraps luma streams; other codecs are untouched.
//
// 2. Each Read pulls packets from the transport until a frame is complete,
// stabilizes it and returns the first packet of any emitted frame. Output
// starts after the stabilizer's frame delay and keeps the original RTP
// timestamps, so the application sees a delayed but continuous stream.
//
// 3. When a frame is lost to a sequence gap, a Picture Loss Indication is
// written through the RTCP writer, at most once per PLI interval.
//
// 4. Streams without packets for 2 seconds are dropped; if they resume,
// stabilization restarts from scratch.
package interceptor
