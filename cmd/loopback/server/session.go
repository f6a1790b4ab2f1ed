package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/vstab/pkg/vstab"
	vsinterceptor "github.com/thesyncim/vstab/pkg/vstab/interceptor"
	"github.com/thesyncim/vstab/pkg/vstab/testutil"
)

const (
	senderMTU      = 1200
	connectTimeout = 10 * time.Second
	shakeAmplitude = 4
)

// ErrSessionClosed is returned when configuring a closed session.
var ErrSessionClosed = errors.New("session closed")

// SessionStats is the JSON view of a session served by the stats endpoint.
type SessionStats struct {
	ID    string `json:"id"`
	State string `json:"state"`

	FramesSent     uint64 `json:"frames_sent"`
	FramesReceived uint64 `json:"frames_received"`
	PLIsReceived   uint64 `json:"plis_received"`

	SSRC           uint32  `json:"ssrc"`
	PacketsIn      uint64  `json:"packets_in"`
	PacketsOut     uint64  `json:"packets_out"`
	FramesLost     uint64  `json:"frames_lost"`
	PLIsSent       uint64  `json:"plis_sent"`
	FramesIn       uint64  `json:"frames_in"`
	FramesOut      uint64  `json:"frames_out"`
	TrackingMisses uint64  `json:"tracking_misses"`
	FrameRate      float64 `json:"frame_rate"`
	ProcessingMs   float64 `json:"processing_ms"`
	FrameDelay     int     `json:"frame_delay"`
}

// Session is a sender and a receiver PeerConnection joined in process. The
// sender films a shaky synthetic camera as raw luma; the receiver's
// interceptor chain stabilizes it before the application reads the track.
type Session struct {
	id  string
	log *slog.Logger

	sender   *webrtc.PeerConnection
	receiver *webrtc.PeerConnection
	track    *webrtc.TrackLocalStaticRTP
	stab     atomic.Pointer[vsinterceptor.StabilizerInterceptor]

	mu     sync.Mutex
	raw    *image.Gray
	stable *image.Gray
	ssrc   uint32
	state  webrtc.PeerConnectionState

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	plisReceived   atomic.Uint64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newSession(cfg Config, log *slog.Logger) (*Session, error) {
	s := &Session{
		id:    uuid.NewString(),
		state: webrtc.PeerConnectionStateNew,
	}
	s.log = log.With("session", s.id)

	var err error
	if s.receiver, err = s.newReceiver(cfg.Stabilizer); err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	if s.sender, err = s.newSender(); err != nil {
		_ = s.receiver.Close()
		return nil, fmt.Errorf("sender: %w", err)
	}
	if err := s.connect(); err != nil {
		s.closePeers()
		s.wg.Wait()
		return nil, fmt.Errorf("signaling: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	camera := testutil.NewShakyCamera(cfg.FrameSize, shakeAmplitude, uint64(time.Now().UnixNano()))

	s.wg.Add(1)
	go s.film(ctx, camera, cfg.FPS)
	return s, nil
}

func (s *Session) newReceiver(config vstab.Config) (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := vsinterceptor.RegisterLumaCodec(m); err != nil {
		return nil, err
	}

	// Reports and NACKs see the wire sequence numbers, so they are bound
	// before the stabilizer rewrites the stream.
	i := &interceptor.Registry{}
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, err
	}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(generator)

	factory, err := vsinterceptor.NewStabilizerInterceptorFactory(
		vsinterceptor.WithFactoryConfig(config),
		vsinterceptor.WithFactoryOnInterceptor(func(_ string, si *vsinterceptor.StabilizerInterceptor) {
			s.stab.Store(si)
		}),
	)
	if err != nil {
		return nil, err
	}
	i.Add(factory)

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		pc.Close()
		return nil, err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.log.Info("receiving track", "codec", track.Codec().MimeType, "ssrc", track.SSRC())
		s.mu.Lock()
		s.ssrc = uint32(track.SSRC())
		s.mu.Unlock()

		s.wg.Add(1)
		go s.readStable(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Info("connection state", "state", state.String())
		s.mu.Lock()
		s.state = state
		s.mu.Unlock()
	})
	return pc, nil
}

func (s *Session) newSender() (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := vsinterceptor.RegisterLumaCodec(m); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, err
	}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(responder)

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}

	s.track, err = webrtc.NewTrackLocalStaticRTP(vsinterceptor.LumaCodec().RTPCodecCapability, "video", "vstab-"+s.id)
	if err != nil {
		pc.Close()
		return nil, err
	}
	rtpSender, err := pc.AddTrack(s.track)
	if err != nil {
		pc.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.readFeedback(rtpSender)
	return pc, nil
}

// connect exchanges the offer and answer directly, waiting for ICE
// gathering on each side so no trickle is needed.
func (s *Session) connect() error {
	offer, err := s.sender.CreateOffer(nil)
	if err != nil {
		return err
	}
	gathered := webrtc.GatheringCompletePromise(s.sender)
	if err := s.sender.SetLocalDescription(offer); err != nil {
		return err
	}
	if err := waitGathered(gathered); err != nil {
		return err
	}

	if err := s.receiver.SetRemoteDescription(*s.sender.LocalDescription()); err != nil {
		return err
	}
	answer, err := s.receiver.CreateAnswer(nil)
	if err != nil {
		return err
	}
	gathered = webrtc.GatheringCompletePromise(s.receiver)
	if err := s.receiver.SetLocalDescription(answer); err != nil {
		return err
	}
	if err := waitGathered(gathered); err != nil {
		return err
	}
	return s.sender.SetRemoteDescription(*s.receiver.LocalDescription())
}

func waitGathered(done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-time.After(connectTimeout):
		return errors.New("ICE gathering timed out")
	}
}

// film packetizes camera frames at the given rate and writes them to the
// sender track.
func (s *Session) film(ctx context.Context, camera *testutil.ShakyCamera, fps int) {
	defer s.wg.Done()

	codec := vsinterceptor.LumaCodec()
	packetizer := rtp.NewPacketizer(senderMTU, uint8(codec.PayloadType), 0,
		vsinterceptor.LumaPayloader{}, rtp.NewRandomSequencer(), vsinterceptor.ClockRate)
	samples := uint32(vsinterceptor.ClockRate / fps)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := camera.Next()
		s.mu.Lock()
		s.raw = frame
		s.mu.Unlock()

		for _, pkt := range packetizer.Packetize(vsinterceptor.MarshalLumaFrame(frame), samples) {
			if err := s.track.WriteRTP(pkt); err != nil {
				s.log.Warn("write failed", "error", err)
				return
			}
		}
		s.framesSent.Add(1)
	}
}

// readFeedback drains sender RTCP so the interceptors keep running, and
// counts the keyframe requests of the stabilizer.
func (s *Session) readFeedback(sender *webrtc.RTPSender) {
	defer s.wg.Done()
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range pkts {
			if _, ok := p.(*rtcp.PictureLossIndication); ok {
				s.plisReceived.Add(1)
			}
		}
	}
}

// readStable reassembles the stabilized frames the application receives.
func (s *Session) readStable(track *webrtc.TrackRemote) {
	defer s.wg.Done()
	assembler := vsinterceptor.NewFrameAssembler()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			s.log.Debug("track read ended", "error", err)
			return
		}
		frame, complete, err := assembler.Push(pkt)
		if err != nil {
			s.log.Debug("stabilized frame incomplete", "error", err)
		}
		if !complete {
			continue
		}
		s.mu.Lock()
		s.stable = frame.Image
		s.mu.Unlock()
		s.framesReceived.Add(1)
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Frame returns the latest raw or stabilized frame, or nil before the first
// one arrived.
func (s *Session) Frame(stable bool) *image.Gray {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stable {
		return s.stable
	}
	return s.raw
}

// Configure replaces the stabilizer configuration of the receiver.
func (s *Session) Configure(config vstab.Config) error {
	si := s.stab.Load()
	if si == nil {
		return ErrSessionClosed
	}
	return si.SetConfig(config)
}

// Config returns the receiver's stabilizer configuration.
func (s *Session) Config() vstab.Config {
	if si := s.stab.Load(); si != nil {
		return si.Config()
	}
	return vstab.DefaultConfig()
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	st := SessionStats{
		ID:    s.id,
		State: s.state.String(),
		SSRC:  s.ssrc,
	}
	s.mu.Unlock()

	st.FramesSent = s.framesSent.Load()
	st.FramesReceived = s.framesReceived.Load()
	st.PLIsReceived = s.plisReceived.Load()

	si := s.stab.Load()
	if si == nil {
		return st
	}
	st.FrameDelay = si.Config().SmoothingFrames + 1
	if ss, ok := si.Stats(st.SSRC); ok {
		st.PacketsIn = ss.PacketsIn
		st.PacketsOut = ss.PacketsOut
		st.FramesLost = ss.FramesLost
		st.PLIsSent = ss.PLIsSent
		st.FramesIn = ss.Stabilizer.FramesIn
		st.FramesOut = ss.Stabilizer.FramesOut
		st.TrackingMisses = ss.Stabilizer.TrackingMisses
		st.FrameRate = ss.Stabilizer.FrameRate
		st.ProcessingMs = float64(ss.Stabilizer.ProcessingTime) / float64(time.Millisecond)
	}
	return st
}

// Close stops filming and closes both peers.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		err = s.closePeers()
		s.wg.Wait()
		s.log.Info("session closed")
	})
	return err
}

func (s *Session) closePeers() error {
	return errors.Join(s.sender.Close(), s.receiver.Close())
}
