package interceptor

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	xdraw "golang.org/x/image/draw"

	"github.com/thesyncim/vstab/pkg/vstab"
	"github.com/thesyncim/vstab/pkg/vstab/internal"
)

const (
	// streamTimeout is how long an inactive stream keeps its pipeline.
	// A stream that resumes after being dropped restarts stabilization.
	streamTimeout = 2 * time.Second

	// DefaultMTU bounds the size of re-packetized RTP packets, header
	// included. It stays below Pion's receive MTU so TrackRemote.Read
	// buffers can always hold an output packet.
	DefaultMTU = 1200

	readBufferSize = 1 << 14
)

// configVersion pairs a configuration with a sequence number so stream
// readers can pick up changes without locking.
type configVersion struct {
	config vstab.Config
	seq    uint64
}

// StabilizerInterceptor is a Pion interceptor that stabilizes remote
// video/x-vstab-luma streams. Each stream gets its own vstab.Stabilizer;
// frames are reassembled from RTP, stabilized and re-packetized with their
// original RTP timestamps before the application reads them. Streams with
// other codecs are passed through untouched.
//
// Usage:
//
//	i, err := NewStabilizerInterceptor(WithConfig(vstab.DefaultConfig()))
//	// Add to interceptor registry via StabilizerInterceptorFactory...
type StabilizerInterceptor struct {
	interceptor.NoOp // Embed for interface compliance

	config     atomic.Pointer[configVersion]
	newTracker func() vstab.Tracker
	streams    sync.Map // SSRC (uint32) -> *streamState

	mu          sync.Mutex
	rtcpWriter  interceptor.RTCPWriter
	pliInterval time.Duration
	senderSSRC  uint32
	mtu         uint16
	onFrame     func(ssrc uint32, frame vstab.Frame, stats vstab.Stats)

	clock         internal.Clock
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	// Lifecycle
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	startOnce sync.Once // Ensures cleanup loop starts only once
}

// InterceptorOption is a functional option for configuring StabilizerInterceptor.
type InterceptorOption func(*StabilizerInterceptor)

// WithConfig sets the stabilizer configuration used for every stream.
// Default is vstab.DefaultConfig().
func WithConfig(config vstab.Config) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.config.Store(&configVersion{config: config})
	}
}

// WithTrackerFactory sets the constructor of per-stream motion trackers.
// A nil factory, or one returning nil, selects vstab.GridTracker.
func WithTrackerFactory(fn func() vstab.Tracker) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.newTracker = fn
	}
}

// WithLoggerFactory sets the Pion logger factory.
func WithLoggerFactory(f logging.LoggerFactory) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.loggerFactory = f
	}
}

// WithPLIInterval sets the minimum spacing of Picture Loss Indications per
// stream. Default is 500ms.
func WithPLIInterval(d time.Duration) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.pliInterval = d
	}
}

// WithSenderSSRC sets the sender SSRC written into PLI packets.
func WithSenderSSRC(ssrc uint32) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.senderSSRC = ssrc
	}
}

// WithMTU sets the maximum size of re-packetized RTP packets.
func WithMTU(mtu uint16) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.mtu = mtu
	}
}

// WithOnFrame sets a callback invoked from the reading goroutine for every
// stabilized frame. The frame must not be modified.
func WithOnFrame(fn func(ssrc uint32, frame vstab.Frame, stats vstab.Stats)) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.onFrame = fn
	}
}

// withClock replaces the wall clock, for tests.
func withClock(c internal.Clock) InterceptorOption {
	return func(i *StabilizerInterceptor) {
		i.clock = c
	}
}

// NewStabilizerInterceptor creates a stabilizing interceptor.
//
// Options can be provided to customize behavior:
//   - WithConfig: stabilizer configuration (default vstab.DefaultConfig())
//   - WithPLIInterval: PLI rate limit (default 500ms)
//   - WithMTU: output packet size (default 1200)
func NewStabilizerInterceptor(opts ...InterceptorOption) (*StabilizerInterceptor, error) {
	i := &StabilizerInterceptor{
		closed:      make(chan struct{}),
		pliInterval: DefaultPLISchedulerConfig().Interval,
		mtu:         DefaultMTU,
		clock:       internal.MonotonicClock{},
	}
	i.config.Store(&configVersion{config: vstab.DefaultConfig()})
	for _, opt := range opts {
		opt(i)
	}

	if err := i.config.Load().config.Validate(); err != nil {
		return nil, err
	}
	if i.mtu <= 12+packetHeaderSize {
		return nil, fmt.Errorf("MTU %d cannot hold a luma packet", i.mtu)
	}
	if i.loggerFactory == nil {
		i.loggerFactory = logging.NewDefaultLoggerFactory()
	}
	i.log = i.loggerFactory.NewLogger("vstab")
	return i, nil
}

// Config returns the configuration applied to streams.
func (i *StabilizerInterceptor) Config() vstab.Config {
	return i.config.Load().config
}

// SetConfig changes the configuration of every stream. Readers apply it
// before their next frame.
func (i *StabilizerInterceptor) SetConfig(config vstab.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.config.Store(&configVersion{config: config, seq: i.config.Load().seq + 1})
	return nil
}

// Close shuts down the interceptor and releases resources.
func (i *StabilizerInterceptor) Close() error {
	i.closeOnce.Do(func() { close(i.closed) })
	i.wg.Wait()
	return nil
}

// BindRTCPWriter is called by Pion when the RTCP writer is ready.
// It captures the writer for sending PLI packets.
func (i *StabilizerInterceptor) BindRTCPWriter(writer interceptor.RTCPWriter) interceptor.RTCPWriter {
	i.mu.Lock()
	i.rtcpWriter = writer
	i.mu.Unlock()
	return writer // Pass through unchanged
}

// BindRemoteStream is called by Pion when a new remote stream is detected.
// Luma streams get a stabilizing reader; other streams are returned as is.
func (i *StabilizerInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	if !IsLumaStream(info) {
		return reader
	}

	// Start cleanup loop on first stream (only once)
	i.startOnce.Do(func() {
		i.wg.Add(1)
		go i.cleanupLoop()
	})

	state, err := i.newStream(info)
	if err != nil {
		i.log.Warnf("ssrc %d: stabilization disabled: %v", info.SSRC, err)
		return reader
	}
	i.streams.Store(info.SSRC, state)

	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		for {
			if pkt := state.next(); pkt != nil {
				n, err := pkt.MarshalTo(b)
				if err != nil {
					return 0, nil, err
				}
				// Synthesized packets carry no attributes from the wire.
				return n, make(interceptor.Attributes), nil
			}

			n, attr, err := reader.Read(state.readBuf, a)
			if err != nil {
				return 0, attr, err
			}
			i.processRTP(state, state.readBuf[:n])
		}
	})
}

// UnbindRemoteStream is called by Pion when a remote stream is removed.
func (i *StabilizerInterceptor) UnbindRemoteStream(info *interceptor.StreamInfo) {
	i.streams.Delete(info.SSRC)
}

// Stats returns the latest snapshot of a stream.
func (i *StabilizerInterceptor) Stats(ssrc uint32) (StreamStats, bool) {
	v, ok := i.streams.Load(ssrc)
	if !ok {
		return StreamStats{}, false
	}
	s := v.(*streamState).stats.Load()
	if s == nil {
		return StreamStats{SSRC: ssrc}, true
	}
	return *s, true
}

// Streams returns the SSRCs of the streams being stabilized.
func (i *StabilizerInterceptor) Streams() []uint32 {
	var ssrcs []uint32
	i.streams.Range(func(key, _ any) bool {
		ssrcs = append(ssrcs, key.(uint32))
		return true
	})
	return ssrcs
}

func (i *StabilizerInterceptor) newStream(info *interceptor.StreamInfo) (*streamState, error) {
	cv := i.config.Load()

	var tracker vstab.Tracker
	if i.newTracker != nil {
		tracker = i.newTracker()
	}
	stab, err := vstab.NewStabilizer(cv.config, tracker, i.clock)
	if err != nil {
		return nil, err
	}

	state := newStreamState(info.SSRC, i.clock.Now())
	state.readBuf = make([]byte, readBufferSize)
	state.stabilizer = stab
	state.configSeq = cv.seq
	state.packetizer = rtp.NewPacketizer(i.mtu, info.PayloadType, info.SSRC,
		LumaPayloader{}, rtp.NewRandomSequencer(), ClockRate)
	pli := DefaultPLISchedulerConfig()
	pli.Interval = i.pliInterval
	pli.SenderSSRC = i.senderSSRC
	state.pli = NewPLIScheduler(pli, info.SSRC)
	state.publish()
	return state, nil
}

// processRTP feeds one incoming packet through the stream pipeline and
// queues any stabilized output.
func (i *StabilizerInterceptor) processRTP(state *streamState, raw []byte) {
	pkt := getPacket()
	defer putPacket(pkt)
	if err := pkt.Unmarshal(raw); err != nil {
		i.log.Debugf("ssrc %d: dropping malformed RTP: %v", state.ssrc, err)
		return
	}

	now := i.clock.Now()
	state.packetsIn++
	state.UpdateLastPacket(now)

	if _, loaded := i.streams.LoadOrStore(state.ssrc, state); !loaded {
		i.log.Debugf("ssrc %d: stream resumed, restarting", state.ssrc)
		state.assembler.Reset()
		state.unwrapper.Reset()
		state.stabilizer.Restart()
	}
	i.applyConfig(state)

	frame, complete, err := state.assembler.Push(pkt)
	if err != nil {
		i.log.Debugf("ssrc %d: %v", state.ssrc, err)
		i.requestKeyframe(state, now)
	}
	if !complete {
		if err != nil {
			state.publish()
		}
		return
	}

	ts := state.unwrapper.Unwrap(frame.Timestamp)
	out, ok := state.stabilizer.Process(vstab.Frame{
		Image:     frame.Image,
		Timestamp: RTPToDuration(ts),
	})
	if ok {
		i.emit(state, out)
	}
	state.publish()

	if ok && i.onFrame != nil {
		i.onFrame(state.ssrc, out, state.stabilizer.Stats())
	}
}

func (i *StabilizerInterceptor) applyConfig(state *streamState) {
	cv := i.config.Load()
	if cv.seq == state.configSeq {
		return
	}
	state.configSeq = cv.seq
	if err := state.stabilizer.Configure(cv.config); err != nil {
		i.log.Warnf("ssrc %d: keeping previous configuration: %v", state.ssrc, err)
	}
}

// emit re-packetizes a stabilized frame with its original RTP timestamp.
func (i *StabilizerInterceptor) emit(state *streamState, out vstab.Frame) {
	ts := uint32(DurationToRTP(out.Timestamp))
	pkts := state.packetizer.Packetize(MarshalLumaFrame(lumaOf(out.Image)), 0)
	for _, p := range pkts {
		p.Timestamp = ts
	}
	state.pending = append(state.pending, pkts...)
	state.packetsOut += uint64(len(pkts))
}

// requestKeyframe sends a rate-limited PLI for the stream.
func (i *StabilizerInterceptor) requestKeyframe(state *streamState, now time.Time) {
	i.mu.Lock()
	writer := i.rtcpWriter
	i.mu.Unlock()
	if writer == nil {
		return // Not bound yet, skip
	}

	data, send, err := state.pli.MaybeBuildPLI(now)
	if err != nil || !send {
		return
	}
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		return // Should never happen with our own PLI bytes
	}
	if _, err := writer.Write(pkts, nil); err != nil {
		i.log.Warnf("ssrc %d: failed to send PLI: %v", state.ssrc, err)
		return
	}
	state.plisSent++
}

// lumaOf returns img as an origin-based grayscale image, converting when
// necessary.
func lumaOf(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(g, g.Rect, img, b.Min, xdraw.Src)
	return g
}

// cleanupLoop runs periodically to remove inactive streams.
func (i *StabilizerInterceptor) cleanupLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(time.Second) // Check every second
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case <-ticker.C:
			i.cleanupInactiveStreams(i.clock.Now())
		}
	}
}

// cleanupInactiveStreams removes streams that haven't received packets
// for longer than streamTimeout.
func (i *StabilizerInterceptor) cleanupInactiveStreams(now time.Time) {
	i.streams.Range(func(key, value any) bool {
		state := value.(*streamState)
		if now.Sub(state.LastPacket()) > streamTimeout {
			i.log.Debugf("ssrc %d: inactive, dropping", state.ssrc)
			i.streams.Delete(key)
		}
		return true // Continue iteration
	})
}
