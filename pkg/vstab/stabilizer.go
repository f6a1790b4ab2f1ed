package vstab

import (
	"image"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/thesyncim/vstab/pkg/vstab/internal"
)

// processingHistory is the number of Process timings kept for Stats.
const processingHistory = 64

// Stats is a snapshot of Stabilizer activity.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64

	// TrackingMisses counts frames for which the tracker reported no
	// motion and a zero field was used instead.
	TrackingMisses uint64

	// FrameRate is the measured input rate in frames per second, valid
	// when FrameRateOK is true.
	FrameRate   float64
	FrameRateOK bool

	// ProcessingTime is the mean duration of recent Process calls and
	// ProcessingJitter their mean absolute deviation.
	ProcessingTime   time.Duration
	ProcessingJitter time.Duration
}

// Stabilizer is the per-stream stabilization pipeline. It converts frames
// for the tracker, feeds the tracked motion to a PathStabilizer and returns
// the delay-compensated output. With StabilizeOutput disabled frames are
// only delayed, so latency does not depend on the mode.
//
// Stabilizer is not safe for concurrent use.
type Stabilizer struct {
	config  Config
	tracker Tracker
	path    *PathStabilizer

	passthrough *internal.Ring[Frame]
	gray        *image.Gray
	cropScratch image.Image

	clock     internal.Clock
	stopwatch *internal.Stopwatch
	rate      *RateStats

	framesIn, framesOut, misses uint64
}

// NewStabilizer creates a stabilizer. A nil tracker selects a GridTracker
// with default settings and a nil clock the monotonic clock.
func NewStabilizer(config Config, tracker Tracker, clock internal.Clock) (*Stabilizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = NewGridTracker(DefaultGridTrackerConfig())
	}
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	path, err := NewPathStabilizer(config.Path())
	if err != nil {
		return nil, err
	}
	tracker.Configure(config.Motion)
	return &Stabilizer{
		config:      config,
		tracker:     tracker,
		path:        path,
		passthrough: internal.NewRing[Frame](path.FrameDelay() + 1),
		clock:       clock,
		stopwatch:   internal.NewStopwatch(clock, processingHistory),
		rate:        NewRateStats(DefaultRateStatsConfig()),
	}, nil
}

// Configure applies a new configuration.
//
// Disabling stabilization resets the tracker and the path immediately, so
// re-enabling it later starts from a fresh trajectory. Enabling it drops
// the frames waiting in the pass-through queue.
func (s *Stabilizer) Configure(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := s.path.Configure(config.Path()); err != nil {
		return err
	}
	s.tracker.Configure(config.Motion)
	s.passthrough.Resize(s.path.FrameDelay() + 1)

	switch {
	case s.config.StabilizeOutput && !config.StabilizeOutput:
		s.tracker.Restart()
		s.path.Restart()
	case !s.config.StabilizeOutput && config.StabilizeOutput:
		s.passthrough.Clear()
	}
	s.config = config
	return nil
}

// Process consumes one frame and returns the next output frame, if any.
// Ownership rules are those of PathStabilizer.Advance. Panics if frame is
// empty.
func (s *Stabilizer) Process(frame Frame) (Frame, bool) {
	if frame.Empty() {
		panic("vstab: empty frame")
	}
	s.stopwatch.Start()
	defer s.stopwatch.Stop()

	s.framesIn++
	s.rate.Update(s.clock.Now())

	var (
		out Frame
		ok  bool
	)
	if s.config.StabilizeOutput {
		out, ok = s.stabilize(frame)
	} else {
		out, ok = s.delay(frame)
	}
	if ok {
		s.framesOut++
	}
	return out, ok
}

func (s *Stabilizer) stabilize(frame Frame) (Frame, bool) {
	s.gray = grayscale(frame.Image, s.gray)
	motion, ok := s.tracker.Track(s.gray)
	if !ok {
		s.misses++
		motion = ZeroField(s.config.Motion.Resolution)
	}
	return s.path.advance(frame, motion, s.config.CropToStableRegion)
}

func (s *Stabilizer) delay(frame Frame) (Frame, bool) {
	s.passthrough.Push(frame)
	if !s.passthrough.IsFull() {
		return Frame{}, false
	}
	out, _ := s.passthrough.Pop()
	if s.config.CropToStableRegion {
		s.crop(&out)
	}
	return out, true
}

// crop scales the stable region of f up to its full size, swapping pixel
// buffers with the crop scratch image.
func (s *Stabilizer) crop(f *Frame) {
	src := sampleable(f.Image)
	dst := matchImage(src, s.cropScratch)
	b := src.Bounds()
	region := stableRegion(b.Size(), s.config.CorrectionMargin).Add(b.Min)
	xdraw.ApproxBiLinear.Scale(dst.(xdraw.Image), b, src, region, xdraw.Src, nil)
	f.Image, s.cropScratch = dst, f.Image
}

// Restart drops all buffered frames and tracking state.
func (s *Stabilizer) Restart() {
	s.passthrough.Clear()
	s.tracker.Restart()
	s.path.Restart()
	s.rate.Reset()
	s.stopwatch.Reset()
}

// Ready reports whether the next Process call will emit a frame.
func (s *Stabilizer) Ready() bool {
	if s.config.StabilizeOutput {
		return s.path.Ready()
	}
	return s.passthrough.Len() >= s.passthrough.Cap()-1
}

// FrameDelay returns the number of frames buffered before output starts.
func (s *Stabilizer) FrameDelay() int { return s.path.FrameDelay() }

// StableRegion returns the margin rectangle of the last stabilized frame.
func (s *Stabilizer) StableRegion() image.Rectangle { return s.path.StableRegion() }

// Position returns the raw trajectory position at the window centre.
func (s *Stabilizer) Position() WarpField { return s.path.Position() }

// Correction returns the correction applied to the last stabilized frame.
func (s *Stabilizer) Correction() WarpField { return s.path.Correction() }

// Config returns the active configuration.
func (s *Stabilizer) Config() Config { return s.config }

// Stats returns a snapshot of the stabilizer counters.
func (s *Stabilizer) Stats() Stats {
	fps, ok := s.rate.Rate(s.clock.Now())
	return Stats{
		FramesIn:         s.framesIn,
		FramesOut:        s.framesOut,
		TrackingMisses:   s.misses,
		FrameRate:        fps,
		FrameRateOK:      ok,
		ProcessingTime:   s.stopwatch.Average(),
		ProcessingJitter: s.stopwatch.Deviation(),
	}
}
