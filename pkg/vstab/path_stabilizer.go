package vstab

import (
	"image"
	"math"

	"github.com/thesyncim/vstab/pkg/vstab/internal"
)

// PathStabilizer smooths a camera trajectory and emits delay-compensated,
// corrected frames.
//
// Every Advance integrates one motion sample into the trajectory, a ring of
// 2N+1 cumulative positions, and queues one frame in a ring of N+2. Motion
// lags its frame by one call: the motion passed with frame t is the step
// that moved the camera onto frame t-1. Once both rings are full the oldest
// queued frame is exactly the trajectory centre. Its correction is the
// Gaussian-weighted path position minus the centre, clamped to the stable
// margin, and every further call emits one frame.
//
// PathStabilizer is not safe for concurrent use.
type PathStabilizer struct {
	config PathConfig
	kernel []float64

	trajectory *internal.Ring[WarpField] // entries are never mutated in place
	frames     *internal.Ring[Frame]

	accumulator WarpField
	correction  WarpField
	region      image.Rectangle
	frameSize   image.Point
	scratch     image.Image
}

// NewPathStabilizer creates a path stabilizer with the given configuration.
func NewPathStabilizer(config PathConfig) (*PathStabilizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	p := &PathStabilizer{
		config:     config,
		kernel:     GaussianKernel(2*config.SmoothingFrames + 1),
		trajectory: internal.NewRing[WarpField](2*config.SmoothingFrames + 1),
		frames:     internal.NewRing[Frame](config.SmoothingFrames + 2),
	}
	p.Restart()
	return p, nil
}

// Configure applies a new configuration without losing synchronization.
//
// Shrinking the window drops the oldest trajectory entries and queued
// frames; both rings are trimmed from the same end, so they stay aligned.
// Growing it pads the oldest side of the trajectory with copies of its
// oldest position. The frame queue is not padded: it simply needs more
// frames before it is full again, so output pauses for as many calls as the
// window grew and then resumes in sync.
func (p *PathStabilizer) Configure(config PathConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	window := 2*config.SmoothingFrames + 1
	if window != p.trajectory.Cap() {
		p.trajectory.Resize(window)
		p.frames.Resize(config.SmoothingFrames + 2)
		if p.trajectory.IsEmpty() {
			p.Restart()
		} else {
			p.trajectory.PadFront(p.trajectory.Oldest())
		}
		p.kernel = GaussianKernel(window)
	}
	p.config = config
	return nil
}

// Advance queues frame, integrates motion and, once warmed up, returns the
// corrected frame that left the delay queue. The second result is false
// while the stabilizer is still filling.
//
// Ownership of frame.Image passes to the stabilizer. The returned frame
// owns a pixel buffer previously held by the stabilizer, so callers must
// not retain frames they passed in. An empty motion is treated as no
// motion. Panics if frame is empty.
func (p *PathStabilizer) Advance(frame Frame, motion WarpField) (Frame, bool) {
	return p.advance(frame, motion, false)
}

func (p *PathStabilizer) advance(frame Frame, motion WarpField, crop bool) (Frame, bool) {
	if frame.Empty() {
		panic("vstab: empty frame")
	}
	if motion.Empty() {
		motion = ZeroField(p.trajectory.Newest().Size())
	}
	if motion.Size() != p.trajectory.Newest().Size() {
		p.resizeTrajectory(motion.Size())
	}

	p.frames.Push(frame)
	next := p.trajectory.Newest().Clone()
	next.Add(motion)
	p.trajectory.Push(next)

	if !p.frames.IsFull() || !p.trajectory.IsFull() {
		return Frame{}, false
	}

	size := next.Size()
	if p.accumulator.Size() != size {
		p.accumulator = NewWarpField(size)
	}
	p.accumulator.SetIdentity()
	for i, w := range p.kernel {
		p.accumulator.Blend(p.trajectory.At(i), w)
	}

	out, _ := p.frames.Pop()
	p.frameSize = out.Size()
	p.region = stableRegion(p.frameSize, p.config.CorrectionMargin)

	p.correction = p.accumulator.Clone()
	p.correction.Sub(p.trajectory.Centre(0))
	p.correction.Clamp(Point{float64(p.region.Min.X), float64(p.region.Min.Y)})

	warp := p.correction
	if crop {
		warp = p.correction.Clone()
		warp.Add(CropField(p.frameSize, p.region, size))
	}
	warped := warp.Warp(out.Image, p.scratch)
	out.Image, p.scratch = warped, out.Image
	return out, true
}

func (p *PathStabilizer) resizeTrajectory(size image.Point) {
	for i := 0; i < p.trajectory.Len(); i++ {
		e := p.trajectory.At(i)
		e.Resize(size)
		p.trajectory.Set(i, e)
	}
	p.accumulator = NewWarpField(size)
}

// stableRegion insets a frame by half the margin fraction on every side.
func stableRegion(size image.Point, margin float64) image.Rectangle {
	ix := int(math.Round(float64(size.X) * margin / 2))
	iy := int(math.Round(float64(size.Y) * margin / 2))
	return image.Rect(ix, iy, size.X-ix, size.Y-iy)
}

// Ready reports whether the next Advance will emit a frame. It stays true
// from the end of warm-up until a restart or a window change.
func (p *PathStabilizer) Ready() bool {
	return p.trajectory.IsFull() && p.frames.Len() >= p.frames.Cap()-1
}

// Restart drops all queued frames and resets the trajectory to identity.
func (p *PathStabilizer) Restart() {
	p.frames.Clear()
	p.trajectory.Clear()
	p.trajectory.PadFront(IdentityField(MinimumFieldSize))
	p.accumulator = WarpField{}
	p.correction = IdentityField(MinimumFieldSize)
	p.region = image.Rectangle{}
	p.frameSize = image.Point{}
}

// FrameDelay returns how many calls to Advance return no frame before the
// first corrected frame, which is SmoothingFrames+1.
func (p *PathStabilizer) FrameDelay() int {
	return p.frames.Cap() - 1
}

// StableRegion returns the margin rectangle of the last emitted frame.
func (p *PathStabilizer) StableRegion() image.Rectangle { return p.region }

// Position returns the raw trajectory position at the window centre.
func (p *PathStabilizer) Position() WarpField {
	return p.trajectory.Centre(0).Clone()
}

// Correction returns the clamped correction applied to the last emitted
// frame.
func (p *PathStabilizer) Correction() WarpField { return p.correction.Clone() }

// SceneCrop returns the field that crops the last emitted frame to its
// stable region, at the trajectory resolution. It is the identity before
// the first frame is emitted.
func (p *PathStabilizer) SceneCrop() WarpField {
	size := p.trajectory.Newest().Size()
	if p.frameSize == (image.Point{}) {
		return IdentityField(size)
	}
	return CropField(p.frameSize, p.region, size)
}

// Kernel returns a copy of the smoothing weights.
func (p *PathStabilizer) Kernel() []float64 {
	return append([]float64(nil), p.kernel...)
}

// Config returns the active configuration.
func (p *PathStabilizer) Config() PathConfig { return p.config }
