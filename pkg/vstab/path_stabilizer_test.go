package vstab

import (
	"image"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var testMotionRes = image.Pt(4, 3)

func pathConfig(n int, margin float64) PathConfig {
	return PathConfig{
		Motion:           MotionConfig{Resolution: testMotionRes},
		SmoothingFrames:  n,
		CorrectionMargin: margin,
	}
}

// patternFrame returns a gray frame whose content depends on index and
// whose timestamp is index, so emitted frames can be traced back.
func patternFrame(w, h, index int) Frame {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8((x*7 + y*13 + index*31) % 251)
		}
	}
	return Frame{Image: img, Timestamp: time.Duration(index)}
}

func newPath(t *testing.T, config PathConfig) *PathStabilizer {
	t.Helper()
	p, err := NewPathStabilizer(config)
	require.NoError(t, err)
	return p
}

// =============================================================================
// Latency
// =============================================================================

func TestPathStabilizer_FrameDelay(t *testing.T) {
	for _, n := range []int{2, 4, 6, 20} {
		p := newPath(t, pathConfig(n, 0.1))
		assert.Equal(t, n+1, p.FrameDelay())

		zero := ZeroField(testMotionRes)
		for i := 0; i < p.FrameDelay(); i++ {
			assert.False(t, p.Ready(), "n=%d call %d", n, i)
			_, ok := p.Advance(patternFrame(16, 12, i), zero)
			assert.False(t, ok, "n=%d call %d", n, i)
		}
		assert.True(t, p.Ready())
		out, ok := p.Advance(patternFrame(16, 12, p.FrameDelay()), zero)
		require.True(t, ok, "n=%d", n)
		assert.Equal(t, time.Duration(0), out.Timestamp, "first output is the first input")
		assert.True(t, p.Ready(), "steady state emits on every call")
	}
}

func TestPathStabilizer_InvalidConfig(t *testing.T) {
	_, err := NewPathStabilizer(pathConfig(3, 0.1))
	assert.ErrorIs(t, err, ErrInvalidSmoothingFrames)

	p := newPath(t, pathConfig(2, 0.1))
	assert.ErrorIs(t, p.Configure(pathConfig(2, 1.5)), ErrInvalidMargin)
	assert.Equal(t, 2, p.Config().SmoothingFrames)
}

func TestPathStabilizer_EmptyFramePanics(t *testing.T) {
	p := newPath(t, pathConfig(2, 0.1))
	assert.Panics(t, func() { p.Advance(Frame{}, ZeroField(testMotionRes)) })
}

// =============================================================================
// Smoothing
// =============================================================================

func TestPathStabilizer_ZeroMotionIsIdentity(t *testing.T) {
	p := newPath(t, pathConfig(4, 0.1))
	var inputs []*image.Gray
	for i := 0; i < 30; i++ {
		f := patternFrame(24, 16, i)
		inputs = append(inputs, clonePix(f.Image.(*image.Gray)))

		out, ok := p.Advance(f, ZeroField(testMotionRes))
		if !ok {
			continue
		}
		k := int(out.Timestamp)
		assert.True(t, p.Correction().IsIdentity(1e-12))
		assert.Equal(t, inputs[k].Pix, out.Image.(*image.Gray).Pix, "frame %d", k)
	}
}

func TestPathStabilizer_ConstantPanIsPreserved(t *testing.T) {
	const n = 4
	p := newPath(t, pathConfig(n, 0.5))
	step := uniformField(testMotionRes, Point{3, -2})

	for i := 0; i < 60; i++ {
		_, ok := p.Advance(patternFrame(32, 24, i), step)
		if !ok || i < 4*n+2 {
			continue
		}
		corr := p.Correction().MaxDisplacement()
		assert.InDelta(t, 0.0, corr.X, 1e-9, "call %d", i)
		assert.InDelta(t, 0.0, corr.Y, 1e-9, "call %d", i)
	}
	assert.Greater(t, p.Position().At(0, 0).X, 100.0, "raw path keeps growing")
}

func TestPathStabilizer_ImpulseAttenuatedByCentreWeight(t *testing.T) {
	const n, d = 4, 4.0
	p := newPath(t, pathConfig(n, 0.5))
	centre := p.Kernel()[n]

	var corrections []float64
	for i := 0; i < 40; i++ {
		motion := ZeroField(testMotionRes)
		if i == 12 {
			motion = uniformField(testMotionRes, Point{d, 0})
		}
		if _, ok := p.Advance(patternFrame(64, 48, i), motion); ok {
			corrections = append(corrections, p.Correction().At(1, 1).X)
		}
	}

	var peak, jump float64
	for i, c := range corrections {
		peak = max(peak, abs(c))
		if i > 0 {
			jump = max(jump, abs(c-corrections[i-1]))
		}
	}
	// The correction peaks at half the rejected jitter on either side of the
	// impulse, so the stabilized step shrinks from d to centre·d.
	assert.InDelta(t, d*(1-centre)/2, peak, 1e-9)
	assert.InDelta(t, d*(1-centre), jump, 1e-9)
	assert.InDelta(t, d*centre, d-jump, 1e-9)
}

func TestPathStabilizer_CorrectionWithinMargin(t *testing.T) {
	p := newPath(t, pathConfig(6, 0.2))
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 80; i++ {
		motion := NewWarpField(testMotionRes)
		for row := 0; row < testMotionRes.Y; row++ {
			for col := 0; col < testMotionRes.X; col++ {
				motion.Set(col, row, Point{rng.NormFloat64() * 30, rng.NormFloat64() * 30})
			}
		}
		if _, ok := p.Advance(patternFrame(64, 48, i), motion); !ok {
			continue
		}
		region := p.StableRegion()
		assert.Equal(t, image.Rect(6, 5, 58, 43), region)
		corr := p.Correction().MaxDisplacement()
		assert.LessOrEqual(t, corr.X, float64(region.Min.X))
		assert.LessOrEqual(t, corr.Y, float64(region.Min.Y))
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func shakySequence(seed uint64, count int) []WarpField {
	rng := rand.New(rand.NewPCG(seed, seed))
	motions := make([]WarpField, count)
	for i := range motions {
		motions[i] = uniformField(testMotionRes, Point{rng.NormFloat64() * 2, rng.NormFloat64() * 2})
	}
	return motions
}

func runPath(p *PathStabilizer, motions []WarpField) [][]byte {
	var outputs [][]byte
	for i, m := range motions {
		if out, ok := p.Advance(patternFrame(32, 24, i), m); ok {
			outputs = append(outputs, out.Image.(*image.Gray).Pix)
		}
	}
	return outputs
}

func TestPathStabilizer_RestartReproducesOutput(t *testing.T) {
	p := newPath(t, pathConfig(4, 0.2))
	motions := shakySequence(42, 40)

	first := runPath(p, motions)
	p.Restart()
	assert.False(t, p.Ready())
	assert.Equal(t, MinimumFieldSize, p.Position().Size())
	second := runPath(p, motions)

	require.Len(t, first, 40-p.FrameDelay())
	assert.Equal(t, first, second)
}

func TestPathStabilizer_ResolutionChangeMidStream(t *testing.T) {
	p := newPath(t, pathConfig(4, 0.5))
	small := uniformField(image.Pt(4, 3), Point{1, 0})
	large := uniformField(image.Pt(8, 6), Point{1, 0})

	var before float64
	for i := 0; i < 20; i++ {
		_, ok := p.Advance(patternFrame(32, 24, i), small)
		require.Equal(t, i >= p.FrameDelay(), ok)
		before = p.Position().At(0, 0).X
	}
	for i := 20; i < 40; i++ {
		_, ok := p.Advance(patternFrame(32, 24, i), large)
		require.True(t, ok, "output continues across the change")
		pos := p.Position()
		require.Equal(t, image.Pt(8, 6), pos.Size())
		if i == 20 {
			assert.InDelta(t, before+1, pos.At(7, 5).X, 1e-9, "path continues")
		}
	}
	assert.True(t, p.Correction().IsIdentity(1e-9), "constant motion again after the change")
}

func TestPathStabilizer_SceneCrop(t *testing.T) {
	p := newPath(t, pathConfig(2, 0.2))
	assert.True(t, p.SceneCrop().IsIdentity(0), "identity before output")

	for i := 0; i < 4; i++ {
		p.Advance(patternFrame(40, 30, i), ZeroField(testMotionRes))
	}
	crop := p.SceneCrop()
	require.Equal(t, testMotionRes, crop.Size())
	assert.InDelta(t, -4.0, crop.At(0, 0).X, 1e-9)
	assert.InDelta(t, -3.0, crop.At(0, 0).Y, 1e-9)
}

func TestPathStabilizer_CropComposesWithCorrection(t *testing.T) {
	p := newPath(t, pathConfig(2, 0.2))
	var inputs []*image.Gray
	for i := 0; i < 8; i++ {
		f := patternFrame(41, 31, i)
		inputs = append(inputs, clonePix(f.Image.(*image.Gray)))
		out, ok := p.advance(f, ZeroField(testMotionRes), true)
		if !ok {
			continue
		}
		src := inputs[int(out.Timestamp)]
		region := p.StableRegion()
		got := out.Image.(*image.Gray)
		assert.Equal(t, src.GrayAt(region.Min.X, region.Min.Y), got.GrayAt(0, 0))
		assert.Equal(t, src.GrayAt(region.Max.X-1, region.Max.Y-1), got.GrayAt(40, 30))
	}
}

func TestPathStabilizer_ReusesScratchBuffer(t *testing.T) {
	p := newPath(t, pathConfig(2, 0.2))
	step := uniformField(testMotionRes, Point{1, 0})
	var frames []*image.Gray
	for i := 0; i < 10; i++ {
		f := patternFrame(16, 12, i)
		frames = append(frames, f.Image.(*image.Gray))
		p.Advance(f, step)
	}
	// Every emitted frame hands its input buffer to the stabilizer, which
	// warps the following frame into it.
	out, ok := p.Advance(patternFrame(16, 12, 10), shakySequence(1, 1)[0])
	require.True(t, ok)
	found := false
	for _, f := range frames {
		if out.Image == image.Image(f) {
			found = true
		}
	}
	assert.True(t, found, "output reuses a previously owned buffer")
}

// =============================================================================
// Reconfiguration
// =============================================================================

// TestPathStabilizer_ResizeKeepsSync checks that after growing or shrinking
// the window every emitted frame is still corrected with its own trajectory
// position, and that output resumes with the expected latency.
func TestPathStabilizer_ResizeKeepsSync(t *testing.T) {
	// position[k] is the camera position of frame k. The motion passed with
	// frame t is the step onto frame t-1.
	position := func(k int) float64 {
		if k < 0 {
			return 0
		}
		return float64(k%5)*1.5 + float64(k)*0.25
	}
	motionFor := func(call int) WarpField {
		return uniformField(testMotionRes, Point{position(call-1) - position(call-2), 0})
	}

	p := newPath(t, pathConfig(2, 0.5))
	call := 0
	lastEmitted := -1
	step := func() (int, bool) {
		out, ok := p.Advance(patternFrame(32, 24, call), motionFor(call))
		call++
		if !ok {
			return 0, false
		}
		k := int(out.Timestamp)
		assert.Greater(t, k, lastEmitted, "frames leave in order")
		assert.Equal(t, call-1-p.FrameDelay(), k, "latency matches frame delay")
		assert.InDelta(t, position(k), p.Position().At(0, 0).X, 1e-9, "frame %d corrected at its own position", k)
		lastEmitted = k
		return k, true
	}

	for i := 0; i < 15; i++ {
		step()
	}
	require.Equal(t, 15-3, lastEmitted+1)

	// Grow 2 -> 6: output pauses for 4 calls, then continues with the next
	// frame.
	require.NoError(t, p.Configure(pathConfig(6, 0.5)))
	assert.Len(t, p.Kernel(), 13)
	next := lastEmitted + 1
	silent := 0
	for {
		k, ok := step()
		if ok {
			assert.Equal(t, next, k, "no frame skipped when growing")
			break
		}
		silent++
	}
	assert.Equal(t, 4, silent)
	for i := 0; i < 20; i++ {
		_, ok := step()
		require.True(t, ok)
	}

	// Shrink 6 -> 4: no pause; two frames are dropped to lower the latency.
	require.NoError(t, p.Configure(pathConfig(4, 0.5)))
	previous := lastEmitted
	k, ok := step()
	require.True(t, ok)
	assert.Equal(t, previous+3, k)
	for i := 0; i < 20; i++ {
		_, ok := step()
		require.True(t, ok)
	}

	// Same window again is a no-op.
	require.NoError(t, p.Configure(pathConfig(4, 0.3)))
	_, ok = step()
	assert.True(t, ok)
}

func clonePix(img *image.Gray) *image.Gray {
	c := image.NewGray(img.Rect)
	copy(c.Pix, img.Pix)
	return c
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
