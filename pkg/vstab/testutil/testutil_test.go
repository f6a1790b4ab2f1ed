package testutil

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoiseScene_Deterministic(t *testing.T) {
	a := NoiseScene(30, 20, 1)
	b := NoiseScene(30, 20, 1)
	c := NoiseScene(30, 20, 2)
	assert.Equal(t, a.Pix, b.Pix)
	assert.NotEqual(t, a.Pix, c.Pix)
	assert.Equal(t, a.GrayAt(4, 6), a.GrayAt(5, 7), "2x2 blocks")
}

func TestView_ShiftsContent(t *testing.T) {
	scene := NoiseScene(40, 30, 3)
	v := View(scene, image.Pt(10, 8), image.Pt(5, 4))
	require.Equal(t, image.Rect(0, 0, 10, 8), v.Rect)
	for y := 0; y < 8; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, scene.GrayAt(x+5, y+4), v.GrayAt(x, y))
		}
	}

	clamped := View(scene, image.Pt(10, 8), image.Pt(100, -5))
	assert.Equal(t, scene.GrayAt(30, 0), clamped.GrayAt(0, 0))
}

func TestTraces(t *testing.T) {
	assert.Equal(t, []image.Point{{0, 0}, {2, 1}, {4, 2}}, PanTrace(3, image.Pt(2, 1)))
	assert.Equal(t, []image.Point{{}, {}, {5, 0}, {}}, ImpulseTrace(4, 2, image.Pt(5, 0)))
	assert.Equal(t, []image.Point{{}, {3, 3}, {3, 3}}, StepTrace(3, 1, image.Pt(3, 3)))

	shaky := ShakyTrace(50, image.Pt(1, 0), 3, 9)
	assert.Equal(t, shaky, ShakyTrace(50, image.Pt(1, 0), 3, 9))
	for k, p := range shaky {
		assert.LessOrEqual(t, abs(p.X-k), 3)
		assert.LessOrEqual(t, abs(p.Y), 3)
	}
}

func TestJitter(t *testing.T) {
	assert.Zero(t, Jitter(Positions(PanTrace(20, image.Pt(3, -1)))), "steady pan")
	assert.Zero(t, Jitter(nil))

	// One impulse of 4 gives second differences 4, -8, 4 over 8 samples.
	impulse := Positions(ImpulseTrace(10, 5, image.Pt(4, 0)))
	assert.InDelta(t, 16.0/8, Jitter(impulse), 1e-12)

	steps := []Position{{1, 0}, {1, 0}, {1, 0}}
	assert.Equal(t, []Position{{0, 0}, {1, 0}, {2, 0}, {3, 0}}, Integrate(steps))
}

func TestCompareJitter(t *testing.T) {
	raw := Positions(ShakyTrace(40, image.Pt(1, 0), 4, 5))
	smooth := Positions(PanTrace(40, image.Pt(1, 0)))

	r := CompareJitter(raw, smooth, 5)
	assert.Equal(t, 35, r.ComparedFrames)
	assert.Greater(t, r.Raw, 0.0)
	assert.Zero(t, r.Stabilized)
	assert.Equal(t, 1.0, r.Reduction)

	assert.Equal(t, JitterResult{}, CompareJitter(raw, smooth, 100))
}

func TestLoadTrace(t *testing.T) {
	trace, err := LoadTrace(filepath.Join("testdata", "handheld_walk.json"))
	require.NoError(t, err)
	assert.Equal(t, "handheld_walk", trace.Name)
	require.Len(t, trace.Frames, 72)
	assert.Equal(t, image.Rect(-1, -4, 72, 4), trace.Bounds())

	frames := 0
	trace.Replay(func(index int, frame *image.Gray) {
		assert.Equal(t, frames, index)
		assert.Equal(t, image.Rect(0, 0, 64, 48), frame.Rect)
		frames++
	}, image.Pt(64, 48), 1)
	assert.Equal(t, 72, frames)

	_, err = LoadTrace(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestShakyCamera_StaysInScene(t *testing.T) {
	size := image.Pt(40, 30)
	cam := NewShakyCamera(size, 3, 7)
	prev := image.Point{}
	for k := 0; k < 100; k++ {
		f := cam.Next()
		require.Equal(t, size, f.Rect.Size())

		o := cam.Origin()
		assert.True(t, o.In(image.Rect(0, 0, size.X+1, size.Y+1)), "origin %v leaves the scene", o)
		if k > 0 {
			assert.LessOrEqual(t, abs(o.X-prev.X), 1+2*3)
			assert.LessOrEqual(t, abs(o.Y-prev.Y), 2*3)
		}
		prev = o
	}
	assert.Equal(t, 100, cam.Frames())
}
