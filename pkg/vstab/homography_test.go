package vstab

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f64"
)

func assertHomographyInDelta(t *testing.T, want, got Homography, delta float64) {
	t.Helper()
	w, g := want.Elements(), got.Elements()
	for i := range w {
		assert.InDelta(t, w[i], g[i], delta, "entry %d", i)
	}
}

func TestHomography_IdentityApply(t *testing.T) {
	h := IdentityHomography()
	p := Point{12.5, -3}
	assert.Equal(t, p, h.Apply(p))
	assert.True(t, h.IsAffine())
}

func TestHomography_ApplyProjective(t *testing.T) {
	h := NewHomography([9]float64{2, 0, 1, 0, 1, 0, 0.5, 0, 1})
	got := h.Apply(Point{2, 3})
	// w = 0.5*2 + 1 = 2
	assert.InDelta(t, 2.5, got.X, 1e-12)
	assert.InDelta(t, 1.5, got.Y, 1e-12)
	assert.False(t, h.IsAffine())

	pts := h.ApplyAll([]Point{{0, 0}, {2, 3}})
	require.Len(t, pts, 2)
	assert.Equal(t, Point{1, 0}, pts[0])
}

func TestHomography_ApplyAtInfinity(t *testing.T) {
	h := NewHomography([9]float64{1, 0, 0, 0, 1, 0, 1, 0, 0})
	got := h.Apply(Point{0, 1})
	assert.True(t, math.IsNaN(got.X))
}

func TestHomography_InverseAndMul(t *testing.T) {
	h := NewHomography([9]float64{1.1, 0.05, 3, -0.02, 0.95, -7, 1e-4, 2e-4, 1})
	inv, ok := h.Inverse()
	require.True(t, ok)
	assertHomographyInDelta(t, IdentityHomography(), h.Mul(inv), 1e-12)

	p := Point{40, 25}
	back := inv.Apply(h.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)

	_, ok = ZeroHomography().Inverse()
	assert.False(t, ok)
}

func TestHomography_MulAppliesRightOperandFirst(t *testing.T) {
	scale := NewHomography([9]float64{2, 0, 0, 0, 2, 0, 0, 0, 1})
	shift := NewHomography([9]float64{1, 0, 1, 0, 1, 0, 0, 0, 1})
	got := scale.Mul(shift).Apply(Point{1, 1})
	assert.Equal(t, Point{4, 2}, got)
}

func TestHomography_EntrywiseAlgebra(t *testing.T) {
	a := IdentityHomography()
	b := NewHomography([9]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})

	assert.Equal(t, [9]float64{2, 2, 3, 4, 6, 6, 7, 8, 10}, a.Add(b).Elements())
	assert.Equal(t, [9]float64{0, -2, -3, -4, -4, -6, -7, -8, -8}, a.Sub(b).Elements())
	assert.Equal(t, [9]float64{2, 4, 6, 8, 10, 12, 14, 16, 18}, b.Scale(2).Elements())
	assert.Equal(t, [9]float64{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5}, b.Div(2).Elements())

	acc := ZeroHomography().Blend(a, 0.5).Blend(b, 0.5)
	assert.Equal(t, [9]float64{1, 1, 1.5, 2, 3, 3, 3.5, 4, 5}, acc.Elements())

	// Value semantics: operands are unchanged.
	assert.Equal(t, IdentityHomography(), a)
}

func TestHomography_AffineRoundTrip(t *testing.T) {
	a := f64.Aff3{1, 0.2, 3, -0.2, 1, 4}
	h := FromAffine(a)
	assert.True(t, h.IsAffine())
	assert.Equal(t, a, h.Aff3())

	m := h.Matrix()
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 3.0, m.At(0, 2))
}

func TestHomography_WarpAffineTranslation(t *testing.T) {
	src := dotImage(40, 30, image.Pt(10, 10))
	h := NewHomography([9]float64{1, 0, 3, 0, 1, 2, 0, 0, 1})

	out := h.Warp(src, nil).(*image.Gray)
	assert.Equal(t, uint8(255), out.GrayAt(13, 12).Y)
	assert.Equal(t, uint8(0), out.GrayAt(10, 10).Y)
}

func TestHomography_WarpProjective(t *testing.T) {
	src := dotImage(40, 30, image.Pt(10, 10))
	h := NewHomography([9]float64{1, 0, 2, 0, 1, 1, 1e-9, 0, 1})
	require.False(t, h.IsAffine())

	out := h.Warp(src, nil).(*image.Gray)
	assert.Greater(t, out.GrayAt(12, 11).Y, uint8(250))
}

func TestHomography_FieldMatchesWarp(t *testing.T) {
	h := NewHomography([9]float64{1, 0, 3, 0, 1, 2, 0, 0, 1})
	f := h.Field(image.Pt(40, 30), image.Pt(4, 4))
	src := dotImage(40, 30, image.Pt(10, 10))

	fromField := f.Warp(src, nil).(*image.Gray)
	fromMatrix := h.Warp(src, nil).(*image.Gray)
	assert.Equal(t, fromMatrix.GrayAt(13, 12), fromField.GrayAt(13, 12))
}
