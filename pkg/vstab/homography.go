package vstab

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// affineTolerance bounds the projective terms of a matrix still treated as
// affine.
const affineTolerance = 1e-12

// Homography is a 3x3 projective transform in row-major order mapping
// source coordinates to destination coordinates: warping a frame through H
// moves the content at p to H·p.
//
// The arithmetic methods operate on the matrix entries and return new
// values. They are a linear approximation used for smoothing, not a
// composition of transforms; use Mul to compose.
type Homography struct {
	m [9]float64
}

// NewHomography returns the homography with the given row-major entries.
func NewHomography(m [9]float64) Homography { return Homography{m: m} }

// IdentityHomography returns the matrix that maps every point to itself.
func IdentityHomography() Homography {
	return Homography{m: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// ZeroHomography returns the all-zero matrix, the neutral element of Add
// and the starting value of a Blend accumulator.
func ZeroHomography() Homography { return Homography{} }

// FromAffine lifts a 2x3 affine matrix to a homography.
func FromAffine(a f64.Aff3) Homography {
	return Homography{m: [9]float64{a[0], a[1], a[2], a[3], a[4], a[5], 0, 0, 1}}
}

// Elements returns the row-major entries.
func (h Homography) Elements() [9]float64 { return h.m }

// Matrix returns h as a gonum matrix.
func (h Homography) Matrix() *mat.Dense {
	data := h.m
	return mat.NewDense(3, 3, data[:])
}

func fromDense(d mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h.m[3*r+c] = d.At(r, c)
		}
	}
	return h
}

// IsAffine reports whether h has no projective component.
func (h Homography) IsAffine() bool {
	return math.Abs(h.m[6]) < affineTolerance && math.Abs(h.m[7]) < affineTolerance &&
		math.Abs(h.m[8]) > affineTolerance
}

// Aff3 returns the affine part of h normalized by its last entry.
func (h Homography) Aff3() f64.Aff3 {
	w := h.m[8]
	if w == 0 {
		w = 1
	}
	return f64.Aff3{h.m[0] / w, h.m[1] / w, h.m[2] / w, h.m[3] / w, h.m[4] / w, h.m[5] / w}
}

// Apply maps p through h. Points mapped to infinity come back as NaN.
func (h Homography) Apply(p Point) Point {
	w := h.m[6]*p.X + h.m[7]*p.Y + h.m[8]
	if w == 0 {
		return Point{math.NaN(), math.NaN()}
	}
	return Point{
		X: (h.m[0]*p.X + h.m[1]*p.Y + h.m[2]) / w,
		Y: (h.m[3]*p.X + h.m[4]*p.Y + h.m[5]) / w,
	}
}

// ApplyAll maps every point through h.
func (h Homography) ApplyAll(ps []Point) []Point {
	out := make([]Point, len(ps))
	for i, p := range ps {
		out[i] = h.Apply(p)
	}
	return out
}

// Inverse returns h⁻¹, or false when h is singular.
func (h Homography) Inverse() (Homography, bool) {
	var inv mat.Dense
	if err := inv.Inverse(h.Matrix()); err != nil {
		return Homography{}, false
	}
	return fromDense(&inv), true
}

// Mul returns the composition h·o, which applies o first.
func (h Homography) Mul(o Homography) Homography {
	var out mat.Dense
	out.Mul(h.Matrix(), o.Matrix())
	return fromDense(&out)
}

// Add returns h + o entrywise.
func (h Homography) Add(o Homography) Homography {
	for i := range h.m {
		h.m[i] += o.m[i]
	}
	return h
}

// Sub returns h - o entrywise.
func (h Homography) Sub(o Homography) Homography {
	for i := range h.m {
		h.m[i] -= o.m[i]
	}
	return h
}

// Scale returns k·h entrywise.
func (h Homography) Scale(k float64) Homography {
	for i := range h.m {
		h.m[i] *= k
	}
	return h
}

// Div returns h/k entrywise.
func (h Homography) Div(k float64) Homography { return h.Scale(1 / k) }

// Blend returns h + weight·o.
func (h Homography) Blend(o Homography, weight float64) Homography {
	for i := range h.m {
		h.m[i] += weight * o.m[i]
	}
	return h
}

// Field samples h as a WarpField; see FieldFromHomography.
func (h Homography) Field(frame, resolution image.Point) WarpField {
	return FieldFromHomography(h, frame, resolution)
}

// Warp resamples src through h into dst and returns the image written.
// dst is reallocated when nil or when its type or bounds differ from src.
// Destination pixels whose source lies outside src replicate the border
// for projective matrices and are left black for affine ones.
func (h Homography) Warp(src, dst image.Image) image.Image {
	src = sampleable(src)
	dst = matchImage(src, dst)
	inv, ok := h.Inverse()
	if !ok {
		clearPixels(dst)
		return dst
	}
	if h.IsAffine() {
		clearPixels(dst)
		a := h.Aff3()
		// Transform works in absolute coordinates.
		o := src.Bounds().Min
		ox, oy := float64(o.X), float64(o.Y)
		a[2] += ox - (a[0]*ox + a[1]*oy)
		a[5] += oy - (a[3]*ox + a[4]*oy)
		xdraw.BiLinear.Transform(dst.(xdraw.Image), a, src, src.Bounds(), xdraw.Src, nil)
		return dst
	}
	remap(dst, src, func(x, y float64) (float64, float64) {
		p := inv.Apply(Point{x, y})
		return p.X, p.Y
	})
	return dst
}
