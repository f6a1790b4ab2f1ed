package vstab

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MinimumFieldSize is the smallest grid a WarpField can have. It is also
// the resolution of the identity entries that seed a fresh trajectory.
var MinimumFieldSize = image.Pt(2, 2)

// WarpField is a dense grid of content displacements.
//
// Node (i, j) sits at the normalized frame position (i/(cols-1), j/(rows-1))
// and holds the displacement, in frame pixels, of the content found there.
// Warping a frame through a field samples dst(p) = src(p - D(p)), where D
// is the bilinear interpolation of the grid. The zero field is the identity.
//
// The algebra methods mutate the receiver. Operands must have the same
// Size(); a mismatch is a programming error and panics.
type WarpField struct {
	size image.Point
	data []float64 // interleaved dx, dy; row-major
}

// NewWarpField returns an identity field with the given grid size.
// Panics if either dimension is below MinimumFieldSize.
func NewWarpField(size image.Point) WarpField {
	if size.X < MinimumFieldSize.X || size.Y < MinimumFieldSize.Y {
		panic(fmt.Sprintf("vstab: warp field size %v below minimum %v", size, MinimumFieldSize))
	}
	return WarpField{size: size, data: make([]float64, 2*size.X*size.Y)}
}

// IdentityField returns a field that leaves frames unchanged.
func IdentityField(size image.Point) WarpField { return NewWarpField(size) }

// ZeroField returns a field describing no motion. For displacement fields
// this is the same as the identity.
func ZeroField(size image.Point) WarpField { return NewWarpField(size) }

// Size returns the grid dimensions (columns, rows).
func (f WarpField) Size() image.Point { return f.size }

// Empty reports whether f was never initialized.
func (f WarpField) Empty() bool { return f.data == nil }

// At returns the displacement stored at node (col, row).
func (f WarpField) At(col, row int) Point {
	i := f.index(col, row)
	return Point{f.data[i], f.data[i+1]}
}

// Set stores the displacement of node (col, row).
func (f *WarpField) Set(col, row int, p Point) {
	i := f.index(col, row)
	f.data[i], f.data[i+1] = p.X, p.Y
}

func (f WarpField) index(col, row int) int {
	if col < 0 || col >= f.size.X || row < 0 || row >= f.size.Y {
		panic("vstab: warp field node out of range")
	}
	return 2 * (row*f.size.X + col)
}

// SetIdentity resets every node to zero displacement.
func (f *WarpField) SetIdentity() { clear(f.data) }

// IsIdentity reports whether no node is displaced by more than tol pixels
// along either axis.
func (f WarpField) IsIdentity(tol float64) bool {
	for _, v := range f.data {
		if math.Abs(v) > tol {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of f.
func (f WarpField) Clone() WarpField {
	return WarpField{size: f.size, data: append([]float64(nil), f.data...)}
}

func (f WarpField) mustMatch(o WarpField) {
	if f.size != o.size {
		panic(fmt.Sprintf("vstab: warp field size mismatch %v != %v", f.size, o.size))
	}
}

// Add sets f = f + o.
func (f *WarpField) Add(o WarpField) {
	f.mustMatch(o)
	floats.Add(f.data, o.data)
}

// Sub sets f = f - o.
func (f *WarpField) Sub(o WarpField) {
	f.mustMatch(o)
	floats.Sub(f.data, o.data)
}

// Scale sets f = k * f.
func (f *WarpField) Scale(k float64) { floats.Scale(k, f.data) }

// Blend accumulates a weighted contribution: f = f + weight * o.
func (f *WarpField) Blend(o WarpField, weight float64) {
	f.mustMatch(o)
	floats.AddScaled(f.data, weight, o.data)
}

// Clamp limits every node to |dx| <= limit.X and |dy| <= limit.Y.
func (f *WarpField) Clamp(limit Point) {
	lx, ly := math.Abs(limit.X), math.Abs(limit.Y)
	for i := 0; i < len(f.data); i += 2 {
		f.data[i] = clampFloat(f.data[i], -lx, lx)
		f.data[i+1] = clampFloat(f.data[i+1], -ly, ly)
	}
}

// MaxDisplacement returns the largest absolute displacement along each axis.
func (f WarpField) MaxDisplacement() Point {
	var m Point
	for i := 0; i < len(f.data); i += 2 {
		m.X = math.Max(m.X, math.Abs(f.data[i]))
		m.Y = math.Max(m.Y, math.Abs(f.data[i+1]))
	}
	return m
}

// Mean returns the average displacement over all nodes.
func (f WarpField) Mean() Point {
	var m Point
	n := float64(f.size.X * f.size.Y)
	if n == 0 {
		return m
	}
	for i := 0; i < len(f.data); i += 2 {
		m.X += f.data[i]
		m.Y += f.data[i+1]
	}
	return Point{m.X / n, m.Y / n}
}

// sampleGrid bilinearly interpolates the grid at fractional node
// coordinates (u, v).
func (f WarpField) sampleGrid(u, v float64) Point {
	c := locate(u, v, f.size.X, f.size.Y)
	a := f.At(c.x0, c.y0)
	b := f.At(c.x1, c.y0)
	d := f.At(c.x0, c.y1)
	e := f.At(c.x1, c.y1)
	w00 := (1 - c.fx) * (1 - c.fy)
	w10 := c.fx * (1 - c.fy)
	w01 := (1 - c.fx) * c.fy
	w11 := c.fx * c.fy
	return Point{
		X: a.X*w00 + b.X*w10 + d.X*w01 + e.X*w11,
		Y: a.Y*w00 + b.Y*w10 + d.Y*w01 + e.Y*w11,
	}
}

// gridScale converts a pixel coordinate into a fractional node coordinate.
func gridScale(nodes, pixels int) float64 {
	if pixels <= 1 {
		return 0
	}
	return float64(nodes-1) / float64(pixels-1)
}

// nodePosition returns the pixel position of node (col, row) in a frame.
func (f WarpField) nodePosition(col, row int, frame image.Point) Point {
	return Point{
		X: float64(col) / float64(f.size.X-1) * float64(frame.X-1),
		Y: float64(row) / float64(f.size.Y-1) * float64(frame.Y-1),
	}
}

// Displacement returns the interpolated displacement at pixel p of a frame
// of the given size.
func (f WarpField) Displacement(p Point, frame image.Point) Point {
	return f.sampleGrid(p.X*gridScale(f.size.X, frame.X), p.Y*gridScale(f.size.Y, frame.Y))
}

// Resize resamples the grid to a new resolution. The displacement at any
// normalized frame position is preserved up to interpolation error.
func (f *WarpField) Resize(size image.Point) {
	if size == f.size {
		return
	}
	out := NewWarpField(size)
	su := gridScale(f.size.X, size.X)
	sv := gridScale(f.size.Y, size.Y)
	for row := 0; row < size.Y; row++ {
		for col := 0; col < size.X; col++ {
			out.Set(col, row, f.sampleGrid(float64(col)*su, float64(row)*sv))
		}
	}
	*f = out
}

// Warp resamples src through f into dst and returns the image written.
// dst is reallocated when nil or when its type or bounds differ from src.
func (f WarpField) Warp(src, dst image.Image) image.Image {
	src = sampleable(src)
	dst = matchImage(src, dst)
	if f.IsIdentity(0) {
		copyPixels(dst, src)
		return dst
	}
	frame := src.Bounds().Size()
	su := gridScale(f.size.X, frame.X)
	sv := gridScale(f.size.Y, frame.Y)
	remap(dst, src, func(x, y float64) (float64, float64) {
		d := f.sampleGrid(x*su, y*sv)
		return x - d.X, y - d.Y
	})
	return dst
}

// FieldFromHomography samples the content displacement of h on a grid of
// the given resolution: D(p) = p - H⁻¹(p). A singular h yields the
// identity field.
func FieldFromHomography(h Homography, frame, resolution image.Point) WarpField {
	f := NewWarpField(resolution)
	inv, ok := h.Inverse()
	if !ok {
		return f
	}
	for row := 0; row < resolution.Y; row++ {
		for col := 0; col < resolution.X; col++ {
			q := f.nodePosition(col, row, frame)
			f.Set(col, row, q.Sub(inv.Apply(q)))
		}
	}
	return f
}

// CropField returns the field that scales region up to fill the whole
// frame. Composing it with a correction by addition crops and corrects in
// a single resampling pass.
func CropField(frame image.Point, region image.Rectangle, resolution image.Point) WarpField {
	f := NewWarpField(resolution)
	sx := float64(region.Dx()-1) / math.Max(float64(frame.X-1), 1)
	sy := float64(region.Dy()-1) / math.Max(float64(frame.Y-1), 1)
	origin := Point{float64(region.Min.X), float64(region.Min.Y)}
	for row := 0; row < resolution.Y; row++ {
		for col := 0; col < resolution.X; col++ {
			q := f.nodePosition(col, row, frame)
			src := origin.Add(Point{q.X * sx, q.Y * sy})
			f.Set(col, row, q.Sub(src))
		}
	}
	return f
}
