package vstab

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// mapping returns the source position sampled for destination pixel (x, y).
// Both positions are relative to the top-left corner of their image.
type mapping func(x, y float64) (sx, sy float64)

// sampleable converts src to a pixel layout the sampler reads directly.
func sampleable(src image.Image) image.Image {
	switch src.(type) {
	case *image.Gray, *image.RGBA:
		return src
	}
	b := src.Bounds()
	rgba := image.NewRGBA(b)
	xdraw.Draw(rgba, b, src, b.Min, xdraw.Src)
	return rgba
}

// matchImage returns dst if it has the same type and bounds as src, or a new
// image that does.
func matchImage(src, dst image.Image) image.Image {
	switch s := src.(type) {
	case *image.Gray:
		if d, ok := dst.(*image.Gray); ok && d.Rect == s.Rect {
			return d
		}
		return image.NewGray(s.Rect)
	case *image.RGBA:
		if d, ok := dst.(*image.RGBA); ok && d.Rect == s.Rect {
			return d
		}
		return image.NewRGBA(s.Rect)
	}
	panic("vstab: unsupported pixel layout")
}

// copyPixels copies src into dst, which must come from matchImage(src, ...).
func copyPixels(dst, src image.Image) {
	switch s := src.(type) {
	case *image.Gray:
		d := dst.(*image.Gray)
		rowBytes := s.Rect.Dx()
		for y := 0; y < s.Rect.Dy(); y++ {
			copy(d.Pix[y*d.Stride:y*d.Stride+rowBytes], s.Pix[y*s.Stride:])
		}
	case *image.RGBA:
		d := dst.(*image.RGBA)
		rowBytes := 4 * s.Rect.Dx()
		for y := 0; y < s.Rect.Dy(); y++ {
			copy(d.Pix[y*d.Stride:y*d.Stride+rowBytes], s.Pix[y*s.Stride:])
		}
	}
}

// clearPixels zeroes every pixel of a Gray or RGBA image.
func clearPixels(img image.Image) {
	switch d := img.(type) {
	case *image.Gray:
		clear(d.Pix)
	case *image.RGBA:
		clear(d.Pix)
	}
}

// remap fills dst by bilinear sampling of src through m. Samples outside
// src replicate its border pixels.
func remap(dst, src image.Image, m mapping) {
	switch s := src.(type) {
	case *image.Gray:
		remapGray(dst.(*image.Gray), s, m)
	case *image.RGBA:
		remapRGBA(dst.(*image.RGBA), s, m)
	default:
		panic("vstab: unsupported pixel layout")
	}
}

func remapGray(dst, src *image.Gray, m mapping) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < dst.Rect.Dy(); y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < dst.Rect.Dx(); x++ {
			sx, sy := m(float64(x), float64(y))
			c := locate(sx, sy, w, h)
			p := src.Pix
			v := float64(p[c.y0*src.Stride+c.x0])*(1-c.fx)*(1-c.fy) +
				float64(p[c.y0*src.Stride+c.x1])*c.fx*(1-c.fy) +
				float64(p[c.y1*src.Stride+c.x0])*(1-c.fx)*c.fy +
				float64(p[c.y1*src.Stride+c.x1])*c.fx*c.fy
			row[x] = uint8(v + 0.5)
		}
	}
}

func remapRGBA(dst, src *image.RGBA, m mapping) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < dst.Rect.Dy(); y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < dst.Rect.Dx(); x++ {
			sx, sy := m(float64(x), float64(y))
			c := locate(sx, sy, w, h)
			i00 := c.y0*src.Stride + 4*c.x0
			i01 := c.y0*src.Stride + 4*c.x1
			i10 := c.y1*src.Stride + 4*c.x0
			i11 := c.y1*src.Stride + 4*c.x1
			for ch := 0; ch < 4; ch++ {
				v := float64(src.Pix[i00+ch])*(1-c.fx)*(1-c.fy) +
					float64(src.Pix[i01+ch])*c.fx*(1-c.fy) +
					float64(src.Pix[i10+ch])*(1-c.fx)*c.fy +
					float64(src.Pix[i11+ch])*c.fx*c.fy
				row[4*x+ch] = uint8(v + 0.5)
			}
		}
	}
}

// cell is the bilinear footprint of a sample position.
type cell struct {
	x0, y0, x1, y1 int
	fx, fy         float64
}

func locate(x, y float64, w, h int) cell {
	x = clampFloat(x, 0, float64(w-1))
	y = clampFloat(y, 0, float64(h-1))
	fx0, fy0 := math.Floor(x), math.Floor(y)
	c := cell{x0: int(fx0), y0: int(fy0), fx: x - fx0, fy: y - fy0}
	c.x1 = min(c.x0+1, w-1)
	c.y1 = min(c.y0+1, h-1)
	return c
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// grayscale converts src into dst, reallocating dst when its bounds differ.
func grayscale(src image.Image, dst *image.Gray) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	if dst == nil || dst.Rect != b {
		dst = image.NewGray(b)
	}
	xdraw.Draw(dst, b, src, b.Min, xdraw.Src)
	return dst
}
