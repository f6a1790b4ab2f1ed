// Package testutil provides scene, camera path and browser helpers for
// testing the vstab packages.
//
// Note: This package does not import vstab, so in-package vstab tests can
// use it alongside external tests without an import cycle.
package testutil

import (
	"image"
	"math/rand/v2"

	xdraw "golang.org/x/image/draw"
)

// NoiseScene returns a w x h image of blocky random texture. Blocks of
// 2x2 pixels keep the texture trackable after moderate downscaling.
// The same seed always yields the same scene.
func NoiseScene(w, h int, seed uint64) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, 0x5ce7e))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			v := uint8(rng.IntN(256))
			for dy := 0; dy < 2 && y+dy < h; dy++ {
				for dx := 0; dx < 2 && x+dx < w; dx++ {
					img.Pix[(y+dy)*img.Stride+x+dx] = v
				}
			}
		}
	}
	return img
}

// View copies the size-sized window of scene whose top-left corner is at
// origin. The window is clamped inside the scene.
func View(scene *image.Gray, size, origin image.Point) *image.Gray {
	b := scene.Bounds()
	origin.X = min(max(origin.X, b.Min.X), b.Max.X-size.X)
	origin.Y = min(max(origin.Y, b.Min.Y), b.Max.Y-size.Y)

	out := image.NewGray(image.Rectangle{Max: size})
	xdraw.Copy(out, image.Point{}, scene, image.Rectangle{Min: origin, Max: origin.Add(size)}, xdraw.Src, nil)
	return out
}

// Render films scene along a camera path: frame k is the view at
// origin+path[k].
func Render(scene *image.Gray, size, origin image.Point, path []image.Point) []*image.Gray {
	frames := make([]*image.Gray, len(path))
	for k, p := range path {
		frames[k] = View(scene, size, origin.Add(p))
	}
	return frames
}

// Colorize converts a grayscale frame to RGBA with a tint, for exercising
// colour inputs.
func Colorize(g *image.Gray) *image.RGBA {
	out := image.NewRGBA(g.Rect)
	for y := g.Rect.Min.Y; y < g.Rect.Max.Y; y++ {
		for x := g.Rect.Min.X; x < g.Rect.Max.X; x++ {
			v := g.GrayAt(x, y).Y
			i := out.PixOffset(x, y)
			out.Pix[i+0] = v
			out.Pix[i+1] = v / 2
			out.Pix[i+2] = 255 - v
			out.Pix[i+3] = 255
		}
	}
	return out
}
