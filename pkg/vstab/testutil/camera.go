package testutil

import (
	"image"
	"math/rand/v2"
)

// ShakyCamera films a noise scene twice the frame size, panning back and
// forth one pixel per frame while a random hand shake of up to Amplitude
// pixels is added to every frame. It never leaves the scene.
type ShakyCamera struct {
	Amplitude int

	scene *image.Gray
	size  image.Point
	rng   *rand.Rand
	frame int
	last  image.Point
}

// NewShakyCamera creates a camera producing frames of the given size.
func NewShakyCamera(size image.Point, amplitude int, seed uint64) *ShakyCamera {
	return &ShakyCamera{
		Amplitude: amplitude,
		scene:     NoiseScene(2*size.X, 2*size.Y, seed),
		size:      size,
		rng:       rand.New(rand.NewPCG(seed, 1)),
	}
}

// Next renders the next frame.
func (c *ShakyCamera) Next() *image.Gray {
	span := c.size.X / 2
	pan := c.frame % (2 * span)
	if pan > span {
		pan = 2*span - pan
	}
	c.frame++

	a := c.Amplitude
	c.last = image.Pt(
		span/2+pan+c.rng.IntN(2*a+1)-a,
		c.size.Y/2+c.rng.IntN(2*a+1)-a,
	)
	return View(c.scene, c.size, c.last)
}

// Origin returns the scene position of the last frame.
func (c *ShakyCamera) Origin() image.Point { return c.last }

// Frames returns the number of frames rendered.
func (c *ShakyCamera) Frames() int { return c.frame }
