// Package vstab implements delay-compensated trajectory smoothing for
// real-time video stabilization.
//
// Per-frame motion estimates are integrated into a camera trajectory, the
// trajectory is smoothed with a centred Gaussian window, and each buffered
// frame is warped by the bounded difference between the smoothed and the
// measured path. Slow pans survive; high-frequency jitter does not.
package vstab

import (
	"image"
	"time"
)

// Point is a 2D position or displacement in pixels.
type Point struct {
	X, Y float64
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Frame is a video frame travelling through the stabilizer.
//
// Frames are handed over by value but their pixel buffer is not copied:
// once a Frame is passed to Advance or Process the stabilizer owns Image,
// and an emitted Frame belongs to the caller until it is passed back.
type Frame struct {
	// Image holds the pixels. *image.Gray and *image.RGBA are resampled
	// directly; other types are converted to RGBA first.
	Image image.Image

	// Timestamp is the presentation time of the frame.
	Timestamp time.Duration
}

// Size returns the pixel dimensions of the frame.
func (f Frame) Size() image.Point {
	if f.Image == nil {
		return image.Point{}
	}
	return f.Image.Bounds().Size()
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	s := f.Size()
	return s.X <= 0 || s.Y <= 0
}

// MotionConfig is the motion description shared by the tracker and the
// path stabilizer. It is embedded by value in each consumer's config and
// synchronized explicitly by Stabilizer.Configure.
type MotionConfig struct {
	// Resolution is the number of displacement nodes (columns, rows) of the
	// motion WarpFields. Each dimension must be at least 2.
	Resolution image.Point `json:"resolution"`
}

// DefaultMotionConfig returns a 16x9 motion grid.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{Resolution: image.Pt(16, 9)}
}
