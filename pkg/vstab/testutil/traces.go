package testutil

import (
	"image"
	"math"
	"math/rand/v2"
)

// PanTrace returns count camera positions moving by step per frame.
func PanTrace(count int, step image.Point) []image.Point {
	path := make([]image.Point, count)
	for k := range path {
		path[k] = step.Mul(k)
	}
	return path
}

// ShakyTrace overlays uniform random jitter of up to amplitude pixels on a
// pan. The same seed always yields the same trace.
func ShakyTrace(count int, step image.Point, amplitude int, seed uint64) []image.Point {
	rng := rand.New(rand.NewPCG(seed, 0x7ace))
	path := PanTrace(count, step)
	for k := range path {
		path[k] = path[k].Add(image.Pt(
			rng.IntN(2*amplitude+1)-amplitude,
			rng.IntN(2*amplitude+1)-amplitude,
		))
	}
	return path
}

// ImpulseTrace keeps the camera still except for frame at, which is
// displaced by jump.
func ImpulseTrace(count, at int, jump image.Point) []image.Point {
	path := make([]image.Point, count)
	if at >= 0 && at < count {
		path[at] = jump
	}
	return path
}

// StepTrace moves the camera by jump at frame at and keeps it there.
func StepTrace(count, at int, jump image.Point) []image.Point {
	path := make([]image.Point, count)
	for k := at; k < count; k++ {
		path[k] = jump
	}
	return path
}

// Position is a sub-pixel camera position.
type Position struct {
	X, Y float64
}

// Positions converts an integer path.
func Positions(path []image.Point) []Position {
	out := make([]Position, len(path))
	for k, p := range path {
		out[k] = Position{float64(p.X), float64(p.Y)}
	}
	return out
}

// Integrate accumulates per-frame steps into positions starting at zero.
func Integrate(steps []Position) []Position {
	out := make([]Position, len(steps)+1)
	for k, s := range steps {
		out[k+1] = Position{out[k].X + s.X, out[k].Y + s.Y}
	}
	return out
}

// Jitter is the mean magnitude of the second difference of a path, the
// acceleration that viewers perceive as shake. A steady pan has zero
// jitter. Returns 0 for fewer than three positions.
func Jitter(path []Position) float64 {
	if len(path) < 3 {
		return 0
	}
	var sum float64
	for k := 2; k < len(path); k++ {
		ax := path[k].X - 2*path[k-1].X + path[k-2].X
		ay := path[k].Y - 2*path[k-1].Y + path[k-2].Y
		sum += math.Hypot(ax, ay)
	}
	return sum / float64(len(path)-2)
}
