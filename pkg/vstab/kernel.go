package vstab

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// GaussianKernel returns size weights of a Gaussian centred on the middle
// slot with σ = size/6, normalized to sum to 1. The kernel is symmetric, so
// smoothing a linear path with it leaves the centre sample unchanged.
//
// Panics if size is not a positive odd number.
func GaussianKernel(size int) []float64 {
	if size < 1 || size%2 == 0 {
		panic("vstab: kernel size must be positive and odd")
	}
	g := distuv.Normal{Mu: 0, Sigma: float64(size) / 6}
	centre := size / 2
	k := make([]float64, size)
	for i := range k {
		k[i] = g.Prob(float64(i - centre))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}
