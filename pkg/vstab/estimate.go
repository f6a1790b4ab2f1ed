package vstab

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// EstimationMethod selects how EstimateHomography treats outliers.
type EstimationMethod int

const (
	// MethodRANSAC fits minimal random samples and keeps the model with the
	// largest consensus, then refines it on the inliers.
	MethodRANSAC EstimationMethod = iota

	// MethodLeastSquares fits all correspondences at once. It has no
	// outlier rejection.
	MethodLeastSquares
)

// String returns the method name.
func (m EstimationMethod) String() string {
	switch m {
	case MethodRANSAC:
		return "ransac"
	case MethodLeastSquares:
		return "least-squares"
	default:
		return "unknown"
	}
}

// EstimationParams tunes EstimateHomography.
type EstimationParams struct {
	Method EstimationMethod `json:"method"`

	// Confidence is the probability that RANSAC draws at least one
	// outlier-free sample. Drives the adaptive iteration count.
	Confidence float64 `json:"confidence"`

	// ErrorThreshold is the maximum reprojection error, in pixels, of an
	// inlier.
	ErrorThreshold float64 `json:"error_threshold"`

	// MaxIterations caps the number of RANSAC samples.
	MaxIterations int `json:"max_iterations"`

	// RefineIterations caps the inlier re-fitting passes after sampling.
	RefineIterations int `json:"refine_iterations"`
}

// DefaultEstimationParams returns RANSAC with 99% confidence, a 4 pixel
// inlier threshold, 2000 iterations and 10 refinement passes.
func DefaultEstimationParams() EstimationParams {
	return EstimationParams{
		Method:           MethodRANSAC,
		Confidence:       0.99,
		ErrorThreshold:   4,
		MaxIterations:    2000,
		RefineIterations: 10,
	}
}

// ransacSeed makes estimation reproducible for identical inputs.
const ransacSeed = 0x5eed

// model fits a transform to correspondences and reports whether the fit
// was well conditioned.
type model struct {
	minSamples int
	fit        func(from, to []Point) (Homography, bool)
}

var (
	projectiveModel = model{minSamples: 4, fit: fitProjective}
	rigidModel      = model{minSamples: 2, fit: fitSimilarity}
)

// EstimateHomography robustly fits the homography mapping from[i] to to[i].
//
// The returned mask flags the correspondences consistent with the result
// and is populated even when ok is false. ok is false when there are fewer
// points or inliers than the model needs (4 projective, 2 rigid) or every
// candidate fit was degenerate. forceRigid restricts the model to rotation,
// translation and uniform scale.
//
// Panics if from and to differ in length.
func EstimateHomography(from, to []Point, params EstimationParams, forceRigid bool) (h Homography, inliers []bool, ok bool) {
	if len(from) != len(to) {
		panic("vstab: correspondence slices differ in length")
	}
	m := projectiveModel
	if forceRigid {
		m = rigidModel
	}
	inliers = make([]bool, len(from))
	if len(from) < m.minSamples {
		return IdentityHomography(), inliers, false
	}

	threshold := params.ErrorThreshold * params.ErrorThreshold
	switch params.Method {
	case MethodLeastSquares:
		h, ok = m.fit(from, to)
		if !ok {
			return IdentityHomography(), inliers, false
		}
		count := markInliers(h, from, to, threshold, inliers)
		return h, inliers, count >= m.minSamples
	default:
		return ransac(m, from, to, params, threshold, inliers)
	}
}

func ransac(m model, from, to []Point, params EstimationParams, threshold float64, inliers []bool) (Homography, []bool, bool) {
	n := len(from)
	rng := rand.New(rand.NewPCG(ransacSeed, uint64(n)))
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sampleFrom := make([]Point, m.minSamples)
	sampleTo := make([]Point, m.minSamples)
	scratch := make([]bool, n)

	best, bestCount := Homography{}, 0
	iterations := max(params.MaxIterations, 1)
	for it := 0; it < iterations; it++ {
		for i := 0; i < m.minSamples; i++ {
			j := i + rng.IntN(n-i)
			perm[i], perm[j] = perm[j], perm[i]
			sampleFrom[i], sampleTo[i] = from[perm[i]], to[perm[i]]
		}
		candidate, ok := m.fit(sampleFrom, sampleTo)
		if !ok {
			continue
		}
		count := markInliers(candidate, from, to, threshold, scratch)
		if count <= bestCount {
			continue
		}
		best, bestCount = candidate, count
		copy(inliers, scratch)
		if k := ransacIterations(params.Confidence, float64(count)/float64(n), m.minSamples); k < iterations {
			iterations = max(k, it+1)
		}
	}
	if bestCount < m.minSamples {
		clear(inliers)
		return IdentityHomography(), inliers, false
	}

	for pass := 0; pass < params.RefineIterations; pass++ {
		inFrom, inTo := selectInliers(from, to, inliers)
		refined, ok := m.fit(inFrom, inTo)
		if !ok {
			break
		}
		count := markInliers(refined, from, to, threshold, scratch)
		if count < bestCount {
			break
		}
		best, bestCount = refined, count
		if sameMask(inliers, scratch) {
			break
		}
		copy(inliers, scratch)
	}
	return best, inliers, true
}

// ransacIterations returns the number of samples needed to draw one
// outlier-free sample with the given confidence.
func ransacIterations(confidence, inlierRatio float64, samples int) int {
	if inlierRatio >= 1 {
		return 1
	}
	confidence = clampFloat(confidence, 0, 1-1e-12)
	den := math.Log(1 - math.Pow(inlierRatio, float64(samples)))
	if den >= 0 {
		return math.MaxInt32
	}
	return int(math.Ceil(math.Log(1-confidence) / den))
}

func markInliers(h Homography, from, to []Point, threshold float64, mask []bool) int {
	count := 0
	for i := range from {
		p := h.Apply(from[i])
		dx, dy := p.X-to[i].X, p.Y-to[i].Y
		mask[i] = dx*dx+dy*dy <= threshold
		if mask[i] {
			count++
		}
	}
	return count
}

func selectInliers(from, to []Point, mask []bool) ([]Point, []Point) {
	var inFrom, inTo []Point
	for i, ok := range mask {
		if ok {
			inFrom = append(inFrom, from[i])
			inTo = append(inTo, to[i])
		}
	}
	return inFrom, inTo
}

func sameMask(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalization returns the similarity moving the centroid of ps to the
// origin with a mean distance of √2.
func normalization(ps []Point) (Homography, bool) {
	var c Point
	for _, p := range ps {
		c = c.Add(p)
	}
	n := float64(len(ps))
	c = Point{c.X / n, c.Y / n}
	var dist float64
	for _, p := range ps {
		dist += math.Hypot(p.X-c.X, p.Y-c.Y)
	}
	dist /= n
	if dist < 1e-12 {
		return Homography{}, false
	}
	s := math.Sqrt2 / dist
	return NewHomography([9]float64{s, 0, -s * c.X, 0, s, -s * c.Y, 0, 0, 1}), true
}

// fitProjective is the normalized direct linear transform: the homography
// is the right singular vector of the smallest singular value.
func fitProjective(from, to []Point) (Homography, bool) {
	t1, ok := normalization(from)
	if !ok {
		return Homography{}, false
	}
	t2, ok := normalization(to)
	if !ok {
		return Homography{}, false
	}
	a := mat.NewDense(2*len(from), 9, nil)
	for i := range from {
		p, q := t1.Apply(from[i]), t2.Apply(to[i])
		a.SetRow(2*i, []float64{-p.X, -p.Y, -1, 0, 0, 0, q.X * p.X, q.X * p.Y, q.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -p.X, -p.Y, -1, q.Y * p.X, q.Y * p.Y, q.Y})
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Homography{}, false
	}
	values := svd.Values(nil)
	// Rank below 8 means the points do not pin down a unique homography.
	if values[7] <= 1e-10*values[0] {
		return Homography{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	var hn Homography
	for i := 0; i < 9; i++ {
		hn.m[i] = v.At(i, 8)
	}
	t2inv, ok := t2.Inverse()
	if !ok {
		return Homography{}, false
	}
	h := t2inv.Mul(hn).Mul(t1)
	if math.Abs(h.m[8]) < 1e-12 {
		return Homography{}, false
	}
	return h.Div(h.m[8]), true
}

// fitSimilarity solves the least-squares similarity
//
//	x' = a·x - b·y + tx
//	y' = b·x + a·y + ty
func fitSimilarity(from, to []Point) (Homography, bool) {
	a := mat.NewDense(2*len(from), 4, nil)
	b := mat.NewVecDense(2*len(from), nil)
	for i := range from {
		p, q := from[i], to[i]
		a.SetRow(2*i, []float64{p.X, -p.Y, 1, 0})
		a.SetRow(2*i+1, []float64{p.Y, p.X, 0, 1})
		b.SetVec(2*i, q.X)
		b.SetVec(2*i+1, q.Y)
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Homography{}, false
	}
	sa, sb := x.AtVec(0), x.AtVec(1)
	if math.Hypot(sa, sb) < 1e-12 {
		return Homography{}, false
	}
	return NewHomography([9]float64{sa, -sb, x.AtVec(2), sb, sa, x.AtVec(3), 0, 0, 1}), true
}
