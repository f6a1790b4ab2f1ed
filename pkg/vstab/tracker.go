package vstab

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Tracker estimates frame-to-frame camera motion.
//
// Track is called once per frame in presentation order. The motion it
// returns is delivered one frame late: it describes the step onto the
// previous frame, which is the alignment PathStabilizer expects. Reporting
// no motion is a normal outcome and is replaced by a zero field.
type Tracker interface {
	// Configure sets the resolution of the returned fields.
	Configure(config MotionConfig)

	// Track consumes the next grayscale frame. The frame is only borrowed
	// for the duration of the call.
	Track(frame *image.Gray) (WarpField, bool)

	// Restart forgets all previous frames.
	Restart()
}

// GridTrackerConfig configures a GridTracker.
type GridTrackerConfig struct {
	Motion MotionConfig `json:"motion"`

	// TrackingWidth is the width frames are downsampled to before matching.
	// Frames narrower than this are matched at full size.
	TrackingWidth int `json:"tracking_width"`

	// Grid is the number of patches matched horizontally and vertically.
	Grid image.Point `json:"grid"`

	// PatchRadius is the half-size of a square patch in tracking pixels.
	PatchRadius int `json:"patch_radius"`

	// SearchRadius is the largest displacement searched, in tracking pixels.
	SearchRadius int `json:"search_radius"`

	// MinContrast is the mean absolute deviation below which a patch is
	// too flat to match reliably.
	MinContrast float64 `json:"min_contrast"`

	// ForceRigid restricts the fitted motion to rotation, translation and
	// uniform scale.
	ForceRigid bool `json:"force_rigid"`

	Estimation EstimationParams `json:"estimation"`
}

// DefaultGridTrackerConfig returns a 12x8 patch grid matched at 192 pixels
// wide with a rigid motion model.
func DefaultGridTrackerConfig() GridTrackerConfig {
	return GridTrackerConfig{
		Motion:        DefaultMotionConfig(),
		TrackingWidth: 192,
		Grid:          image.Pt(12, 8),
		PatchRadius:   4,
		SearchRadius:  8,
		MinContrast:   4,
		ForceRigid:    true,
		Estimation:    DefaultEstimationParams(),
	}
}

// GridTracker is a block-matching Tracker. It matches a grid of patches of
// the previous frame against the current one by sum of absolute
// differences, fits a homography to the matches and samples it as a
// WarpField.
type GridTracker struct {
	config GridTrackerConfig

	previous, current *image.Gray

	pending    WarpField
	hasPending bool

	from, to []Point

	matches, inliers int
}

// NewGridTracker creates a grid tracker with the given configuration.
func NewGridTracker(config GridTrackerConfig) *GridTracker {
	if config.Grid.X < 1 || config.Grid.Y < 1 {
		config.Grid = DefaultGridTrackerConfig().Grid
	}
	return &GridTracker{config: config}
}

// Configure sets the resolution of the returned fields.
func (t *GridTracker) Configure(config MotionConfig) {
	t.config.Motion = config
	if t.hasPending {
		t.pending.Resize(config.Resolution)
	}
}

// Restart forgets the previous frame and any pending estimate.
func (t *GridTracker) Restart() {
	t.previous = nil
	t.pending = WarpField{}
	t.hasPending = false
	t.matches, t.inliers = 0, 0
}

// Track matches frame against the previous one and returns the estimate
// made on the previous call.
func (t *GridTracker) Track(frame *image.Gray) (WarpField, bool) {
	motion, ok := t.pending, t.hasPending
	t.pending, t.hasPending = t.estimate(frame)
	return motion, ok
}

// Matches returns the number of patches matched and the number of inlier
// matches on the last call.
func (t *GridTracker) Matches() (matched, inliers int) {
	return t.matches, t.inliers
}

func (t *GridTracker) estimate(frame *image.Gray) (WarpField, bool) {
	full := frame.Rect.Size()
	scale := 1.0
	size := full
	if t.config.TrackingWidth > 0 && full.X > t.config.TrackingWidth {
		scale = float64(t.config.TrackingWidth) / float64(full.X)
		size = image.Pt(t.config.TrackingWidth, max(1, int(math.Round(float64(full.Y)*scale))))
	}
	if t.current == nil || t.current.Rect.Size() != size {
		t.current = image.NewGray(image.Rectangle{Max: size})
	}
	xdraw.ApproxBiLinear.Scale(t.current, t.current.Rect, frame, frame.Rect, xdraw.Src, nil)
	defer func() { t.previous, t.current = t.current, t.previous }()

	t.matches, t.inliers = 0, 0
	if t.previous == nil || t.previous.Rect != t.current.Rect {
		return WarpField{}, false
	}

	t.from, t.to = t.from[:0], t.to[:0]
	r, s := t.config.PatchRadius, t.config.SearchRadius
	border := r + s
	if size.X <= 2*border || size.Y <= 2*border {
		return WarpField{}, false
	}
	for gy := 0; gy < t.config.Grid.Y; gy++ {
		cy := spread(gy, t.config.Grid.Y, border, size.Y-1-border)
		for gx := 0; gx < t.config.Grid.X; gx++ {
			cx := spread(gx, t.config.Grid.X, border, size.X-1-border)
			if contrast(t.previous, cx, cy, r) < t.config.MinContrast {
				continue
			}
			d := t.match(cx, cy, r, s)
			t.from = append(t.from, Point{float64(cx) / scale, float64(cy) / scale})
			t.to = append(t.to, Point{float64(cx+d.X) / scale, float64(cy+d.Y) / scale})
		}
	}
	t.matches = len(t.from)

	h, mask, ok := EstimateHomography(t.from, t.to, t.config.Estimation, t.config.ForceRigid)
	for _, in := range mask {
		if in {
			t.inliers++
		}
	}
	if !ok {
		return WarpField{}, false
	}
	return FieldFromHomography(h, full, t.config.Motion.Resolution), true
}

// match returns the displacement of the patch centred on (cx, cy) of the
// previous frame that best matches the current frame. Ties keep the
// smallest displacement searched first, starting with no motion.
func (t *GridTracker) match(cx, cy, r, s int) image.Point {
	var best image.Point
	bestSAD := sad(t.previous, t.current, cx, cy, 0, 0, r)
	for dy := -s; dy <= s; dy++ {
		for dx := -s; dx <= s; dx++ {
			if v := sad(t.previous, t.current, cx, cy, dx, dy, r); v < bestSAD {
				bestSAD, best = v, image.Pt(dx, dy)
			}
		}
	}
	return best
}

// spread places the i-th of n samples evenly in [lo, hi].
func spread(i, n, lo, hi int) int {
	if n == 1 {
		return (lo + hi) / 2
	}
	return lo + i*(hi-lo)/(n-1)
}

func sad(a, b *image.Gray, cx, cy, dx, dy, r int) int {
	total := 0
	for y := -r; y <= r; y++ {
		ra := a.Pix[(cy+y)*a.Stride:]
		rb := b.Pix[(cy+dy+y)*b.Stride:]
		for x := -r; x <= r; x++ {
			d := int(ra[cx+x]) - int(rb[cx+dx+x])
			if d < 0 {
				d = -d
			}
			total += d
		}
	}
	return total
}

// contrast returns the mean absolute deviation of a patch.
func contrast(g *image.Gray, cx, cy, r int) float64 {
	n := float64((2*r + 1) * (2*r + 1))
	var sum float64
	for y := -r; y <= r; y++ {
		row := g.Pix[(cy+y)*g.Stride:]
		for x := -r; x <= r; x++ {
			sum += float64(row[cx+x])
		}
	}
	mean := sum / n
	var dev float64
	for y := -r; y <= r; y++ {
		row := g.Pix[(cy+y)*g.Stride:]
		for x := -r; x <= r; x++ {
			dev += math.Abs(float64(row[cx+x]) - mean)
		}
	}
	return dev / n
}
