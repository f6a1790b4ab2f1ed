package testutil

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
)

// TracedFrame is the camera position of one frame of a recorded trace.
type TracedFrame struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MotionTrace is a recorded camera path, replayed over a synthetic scene.
type MotionTrace struct {
	// Name is a short identifier for the trace (e.g., "handheld_walk").
	Name string `json:"name"`

	// Description explains the camera motion the trace represents.
	Description string `json:"description"`

	// Frames is the ordered list of camera positions.
	Frames []TracedFrame `json:"frames"`
}

// LoadTrace reads a motion trace from a JSON file.
//
// File format:
//
//	{
//	    "name": "trace_name",
//	    "description": "Description of the camera motion",
//	    "frames": [{"x": 0, "y": 0}, {"x": 2, "y": -1}, ...]
//	}
func LoadTrace(path string) (*MotionTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file %s: %w", path, err)
	}

	var trace MotionTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("failed to parse trace file %s: %w", path, err)
	}
	return &trace, nil
}

// Path returns the camera positions as points.
func (t *MotionTrace) Path() []image.Point {
	path := make([]image.Point, len(t.Frames))
	for k, f := range t.Frames {
		path[k] = image.Pt(f.X, f.Y)
	}
	return path
}

// Bounds returns the smallest rectangle containing every position.
func (t *MotionTrace) Bounds() image.Rectangle {
	var r image.Rectangle
	for k, p := range t.Path() {
		if k == 0 {
			r = image.Rectangle{Min: p, Max: p}
			continue
		}
		r.Min.X, r.Min.Y = min(r.Min.X, p.X), min(r.Min.Y, p.Y)
		r.Max.X, r.Max.Y = max(r.Max.X, p.X), max(r.Max.Y, p.Y)
	}
	return r
}

// FrameProcessor consumes one rendered frame of a replayed trace.
type FrameProcessor func(index int, frame *image.Gray)

// Replay films a NoiseScene just large enough for the trace at the given
// frame size and hands every frame to processor.
func (t *MotionTrace) Replay(processor FrameProcessor, size image.Point, seed uint64) {
	b := t.Bounds()
	scene := NoiseScene(size.X+b.Dx(), size.Y+b.Dy(), seed)
	for k, frame := range Render(scene, size, b.Min.Mul(-1), t.Path()) {
		processor(k, frame)
	}
}

// JitterResult compares the shake of a camera path before and after
// stabilization.
type JitterResult struct {
	// Raw and Stabilized are the Jitter of the compared ranges.
	Raw        float64
	Stabilized float64

	// Reduction is 1 - Stabilized/Raw, or 0 when Raw is 0.
	Reduction float64

	// ComparedFrames is the number of positions compared after warmup.
	ComparedFrames int
}

// CompareJitter measures how much stabilization reduced shake. The first
// warmup positions of both paths are skipped and the longer path is
// truncated to the shorter.
func CompareJitter(raw, stabilized []Position, warmup int) JitterResult {
	n := min(len(raw), len(stabilized))
	if warmup >= n {
		return JitterResult{}
	}
	result := JitterResult{
		Raw:            Jitter(raw[warmup:n]),
		Stabilized:     Jitter(stabilized[warmup:n]),
		ComparedFrames: n - warmup,
	}
	if result.Raw > 0 {
		result.Reduction = 1 - result.Stabilized/result.Raw
	}
	return result
}
