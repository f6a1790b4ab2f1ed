package vstab

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Configuration errors returned by Validate. They are wrapped with the
// offending value, so test them with errors.Is.
var (
	ErrInvalidSmoothingFrames = errors.New("vstab: smoothing frames must be even and at least 2")
	ErrInvalidMargin          = errors.New("vstab: correction margin must be in (0, 1)")
	ErrInvalidResolution      = errors.New("vstab: motion resolution below minimum field size")
)

// maxConfigFileSize bounds LoadConfig reads.
const maxConfigFileSize = 1 << 20

// PathConfig configures a PathStabilizer.
type PathConfig struct {
	Motion MotionConfig `json:"motion"`

	// SmoothingFrames is N, the number of frames on each side of the
	// centre of the smoothing window. The trajectory holds 2N+1 entries and
	// output is delayed by N+1 frames. Must be even and at least 2.
	SmoothingFrames int `json:"smoothing_frames"`

	// CorrectionMargin is the fraction of the frame, split evenly between
	// opposite borders, that a correction may shift out of view.
	// Must be in (0, 1).
	CorrectionMargin float64 `json:"correction_margin"`
}

// Validate reports the first invalid field.
func (c PathConfig) Validate() error {
	if err := c.Motion.Validate(); err != nil {
		return err
	}
	if c.SmoothingFrames < 2 || c.SmoothingFrames%2 != 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSmoothingFrames, c.SmoothingFrames)
	}
	if !(c.CorrectionMargin > 0 && c.CorrectionMargin < 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidMargin, c.CorrectionMargin)
	}
	return nil
}

// Validate checks the motion grid resolution.
func (c MotionConfig) Validate() error {
	if c.Resolution.X < MinimumFieldSize.X || c.Resolution.Y < MinimumFieldSize.Y {
		return fmt.Errorf("%w: got %v", ErrInvalidResolution, c.Resolution)
	}
	return nil
}

// Config configures a Stabilizer.
type Config struct {
	Motion           MotionConfig `json:"motion"`
	SmoothingFrames  int          `json:"smoothing_frames"`
	CorrectionMargin float64      `json:"correction_margin"`

	// StabilizeOutput enables tracking and smoothing. When false frames are
	// only delayed, keeping end-to-end latency independent of the mode.
	StabilizeOutput bool `json:"stabilize_output"`

	// CropToStableRegion scales the stable region up to the full frame,
	// hiding the borders uncovered by the correction.
	CropToStableRegion bool `json:"crop_to_stable_region"`
}

// DefaultConfig returns a 16x9 motion grid, 20 smoothing frames, a 10%
// margin, stabilization on and cropping off.
func DefaultConfig() Config {
	return Config{
		Motion:           DefaultMotionConfig(),
		SmoothingFrames:  20,
		CorrectionMargin: 0.1,
		StabilizeOutput:  true,
	}
}

// Path returns the subset of c read by the path stabilizer.
func (c Config) Path() PathConfig {
	return PathConfig{
		Motion:           c.Motion,
		SmoothingFrames:  c.SmoothingFrames,
		CorrectionMargin: c.CorrectionMargin,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	return c.Path().Validate()
}

// LoadConfig reads a JSON configuration file. Fields omitted from the file
// keep their DefaultConfig values. The result is validated.
func LoadConfig(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", cleanPath, err)
	}
	return cfg, nil
}
