package vstab

import (
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, image.Pt(16, 9), cfg.Motion.Resolution)
	assert.Equal(t, 20, cfg.SmoothingFrames)
	assert.Equal(t, 0.1, cfg.CorrectionMargin)
	assert.True(t, cfg.StabilizeOutput)
	assert.False(t, cfg.CropToStableRegion)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"odd smoothing frames", func(c *Config) { c.SmoothingFrames = 5 }, ErrInvalidSmoothingFrames},
		{"zero smoothing frames", func(c *Config) { c.SmoothingFrames = 0 }, ErrInvalidSmoothingFrames},
		{"negative smoothing frames", func(c *Config) { c.SmoothingFrames = -2 }, ErrInvalidSmoothingFrames},
		{"zero margin", func(c *Config) { c.CorrectionMargin = 0 }, ErrInvalidMargin},
		{"full margin", func(c *Config) { c.CorrectionMargin = 1 }, ErrInvalidMargin},
		{"NaN margin", func(c *Config) { c.CorrectionMargin = math.NaN() }, ErrInvalidMargin},
		{"tiny resolution", func(c *Config) { c.Motion.Resolution = image.Pt(1, 9) }, ErrInvalidResolution},
		{"minimum window", func(c *Config) { c.SmoothingFrames = 2 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestConfig_Path(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SmoothingFrames = 6
	want := PathConfig{Motion: cfg.Motion, SmoothingFrames: 6, CorrectionMargin: 0.1}
	if diff := cmp.Diff(want, cfg.Path()); diff != "" {
		t.Errorf("Path() mismatch (-want +got):\n%s", diff)
	}
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "vstab.json", `{"smoothing_frames": 8, "crop_to_stable_region": true, "motion": {"resolution": {"X": 8, "Y": 6}}}`)

	got, err := LoadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.SmoothingFrames = 8
	want.CropToStableRegion = true
	want.Motion.Resolution = image.Pt(8, 6)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "vstab.yaml", `{}`))
		assert.ErrorContains(t, err, ".json extension")
	})
	t.Run("missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
	})
	t.Run("too large", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "big.json", strings.Repeat(" ", maxConfigFileSize+1)))
		assert.ErrorContains(t, err, "too large")
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "bad.json", `{"smoothing_frames": `))
		assert.ErrorContains(t, err, "parse")
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "odd.json", `{"smoothing_frames": 3}`))
		assert.True(t, errors.Is(err, ErrInvalidSmoothingFrames), "got %v", err)
	})
}
