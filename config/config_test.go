package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64, cfg.PathTracer.SampleCeiling)
	assert.Equal(t, float32(5), cfg.Objects.MaxDimension)
	assert.Equal(t, "/hdri/brown_photostudio_02_1k.hdr", cfg.Environment.HDRIPath)
	assert.InDelta(t, 1.0472, cfg.Renderer.FOV(), 1e-4)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
renderer:
  pixel_ratio: 1
environment:
  use_hdri: false
  http_timeout: 5s
path_tracer:
  sample_ceiling: 128
ground:
  enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, float32(1), cfg.Renderer.PixelRatio)
	assert.False(t, cfg.Environment.UseHDRI)
	assert.Equal(t, 5*time.Second, cfg.Environment.HTTPTimeout)
	assert.Equal(t, 128, cfg.PathTracer.SampleCeiling)
	assert.True(t, cfg.Ground.Enabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, float32(1.2), cfg.Renderer.ToneMappingExposure)
	assert.Equal(t, [2]int{3, 3}, cfg.PathTracer.Tiles)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("renderer:\n  pixel_ration: 1\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.PathTracer.SampleCeiling = 0
	cfg.Highlight.Opacity = 2
	cfg.Highlight.Color = "green"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"sample_ceiling", "highlight.opacity", "highlight.color", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("objects:\n  max_dimension: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, float32(2), cfg.Objects.MaxDimension)

	_, err = Parse([]byte("objects:\n  max_dimension: -1\n"))
	assert.Error(t, err)
}

func TestColorHelper(t *testing.T) {
	c := Color("#ff0000")
	assert.Equal(t, float32(1), c.R)
	assert.Equal(t, float32(0), c.G)
}

func TestLogBuild(t *testing.T) {
	assert.NotNil(t, LogConfig{Level: "debug", Format: "json"}.Build())
	assert.NotNil(t, LogConfig{Level: "bogus", Format: "console"}.Build())
}
