// Package config loads the studio configuration: defaults, then a YAML file,
// then validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chewxy/math32"
	"gopkg.in/yaml.v3"

	"scene-studio/core"
	"scene-studio/math"
)

// Config is the complete studio configuration.
type Config struct {
	Renderer    RendererConfig    `yaml:"renderer"`
	Environment EnvironmentConfig `yaml:"environment"`
	PathTracer  PathTracerConfig  `yaml:"path_tracer"`
	Objects     ObjectsConfig     `yaml:"objects"`
	Highlight   HighlightConfig   `yaml:"highlight"`
	Ground      GroundConfig      `yaml:"ground"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type RendererConfig struct {
	// PixelRatio caps the device pixel ratio used for the canvas.
	PixelRatio          float32    `yaml:"pixel_ratio"`
	ToneMappingExposure float32    `yaml:"tone_mapping_exposure"`
	Background          string     `yaml:"background"`
	Shadows             bool       `yaml:"shadows"`
	ShadowMapSize       int        `yaml:"shadow_map_size"`
	FOVDegrees          float32    `yaml:"fov_degrees"`
	Near                float32    `yaml:"near"`
	Far                 float32    `yaml:"far"`
	CameraPosition      [3]float32 `yaml:"camera_position"`
}

type EnvironmentConfig struct {
	UseHDRI         bool          `yaml:"use_hdri"`
	HDRIPath        string        `yaml:"hdri_path"`
	HDRIBackground  bool          `yaml:"hdri_background"`
	AssetRoot       string        `yaml:"asset_root"`
	EnvMapIntensity float32       `yaml:"env_map_intensity"`
	BlurRadius      float64       `yaml:"blur_radius"`
	BlurWidth       int           `yaml:"blur_width"`
	Sky             SkyConfig     `yaml:"sky"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
}

type SkyConfig struct {
	Top      string  `yaml:"top"`
	Bottom   string  `yaml:"bottom"`
	Offset   float32 `yaml:"offset"`
	Exponent float32 `yaml:"exponent"`
	Radius   float32 `yaml:"radius"`
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
}

type PathTracerConfig struct {
	SampleCeiling              int    `yaml:"sample_ceiling"`
	Tiles                      [2]int `yaml:"tiles"`
	MultipleImportanceSampling bool   `yaml:"multiple_importance_sampling"`
	TransmissiveBounces        int    `yaml:"transmissive_bounces"`
	MinSamples                 int    `yaml:"min_samples"`
}

type ObjectsConfig struct {
	MaxDimension float32 `yaml:"max_dimension"`
}

type HighlightConfig struct {
	Color   string  `yaml:"color"`
	Opacity float32 `yaml:"opacity"`
	Scale   float32 `yaml:"scale"`
}

type GroundConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Size          float32 `yaml:"size"`
	ShadowOpacity float32 `yaml:"shadow_opacity"`
	Grid          bool    `yaml:"grid"`
	GridDivisions int     `yaml:"grid_divisions"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Namespace  string `yaml:"namespace"`
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Renderer: RendererConfig{
			PixelRatio:          2,
			ToneMappingExposure: 1.2,
			Background:          "#101010",
			Shadows:             true,
			ShadowMapSize:       2048,
			FOVDegrees:          60,
			Near:                0.01,
			Far:                 1000,
			CameraPosition:      [3]float32{0, 2, 5},
		},
		Environment: EnvironmentConfig{
			UseHDRI:         true,
			HDRIPath:        "/hdri/brown_photostudio_02_1k.hdr",
			HDRIBackground:  true,
			EnvMapIntensity: 1,
			BlurRadius:      4,
			BlurWidth:       256,
			Sky: SkyConfig{
				Top:      "#0077ff",
				Bottom:   "#ffffff",
				Offset:   400,
				Exponent: 0.6,
				Radius:   1000,
				Width:    256,
				Height:   128,
			},
			HTTPTimeout: 30 * time.Second,
		},
		PathTracer: PathTracerConfig{
			SampleCeiling:              64,
			Tiles:                      [2]int{3, 3},
			MultipleImportanceSampling: true,
			TransmissiveBounces:        10,
			MinSamples:                 5,
		},
		Objects: ObjectsConfig{MaxDimension: 5},
		Highlight: HighlightConfig{
			Color:   "#00ff00",
			Opacity: 0.5,
			Scale:   1.02,
		},
		Ground: GroundConfig{
			Size:          20,
			ShadowOpacity: 0.2,
			Grid:          true,
			GridDivisions: 20,
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Namespace: "studio"},
	}
}

// Load reads path over the defaults and validates the result. Unknown keys
// are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Renderer.PixelRatio <= 0 {
		errs = append(errs, "renderer.pixel_ratio must be positive")
	}
	if c.Renderer.ShadowMapSize <= 0 {
		errs = append(errs, "renderer.shadow_map_size must be positive")
	}
	if c.Renderer.FOVDegrees <= 0 || c.Renderer.FOVDegrees >= 180 {
		errs = append(errs, "renderer.fov_degrees must be in (0, 180)")
	}
	if c.Renderer.Near <= 0 || c.Renderer.Far <= c.Renderer.Near {
		errs = append(errs, "renderer.near must be positive and below renderer.far")
	}
	if c.Environment.BlurRadius < 0 {
		errs = append(errs, "environment.blur_radius must not be negative")
	}
	if c.Environment.Sky.Width < 2 || c.Environment.Sky.Height < 1 {
		errs = append(errs, "environment.sky size is too small")
	}
	if c.PathTracer.SampleCeiling <= 0 {
		errs = append(errs, "path_tracer.sample_ceiling must be positive")
	}
	if c.PathTracer.Tiles[0] <= 0 || c.PathTracer.Tiles[1] <= 0 {
		errs = append(errs, "path_tracer.tiles must be positive")
	}
	if c.Objects.MaxDimension <= 0 {
		errs = append(errs, "objects.max_dimension must be positive")
	}
	if c.Highlight.Opacity < 0 || c.Highlight.Opacity > 1 {
		errs = append(errs, "highlight.opacity must be between 0 and 1")
	}
	if c.Highlight.Scale <= 0 {
		errs = append(errs, "highlight.scale must be positive")
	}
	if c.Ground.ShadowOpacity < 0 || c.Ground.ShadowOpacity > 1 {
		errs = append(errs, "ground.shadow_opacity must be between 0 and 1")
	}
	if c.Ground.Enabled && c.Ground.Size <= 0 {
		errs = append(errs, "ground.size must be positive")
	}

	for _, c := range []struct{ key, value string }{
		{"renderer.background", c.Renderer.Background},
		{"environment.sky.top", c.Environment.Sky.Top},
		{"environment.sky.bottom", c.Environment.Sky.Bottom},
		{"highlight.color", c.Highlight.Color},
	} {
		if _, err := core.ParseHexColor(c.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", c.key, err))
		}
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, "log.format must be json or console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Color parses a hex color that Validate already accepted.
func Color(s string) core.Color {
	c, err := core.ParseHexColor(s)
	if err != nil {
		return core.ColorBlack
	}
	return c
}

// FOV returns the vertical field of view in radians.
func (r RendererConfig) FOV() float32 {
	return r.FOVDegrees * math32.Pi / 180
}

func (r RendererConfig) Position() math.Vec3 {
	return math.NewVec3(r.CameraPosition[0], r.CameraPosition[1], r.CameraPosition[2])
}
