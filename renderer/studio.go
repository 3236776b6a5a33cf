// Package renderer drives the editor scene through two backends: a real-time
// rasterizer and a progressive path tracer that renders from its own mirror
// of the scene.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"scene-studio/config"
	"scene-studio/editor"
	"scene-studio/environment"
	"scene-studio/internal/event"
	"scene-studio/internal/metrics"
	"scene-studio/scene"
)

// Mode selects which backend produces the visible frame.
type Mode int

const (
	ModeRasterized Mode = iota
	ModePathTraced
)

func (m Mode) String() string {
	switch m {
	case ModeRasterized:
		return "rasterized"
	case ModePathTraced:
		return "path_traced"
	}
	return "unknown"
}

// Option customizes a Studio.
type Option func(*Studio)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Studio) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records orchestrator activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Studio) {
		s.metrics = c
	}
}

// Studio is the scene editor engine. Every exported method is safe to call
// from any goroutine; the render loop runs on the scheduler's callbacks.
//
// Lock order: toggleMu, then the environment manager, then mu. Listeners on
// the controller and the navigation controls run with mu held.
type Studio struct {
	cfg      config.Config
	backends Backends
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer

	toggleMu sync.Mutex

	mu          sync.Mutex
	scene       *scene.Scene
	camera      *scene.Camera
	controls    Controls
	store       *scene.Store
	env         *environment.Manager
	gizmo       *editor.Gizmo
	controller  *editor.Controller
	highlighter *editor.Highlighter
	mirror      *scene.Scene
	mode        Mode
	chrome      *editor.Visibility
	queue       rebuildQueue
	// commits holds rebuilds requested by controller events until the
	// method that caused them collects them.
	commits []*rebuildBatch
	// retired holds releases postponed until the running ingest is done.
	retired   []func()
	offscreen captureState
	viewport  Viewport
	frameID   uint64

	animating   bool
	initialized bool
	disposed    bool

	subs []*event.Subscription

	viewportChanged event.Emitter[Viewport]
	// Faults publishes path tracer failures that forced the rasterized view.
	Faults event.Emitter[error]
	// Warnings carries messages meant for the user. Listeners run with the
	// studio locked and must not call back into it.
	Warnings event.Emitter[string]
}

// New wires a Studio from cfg and the given backends. Call Init before the
// first frame.
func New(cfg config.Config, backends Backends, opts ...Option) (*Studio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := backends.validate(); err != nil {
		return nil, err
	}

	s := &Studio{
		cfg:      cfg,
		backends: backends,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("scene-studio/renderer"),
		mode:     ModeRasterized,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("studio")

	rc := cfg.Renderer
	s.scene = scene.NewScene()
	s.scene.BackgroundColor = config.Color(rc.Background)
	s.camera = scene.NewCamera(rc.FOV(), 1, rc.Near, rc.Far)
	s.camera.SetPosition(rc.Position())
	s.store = scene.NewStore(s.scene)

	s.env = environment.NewManager(s.scene, backends.Loader, environmentOptions(cfg), s.logger)
	s.env.SetSceneLock(&s.mu)
	s.env.SetReleaser(s.retire)

	var nav editor.NavigationControls
	if backends.NewControls != nil {
		s.controls = backends.NewControls(s.camera)
		nav = s.controls
	}
	s.gizmo = editor.NewGizmo(1)
	s.controller = editor.NewController(s.scene.Root, s.gizmo, nav, s.logger)
	s.highlighter = editor.NewHighlighter(editor.HighlightStyle{
		Color:   config.Color(cfg.Highlight.Color),
		Opacity: cfg.Highlight.Opacity,
		Scale:   cfg.Highlight.Scale,
	})

	s.subs = append(s.subs,
		s.controller.Changed.Subscribe(s.onTransformChange),
		s.controller.Committed.Subscribe(s.onTransformChange),
		s.controller.Warnings.Subscribe(func(msg string) { s.Warnings.Emit(msg) }),
		s.env.OnChange(s.onEnvironmentChange),
	)
	if s.controls != nil {
		s.subs = append(s.subs, s.controls.OnChange(s.onCameraChange))
	}
	return s, nil
}

func environmentOptions(cfg config.Config) environment.Options {
	ec := cfg.Environment
	return environment.Options{
		UseHDRI:        ec.UseHDRI,
		DefaultHDRI:    ec.HDRIPath,
		HDRIBackground: ec.HDRIBackground,
		Intensity:      ec.EnvMapIntensity,
		BlurRadius:     ec.BlurRadius,
		BlurWidth:      ec.BlurWidth,
		Sky: environment.SkyGradient{
			Top:      config.Color(ec.Sky.Top),
			Bottom:   config.Color(ec.Sky.Bottom),
			Offset:   ec.Sky.Offset,
			Exponent: ec.Sky.Exponent,
			Radius:   ec.Sky.Radius,
		},
		SkyWidth:  ec.Sky.Width,
		SkyHeight: ec.Sky.Height,
	}
}

// Init builds the lighting rig and editor helpers, installs the initial
// environment and sizes the canvas. A missing default HDRI falls back to the
// procedural sky; only cancellation makes Init fail.
func (s *Studio) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.initialized {
		s.mu.Unlock()
		return nil
	}

	rc := s.cfg.Renderer
	for _, light := range scene.DefaultLights(rc.ShadowMapSize) {
		if !rc.Shadows {
			light.Light.CastShadow = false
		}
		s.scene.Add(light)
	}
	if gc := s.cfg.Ground; gc.Enabled {
		s.scene.Add(scene.NewGroundPlane(gc.Size, gc.ShadowOpacity))
		if gc.Grid {
			s.scene.Add(scene.NewGridHelper(gc.Size, gc.GridDivisions))
		}
	}
	s.scene.Add(s.gizmo.Visuals())

	if pt := s.backends.PathTracer; pt != nil {
		pc := s.cfg.PathTracer
		pt.Configure(PathTracerSettings{
			TilesX:                     pc.Tiles[0],
			TilesY:                     pc.Tiles[1],
			MultipleImportanceSampling: pc.MultipleImportanceSampling,
			TransmissiveBounces:        pc.TransmissiveBounces,
			MinSamples:                 pc.MinSamples,
		})
		pt.UpdateLights()
	}
	s.initialized = true
	s.mu.Unlock()

	err := s.env.Setup(ctx)
	s.metrics.RecordEnvironmentLoad("setup", err)
	if err != nil {
		return fmt.Errorf("environment setup: %w", err)
	}

	s.Resize()
	s.logger.Info("studio initialized",
		zap.Bool("path_tracer", s.backends.PathTracer != nil),
		zap.Bool("composer", s.backends.Composer != nil),
		zap.Bool("ground", s.cfg.Ground.Enabled))
	return nil
}

// Scene exposes the live scene for read-only inspection by hosts and tests.
func (s *Studio) Scene() *scene.Scene {
	return s.scene
}

func (s *Studio) Camera() *scene.Camera {
	return s.camera
}

func (s *Studio) Controller() *editor.Controller {
	return s.controller
}

func (s *Studio) Highlighter() *editor.Highlighter {
	return s.highlighter
}

func (s *Studio) Environment() *environment.Manager {
	return s.env
}

// Mode reports the active rendering backend.
func (s *Studio) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// checkLocked reports why the studio cannot serve a call. Callers hold mu.
func (s *Studio) checkLocked() error {
	if s.disposed {
		return ErrDisposed
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// logDisposal logs err as a ResourceDisposalError for resource.
func (s *Studio) logDisposal(resource string, err error) {
	if err == nil {
		return
	}
	var de *ResourceDisposalError
	if !errors.As(err, &de) {
		de = &ResourceDisposalError{Resource: resource, Err: err}
	}
	s.logger.Warn("resource disposal failed", zap.String("resource", de.Resource), zap.Error(de.Err))
}
