package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"scene-studio/config"
	"scene-studio/editor"
	"scene-studio/environment"
	"scene-studio/internal/metrics"
	"scene-studio/internal/opengl"
	"scene-studio/internal/window"
	"scene-studio/renderer"
	"scene-studio/scene"
)

var _ window.Editor = (*renderer.Studio)(nil)

// loadConfig reads the config file and applies the command line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if hdriPath != "" {
		abs, err := filepath.Abs(hdriPath)
		if err != nil {
			return cfg, fmt.Errorf("resolve hdri: %w", err)
		}
		cfg.Environment.HDRIPath = abs
		cfg.Environment.AssetRoot = ""
		cfg.Environment.UseHDRI = true
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, cfg.Validate()
}

type appOptions struct {
	window   window.Config
	bloom    bool
	registry prometheus.Registerer
}

// app is a studio running in a GLFW window with the OpenGL backends.
type app struct {
	logger *zap.Logger
	win    *window.Window
	sched  *window.Scheduler
	orbit  *editor.OrbitControls
	studio *renderer.Studio
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	win, err := window.New(opts.window)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, win: win, sched: window.NewScheduler()}

	gl, err := opengl.NewRenderer(cfg.Renderer, logger)
	if err != nil {
		win.Destroy()
		return nil, err
	}

	backends := renderer.Backends{
		Rasterizer: gl,
		NewControls: func(cam *scene.Camera) renderer.Controls {
			a.orbit = editor.NewOrbitControls(cam)
			a.orbit.Damping = 0.25
			return a.orbit
		},
		Scheduler: a.sched,
		Container: win,
		Importer:  scene.NewImporter(logger),
		Loader:    environment.NewFileLoader(cfg.Environment.AssetRoot, cfg.Environment.HTTPTimeout),
	}
	if opts.bloom {
		fbWidth, fbHeight := win.FramebufferSize()
		composer, err := opengl.NewComposer(gl, fbWidth, fbHeight, true)
		if err != nil {
			_ = gl.Dispose()
			win.Destroy()
			return nil, fmt.Errorf("composer: %w", err)
		}
		backends.Composer = composer
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, opts.registry, logger)
	studio, err := renderer.New(cfg, backends, renderer.WithLogger(logger), renderer.WithMetrics(collector))
	if err != nil {
		if backends.Composer != nil {
			_ = backends.Composer.Dispose()
		}
		_ = gl.Dispose()
		win.Destroy()
		return nil, err
	}
	a.studio = studio

	studio.Warnings.Subscribe(func(msg string) {
		logger.Warn(msg)
	})
	studio.Faults.Subscribe(func(err error) {
		logger.Error("path tracer fault", zap.Error(err))
	})
	win.OnResize(func(int, int) {
		studio.Resize()
	})

	if err := studio.Init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// load imports the models and installs the background image, if any. The
// entries come back in the order of models.
func (a *app) load(ctx context.Context, models []inputFile, background *inputFile) ([]scene.TrackedObject, error) {
	var entries []scene.TrackedObject
	if len(models) > 0 {
		files := make([]renderer.ModelFile, len(models))
		for i, m := range models {
			files[i] = renderer.ModelFile{Name: m.Name, Data: m.Data}
		}
		var err error
		if entries, err = a.studio.ImportFiles(ctx, files); err != nil {
			return nil, err
		}
		for _, e := range entries {
			a.logger.Info("model imported", zap.String("id", e.ID), zap.String("name", e.Name))
		}
	}
	if background != nil {
		if _, err := a.studio.LoadBackgroundFromFile(ctx, background.Name, background.Data, environment.BackgroundOptions{}); err != nil {
			return entries, err
		}
	}
	return entries, nil
}

func (a *app) close() {
	a.studio.Dispose()
	a.win.Destroy()
}
