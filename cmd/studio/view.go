package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scene-studio/editor"
	"scene-studio/environment"
	"scene-studio/internal/watcher"
	"scene-studio/internal/window"
	"scene-studio/scene"
)

var (
	viewWatch       bool
	viewMetricsAddr string
	viewBloom       bool
	viewWidth       int
	viewHeight      int
)

var viewCmd = &cobra.Command{
	Use:   "view [files...]",
	Short: "Open the scene in an interactive window",
	Long: `Open an editor window with the given glTF or OBJ models and an optional
background image or HDRI. Left click selects, left drag moves the selection,
W/E/R switch between translate, rotate and scale, Q detaches the gizmo.
Middle drag orbits, shift + middle drag pans and the wheel zooms.`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().BoolVarP(&viewWatch, "watch", "w", false, "Reload files when they change on disk")
	viewCmd.Flags().StringVar(&viewMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, overriding metrics.listen_addr")
	viewCmd.Flags().BoolVar(&viewBloom, "bloom", false, "Render through the HDR composer with bloom")
	viewCmd.Flags().IntVar(&viewWidth, "width", 1280, "Window width")
	viewCmd.Flags().IntVar(&viewHeight, "height", 720, "Window height")
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Log.Build()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models, background, err := readInputs(args)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	addr := cfg.Metrics.ListenAddr
	if viewMetricsAddr != "" {
		addr = viewMetricsAddr
	}
	if addr != "" {
		srv := serveMetrics(addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	winCfg := window.DefaultConfig()
	winCfg.Width, winCfg.Height = viewWidth, viewHeight
	a, err := newApp(ctx, cfg, logger, appOptions{window: winCfg, bloom: viewBloom, registry: reg})
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.load(ctx, models, background)
	if err != nil {
		return err
	}

	if viewWatch && len(args) > 0 {
		fw, err := watcher.NewFileWatcher(200*time.Millisecond, logger)
		if err != nil {
			return err
		}
		defer fw.Close()
		r := newReloader(a, logger)
		r.track(entries, models)
		if err := fw.Watch(args, func(path string) { r.reload(ctx, path) }); err != nil {
			return err
		}
		fw.Start(ctx)
	}

	bindings := window.NewBindings(a.studio, a.orbit, editor.NewInputManager(a.win), logger)
	a.win.OnScroll(func(_, yoff float64) {
		bindings.Input().AddScroll(yoff)
	})

	a.studio.Animate()
	window.Run(ctx, a.win, a.sched, bindings)
	logger.Info("window closed")
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}

// reloader swaps models and the background when their files change.
type reloader struct {
	app    *app
	logger *zap.Logger

	mu      sync.Mutex
	objects map[string]*scene.Node
}

func newReloader(a *app, logger *zap.Logger) *reloader {
	return &reloader{app: a, logger: logger.Named("reload"), objects: make(map[string]*scene.Node)}
}

// track pairs the imported objects with the files they came from. Both are
// in import order.
func (r *reloader) track(entries []scene.TrackedObject, models []inputFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range models {
		if i >= len(entries) {
			break
		}
		if abs, err := filepath.Abs(m.Path); err == nil {
			r.objects[abs] = entries[i].Node
		}
	}
}

func (r *reloader) reload(ctx context.Context, path string) {
	f, err := readInput(path)
	if err != nil {
		r.logger.Warn("skipping changed file", zap.String("path", path), zap.Error(err))
		return
	}
	studio := r.app.studio

	if f.Kind == kindImage {
		if _, err := studio.LoadBackgroundFromFile(ctx, f.Name, f.Data, environment.BackgroundOptions{}); err != nil {
			r.logger.Warn("background reload failed", zap.String("path", path), zap.Error(err))
		}
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := studio.ImportModel(ctx, f.Name, f.Data)
	if err != nil {
		// Keep the previous version on screen.
		r.logger.Warn("model reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	if old := r.objects[path]; old != nil {
		if err := studio.RemoveObject(ctx, old); err != nil {
			r.logger.Warn("remove previous version", zap.String("path", path), zap.Error(err))
		}
	}
	r.objects[path] = entry.Node
	r.logger.Info("model reloaded", zap.String("path", path), zap.String("id", entry.ID))
}
