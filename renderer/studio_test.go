package renderer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scene-studio/config"
	"scene-studio/environment"
	"scene-studio/internal/metrics"
	"scene-studio/scene"
)

func TestNewValidatesInputs(t *testing.T) {
	_, err := New(config.Default(), Backends{Rasterizer: &fakeRasterizer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler")
	assert.Contains(t, err.Error(), "loader")

	cfg := config.Default()
	cfg.PathTracer.SampleCeiling = 0
	_, err = New(cfg, Backends{})
	assert.Error(t, err)
}

func TestCallsBeforeInitFail(t *testing.T) {
	s, err := New(config.Default(), Backends{
		Rasterizer: &fakeRasterizer{},
		Scheduler:  &fakeScheduler{},
		Container:  &fakeContainer{w: 10, h: 10, ratio: 1},
		Importer:   fakeImporter{},
		Loader:     &fakeLoader{},
	}, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer s.Dispose()

	_, err = s.AddObject(context.Background(), boxModel("early", 1, 1, 1), AddOptions{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.Step(), ErrNotInitialized)
}

func TestInitBuildsRig(t *testing.T) {
	h := newHarness(t, withConfig(func(c *config.Config) {
		c.Ground.Enabled = true
	}))
	s := h.studio

	var names []string
	for _, n := range s.Scene().TopLevel() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"AmbientLight", "KeyLight", "FillLight", "Ground", "Grid", "TransformGizmo"}, names)
	assert.Len(t, s.Scene().Lights(), 3)

	require.NotNil(t, s.Scene().Environment)
	assert.Equal(t, testHDRI, s.Scene().Environment.Name)
	assert.Same(t, s.Scene().Environment, s.Scene().Background)
	assert.NotNil(t, s.Scene().BlurredEnvironment)

	h.pt.mu.Lock()
	assert.Equal(t, 1, h.pt.lightCalls)
	h.pt.mu.Unlock()
	assert.Equal(t, 800, s.Viewport().Width)

	require.NoError(t, s.Init(context.Background()), "second Init is a no-op")
	assert.Len(t, s.Scene().Lights(), 3)
}

func TestInitFallsBackToSky(t *testing.T) {
	h := newHarness(t, withConfig(func(c *config.Config) {
		c.Environment.HDRIPath = "/hdri/missing.hdr"
	}))

	env := h.studio.Scene().Environment
	require.NotNil(t, env)
	assert.NotEqual(t, "/hdri/missing.hdr", env.Name)
	assert.Nil(t, h.studio.Scene().Background)
}

func TestLoadEnvironment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	model := boxModel("crate", 1, 1, 1)
	_, err := h.studio.AddObject(ctx, model, AddOptions{})
	require.NoError(t, err)
	prev := h.studio.Scene().Environment

	t.Run("unreachable source changes nothing", func(t *testing.T) {
		_, err := h.studio.LoadEnvironment(ctx, "/hdri/missing.hdr")
		assert.ErrorIs(t, err, environment.ErrLoad)
		assert.Same(t, prev, h.studio.Scene().Environment)
		assert.False(t, prev.Disposed())
	})

	t.Run("new HDRI replaces and releases the old one", func(t *testing.T) {
		h.loader.mu.Lock()
		h.loader.hdris["/hdri/sunset.hdr"] = true
		h.loader.mu.Unlock()

		tex, err := h.studio.LoadEnvironment(ctx, "/hdri/sunset.hdr")
		require.NoError(t, err)

		assert.Same(t, tex, h.studio.Scene().Environment)
		assert.True(t, prev.Disposed())
		assert.Same(t, tex, model.Children[0].Material.EnvMap)
	})

	t.Run("reset restores the default", func(t *testing.T) {
		require.NoError(t, h.studio.ResetEnvironment(ctx))
		assert.Equal(t, testHDRI, h.studio.Scene().Environment.Name)
		assert.False(t, h.studio.Environment().HasCustomBackground())
	})
}

func TestLoadBackgroundFromFile(t *testing.T) {
	h := newHarness(t)
	h.loader.mu.Lock()
	h.loader.images["backdrop.png"] = true
	h.loader.mu.Unlock()

	tex, err := h.studio.LoadBackgroundFromFile(context.Background(), "backdrop.png", []byte{0x89, 'P', 'N', 'G'}, environment.BackgroundOptions{})
	require.NoError(t, err)
	assert.Same(t, tex, h.studio.Scene().Background)
	assert.True(t, h.studio.Environment().HasCustomBackground())

	_, err = h.studio.LoadBackgroundFromFile(context.Background(), "notes.txt", []byte("hello"), environment.BackgroundOptions{})
	assert.Error(t, err)
	assert.Same(t, tex, h.studio.Scene().Background)
}

func TestResizeUpdatesEveryConsumer(t *testing.T) {
	composer := &fakeComposer{}
	h := newHarness(t, withComposer(composer))
	h.container.mu.Lock()
	h.container.ratio = 3
	h.container.mu.Unlock()

	var published []Viewport
	h.studio.OnViewportChange(func(vp Viewport) { published = append(published, vp) })
	before := h.pt.cameraUpdates()

	h.container.set(400, 300)
	vp := h.studio.Resize()

	assert.Equal(t, Viewport{Width: 400, Height: 300, PixelRatio: 2, Aspect: 4.0 / 3.0}, vp)
	assert.Equal(t, []Viewport{vp}, published)
	assert.InDelta(t, 4.0/3.0, h.studio.Camera().AspectRatio, 1e-6)
	assert.Equal(t, before+1, h.pt.cameraUpdates())

	h.raster.mu.Lock()
	assert.Equal(t, 400, h.raster.width)
	assert.Equal(t, 300, h.raster.height)
	assert.Equal(t, float32(2), h.raster.ratio)
	h.raster.mu.Unlock()

	composer.mu.Lock()
	assert.Equal(t, 800, composer.width)
	assert.Equal(t, 600, composer.height)
	composer.mu.Unlock()

	t.Run("portrait", func(t *testing.T) {
		h.container.set(300, 600)
		assert.True(t, h.studio.Resize().Portrait)
	})

	t.Run("empty container is ignored", func(t *testing.T) {
		prev := h.studio.Viewport()
		h.container.set(0, 0)
		assert.Equal(t, prev, h.studio.Resize())
		assert.Equal(t, prev, h.studio.Viewport())
	})
}

func TestRasterFramesUseComposer(t *testing.T) {
	composer := &fakeComposer{}
	h := newHarness(t, withComposer(composer))
	before := h.raster.renderCount()

	require.NoError(t, h.studio.Step())

	composer.mu.Lock()
	assert.Equal(t, 1, composer.renders)
	composer.mu.Unlock()
	assert.Equal(t, before, h.raster.renderCount())
}

func TestAnimateAndStop(t *testing.T) {
	h := newHarness(t)
	before := h.raster.renderCount()

	h.studio.Animate()
	h.studio.Animate()
	assert.True(t, h.studio.Animating())
	assert.Equal(t, 1, h.scheduler.pendingCount())

	assert.Equal(t, 1, h.scheduler.runFrame())
	assert.Equal(t, 1, h.scheduler.runFrame())
	assert.Equal(t, before+2, h.raster.renderCount())
	assert.Equal(t, 1, h.scheduler.pendingCount(), "each frame schedules the next")

	h.studio.Stop()
	assert.False(t, h.studio.Animating())
	assert.Zero(t, h.scheduler.pendingCount())
	assert.Zero(t, h.scheduler.runFrame())
}

func TestDispose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	model := boxModel("crate", 1, 1, 1)
	_, err := h.studio.AddObject(ctx, model, AddOptions{})
	require.NoError(t, err)
	require.NoError(t, h.studio.EnablePathTracing(ctx, true))
	_, err = h.studio.Capture(16, 16)
	require.NoError(t, err)
	h.studio.Animate()
	env := h.studio.Scene().Environment
	geom := model.Children[0].Geometry

	h.studio.Dispose()
	h.studio.Dispose()

	assert.False(t, h.studio.Animating())
	assert.Zero(t, h.scheduler.pendingCount())
	assert.True(t, geom.Disposed())
	assert.True(t, env.Disposed())
	assert.Empty(t, h.studio.ObjectsInScene())
	assert.Empty(t, h.studio.Scene().Root.Children)

	h.raster.mu.Lock()
	assert.Equal(t, 1, h.raster.disposed)
	assert.True(t, h.raster.targets[0].disposed)
	h.raster.mu.Unlock()
	h.pt.mu.Lock()
	assert.True(t, h.pt.disposed)
	h.pt.mu.Unlock()

	assert.ErrorIs(t, h.studio.Step(), ErrDisposed)
	_, err = h.studio.AddObject(ctx, boxModel("late", 1, 1, 1), AddOptions{})
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, h.studio.EnablePathTracing(ctx, false), ErrDisposed)
	_, err = h.studio.Capture(16, 16)
	assert.ErrorIs(t, err, ErrDisposed)
}

// metricValue sums every series of the named family.
func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
	}
	return sum
}

func TestStudioRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("studio", reg, zap.NewNop())
	h := newHarness(t, withStudioOption(WithMetrics(collector)))
	ctx := context.Background()

	_, err := h.studio.AddObject(ctx, boxModel("a", 1, 1, 1), AddOptions{})
	require.NoError(t, err)
	_, err = h.studio.AddObject(ctx, boxModel("b", 1, 1, 1), AddOptions{})
	require.NoError(t, err)
	require.NoError(t, h.studio.Step())
	require.NoError(t, h.studio.EnablePathTracing(ctx, true))
	_, err = h.studio.Capture(8, 8)
	require.NoError(t, err)

	assert.Equal(t, 2.0, metricValue(t, reg, "studio_tracked_objects"))
	assert.Equal(t, 1.0, metricValue(t, reg, "studio_mirror_rebuilds_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "studio_captures_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "studio_environment_loads_total"))
	assert.GreaterOrEqual(t, metricValue(t, reg, "studio_frames_total"), 1.0)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "rasterized", ModeRasterized.String())
	assert.Equal(t, "path_traced", ModePathTraced.String())
	assert.Equal(t, "unknown", Mode(9).String())
}

func TestRecoverFault(t *testing.T) {
	err := recoverFault(func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, recoverFault(func() error { return nil }))
}

func TestTrackedObjectsCopy(t *testing.T) {
	h := newHarness(t)
	_, err := h.studio.AddObject(context.Background(), boxModel("a", 1, 1, 1), AddOptions{})
	require.NoError(t, err)

	list := h.studio.ObjectsInScene()
	list[0] = scene.TrackedObject{}
	assert.Equal(t, "a", h.studio.ObjectsInScene()[0].Name)
}
