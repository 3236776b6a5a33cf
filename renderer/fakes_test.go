package renderer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"scene-studio/config"
	"scene-studio/editor"
	"scene-studio/environment"
	"scene-studio/scene"
)

const testHDRI = "/hdri/test.hdr"

// fakeTarget is an offscreen target of the fake rasterizer.
type fakeTarget struct {
	w, h     int
	disposed bool
}

func (t *fakeTarget) Size() (int, int) { return t.w, t.h }

func (t *fakeTarget) Dispose() error {
	t.disposed = true
	return nil
}

// renderCall records what a draw saw.
type renderCall struct {
	aspect        float32
	visibleChrome int
	target        *fakeTarget
}

type fakeRasterizer struct {
	mu        sync.Mutex
	renders   []renderCall
	offscreen []renderCall
	width     int
	height    int
	ratio     float32
	sizeCalls int
	targets   []*fakeTarget
	renderErr error
	disposed  int
}

// visibleChrome counts editor visuals that would reach the frame.
func visibleChrome(s *scene.Scene) int {
	n := 0
	s.Root.Traverse(func(node *scene.Node) {
		switch node.Kind() {
		case scene.KindOverlay, scene.KindGizmo:
			if node.EffectivelyVisible() {
				n++
			}
		}
	})
	return n
}

func (r *fakeRasterizer) Render(s *scene.Scene, cam *scene.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, renderCall{aspect: cam.AspectRatio, visibleChrome: visibleChrome(s)})
	return r.renderErr
}

func (r *fakeRasterizer) SetSize(w, h int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = w, h
	r.sizeCalls++
}

func (r *fakeRasterizer) SetPixelRatio(ratio float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratio = ratio
}

func (r *fakeRasterizer) NewRenderTarget(w, h int) (RenderTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeTarget{w: w, h: h}
	r.targets = append(r.targets, t)
	return t, nil
}

func (r *fakeRasterizer) RenderTo(target RenderTarget, s *scene.Scene, cam *scene.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offscreen = append(r.offscreen, renderCall{
		aspect:        cam.AspectRatio,
		visibleChrome: visibleChrome(s),
		target:        target.(*fakeTarget),
	})
	return nil
}

// ReadPixels fills row y (bottom first) with the value y.
func (r *fakeRasterizer) ReadPixels(target RenderTarget, dst []byte) error {
	w, h := target.Size()
	if len(dst) < w*h*4 {
		return errors.New("short buffer")
	}
	for y := 0; y < h; y++ {
		row := dst[y*w*4 : (y+1)*w*4]
		for i := range row {
			row[i] = byte(y)
		}
	}
	return nil
}

func (r *fakeRasterizer) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed++
	return nil
}

func (r *fakeRasterizer) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

func (r *fakeRasterizer) lastRender() renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders[len(r.renders)-1]
}

type fakeComposer struct {
	mu      sync.Mutex
	renders int
	width   int
	height  int
}

func (c *fakeComposer) Render(*scene.Scene, *scene.Camera) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renders++
	return nil
}

func (c *fakeComposer) SetSize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = w, h
}

func (c *fakeComposer) Dispose() error { return nil }

type fakePathTracer struct {
	mu            sync.Mutex
	settings      PathTracerSettings
	mirrors       []*scene.Scene
	mirrorNames   [][]string
	setSceneCalls int
	inFlight      int
	maxInFlight   int
	samples       int
	sampleCalls   int
	paused        bool
	cameraCalls   int
	envCalls      int
	lightCalls    int
	disposed      bool

	ingestErr   error
	sampleErr   error
	samplePanic bool

	// gate, when set, blocks SetScene until a value is received. started
	// receives one value per SetScene entry.
	gate    chan struct{}
	started chan struct{}
}

func (p *fakePathTracer) Configure(settings PathTracerSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
}

func (p *fakePathTracer) SetScene(ctx context.Context, mirror *scene.Scene, cam *scene.Camera, opts IngestOptions) error {
	p.mu.Lock()
	p.setSceneCalls++
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	var names []string
	for _, c := range mirror.Root.Children {
		names = append(names, c.Name)
	}
	p.mirrorNames = append(p.mirrorNames, names)
	p.mirrors = append(p.mirrors, mirror)
	gate, started, err := p.gate, p.started, p.ingestErr
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if opts.OnProgress != nil {
		opts.OnProgress(1)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	if err == nil {
		p.samples = 0
	}
	return err
}

func (p *fakePathTracer) RenderSample() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sampleCalls++
	if p.samplePanic {
		panic("GPU context lost")
	}
	if p.sampleErr != nil {
		return p.sampleErr
	}
	p.samples++
	return nil
}

func (p *fakePathTracer) Samples() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples
}

func (p *fakePathTracer) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}

func (p *fakePathTracer) UpdateCamera(*scene.Camera) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cameraCalls++
	p.samples = 0
}

func (p *fakePathTracer) UpdateEnvironment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envCalls++
}

func (p *fakePathTracer) UpdateLights() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lightCalls++
}

func (p *fakePathTracer) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed = true
	return nil
}

func (p *fakePathTracer) rebuilds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setSceneCalls
}

func (p *fakePathTracer) lastMirror() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mirrorNames[len(p.mirrorNames)-1]
}

func (p *fakePathTracer) cameraUpdates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cameraCalls
}

// fakeScheduler queues frame callbacks until runFrame is called.
type fakeScheduler struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]func()
}

func (f *fakeScheduler) RequestFrame(fn func()) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = map[uint64]func(){}
	}
	f.next++
	f.pending[f.next] = fn
	return f.next
}

func (f *fakeScheduler) CancelFrame(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, id)
}

func (f *fakeScheduler) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// runFrame runs the callbacks queued so far and reports how many ran.
func (f *fakeScheduler) runFrame() int {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.pending))
	for id, fn := range f.pending {
		fns = append(fns, fn)
		delete(f.pending, id)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

type fakeContainer struct {
	mu    sync.Mutex
	w, h  int
	ratio float32
}

func (c *fakeContainer) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w, c.h
}

func (c *fakeContainer) PixelRatio() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratio
}

func (c *fakeContainer) set(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w, c.h = w, h
}

// fakeImporter builds a box model for every payload except "corrupt".
type fakeImporter struct{}

func (fakeImporter) Import(ctx context.Context, name string, data []byte) (*scene.Node, error) {
	if string(data) == "corrupt" {
		return nil, &scene.ParseError{Source: name, Err: errors.New("bad magic")}
	}
	return boxModel(name, 10, 4, 2), nil
}

type fakeLoader struct {
	mu     sync.Mutex
	hdris  map[string]bool
	images map[string]bool
}

func (f *fakeLoader) LoadEquirectangular(ctx context.Context, url string) (*scene.Texture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hdris[url] {
		return nil, &environment.LoadError{Source: url, Err: errors.New("connection refused")}
	}
	tex := environment.DefaultSky().Bake(8, 4)
	tex.Name = url
	return tex, nil
}

func (f *fakeLoader) LoadImage(ctx context.Context, src environment.Source) (*scene.Texture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := src.URL
	if key == "" {
		key = src.Name
	}
	if !f.images[key] {
		return nil, errors.New("unsupported image")
	}
	tex := scene.NewSolidTexture(key, 200, 100, 50, 255)
	return tex, nil
}

// boxModel returns a group holding one box mesh of the given size.
func boxModel(name string, w, h, d float32) *scene.Node {
	root := scene.NewGroup(name)
	root.AddChild(scene.NewMeshNode(name+"-mesh", scene.CreateBox(w, h, d), scene.DefaultMaterial()))
	return root
}

type harness struct {
	studio    *Studio
	raster    *fakeRasterizer
	composer  *fakeComposer
	pt        *fakePathTracer
	scheduler *fakeScheduler
	container *fakeContainer
	loader    *fakeLoader
	orbit     *editor.OrbitControls
}

type harnessSetup struct {
	cfg      config.Config
	backends Backends
	opts     []Option
}

type harnessOption func(*harnessSetup)

func withoutPathTracer() harnessOption {
	return func(hs *harnessSetup) { hs.backends.PathTracer = nil }
}

func withComposer(c *fakeComposer) harnessOption {
	return func(hs *harnessSetup) { hs.backends.Composer = c }
}

func withConfig(fn func(*config.Config)) harnessOption {
	return func(hs *harnessSetup) { fn(&hs.cfg) }
}

func withStudioOption(opt Option) harnessOption {
	return func(hs *harnessSetup) { hs.opts = append(hs.opts, opt) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		raster:    &fakeRasterizer{},
		pt:        &fakePathTracer{},
		scheduler: &fakeScheduler{},
		container: &fakeContainer{w: 800, h: 600, ratio: 1},
		loader:    &fakeLoader{hdris: map[string]bool{testHDRI: true}, images: map[string]bool{}},
	}

	hs := &harnessSetup{cfg: config.Default()}
	hs.cfg.Environment.HDRIPath = testHDRI
	hs.cfg.Environment.BlurWidth = 8
	hs.cfg.Environment.Sky.Width = 8
	hs.cfg.Environment.Sky.Height = 4
	hs.backends = Backends{
		Rasterizer: h.raster,
		PathTracer: h.pt,
		NewControls: func(cam *scene.Camera) Controls {
			h.orbit = editor.NewOrbitControls(cam)
			return h.orbit
		},
		Scheduler: h.scheduler,
		Container: h.container,
		Importer:  fakeImporter{},
		Loader:    h.loader,
	}
	hs.opts = []Option{WithLogger(zaptest.NewLogger(t))}
	for _, opt := range opts {
		opt(hs)
	}
	if c, ok := hs.backends.Composer.(*fakeComposer); ok {
		h.composer = c
	}

	s, err := New(hs.cfg, hs.backends, hs.opts...)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(s.Dispose)
	h.studio = s
	return h
}
