// Package environment manages the background and image-based lighting of a
// scene, including the blurred copy used by the path tracer and the
// procedural sky fallback.
package environment

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"scene-studio/internal/event"
	"scene-studio/scene"
)

// Options configures a Manager.
type Options struct {
	UseHDRI        bool
	DefaultHDRI    string
	HDRIBackground bool
	Intensity      float32
	BlurRadius     float64
	BlurWidth      int
	Sky            SkyGradient
	SkyWidth       int
	SkyHeight      int
}

func DefaultOptions() Options {
	return Options{
		UseHDRI:        true,
		DefaultHDRI:    "/hdri/brown_photostudio_02_1k.hdr",
		HDRIBackground: true,
		Intensity:      1,
		BlurRadius:     4,
		BlurWidth:      256,
		Sky:            DefaultSky(),
		SkyWidth:       256,
		SkyHeight:      128,
	}
}

// BackgroundOptions selects which slots an image load installs. The zero
// value installs the image as both background and illumination.
type BackgroundOptions struct {
	SkipBackground  bool
	SkipEnvironment bool
}

// Change describes what an install touched.
type Change struct {
	Background  bool
	Environment bool
	Intensity   bool
}

type slots struct {
	background  *scene.Texture
	environment *scene.Texture
	blurred     *scene.Texture
}

func (s slots) list() []*scene.Texture {
	return []*scene.Texture{s.background, s.environment, s.blurred}
}

func (s slots) references(t *scene.Texture) bool {
	return t == s.background || t == s.environment || t == s.blurred
}

// Manager owns the textures installed on a scene. Whoever installs a texture
// through the Manager hands it over; replaced textures are disposed unless
// another slot still references them.
type Manager struct {
	mu               sync.Mutex
	scene            *scene.Scene
	loader           Loader
	opts             Options
	logger           *zap.Logger
	tracer           trace.Tracer
	fallback         *scene.Texture
	customBackground bool
	disposed         bool
	sceneLock        sync.Locker
	// stale holds replaced textures until publish releases them.
	stale    []*scene.Texture
	releaser func(release func())

	Changed event.Emitter[Change]
}

func NewManager(s *scene.Scene, loader Loader, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.EnvironmentIntensity = opts.Intensity
	return &Manager{
		scene:     s,
		loader:    loader,
		opts:      opts,
		logger:    logger.Named("environment"),
		tracer:    otel.Tracer("scene-studio/environment"),
		sceneLock: nopLocker{},
	}
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// SetSceneLock makes the Manager hold l while it writes scene fields, for
// hosts that read the scene from a render goroutine. l is always acquired
// after the Manager's own lock.
func (m *Manager) SetSceneLock(l sync.Locker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l == nil {
		l = nopLocker{}
	}
	m.sceneLock = l
}

// SetReleaser routes the disposal of replaced textures through fn. Hosts
// whose readers may still hold a replaced texture after the change listeners
// ran use it to delay the release; fn must call release exactly once.
func (m *Manager) SetReleaser(fn func(release func())) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaser = fn
}

// Setup installs the initial illumination: the configured HDRI, or the
// procedural sky when none is configured or it fails to load.
func (m *Manager) Setup(ctx context.Context) error {
	if m.opts.UseHDRI && m.opts.DefaultHDRI != "" {
		_, err := m.LoadEnvironmentFromURL(ctx, m.opts.DefaultHDRI)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		m.logger.Warn("default HDRI unavailable, using procedural sky",
			zap.String("path", m.opts.DefaultHDRI), zap.Error(err))
	}
	m.installFallback()
	return nil
}

func (m *Manager) installFallback() {
	sky := m.CreateProceduralFallback()
	m.mu.Lock()
	m.swap(slots{environment: sky, blurred: sky})
	m.customBackground = false
	m.mu.Unlock()
	m.publish(Change{Background: true, Environment: true})
}

// LoadEnvironmentFromURL loads an equirectangular HDRI and installs it as
// illumination, and as background unless a custom background is shown. On
// failure nothing changes and a *LoadError is returned.
func (m *Manager) LoadEnvironmentFromURL(ctx context.Context, url string) (*scene.Texture, error) {
	ctx, span := m.tracer.Start(ctx, "environment.LoadEnvironmentFromURL",
		trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	tex, err := m.loader.LoadEquirectangular(ctx, url)
	if err != nil {
		err = asLoadError(url, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}
	tex.Mapping = scene.MappingEquirectangular
	blurred := Blur(tex, m.opts.BlurRadius, m.opts.BlurWidth)

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		disposeAll(m.logger, tex, blurred)
		return nil, errors.New("environment manager disposed")
	}
	next := m.current()
	next.environment = tex
	next.blurred = blurred
	change := Change{Environment: true}
	if m.opts.HDRIBackground && !m.customBackground {
		next.background = tex
		change.Background = true
	}
	m.swap(next)
	m.mu.Unlock()

	m.logger.Info("environment installed", zap.String("url", url),
		zap.Int("width", tex.Width), zap.Int("height", tex.Height))
	m.publish(change)
	return tex, nil
}

// LoadBackgroundFromFile decodes an image picked by the user.
func (m *Manager) LoadBackgroundFromFile(ctx context.Context, name string, data []byte, opts BackgroundOptions) (*scene.Texture, error) {
	return m.loadBackground(ctx, Source{Name: name, Data: data}, opts)
}

// LoadBackgroundFromURL decodes an image from a URL, data URL or asset path.
func (m *Manager) LoadBackgroundFromURL(ctx context.Context, url string, opts BackgroundOptions) (*scene.Texture, error) {
	return m.loadBackground(ctx, Source{URL: url}, opts)
}

func (m *Manager) loadBackground(ctx context.Context, src Source, opts BackgroundOptions) (*scene.Texture, error) {
	if opts.SkipBackground && opts.SkipEnvironment {
		return nil, errors.New("background load installs nothing")
	}
	ctx, span := m.tracer.Start(ctx, "environment.LoadBackground",
		trace.WithAttributes(attribute.String("source", src.label())))
	defer span.End()

	tex, err := m.loader.LoadImage(ctx, src)
	if err != nil {
		err = asLoadError(src.label(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}

	var env, blurred *scene.Texture
	if !opts.SkipEnvironment {
		env = tex.Clone()
		env.Mapping = scene.MappingEquirectangular
		blurred = Blur(env, m.opts.BlurRadius, m.opts.BlurWidth)
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		disposeAll(m.logger, tex, env, blurred)
		return nil, errors.New("environment manager disposed")
	}
	next := m.current()
	change := Change{}
	if !opts.SkipBackground {
		next.background = tex
		m.customBackground = true
		change.Background = true
	}
	if !opts.SkipEnvironment {
		next.environment = env
		next.blurred = blurred
		change.Environment = true
	}
	m.swap(next)
	m.mu.Unlock()

	m.publish(change)
	if opts.SkipBackground {
		// tex only served as the source of the environment clone.
		disposeAll(m.logger, tex)
		return env, nil
	}
	return tex, nil
}

// ResetToDefault reloads the configured HDRI and drops any custom
// background. Without an HDRI the procedural sky is installed.
func (m *Manager) ResetToDefault(ctx context.Context) error {
	if !m.opts.UseHDRI || m.opts.DefaultHDRI == "" {
		m.installFallback()
		return nil
	}

	tex, err := m.loader.LoadEquirectangular(ctx, m.opts.DefaultHDRI)
	if err != nil {
		return asLoadError(m.opts.DefaultHDRI, err)
	}
	tex.Mapping = scene.MappingEquirectangular
	blurred := Blur(tex, m.opts.BlurRadius, m.opts.BlurWidth)

	next := slots{environment: tex, blurred: blurred}
	if m.opts.HDRIBackground {
		next.background = tex
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		disposeAll(m.logger, tex, blurred)
		return errors.New("environment manager disposed")
	}
	m.swap(next)
	m.customBackground = false
	m.mu.Unlock()

	m.publish(Change{Background: true, Environment: true})
	return nil
}

// CreateProceduralFallback bakes the gradient sky once and returns the
// cached texture on later calls. The Manager keeps ownership of it.
func (m *Manager) CreateProceduralFallback() *scene.Texture {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fallback == nil || m.fallback.Disposed() {
		m.fallback = m.opts.Sky.Bake(m.opts.SkyWidth, m.opts.SkyHeight)
	}
	return m.fallback
}

// OnChange registers fn for every install or intensity change.
func (m *Manager) OnChange(fn func(Change)) *event.Subscription {
	return m.Changed.Subscribe(fn)
}

// SetEnvMapIntensity changes the strength of image-based lighting.
func (m *Manager) SetEnvMapIntensity(v float32) {
	m.mu.Lock()
	m.sceneLock.Lock()
	m.scene.EnvironmentIntensity = v
	m.sceneLock.Unlock()
	m.mu.Unlock()
	m.Changed.Emit(Change{Intensity: true})
}

func (m *Manager) Environment() *scene.Texture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scene.Environment
}

func (m *Manager) Background() *scene.Texture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scene.Background
}

func (m *Manager) Blurred() *scene.Texture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scene.BlurredEnvironment
}

// HasCustomBackground reports whether a user image replaced the HDRI backdrop.
func (m *Manager) HasCustomBackground() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customBackground
}

// Dispose releases every installed texture and the cached sky.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return nil
	}
	m.disposed = true

	cur := m.current()
	m.sceneLock.Lock()
	m.scene.Background = nil
	m.scene.Environment = nil
	m.scene.BlurredEnvironment = nil
	m.sceneLock.Unlock()
	errs := disposeUnique(append(append(cur.list(), m.fallback), m.stale...))
	m.fallback = nil
	m.stale = nil
	return errors.Join(errs...)
}

func (m *Manager) current() slots {
	return slots{
		background:  m.scene.Background,
		environment: m.scene.Environment,
		blurred:     m.scene.BlurredEnvironment,
	}
}

// swap installs next and queues the textures next no longer references for
// the following publish. Callers hold m.mu.
func (m *Manager) swap(next slots) {
	for _, t := range m.current().list() {
		if t != nil && t != m.fallback && !next.references(t) {
			m.stale = append(m.stale, t)
		}
	}

	m.sceneLock.Lock()
	m.scene.Background = next.background
	m.scene.Environment = next.environment
	m.scene.BlurredEnvironment = next.blurred
	m.sceneLock.Unlock()
}

// publish notifies listeners of c, then releases the textures replaced
// since the last publish. Listeners run first so they can drop their
// references to the old textures.
func (m *Manager) publish(c Change) {
	m.Changed.Emit(c)

	m.mu.Lock()
	stale := m.stale
	m.stale = nil
	releaser := m.releaser
	m.mu.Unlock()
	if len(stale) == 0 {
		return
	}
	release := func() { disposeAll(m.logger, stale...) }
	if releaser == nil {
		release()
		return
	}
	releaser(release)
}

func disposeUnique(textures []*scene.Texture) []error {
	seen := make(map[*scene.Texture]struct{}, len(textures))
	var errs []error
	for _, t := range textures {
		if t == nil {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if err := t.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func disposeAll(logger *zap.Logger, textures ...*scene.Texture) {
	for _, err := range disposeUnique(textures) {
		logger.Warn("texture dispose failed", zap.Error(err))
	}
}
