package renderer

import (
	"context"
	"fmt"
	"strings"

	"scene-studio/environment"
	"scene-studio/internal/event"
	"scene-studio/scene"
)

// Rasterizer draws the live scene in real time.
type Rasterizer interface {
	Render(s *scene.Scene, cam *scene.Camera) error
	// SetSize sets the canvas size in logical pixels.
	SetSize(width, height int)
	SetPixelRatio(ratio float32)
	// NewRenderTarget allocates an offscreen target in physical pixels.
	NewRenderTarget(width, height int) (RenderTarget, error)
	RenderTo(target RenderTarget, s *scene.Scene, cam *scene.Camera) error
	// ReadPixels copies the target into dst as RGBA8 rows, bottom row first.
	ReadPixels(target RenderTarget, dst []byte) error
	Dispose() error
}

type RenderTarget interface {
	Size() (width, height int)
	Dispose() error
}

// Composer is an optional post-processing chain in front of the rasterizer.
type Composer interface {
	Render(s *scene.Scene, cam *scene.Camera) error
	// SetSize updates the pass resolution in physical pixels.
	SetSize(width, height int)
	Dispose() error
}

// PathTracerSettings mirrors the progressive renderer options.
type PathTracerSettings struct {
	TilesX, TilesY             int
	MultipleImportanceSampling bool
	TransmissiveBounces        int
	MinSamples                 int
}

// IngestOptions is passed to PathTracer.SetScene.
type IngestOptions struct {
	OnProgress func(fraction float32)
}

// PathTracer is a progressive GPU path tracer working on its own copy of the
// scene. Cameras passed in are snapshots the tracer may keep.
//
// The Studio never calls RenderSample while SetScene is running. Other
// methods may arrive from a different goroutine than SetScene.
type PathTracer interface {
	Configure(settings PathTracerSettings)
	SetScene(ctx context.Context, mirror *scene.Scene, cam *scene.Camera, opts IngestOptions) error
	RenderSample() error
	Samples() int
	SetPaused(paused bool)
	UpdateCamera(cam *scene.Camera)
	UpdateEnvironment()
	UpdateLights()
	Dispose() error
}

// Controls is the camera navigation. Update and the OnChange callbacks run
// on the render loop.
type Controls interface {
	SetEnabled(enabled bool)
	Enabled() bool
	Update() bool
	OnChange(fn func(*scene.Camera)) *event.Subscription
	Dispose()
}

// FrameScheduler runs callbacks once per display frame. RequestFrame must not
// call fn before it returns.
type FrameScheduler interface {
	RequestFrame(fn func()) uint64
	CancelFrame(id uint64)
}

// Container reports the size of the element hosting the canvas.
type Container interface {
	Size() (width, height int)
	PixelRatio() float32
}

// ModelImporter decodes a model payload into a node tree.
type ModelImporter interface {
	Import(ctx context.Context, name string, data []byte) (*scene.Node, error)
}

// Backends gathers the collaborators a Studio drives. Rasterizer, Scheduler,
// Container, Importer and Loader are required.
type Backends struct {
	Rasterizer  Rasterizer
	Composer    Composer
	PathTracer  PathTracer
	// NewControls builds the camera navigation for the studio camera.
	NewControls func(cam *scene.Camera) Controls
	Scheduler   FrameScheduler
	Container   Container
	Importer    ModelImporter
	Loader      environment.Loader
}

func (b Backends) validate() error {
	var missing []string
	if b.Rasterizer == nil {
		missing = append(missing, "rasterizer")
	}
	if b.Scheduler == nil {
		missing = append(missing, "scheduler")
	}
	if b.Container == nil {
		missing = append(missing, "container")
	}
	if b.Importer == nil {
		missing = append(missing, "importer")
	}
	if b.Loader == nil {
		missing = append(missing, "loader")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing backends: %s", strings.Join(missing, ", "))
	}
	return nil
}
