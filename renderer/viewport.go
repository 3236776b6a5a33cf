package renderer

import (
	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"scene-studio/internal/event"
)

// Viewport describes the canvas after a resize. Width and Height are in
// logical pixels.
type Viewport struct {
	Width      int
	Height     int
	PixelRatio float32
	Aspect     float32
	Portrait   bool
}

// PhysicalSize returns the drawing buffer size in device pixels.
func (v Viewport) PhysicalSize() (int, int) {
	return int(math32.Round(float32(v.Width) * v.PixelRatio)), int(math32.Round(float32(v.Height) * v.PixelRatio))
}

// Viewport returns the size published by the last Resize.
func (s *Studio) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// OnViewportChange registers fn for every Resize. Components that depend on
// the canvas size subscribe here instead of sharing global state.
func (s *Studio) OnViewportChange(fn func(Viewport)) *event.Subscription {
	return s.viewportChanged.Subscribe(fn)
}

// Resize reads the container size and applies it to the rasterizer, the
// camera, the composer and the path tracer in one step, so no frame renders
// with a partial update. An empty container leaves everything unchanged.
func (s *Studio) Resize() Viewport {
	s.mu.Lock()
	if s.disposed {
		vp := s.viewport
		s.mu.Unlock()
		return vp
	}
	w, h := s.backends.Container.Size()
	if w <= 0 || h <= 0 {
		vp := s.viewport
		s.mu.Unlock()
		s.logger.Debug("ignoring empty container size", zap.Int("width", w), zap.Int("height", h))
		return vp
	}
	ratio := s.backends.Container.PixelRatio()
	if ratio <= 0 {
		ratio = 1
	}
	ratio = math32.Min(ratio, s.cfg.Renderer.PixelRatio)

	vp := Viewport{
		Width:      w,
		Height:     h,
		PixelRatio: ratio,
		Aspect:     float32(w) / float32(h),
		Portrait:   h > w,
	}
	s.backends.Rasterizer.SetPixelRatio(ratio)
	s.backends.Rasterizer.SetSize(w, h)
	s.camera.UpdateAspectRatio(float32(w), float32(h))
	if c := s.backends.Composer; c != nil {
		c.SetSize(vp.PhysicalSize())
	}
	if pt := s.backends.PathTracer; pt != nil {
		pt.UpdateCamera(s.cameraSnapshotLocked())
		pt.SetPaused(false)
	}
	orientation := vp.Portrait != s.viewport.Portrait
	s.viewport = vp
	s.mu.Unlock()

	if orientation {
		s.logger.Debug("orientation changed", zap.Bool("portrait", vp.Portrait))
	}
	s.viewportChanged.Emit(vp)
	return vp
}
