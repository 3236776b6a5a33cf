package renderer

import (
	"go.uber.org/zap"

	"scene-studio/scene"
)

// Dispose stops the render loop and releases every resource the studio
// holds, including the geometry and textures of the whole scene graph.
// Failures are logged and never stop the teardown. Later calls do nothing.
func (s *Studio) Dispose() {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.stopLocked()

	s.logDisposal("highlight", s.highlighter.Dispose())
	s.controller.Dispose()
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil
	s.chrome = nil
	s.commits = nil
	s.logDisposal("capture target", s.offscreen.dispose())

	if pt := s.backends.PathTracer; pt != nil {
		s.logDisposal("path tracer", recoverFault(pt.Dispose))
	}
	if c := s.backends.Composer; c != nil {
		s.logDisposal("composer", c.Dispose())
	}
	if c := s.controls; c != nil {
		c.Dispose()
	}
	if s.mirror != nil {
		s.mirror.Clear()
		s.mirror.Background, s.mirror.Environment, s.mirror.BlurredEnvironment = nil, nil, nil
	}
	s.mu.Unlock()

	// The environment manager takes s.mu itself.
	s.logDisposal("environment", s.env.Dispose())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logDisposal("rasterizer", s.backends.Rasterizer.Dispose())
	s.logDisposal("scene graph", scene.DisposeTree(s.scene.Root))
	s.scene.Clear()
	s.store.Reset()
	s.metrics.SetTrackedObjects(0)
	s.logger.Info("studio disposed", zap.String("mode", s.mode.String()))
}
