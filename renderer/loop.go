package renderer

import (
	"errors"

	"go.uber.org/zap"
)

// Animate starts the render loop on the frame scheduler.
func (s *Studio) Animate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.animating || s.disposed {
		return
	}
	s.animating = true
	s.frameID = s.backends.Scheduler.RequestFrame(s.tick)
}

// Stop cancels the pending frame. The loop can be restarted with Animate.
func (s *Studio) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Studio) stopLocked() {
	if !s.animating {
		return
	}
	s.backends.Scheduler.CancelFrame(s.frameID)
	s.animating = false
	s.frameID = 0
}

// Animating reports whether a frame is scheduled.
func (s *Studio) Animating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.animating
}

func (s *Studio) tick() {
	if err := s.Step(); err != nil && !errors.Is(err, ErrDisposed) {
		s.logger.Warn("frame failed", zap.Error(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.animating && !s.disposed {
		s.frameID = s.backends.Scheduler.RequestFrame(s.tick)
	}
}

// Step renders one frame. In path-traced mode it accumulates one sample
// batch until the sample ceiling, then pauses the tracer. A path tracer
// failure switches to the rasterized view, renders one rasterized frame and
// is published on Faults; Step itself only fails for rasterizer errors.
func (s *Studio) Step() error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if c := s.controls; c != nil {
		c.Update()
	}

	if s.mode != ModePathTraced {
		err := s.renderRasterLocked()
		s.mu.Unlock()
		return err
	}

	fault, err := s.stepPathTracerLocked()
	s.mu.Unlock()
	if fault != nil {
		s.Faults.Emit(fault)
	}
	return err
}

// stepPathTracerLocked advances the path tracer by one sample batch. Callers
// hold s.mu.
func (s *Studio) stepPathTracerLocked() (*PathTracerFault, error) {
	if s.queue.busy() {
		// Mirror rebuild in flight.
		s.metrics.RecordSkippedFrame()
		return nil, nil
	}

	pt := s.backends.PathTracer
	ceiling := s.cfg.PathTracer.SampleCeiling
	if pt.Samples() >= ceiling {
		pt.SetPaused(true)
		return nil, nil
	}

	if err := recoverFault(pt.RenderSample); err != nil {
		fault := &PathTracerFault{Op: "sample", Err: err}
		s.metrics.RecordFault(fault.Op)
		s.logger.Error("path tracer sample failed, falling back to rasterized view", zap.Error(err))
		s.mode = ModeRasterized
		s.restoreChromeLocked()
		return fault, s.renderRasterLocked()
	}

	samples := pt.Samples()
	s.metrics.SetSamples(samples)
	s.metrics.RecordFrame(ModePathTraced.String())
	if samples >= ceiling {
		pt.SetPaused(true)
		s.logger.Debug("sample ceiling reached", zap.Int("samples", samples))
	}
	return nil, nil
}

// renderRasterLocked draws one rasterized frame, through the composer when
// one is configured. Callers hold s.mu.
func (s *Studio) renderRasterLocked() error {
	var err error
	if s.backends.Composer != nil {
		err = s.backends.Composer.Render(s.scene, s.camera)
	} else {
		err = s.backends.Rasterizer.Render(s.scene, s.camera)
	}
	if err != nil {
		return err
	}
	s.metrics.RecordFrame(ModeRasterized.String())
	return nil
}
