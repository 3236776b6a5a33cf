package renderer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"scene-studio/editor"
	"scene-studio/environment"
	"scene-studio/scene"
)

// rebuildBatch is one mirror rebuild shared by every request that arrived
// before it started.
type rebuildBatch struct {
	done chan struct{}
	err  error
}

// rebuildQueue holds at most one pending batch behind the running one.
// Fields are guarded by Studio.mu.
type rebuildQueue struct {
	pending *rebuildBatch
	running bool
}

// busy reports whether a rebuild is running or waiting to run.
func (q *rebuildQueue) busy() bool {
	return q.running || q.pending != nil
}

// enqueueLocked requests a mirror rebuild and returns the batch that will
// carry it out. Requests made while a rebuild runs join the single pending
// batch. Callers hold s.mu.
func (s *Studio) enqueueLocked() *rebuildBatch {
	if s.queue.pending == nil {
		s.queue.pending = &rebuildBatch{done: make(chan struct{})}
	}
	b := s.queue.pending
	if !s.queue.running {
		s.queue.running = true
		go s.drainRebuilds()
	}
	return b
}

// drainRebuilds runs batches until the queue is empty. A batch is marked
// done under s.mu together with the queue update, so a waiter that wakes up
// never sees a stale busy queue. Resources retired during an ingest are
// released once the next mirror no longer references them, or when the
// queue runs dry.
func (s *Studio) drainRebuilds() {
	s.mu.Lock()
	for {
		b := s.queue.pending
		if b == nil {
			s.queue.running = false
			s.releaseRetiredLocked()
			s.mu.Unlock()
			return
		}
		s.queue.pending = nil
		if s.disposed {
			b.err = ErrDisposed
			close(b.done)
			continue
		}
		mirror := s.buildMirrorLocked()
		cam := s.cameraSnapshotLocked()
		s.releaseRetiredLocked()
		s.mu.Unlock()

		err := s.ingest(mirror, cam)

		s.mu.Lock()
		b.err = err
		close(b.done)
	}
}

// retire runs release once no mirror ingest that may share the released
// resources is in flight.
func (s *Studio) retire(release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retireLocked(release)
}

// retireLocked defers release while a rebuild runs: the mirror being
// ingested shares geometry, materials and textures with the live scene.
// Callers hold s.mu.
func (s *Studio) retireLocked(release func()) {
	if s.queue.running {
		s.retired = append(s.retired, release)
		return
	}
	release()
}

func (s *Studio) releaseRetiredLocked() {
	retired := s.retired
	s.retired = nil
	for _, release := range retired {
		release()
	}
}

// wait blocks until b finished or ctx is done. The rebuild itself is never
// cancelled.
func (s *Studio) wait(ctx context.Context, b *rebuildBatch) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cameraSnapshotLocked copies the live camera for the path tracer.
func (s *Studio) cameraSnapshotLocked() *scene.Camera {
	cam := *s.camera
	return &cam
}

// buildMirrorLocked repopulates the path tracer's scene from the live graph.
// Lights are cloned one per light source at their world position; every
// other top-level object is deep-cloned unless it is editor chrome or hidden
// from the path tracer. Callers hold s.mu.
func (s *Studio) buildMirrorLocked() *scene.Scene {
	if s.mirror == nil {
		s.mirror = scene.NewScene()
		s.mirror.Root.Name = "PathTracerMirror"
	}
	m := s.mirror
	m.Clear()
	s.copyEnvironmentLocked()

	for _, light := range s.scene.Lights() {
		if !light.VisibleInPathTracer() || light.IsEditorChrome() {
			continue
		}
		c := scene.NewLightNode(light.Name, cloneLight(light.Light))
		c.SetPosition(light.WorldPosition())
		m.Add(c)
	}

	skip := func(n *scene.Node) bool {
		return n.Kind() == scene.KindLight || n.IsEditorChrome() || !n.VisibleInPathTracer()
	}
	for _, n := range s.scene.TopLevel() {
		switch n.Kind() {
		case scene.KindLight, scene.KindGizmo, scene.KindHelper, scene.KindOverlay:
			continue
		case scene.KindGroup, scene.KindMesh:
		}
		if n.Tags.UI || !n.VisibleInPathTracer() {
			continue
		}
		m.Add(n.CloneFiltered(skip))
	}
	return m
}

func cloneLight(l *scene.Light) *scene.Light {
	c := l.Clone()
	return &c
}

// copyEnvironmentLocked points the mirror at the live textures. The path
// tracer samples the blurred environment for lighting.
func (s *Studio) copyEnvironmentLocked() {
	if s.mirror == nil {
		return
	}
	s.mirror.Background = s.scene.Background
	s.mirror.Environment = s.scene.BlurredEnvironment
	if s.mirror.Environment == nil {
		s.mirror.Environment = s.scene.Environment
	}
	s.mirror.BlurredEnvironment = s.scene.BlurredEnvironment
	s.mirror.EnvironmentIntensity = s.scene.EnvironmentIntensity
	s.mirror.BackgroundColor = s.scene.BackgroundColor
}

// ingest hands the mirror to the path tracer. A failure forces the
// rasterized view and is returned as a *PathTracerFault.
func (s *Studio) ingest(mirror *scene.Scene, cam *scene.Camera) error {
	ctx, span := s.tracer.Start(context.Background(), "studio.RebuildMirror",
		trace.WithAttributes(attribute.Int("nodes", len(mirror.Root.Children))))
	defer span.End()

	start := time.Now()
	pt := s.backends.PathTracer
	err := recoverFault(func() error {
		return pt.SetScene(ctx, mirror, cam, IngestOptions{
			OnProgress: func(f float32) {
				s.logger.Debug("mirror ingest progress", zap.Float32("fraction", f))
			},
		})
	})
	elapsed := time.Since(start)
	s.metrics.RecordRebuild(err, elapsed)

	if err == nil {
		s.mu.Lock()
		pt.SetPaused(false)
		s.mu.Unlock()
		s.metrics.SetSamples(0)
		s.logger.Debug("mirror rebuilt", zap.Int("nodes", len(mirror.Root.Children)), zap.Duration("elapsed", elapsed))
		return nil
	}

	fault := &PathTracerFault{Op: "ingest", Err: err}
	span.RecordError(fault)
	span.SetStatus(codes.Error, "ingest failed")
	s.metrics.RecordFault(fault.Op)
	s.logger.Error("path tracer ingest failed, falling back to rasterized view", zap.Error(err))

	s.mu.Lock()
	s.mode = ModeRasterized
	s.restoreChromeLocked()
	s.mu.Unlock()
	s.Faults.Emit(fault)
	return fault
}

func (s *Studio) hideChromeLocked() {
	if s.chrome == nil {
		s.chrome = editor.HideAll(s.scene.Root)
	}
}

func (s *Studio) restoreChromeLocked() {
	s.chrome.Restore()
	s.chrome = nil
}

// EnablePathTracing switches between the rasterized and path-traced views.
// Enabling waits for a full mirror rebuild before the mode flips, so the
// first path-traced frame never sees a stale mirror. Disabling flips at once
// and renders one rasterized frame. Repeating the current mode is a no-op.
func (s *Studio) EnablePathTracing(ctx context.Context, enable bool) error {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if enable && s.backends.PathTracer == nil {
		s.mu.Unlock()
		return ErrNoPathTracer
	}
	if (s.mode == ModePathTraced) == enable {
		s.mu.Unlock()
		return nil
	}

	if !enable {
		s.mode = ModeRasterized
		s.restoreChromeLocked()
		err := s.renderRasterLocked()
		s.mu.Unlock()
		s.logger.Info("path tracing disabled")
		return err
	}

	s.hideChromeLocked()
	b := s.enqueueLocked()
	s.mu.Unlock()

	if err := s.wait(ctx, b); err != nil {
		s.mu.Lock()
		if s.mode != ModePathTraced {
			s.restoreChromeLocked()
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	s.mode = ModePathTraced
	s.logger.Info("path tracing enabled")
	return nil
}

// requestRebuildLocked queues a rebuild when path tracing is active and
// returns the batch, or nil. Callers hold s.mu.
func (s *Studio) requestRebuildLocked() *rebuildBatch {
	if s.mode != ModePathTraced || s.backends.PathTracer == nil {
		return nil
	}
	s.hideChromeLocked()
	return s.enqueueLocked()
}

// onTransformChange runs with s.mu held, from controller calls made by the
// Studio.
func (s *Studio) onTransformChange(*scene.Node) {
	if b := s.requestRebuildLocked(); b != nil {
		s.commits = append(s.commits, b)
	}
}

// takeCommitsLocked returns the rebuilds queued by controller events since
// the last call.
func (s *Studio) takeCommitsLocked() []*rebuildBatch {
	out := s.commits
	s.commits = nil
	return out
}

// waitAll waits for every distinct batch and returns the first error.
func (s *Studio) waitAll(ctx context.Context, batches []*rebuildBatch) error {
	var seen *rebuildBatch
	for _, b := range batches {
		if b == seen {
			continue
		}
		seen = b
		if err := s.wait(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// watchAll logs the outcome of rebuilds nobody waits for.
func (s *Studio) watchAll(batches []*rebuildBatch) {
	if len(batches) == 0 {
		return
	}
	go func() {
		if err := s.waitAll(context.Background(), batches); err != nil {
			s.logger.Warn("background mirror rebuild failed", zap.Error(err))
		}
	}()
}

// onCameraChange runs with s.mu held, from Controls.Update in Step.
func (s *Studio) onCameraChange(*scene.Camera) {
	if pt := s.backends.PathTracer; pt != nil {
		pt.UpdateCamera(s.cameraSnapshotLocked())
		pt.SetPaused(false)
	}
}

// onEnvironmentChange keeps materials and the mirror on the installed
// textures. The environment manager emits without holding its own lock.
func (s *Studio) onEnvironmentChange(c environment.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.applyEnvironmentLocked()

	pt := s.backends.PathTracer
	if pt == nil {
		return
	}
	if s.queue.busy() {
		// The running ingest copied the old references; queue a fresh one.
		s.enqueueLocked()
		return
	}
	s.copyEnvironmentLocked()
	pt.UpdateEnvironment()
	pt.SetPaused(false)
	s.logger.Debug("environment changed",
		zap.Bool("background", c.Background),
		zap.Bool("environment", c.Environment),
		zap.Bool("intensity", c.Intensity))
}

// applyEnvironmentLocked sets the environment map and intensity on every
// tracked material.
func (s *Studio) applyEnvironmentLocked() {
	for _, obj := range s.store.List() {
		s.prepareMaterialsLocked(obj.Node)
	}
}
