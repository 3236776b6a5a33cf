package renderer

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scene-studio/editor"
	"scene-studio/math"
	"scene-studio/scene"
)

// AddOptions controls AddObject. The zero value centers and scales the node
// and makes it visible to the path tracer.
type AddOptions struct {
	// KeepTransform skips centering and scaling.
	KeepTransform bool
	// Label is the display name; empty means the node name.
	Label                string
	HiddenFromPathTracer bool
}

// ModelFile is one payload for ImportFiles.
type ModelFile struct {
	Name string
	Data []byte
}

// AddObject inserts node at the scene root and tracks it. Unless KeepTransform
// is set the node is recentered on the origin and downscaled so its largest
// dimension fits the configured cap. While path tracing is active AddObject
// returns once the mirror has been rebuilt. Adding a tracked node again
// returns its existing entry and changes nothing.
func (s *Studio) AddObject(ctx context.Context, node *scene.Node, opts AddOptions) (scene.TrackedObject, error) {
	if node == nil {
		return scene.TrackedObject{}, errors.New("add object: nil node")
	}

	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return scene.TrackedObject{}, err
	}
	if entry, ok := s.store.Entry(node); ok {
		s.mu.Unlock()
		s.logger.Debug("object already tracked", zap.String("id", entry.ID), zap.String("name", entry.Name))
		return entry, nil
	}
	_ = s.clearHighlightLocked()
	entry := s.addLocked(node, opts)
	b := s.requestRebuildLocked()
	s.mu.Unlock()

	if b != nil {
		if err := s.wait(ctx, b); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

// addLocked places and registers node. Callers hold s.mu.
func (s *Studio) addLocked(node *scene.Node, opts AddOptions) scene.TrackedObject {
	node.SetVisibleInPathTracer(!opts.HiddenFromPathTracer)
	if !opts.KeepTransform {
		box := scene.FitToBounds(node, s.cfg.Objects.MaxDimension)
		s.logger.Debug("object fitted",
			zap.String("object", node.Name),
			zap.Float32("largest", box.Size().MaxComponent()))
	}
	s.prepareMaterialsLocked(node)

	entry := s.store.Add(node, opts.Label)
	s.metrics.SetTrackedObjects(s.store.Len())
	s.logger.Info("object added", zap.String("id", entry.ID), zap.String("name", entry.Name))
	return entry
}

// prepareMaterialsLocked applies the environment map, its intensity and the
// shadow flags to every mesh under node.
func (s *Studio) prepareMaterialsLocked(node *scene.Node) {
	shadows := s.cfg.Renderer.Shadows
	node.Traverse(func(n *scene.Node) {
		if n.Kind() != scene.KindMesh {
			return
		}
		n.CastShadow = shadows
		n.ReceiveShadow = shadows
		if n.Material != nil {
			n.Material.EnvMap = s.scene.Environment
			n.Material.EnvMapIntensity = s.scene.EnvironmentIntensity
		}
	})
}

// ImportModel decodes data and adds the result. A malformed payload returns
// a *scene.ParseError and leaves the scene untouched.
func (s *Studio) ImportModel(ctx context.Context, name string, data []byte) (scene.TrackedObject, error) {
	node, err := s.decode(ctx, name, data)
	if err != nil {
		return scene.TrackedObject{}, err
	}
	return s.AddObject(ctx, node, AddOptions{Label: name})
}

func (s *Studio) decode(ctx context.Context, name string, data []byte) (*scene.Node, error) {
	ctx, span := s.tracer.Start(ctx, "studio.ImportModel",
		trace.WithAttributes(attribute.String("name", name), attribute.Int("bytes", len(data))))
	defer span.End()

	node, err := s.backends.Importer.Import(ctx, name, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		var pe *scene.ParseError
		if !errors.As(err, &pe) && ctx.Err() == nil {
			err = &scene.ParseError{Source: name, Err: err}
		}
		s.logger.Warn("model import failed", zap.String("name", name), zap.Error(err))
		return nil, err
	}
	return node, nil
}

// ImportFiles decodes every payload concurrently and adds them only when all
// succeed, followed by a single mirror rebuild.
func (s *Studio) ImportFiles(ctx context.Context, files []ModelFile) ([]scene.TrackedObject, error) {
	nodes := make([]*scene.Node, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			n, err := s.decode(gctx, f.Name, f.Data)
			if err != nil {
				return err
			}
			nodes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, n := range nodes {
			if n != nil {
				s.logDisposal(n.Name, scene.DisposeTree(n))
			}
		}
		return nil, err
	}

	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	_ = s.clearHighlightLocked()
	entries := make([]scene.TrackedObject, 0, len(nodes))
	for i, n := range nodes {
		entries = append(entries, s.addLocked(n, AddOptions{Label: files[i].Name}))
	}
	b := s.requestRebuildLocked()
	s.mu.Unlock()

	if b != nil {
		if err := s.wait(ctx, b); err != nil {
			return entries, err
		}
	}
	return entries, nil
}

// RemoveObject takes node out of the scene and releases its resources. Nil
// or untracked nodes are ignored.
func (s *Studio) RemoveObject(ctx context.Context, node *scene.Node) error {
	if node == nil {
		return nil
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if !s.store.Contains(node) {
		s.mu.Unlock()
		return nil
	}

	s.withChromeLocked(func() {
		if t := s.highlighter.Target(); t != nil && t.IsDescendantOf(node) {
			_ = s.clearHighlightLocked()
		}
		s.controller.Forget(node)
	})
	s.takeCommitsLocked()
	s.store.Remove(node)
	s.metrics.SetTrackedObjects(s.store.Len())
	b := s.requestRebuildLocked()
	s.retireLocked(func() {
		s.logDisposal(node.Name, scene.DisposeTree(node))
	})
	s.mu.Unlock()

	s.logger.Info("object removed", zap.String("id", node.ObjectID), zap.String("name", node.Name))
	if b != nil {
		return s.wait(ctx, b)
	}
	return nil
}

// ObjectsInScene returns the tracked objects in insertion order. The slice
// is a copy.
func (s *Studio) ObjectsInScene() []scene.TrackedObject {
	return s.store.List()
}

// Lookup finds a tracked object by id.
func (s *Studio) Lookup(id string) (*scene.Node, bool) {
	return s.store.Lookup(id)
}

// Select attaches the gizmo to the top-level object containing node and
// highlights it. It returns the selected object.
func (s *Studio) Select(node *scene.Node) (*scene.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	var top *scene.Node
	var err error
	s.withChromeLocked(func() {
		if top = s.controller.Select(node); top != nil {
			err = s.highlighter.Highlight(top)
		}
	})
	if top == nil {
		return nil, fmt.Errorf("select: %q is not in the scene", nodeName(node))
	}
	return top, err
}

// SelectAt picks the object under the canvas position (x, y) in logical
// pixels. An empty hit deselects.
func (s *Studio) SelectAt(x, y float32) (*scene.Node, error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ray := editor.ScreenToRay(x, y, float32(s.viewport.Width), float32(s.viewport.Height), s.camera)
	hit := editor.Pick(s.scene.Root, ray)
	s.mu.Unlock()

	if !hit.Hit || hit.Object == nil {
		return nil, s.Deselect()
	}
	return s.Select(hit.Object)
}

// Deselect detaches the gizmo and clears the highlight.
func (s *Studio) Deselect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	var err error
	s.withChromeLocked(func() {
		s.controller.Detach()
		err = s.clearHighlightLocked()
	})
	return err
}

// Highlight outlines node without selecting it.
func (s *Studio) Highlight(node *scene.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	var err error
	s.withChromeLocked(func() {
		err = s.highlighter.Highlight(node)
	})
	return err
}

// withChromeLocked runs fn, which may show or hide editor visuals, with the
// path-tracing visibility snapshot lifted so fn's changes survive when the
// snapshot is restored later.
func (s *Studio) withChromeLocked(fn func()) {
	if s.chrome == nil {
		fn()
		return
	}
	s.restoreChromeLocked()
	fn()
	s.hideChromeLocked()
}

func (s *Studio) ClearHighlight() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearHighlightLocked()
}

func (s *Studio) clearHighlightLocked() error {
	if err := s.highlighter.Clear(); err != nil {
		s.logDisposal("highlight", err)
		return err
	}
	return nil
}

// SetTransformMode changes the gizmo mode. Without a selection it only
// warns and reports false.
func (s *Studio) SetTransformMode(mode editor.TransformMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.SetMode(mode)
}

func (s *Studio) TransformMode() editor.TransformMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Mode()
}

// HandleKey applies the editor shortcuts.
func (s *Studio) HandleKey(key editor.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var handled bool
	s.withChromeLocked(func() {
		handled = s.controller.HandleKey(key)
		if key == editor.KeyQ && handled {
			_ = s.clearHighlightLocked()
		}
	})
	return handled
}

// BeginDrag starts a gizmo drag on the selection.
func (s *Studio) BeginDrag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.BeginDrag()
}

// Drag moves the selection by delta in the current mode. While path tracing
// is active each step queues a mirror rebuild in the background.
func (s *Studio) Drag(delta math.Vec3) {
	s.mu.Lock()
	s.controller.Drag(delta)
	batches := s.takeCommitsLocked()
	s.mu.Unlock()
	s.watchAll(batches)
}

// EndDrag commits the drag to the undo history. While path tracing is
// active it returns once the mirror reflects the new transform.
func (s *Studio) EndDrag(ctx context.Context) error {
	s.mu.Lock()
	s.controller.EndDrag()
	batches := s.takeCommitsLocked()
	s.mu.Unlock()
	return s.waitAll(ctx, batches)
}

func (s *Studio) Undo(ctx context.Context) (bool, error) {
	return s.replay(ctx, s.controller.Undo)
}

func (s *Studio) Redo(ctx context.Context) (bool, error) {
	return s.replay(ctx, s.controller.Redo)
}

func (s *Studio) replay(ctx context.Context, step func() bool) (bool, error) {
	s.mu.Lock()
	ok := step()
	batches := s.takeCommitsLocked()
	s.mu.Unlock()
	return ok, s.waitAll(ctx, batches)
}

func nodeName(n *scene.Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.Name
}
