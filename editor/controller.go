package editor

import (
	"go.uber.org/zap"

	"scene-studio/internal/event"
	"scene-studio/math"
	"scene-studio/scene"
)

// NavigationControls is the camera navigation the controller suspends while
// the user drags the gizmo.
type NavigationControls interface {
	SetEnabled(enabled bool)
}

// Controller binds the transform gizmo to at most one top-level object.
type Controller struct {
	root     *scene.Node
	gizmo    *Gizmo
	controls NavigationControls
	history  *History
	logger   *zap.Logger

	state     State
	mode      TransformMode
	changeSub *event.Subscription
	dragSub   *event.Subscription

	// Changed fires for every drag step of the attached object.
	Changed event.Emitter[*scene.Node]
	// Committed fires when a drag is released or a change is undone or redone.
	Committed event.Emitter[*scene.Node]
	// Warnings carries messages meant for the user.
	Warnings event.Emitter[string]
}

func NewController(root *scene.Node, gizmo *Gizmo, controls NavigationControls, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		root:     root,
		gizmo:    gizmo,
		controls: controls,
		history:  NewHistory(100),
		logger:   logger.Named("transform"),
		mode:     gizmo.Mode(),
	}
	c.dragSub = gizmo.DraggingChanged.Subscribe(c.onDraggingChanged)
	return c
}

func (c *Controller) State() State {
	return c.state
}

// Mode is the interaction mode, kept across attachments.
func (c *Controller) Mode() TransformMode {
	return c.mode
}

// Object returns the attached object or nil.
func (c *Controller) Object() *scene.Node {
	return c.gizmo.Object()
}

func (c *Controller) Gizmo() *Gizmo {
	return c.gizmo
}

// ListenerCount reports how many change listeners the gizmo carries.
func (c *Controller) ListenerCount() int {
	return c.gizmo.ObjectChange.Len()
}

// Select attaches the gizmo to the top-level object that contains node.
func (c *Controller) Select(node *scene.Node) *scene.Node {
	if node == nil {
		return nil
	}
	top := node.TopLevel(c.root)
	if top == nil {
		return nil
	}
	c.Activate(top)
	return top
}

// Activate binds the gizmo to node, releasing any previous binding first.
func (c *Controller) Activate(node *scene.Node) {
	if node == nil {
		c.Detach()
		return
	}
	if c.state != StateIdle && c.gizmo.Object() == node {
		return
	}
	c.Detach()

	c.gizmo.Attach(node)
	c.gizmo.SetMode(c.mode)
	c.changeSub = c.gizmo.ObjectChange.Subscribe(func(n *scene.Node) {
		c.Changed.Emit(n)
	})
	c.state = StateAttached
	c.logger.Debug("gizmo attached", zap.String("object", node.Name), zap.Stringer("mode", c.mode))
}

// Detach unbinds the gizmo. It is a no-op when idle.
func (c *Controller) Detach() {
	if c.state == StateIdle {
		return
	}
	if c.state == StateDragging {
		c.EndDrag()
	}
	c.changeSub.Cancel()
	c.changeSub = nil
	c.gizmo.Detach()
	c.state = StateIdle
}

// SetMode switches between translate, rotate and scale. Without an attached
// object it only warns and returns false.
func (c *Controller) SetMode(mode TransformMode) bool {
	if c.state == StateIdle {
		msg := "select an object before changing the transform mode"
		c.logger.Warn(msg, zap.Stringer("mode", mode))
		c.Warnings.Emit(msg)
		return false
	}
	c.mode = mode
	c.gizmo.SetMode(mode)
	return true
}

// HandleKey applies the gizmo shortcuts: q detaches, w/e/r pick the mode.
func (c *Controller) HandleKey(key Key) bool {
	switch key {
	case KeyQ:
		c.Detach()
		return true
	case KeyW:
		return c.SetMode(ModeTranslate)
	case KeyE:
		return c.SetMode(ModeRotate)
	case KeyR:
		return c.SetMode(ModeScale)
	}
	return false
}

func (c *Controller) BeginDrag() bool {
	return c.gizmo.BeginDrag()
}

func (c *Controller) Drag(delta math.Vec3) {
	c.gizmo.Drag(delta)
}

// EndDrag releases the gizmo and records the change for undo.
func (c *Controller) EndDrag() {
	before, after, ok := c.gizmo.EndDrag()
	if !ok {
		return
	}
	node := c.gizmo.Object()
	if node == nil || before == after {
		return
	}
	c.history.Record(NewTransformCommand(node, before, after, c.mode.String()+" "+node.Name))
	c.Committed.Emit(node)
}

func (c *Controller) Undo() bool {
	return c.replay(c.history.Undo())
}

func (c *Controller) Redo() bool {
	return c.replay(c.history.Redo())
}

func (c *Controller) replay(cmd Command) bool {
	if cmd == nil {
		return false
	}
	if tc, ok := cmd.(*TransformCommand); ok {
		if tc.Node == c.gizmo.Object() {
			c.gizmo.sync()
		}
		c.Committed.Emit(tc.Node)
	}
	return true
}

// Forget detaches from node if needed and drops its undo history.
func (c *Controller) Forget(node *scene.Node) {
	if obj := c.gizmo.Object(); obj != nil && obj.IsDescendantOf(node) {
		c.Detach()
	}
	c.history.Forget(node)
}

func (c *Controller) onDraggingChanged(dragging bool) {
	if c.controls != nil {
		c.controls.SetEnabled(!dragging)
	}
	if c.gizmo.Object() == nil {
		return
	}
	if dragging {
		c.state = StateDragging
	} else {
		c.state = StateAttached
	}
}

// Dispose detaches and drops every subscription.
func (c *Controller) Dispose() {
	c.Detach()
	c.dragSub.Cancel()
	c.history.Clear()
}
