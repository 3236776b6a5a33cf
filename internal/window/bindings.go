package window

import (
	"context"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"scene-studio/editor"
	"scene-studio/math"
	"scene-studio/renderer"
	"scene-studio/scene"
)

// Editor is the part of the studio driven by pointer and keyboard input.
// *renderer.Studio implements it.
type Editor interface {
	SelectAt(x, y float32) (*scene.Node, error)
	Deselect() error
	TransformMode() editor.TransformMode
	BeginDrag() bool
	Drag(delta math.Vec3)
	EndDrag(ctx context.Context) error
	HandleKey(key editor.Key) bool
	Undo(ctx context.Context) (bool, error)
	Redo(ctx context.Context) (bool, error)
	Camera() *scene.Camera
	Viewport() renderer.Viewport
}

// Navigator consumes the input that moves the camera.
type Navigator interface {
	HandleInput(in *editor.InputManager)
}

// dragThreshold is how far, in logical pixels, the pointer travels before a
// left press becomes a drag instead of a click.
const dragThreshold = 3

const (
	rotateSpeed = 0.01
	scaleSpeed  = 0.01
)

// Bindings maps one frame of input to editor operations: a left click picks,
// a left drag on a selection moves it in the current transform mode, and
// the keyboard runs shortcuts. Ctrl+Z undoes, Ctrl+Y and Ctrl+Shift+Z redo.
type Bindings struct {
	editor Editor
	nav    Navigator
	input  *editor.InputManager
	logger *zap.Logger

	pressX, pressY float64
	pressed        bool
	dragging       bool
}

func NewBindings(ed Editor, nav Navigator, input *editor.InputManager, logger *zap.Logger) *Bindings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bindings{
		editor: ed,
		nav:    nav,
		input:  input,
		logger: logger.Named("input"),
	}
}

// Input returns the manager the bindings poll, so hosts can feed scroll
// events into it.
func (b *Bindings) Input() *editor.InputManager {
	return b.input
}

// Dragging reports whether a gizmo drag is in progress.
func (b *Bindings) Dragging() bool {
	return b.dragging
}

// Apply polls the input source and dispatches the frame's events.
func (b *Bindings) Apply(ctx context.Context) {
	in := b.input
	in.Update()
	defer in.EndFrame()

	if b.nav != nil {
		b.nav.HandleInput(in)
	}
	b.pointer(ctx, in)
	b.keys(ctx, in)
}

func (b *Bindings) pointer(ctx context.Context, in *editor.InputManager) {
	switch {
	case in.IsMousePressed(editor.MouseLeft):
		b.pressed = true
		b.pressX, b.pressY = in.MouseX, in.MouseY

	case in.IsMouseDown(editor.MouseLeft) && b.pressed:
		if !b.dragging {
			dx, dy := in.MouseX-b.pressX, in.MouseY-b.pressY
			if dx*dx+dy*dy < dragThreshold*dragThreshold {
				return
			}
			if !b.editor.BeginDrag() {
				return
			}
			b.dragging = true
			// Replay the motion that crossed the threshold.
			b.editor.Drag(b.dragDelta(float32(dx), float32(dy)))
			return
		}
		if in.MouseDeltaX != 0 || in.MouseDeltaY != 0 {
			b.editor.Drag(b.dragDelta(float32(in.MouseDeltaX), float32(in.MouseDeltaY)))
		}

	case in.IsMouseReleased(editor.MouseLeft) && b.pressed:
		b.pressed = false
		if b.dragging {
			b.dragging = false
			if err := b.editor.EndDrag(ctx); err != nil {
				b.logger.Warn("end drag", zap.Error(err))
			}
			return
		}
		if _, err := b.editor.SelectAt(float32(in.MouseX), float32(in.MouseY)); err != nil {
			b.logger.Warn("select", zap.Error(err))
		}
	}
}

// dragDelta converts a pointer motion in logical pixels into a gizmo delta
// for the current mode. Translation moves in the camera plane through the
// orbit target, so the object follows the pointer at that depth.
func (b *Bindings) dragDelta(dx, dy float32) math.Vec3 {
	switch b.editor.TransformMode() {
	case editor.ModeRotate:
		return math.NewVec3(dy*rotateSpeed, dx*rotateSpeed, 0)
	case editor.ModeScale:
		s := -dy * scaleSpeed
		return math.NewVec3(s, s, s)
	}

	cam := b.editor.Camera()
	height := b.editor.Viewport().Height
	if height <= 0 {
		return math.Vec3Zero
	}
	forward := cam.Forward()
	right := forward.Cross(cam.Up).Normalize()
	up := right.Cross(forward)
	distance := cam.Position.Distance(cam.Target)
	perPixel := 2 * distance * math32.Tan(cam.FOV/2) / float32(height)
	return right.Mul(dx * perPixel).Add(up.Mul(-dy * perPixel))
}

func (b *Bindings) keys(ctx context.Context, in *editor.InputManager) {
	for _, key := range in.PressedKeys() {
		switch {
		case in.CtrlDown && key == editor.KeyZ && !in.ShiftDown:
			if _, err := b.editor.Undo(ctx); err != nil {
				b.logger.Warn("undo", zap.Error(err))
			}
		case in.CtrlDown && (key == editor.KeyY || key == editor.KeyZ):
			if _, err := b.editor.Redo(ctx); err != nil {
				b.logger.Warn("redo", zap.Error(err))
			}
		case key == editor.KeyEscape:
			if err := b.editor.Deselect(); err != nil {
				b.logger.Warn("deselect", zap.Error(err))
			}
		case in.CtrlDown:
		default:
			b.editor.HandleKey(key)
		}
	}
}
