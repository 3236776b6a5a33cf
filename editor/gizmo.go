package editor

import (
	"scene-studio/core"
	"scene-studio/internal/event"
	"scene-studio/math"
	"scene-studio/scene"
)

// Gizmo is the transform widget. Its visuals live in the scene as a
// KindGizmo subtree and follow the attached object.
type Gizmo struct {
	mode     TransformMode
	object   *scene.Node
	visuals  *scene.Node
	dragging bool
	start    core.Transform

	// DraggingChanged fires with true on drag start and false on release.
	DraggingChanged event.Emitter[bool]
	// ObjectChange fires after every drag step that moved the object.
	ObjectChange event.Emitter[*scene.Node]
}

func NewGizmo(size float32) *Gizmo {
	visuals := scene.NewGizmoNode("TransformGizmo")
	visuals.Visible = false
	axes := []struct {
		name  string
		dir   math.Vec3
		color core.Color
	}{
		{"X", math.Vec3Right, core.Color{R: 1, G: 0.2, B: 0.2, A: 1}},
		{"Y", math.Vec3Up, core.Color{R: 0.2, G: 1, B: 0.2, A: 1}},
		{"Z", math.Vec3Front, core.Color{R: 0.2, G: 0.4, B: 1, A: 1}},
	}
	for _, a := range axes {
		geom := scene.NewGeometry("GizmoAxis"+a.name, []core.Vertex{
			{Position: math.Vec3Zero, Color: a.color},
			{Position: a.dir.Mul(size), Color: a.color},
		}, []uint32{0, 1})
		geom.DrawMode = scene.DrawLines

		mat := scene.NewUnlitMaterial("GizmoAxis"+a.name, a.color)
		mat.DepthWrite = false

		axis := scene.NewGizmoNode("GizmoAxis" + a.name)
		axis.Geometry = geom
		axis.Material = mat
		visuals.AddChild(axis)
	}
	return &Gizmo{visuals: visuals}
}

// Visuals returns the node to add to the scene.
func (g *Gizmo) Visuals() *scene.Node {
	return g.visuals
}

func (g *Gizmo) Object() *scene.Node {
	return g.object
}

func (g *Gizmo) Mode() TransformMode {
	return g.mode
}

func (g *Gizmo) SetMode(mode TransformMode) {
	g.mode = mode
}

func (g *Gizmo) Dragging() bool {
	return g.dragging
}

func (g *Gizmo) Attach(node *scene.Node) {
	if g.dragging {
		g.EndDrag()
	}
	g.object = node
	g.visuals.Visible = node != nil
	g.sync()
}

func (g *Gizmo) Detach() {
	g.Attach(nil)
}

// BeginDrag starts a manipulation of the attached object.
func (g *Gizmo) BeginDrag() bool {
	if g.object == nil || g.dragging {
		return false
	}
	g.dragging = true
	g.start = g.object.Transform
	g.DraggingChanged.Emit(true)
	return true
}

// Drag applies delta according to the mode: a world offset for translate,
// euler radians for rotate, and a per-axis factor offset for scale.
func (g *Gizmo) Drag(delta math.Vec3) {
	if !g.dragging || g.object == nil {
		return
	}
	t := g.object.Transform
	switch g.mode {
	case ModeTranslate:
		t.Position = t.Position.Add(delta)
	case ModeRotate:
		t.Rotation = math.QuaternionFromEuler(delta).Mul(t.Rotation).Normalize()
	case ModeScale:
		t.Scale = t.Scale.MulVec(math.Vec3One.Add(delta))
	}
	g.object.SetTransform(t)
	g.sync()
	g.ObjectChange.Emit(g.object)
}

// EndDrag finishes the manipulation and returns the transforms before and
// after it. ok is false when no drag was in progress.
func (g *Gizmo) EndDrag() (before, after core.Transform, ok bool) {
	if !g.dragging {
		return before, after, false
	}
	g.dragging = false
	before = g.start
	if g.object != nil {
		after = g.object.Transform
	}
	g.DraggingChanged.Emit(false)
	return before, after, true
}

// sync places the visuals at the object's world origin.
func (g *Gizmo) sync() {
	if g.object == nil {
		return
	}
	g.visuals.SetPosition(g.object.WorldPosition())
}
