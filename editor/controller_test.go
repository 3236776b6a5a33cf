package editor

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-studio/math"
	"scene-studio/scene"
)

type fakeControls struct {
	enabled bool
	calls   []bool
}

func (f *fakeControls) SetEnabled(enabled bool) {
	f.enabled = enabled
	f.calls = append(f.calls, enabled)
}

func newTestController(t *testing.T) (*Controller, *scene.Scene, *fakeControls) {
	t.Helper()
	s := scene.NewScene()
	controls := &fakeControls{enabled: true}
	c := NewController(s.Root, NewGizmo(1), controls, nil)
	s.Add(c.Gizmo().Visuals())
	return c, s, controls
}

func addBox(s *scene.Scene, name string) *scene.Node {
	n := scene.NewMeshNode(name, scene.CreateBox(1, 1, 1), scene.DefaultMaterial())
	s.Add(n)
	return n
}

func TestControllerStates(t *testing.T) {
	c, s, controls := newTestController(t)
	box := addBox(s, "box")
	assert.Equal(t, StateIdle, c.State())

	c.Activate(box)
	assert.Equal(t, StateAttached, c.State())
	assert.Same(t, box, c.Object())
	assert.True(t, c.Gizmo().Visuals().Visible)

	require.True(t, c.BeginDrag())
	assert.Equal(t, StateDragging, c.State())
	assert.False(t, controls.enabled, "orbit is suspended while dragging")

	c.EndDrag()
	assert.Equal(t, StateAttached, c.State())
	assert.True(t, controls.enabled)

	c.Detach()
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Object())
	assert.False(t, c.Gizmo().Visuals().Visible)
}

func TestActivateKeepsSingleListener(t *testing.T) {
	c, s, _ := newTestController(t)
	x := addBox(s, "x")
	y := addBox(s, "y")

	changes := 0
	c.Changed.Subscribe(func(*scene.Node) { changes++ })

	c.Activate(x)
	c.Activate(y)
	c.Activate(y)
	assert.Equal(t, 1, c.ListenerCount())

	require.True(t, c.BeginDrag())
	c.Drag(math.NewVec3(1, 0, 0))
	c.Drag(math.NewVec3(1, 0, 0))
	c.EndDrag()
	assert.Equal(t, 2, changes, "one change per drag frame")
	assert.Equal(t, float32(2), y.Transform.Position.X)
	assert.Equal(t, float32(0), x.Transform.Position.X)

	c.Detach()
	assert.Zero(t, c.ListenerCount())
}

func TestSetModeWhileIdleWarns(t *testing.T) {
	c, s, _ := newTestController(t)
	var warnings []string
	c.Warnings.Subscribe(func(msg string) { warnings = append(warnings, msg) })

	assert.False(t, c.SetMode(ModeRotate))
	assert.Len(t, warnings, 1)
	assert.Equal(t, ModeTranslate, c.Mode())

	box := addBox(s, "box")
	c.Activate(box)
	assert.True(t, c.SetMode(ModeScale))
	c.Detach()

	// The mode survives re-attachment.
	c.Activate(box)
	assert.Equal(t, ModeScale, c.Gizmo().Mode())
}

func TestHandleKey(t *testing.T) {
	c, s, _ := newTestController(t)
	c.Activate(addBox(s, "box"))

	assert.True(t, c.HandleKey(KeyE))
	assert.Equal(t, ModeRotate, c.Mode())
	assert.True(t, c.HandleKey(KeyR))
	assert.Equal(t, ModeScale, c.Mode())
	assert.True(t, c.HandleKey(KeyW))
	assert.Equal(t, ModeTranslate, c.Mode())
	assert.False(t, c.HandleKey(KeyZ))

	assert.True(t, c.HandleKey(KeyQ))
	assert.Equal(t, StateIdle, c.State())
}

func TestSelectResolvesTopLevel(t *testing.T) {
	c, s, _ := newTestController(t)
	group := scene.NewGroup("model")
	part := scene.NewMeshNode("wheel", scene.CreateBox(1, 1, 1), scene.DefaultMaterial())
	group.AddChild(part)
	s.Add(group)

	assert.Same(t, group, c.Select(part))
	assert.Same(t, group, c.Object())

	orphan := scene.NewGroup("orphan")
	assert.Nil(t, c.Select(orphan))
	assert.Same(t, group, c.Object())
}

func TestDragModesAndUndo(t *testing.T) {
	c, s, _ := newTestController(t)
	box := addBox(s, "box")
	c.Activate(box)

	var committed []*scene.Node
	c.Committed.Subscribe(func(n *scene.Node) { committed = append(committed, n) })

	c.SetMode(ModeScale)
	c.BeginDrag()
	c.Drag(math.NewVec3(1, 0, 0))
	c.EndDrag()
	assert.Equal(t, math.NewVec3(2, 1, 1), box.Transform.Scale)

	c.SetMode(ModeRotate)
	c.BeginDrag()
	c.Drag(math.NewVec3(0, math32.Pi/2, 0))
	c.EndDrag()
	forward := box.Transform.Forward()
	assert.InDelta(t, 1, forward.X, 1e-5)

	require.Len(t, committed, 2)
	require.True(t, c.Undo())
	assert.Equal(t, math.QuaternionIdentity(), box.Transform.Rotation)
	require.True(t, c.Undo())
	assert.Equal(t, math.Vec3One, box.Transform.Scale)
	assert.False(t, c.Undo())
	require.True(t, c.Redo())
	assert.Equal(t, math.NewVec3(2, 1, 1), box.Transform.Scale)
	assert.Len(t, committed, 5)

	// A release without movement is not recorded.
	c.BeginDrag()
	c.EndDrag()
	assert.Len(t, committed, 5)
}

func TestForgetDetachesRemovedObject(t *testing.T) {
	c, s, _ := newTestController(t)
	box := addBox(s, "box")
	c.Activate(box)
	c.BeginDrag()
	c.Drag(math.NewVec3(0, 1, 0))
	c.EndDrag()

	c.Forget(box)
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Undo())
}
