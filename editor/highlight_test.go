package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-studio/math"
	"scene-studio/scene"
)

func testModel() *scene.Node {
	root := scene.NewGroup("model")
	body := scene.NewMeshNode("body", scene.CreateBox(2, 1, 1), scene.DefaultMaterial())
	wheel := scene.NewMeshNode("wheel", scene.CreateBox(0.5, 0.5, 0.5), scene.DefaultMaterial())
	wheel.SetPosition(math.NewVec3(1, -0.5, 0))
	body.AddChild(wheel)
	root.AddChild(body)
	root.SetPosition(math.NewVec3(10, 0, 0))
	return root
}

func overlayGeometries(h *Highlighter) []*scene.Geometry {
	var out []*scene.Geometry
	if h.Group() == nil {
		return nil
	}
	for _, c := range h.Group().Children {
		out = append(out, c.Geometry)
	}
	return out
}

func TestHighlightBuildsOneShellPerMesh(t *testing.T) {
	h := NewHighlighter(DefaultHighlightStyle())
	model := testModel()

	require.NoError(t, h.Highlight(model))
	group := h.Group()
	require.NotNil(t, group)
	assert.Same(t, model, group.Parent)
	assert.Equal(t, scene.KindOverlay, group.Kind())
	require.Len(t, group.Children, 2)
	for _, c := range group.Children {
		assert.Same(t, h.Material(), c.Material, "shells share one material")
		assert.False(t, c.VisibleInPathTracer())
		assert.True(t, c.IsEditorChrome())
	}
	assert.Equal(t, scene.SideBack, h.Material().Side)

	// The wheel shell sits where the wheel is, slightly larger.
	wheelShell := group.Children[1].Geometry.LocalAABB()
	assert.InDelta(t, 1, wheelShell.Center().X, 1e-4)
	assert.InDelta(t, -0.5, wheelShell.Center().Y, 1e-4)
	assert.InDelta(t, 0.5*1.02, wheelShell.Size().X, 1e-4)

	// Original geometry is untouched.
	assert.Len(t, model.Children, 2)
	assert.InDelta(t, 2, model.Children[0].Geometry.LocalAABB().Size().X, 1e-6)
}

func TestHighlightReplacesPreviousOverlay(t *testing.T) {
	h := NewHighlighter(DefaultHighlightStyle())
	a := testModel()
	b := testModel()

	disposed := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Highlight(a))
		for _, g := range overlayGeometries(h) {
			g.OnDispose = func() error { disposed++; return nil }
		}
	}
	assert.Equal(t, 8, disposed, "each replaced overlay releases its shells")

	require.NoError(t, h.Highlight(b))
	assert.Equal(t, 10, disposed)
	assert.Len(t, a.Children, 1, "only the model's own child remains")
	assert.Same(t, b, h.Target())

	overlays := 0
	for _, n := range []*scene.Node{a, b} {
		n.Traverse(func(c *scene.Node) {
			if c.Kind() == scene.KindOverlay && len(c.Children) > 0 {
				overlays++
			}
		})
	}
	assert.Equal(t, 1, overlays)

	require.NoError(t, h.Clear())
	assert.Nil(t, h.Target())
	assert.Len(t, b.Children, 1)
	require.NoError(t, h.Clear())
}

func TestHideAllAndRestore(t *testing.T) {
	s := scene.NewScene()
	model := testModel()
	s.Add(model)
	grid := scene.NewGridHelper(10, 10)
	s.Add(grid)
	gizmo := NewGizmo(1)
	s.Add(gizmo.Visuals())
	gizmo.Attach(model)

	h := NewHighlighter(DefaultHighlightStyle())
	require.NoError(t, h.Highlight(model))
	h.Group().Children[0].Visible = false

	vis := HideAll(s.Root)
	assert.False(t, h.Group().Visible)
	assert.False(t, gizmo.Visuals().Visible)
	assert.True(t, grid.Visible)
	assert.True(t, model.Visible)

	vis.Restore()
	assert.True(t, h.Group().Visible)
	assert.True(t, gizmo.Visuals().Visible)
	assert.False(t, h.Group().Children[0].Visible, "previous state is restored, not forced on")
	assert.True(t, h.Group().Children[1].Visible)

	h.Group().Visible = false
	vis.Restore()
	assert.False(t, h.Group().Visible, "restore only applies once")
}

func TestHighlighterDispose(t *testing.T) {
	h := NewHighlighter(DefaultHighlightStyle())
	model := testModel()
	require.NoError(t, h.Highlight(model))
	shells := overlayGeometries(h)

	require.NoError(t, h.Dispose())
	for _, g := range shells {
		assert.True(t, g.Disposed())
	}
	assert.True(t, h.Material().Disposed())
}
