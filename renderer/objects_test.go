package renderer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"scene-studio/editor"
	"scene-studio/math"
	"scene-studio/scene"
)

func TestAddObjectFitsWithinCap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.Float32Range(0.01, 40).Draw(rt, "w")
		ht := rapid.Float32Range(0.01, 40).Draw(rt, "h")
		d := rapid.Float32Range(0.01, 40).Draw(rt, "d")
		ox := rapid.Float32Range(-20, 20).Draw(rt, "ox")
		oy := rapid.Float32Range(-20, 20).Draw(rt, "oy")

		model := boxModel("model", w, ht, d)
		model.Children[0].SetPosition(math.NewVec3(ox, oy, 0))
		before := scene.ComputeBounds(model).Size().MaxComponent()

		_, err := h.studio.AddObject(ctx, model, AddOptions{})
		require.NoError(rt, err)

		box := scene.ComputeBounds(model)
		if !box.Center().ApproxEqual(math.Vec3Zero, 1e-3) {
			rt.Fatalf("center %v not at origin", box.Center())
		}
		if largest := box.Size().MaxComponent(); largest > 5*(1+1e-4) {
			rt.Fatalf("largest dimension %v exceeds cap", largest)
		}
		if before <= 5 && model.Transform.Scale != math.Vec3One {
			rt.Fatalf("object within the cap was rescaled to %v", model.Transform.Scale)
		}

		require.NoError(rt, h.studio.RemoveObject(ctx, model))
	})
	assert.Empty(t, h.studio.ObjectsInScene())
}

func TestAddObjectKeepTransform(t *testing.T) {
	h := newHarness(t)
	model := boxModel("statue", 20, 20, 20)
	model.SetPosition(math.NewVec3(3, 0, 0))

	entry, err := h.studio.AddObject(context.Background(), model, AddOptions{KeepTransform: true, Label: "Statue"})
	require.NoError(t, err)

	assert.Equal(t, "Statue", entry.Name)
	assert.Equal(t, math.Vec3One, model.Transform.Scale)
	assert.Equal(t, float32(3), model.Transform.Position.X)
	assert.True(t, model.VisibleInPathTracer())

	node, ok := h.studio.Lookup(entry.ID)
	require.True(t, ok)
	assert.Same(t, model, node)
}

func TestAddObjectPreparesMaterials(t *testing.T) {
	h := newHarness(t)
	model := boxModel("crate", 1, 1, 1)

	_, err := h.studio.AddObject(context.Background(), model, AddOptions{})
	require.NoError(t, err)

	mesh := model.Children[0]
	assert.True(t, mesh.CastShadow)
	assert.True(t, mesh.ReceiveShadow)
	assert.Same(t, h.studio.Scene().Environment, mesh.Material.EnvMap)
	assert.Equal(t, h.studio.Scene().EnvironmentIntensity, mesh.Material.EnvMapIntensity)
}

func TestAddObjectRejectsNil(t *testing.T) {
	h := newHarness(t)
	_, err := h.studio.AddObject(context.Background(), nil, AddOptions{})
	assert.Error(t, err)
}

func TestAddObjectTwiceKeepsOneEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.studio.EnablePathTracing(ctx, true))
	model := boxModel("crate", 20, 1, 1)

	first, err := h.studio.AddObject(ctx, model, AddOptions{Label: "first"})
	require.NoError(t, err)
	scale := model.Transform.Scale
	rebuilds := h.pt.rebuilds()

	again, err := h.studio.AddObject(ctx, model, AddOptions{Label: "again"})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, h.studio.ObjectsInScene(), 1)
	assert.Equal(t, scale, model.Transform.Scale, "no second fit")
	assert.Equal(t, rebuilds, h.pt.rebuilds())

	require.NoError(t, h.studio.RemoveObject(ctx, model))
	assert.Empty(t, h.studio.ObjectsInScene())
	assert.False(t, h.studio.Scene().Contains(model))
}

func TestRemoveObject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := boxModel("a", 1, 1, 1)
	b := boxModel("b", 1, 1, 1)
	_, err := h.studio.AddObject(ctx, a, AddOptions{})
	require.NoError(t, err)
	_, err = h.studio.AddObject(ctx, b, AddOptions{})
	require.NoError(t, err)

	t.Run("ignores nil and untracked nodes", func(t *testing.T) {
		assert.NoError(t, h.studio.RemoveObject(ctx, nil))
		assert.NoError(t, h.studio.RemoveObject(ctx, boxModel("stranger", 1, 1, 1)))
		assert.Len(t, h.studio.ObjectsInScene(), 2)
	})

	t.Run("releases the subtree", func(t *testing.T) {
		_, err := h.studio.Select(a)
		require.NoError(t, err)
		geom := a.Children[0].Geometry

		require.NoError(t, h.studio.RemoveObject(ctx, a))

		objects := h.studio.ObjectsInScene()
		require.Len(t, objects, 1)
		assert.Same(t, b, objects[0].Node)
		assert.False(t, h.studio.Scene().Contains(a))
		assert.True(t, geom.Disposed())
		assert.Nil(t, h.studio.Highlighter().Target())
		assert.Nil(t, h.studio.Controller().Object())
	})
}

func countHighlightGroups(root *scene.Node) int {
	n := 0
	root.Traverse(func(node *scene.Node) {
		if node.Kind() == scene.KindOverlay && node.Name == "Highlight" {
			n++
		}
	})
	return n
}

func TestHighlightReplacesPrevious(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := boxModel("a", 1, 1, 1)
	b := boxModel("b", 1, 1, 1)
	_, err := h.studio.AddObject(ctx, a, AddOptions{})
	require.NoError(t, err)
	_, err = h.studio.AddObject(ctx, b, AddOptions{})
	require.NoError(t, err)

	require.NoError(t, h.studio.Highlight(a))
	var shells []*scene.Geometry
	for _, c := range h.studio.Highlighter().Group().Children {
		shells = append(shells, c.Geometry)
	}
	require.NotEmpty(t, shells)

	require.NoError(t, h.studio.Highlight(b))
	for _, g := range shells {
		assert.True(t, g.Disposed(), "previous shell %s not released", g.Name)
	}
	assert.Equal(t, 1, countHighlightGroups(h.studio.Scene().Root))
	assert.Same(t, b, h.studio.Highlighter().Target())

	require.NoError(t, h.studio.ClearHighlight())
	assert.Zero(t, countHighlightGroups(h.studio.Scene().Root))
}

func TestAddObjectClearsHighlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := boxModel("a", 1, 1, 1)
	_, err := h.studio.AddObject(ctx, a, AddOptions{})
	require.NoError(t, err)
	require.NoError(t, h.studio.Highlight(a))

	_, err = h.studio.AddObject(ctx, boxModel("b", 1, 1, 1), AddOptions{})
	require.NoError(t, err)
	assert.Nil(t, h.studio.Highlighter().Target())
}

func TestImportModel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("malformed payload leaves the scene unchanged", func(t *testing.T) {
		before := len(h.studio.Scene().Root.Children)

		_, err := h.studio.ImportModel(ctx, "broken.glb", []byte("corrupt"))

		var pe *scene.ParseError
		require.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, scene.ErrParse)
		assert.Equal(t, "broken.glb", pe.Source)
		assert.Len(t, h.studio.Scene().Root.Children, before)
		assert.Empty(t, h.studio.ObjectsInScene())
	})

	t.Run("valid payload is fitted and tracked", func(t *testing.T) {
		entry, err := h.studio.ImportModel(ctx, "chair.glb", []byte("glTF"))
		require.NoError(t, err)

		assert.Equal(t, "chair.glb", entry.Name)
		assert.NotEmpty(t, entry.ID)
		largest := scene.ComputeBounds(entry.Node).Size().MaxComponent()
		assert.InDelta(t, 5, largest, 1e-3)
	})
}

func TestImportFilesAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.studio.ImportFiles(ctx, []ModelFile{
		{Name: "good.glb", Data: []byte("glTF")},
		{Name: "bad.glb", Data: []byte("corrupt")},
	})
	require.ErrorIs(t, err, scene.ErrParse)
	assert.Empty(t, h.studio.ObjectsInScene())

	entries, err := h.studio.ImportFiles(ctx, []ModelFile{
		{Name: "one.glb", Data: []byte("glTF")},
		{Name: "two.glb", Data: []byte("glTF")},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "one.glb", entries[0].Name)
	assert.Equal(t, "two.glb", entries[1].Name)
	assert.Len(t, h.studio.ObjectsInScene(), 2)
}

func TestSelectAt(t *testing.T) {
	h := newHarness(t)
	model := boxModel("crate", 2, 2, 2)
	_, err := h.studio.AddObject(context.Background(), model, AddOptions{})
	require.NoError(t, err)

	vp := h.studio.Viewport()
	got, err := h.studio.SelectAt(float32(vp.Width)/2, float32(vp.Height)/2)
	require.NoError(t, err)
	assert.Same(t, model, got)
	assert.Same(t, model, h.studio.Controller().Object())
	assert.Same(t, model, h.studio.Highlighter().Target())

	got, err = h.studio.SelectAt(0, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, h.studio.Controller().Object())
	assert.Nil(t, h.studio.Highlighter().Target())
}

func TestSelectRejectsForeignNode(t *testing.T) {
	h := newHarness(t)
	_, err := h.studio.Select(boxModel("elsewhere", 1, 1, 1))
	assert.Error(t, err)
}

func TestSelectKeepsSingleListener(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := boxModel("a", 1, 1, 1)
	b := boxModel("b", 1, 1, 1)
	_, err := h.studio.AddObject(ctx, a, AddOptions{})
	require.NoError(t, err)
	_, err = h.studio.AddObject(ctx, b, AddOptions{})
	require.NoError(t, err)

	for _, n := range []*scene.Node{a, b, a, a.Children[0], b} {
		_, err := h.studio.Select(n)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, h.studio.Controller().ListenerCount())
}

func TestHandleKey(t *testing.T) {
	h := newHarness(t)
	model := boxModel("crate", 1, 1, 1)
	_, err := h.studio.AddObject(context.Background(), model, AddOptions{})
	require.NoError(t, err)

	var warnings []string
	h.studio.Warnings.Subscribe(func(msg string) { warnings = append(warnings, msg) })

	assert.False(t, h.studio.SetTransformMode(editor.ModeRotate))
	assert.Len(t, warnings, 1)

	_, err = h.studio.Select(model)
	require.NoError(t, err)
	assert.True(t, h.studio.HandleKey(editor.KeyE))
	assert.Equal(t, editor.ModeRotate, h.studio.Controller().Mode())

	assert.True(t, h.studio.HandleKey(editor.KeyQ))
	assert.Equal(t, editor.StateIdle, h.studio.Controller().State())
	assert.Nil(t, h.studio.Highlighter().Target())
}

func TestDragAndUndo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	model := boxModel("crate", 1, 1, 1)
	_, err := h.studio.AddObject(ctx, model, AddOptions{})
	require.NoError(t, err)
	_, err = h.studio.Select(model)
	require.NoError(t, err)

	require.True(t, h.studio.BeginDrag())
	h.studio.Drag(math.NewVec3(1, 0, 0))
	h.studio.Drag(math.NewVec3(1, 0, 0))
	require.NoError(t, h.studio.EndDrag(ctx))
	assert.Equal(t, float32(2), model.Transform.Position.X)

	ok, err := h.studio.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float32(0), model.Transform.Position.X)

	ok, err = h.studio.Redo(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float32(2), model.Transform.Position.X)
}
