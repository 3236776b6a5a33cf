package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-studio/math"
	"scene-studio/scene"
)

func TestPickReturnsTopLevelObject(t *testing.T) {
	s := scene.NewScene()
	model := scene.NewGroup("model")
	part := scene.NewMeshNode("part", scene.CreateBox(1, 1, 1), scene.DefaultMaterial())
	model.AddChild(part)
	model.SetPosition(math.NewVec3(0, 0, -2))
	s.Add(model)

	ray := scene.Ray{Origin: math.NewVec3(0, 0, 5), Direction: math.NewVec3(0, 0, -1)}
	hit := Pick(s.Root, ray)
	require.True(t, hit.Hit)
	assert.Same(t, part, hit.Node)
	assert.Same(t, model, hit.Object)
	assert.InDelta(t, 6.5, hit.Distance, 1e-4)
	assert.InDelta(t, -1.5, hit.Point.Z, 1e-4)
}

func TestPickSkipsChromeAndUnselectable(t *testing.T) {
	s := scene.NewScene()
	ground := scene.NewGroundPlane(20, 0.2)
	s.Add(ground)

	target := scene.NewMeshNode("target", scene.CreateBox(1, 1, 1), scene.DefaultMaterial())
	target.SetPosition(math.NewVec3(0, 0.5, -3))
	s.Add(target)

	h := NewHighlighter(DefaultHighlightStyle())
	require.NoError(t, h.Highlight(target))

	down := scene.Ray{Origin: math.NewVec3(0.1, 5, 0.1), Direction: math.NewVec3(0, -1, 0)}
	assert.False(t, Pick(s.Root, down).Hit, "ground is not selectable")

	toward := scene.Ray{Origin: math.NewVec3(0.1, 0.5, 5), Direction: math.NewVec3(0, 0, -1)}
	hit := Pick(s.Root, toward)
	require.True(t, hit.Hit)
	assert.Same(t, target, hit.Node, "the highlight shell is ignored")

	target.Visible = false
	assert.False(t, Pick(s.Root, toward).Hit)
}

func TestScreenToRayCenter(t *testing.T) {
	cam := scene.NewCamera(1, 1, 0.1, 100)
	cam.SetPosition(math.NewVec3(0, 0, 5))
	cam.LookAt(math.Vec3Zero)

	ray := ScreenToRay(50, 50, 100, 100, cam)
	assert.True(t, ray.Direction.ApproxEqual(math.NewVec3(0, 0, -1), 1e-5))
	assert.Equal(t, cam.Position, ray.Origin)
}
