package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"scene-studio/math"
)

func TestComputeBoundsIgnoresChrome(t *testing.T) {
	obj := NewGroup("obj")
	obj.AddChild(NewMeshNode("box", CreateBox(2, 2, 2), DefaultMaterial()))
	obj.AddChild(NewOverlayMesh("outline", CreateBox(50, 50, 50), DefaultMaterial()))

	box := ComputeBounds(obj)
	require.False(t, box.IsEmpty())
	assert.Equal(t, math.Splat(2), box.Size())
}

func TestComputeBoundsEmpty(t *testing.T) {
	assert.True(t, ComputeBounds(NewGroup("empty")).IsEmpty())
	assert.True(t, FitToBounds(NewGroup("empty"), 5).IsEmpty())
}

func TestFitToBoundsDownscalesLargeObject(t *testing.T) {
	n := NewMeshNode("big", CreateBox(20, 10, 4), DefaultMaterial())
	n.SetPosition(math.NewVec3(7, 7, 7))

	box := FitToBounds(n, 5)

	assert.InDelta(t, 5, box.Size().MaxComponent(), 1e-4)
	assert.True(t, box.Center().ApproxEqual(math.Vec3Zero, 1e-4), "center %v", box.Center())
	assert.InDelta(t, 0.25, n.Transform.Scale.X, 1e-6)
	assert.InDelta(t, 2.5, box.Size().Y, 1e-4, "aspect ratio preserved")
}

func TestFitToBoundsNeverUpscales(t *testing.T) {
	n := NewMeshNode("small", CreateBox(1, 1, 1), DefaultMaterial())
	n.SetPosition(math.NewVec3(0, 3, 0))

	box := FitToBounds(n, 5)

	assert.Equal(t, math.Vec3One, n.Transform.Scale)
	assert.InDelta(t, 1, box.Size().MaxComponent(), 1e-6)
	assert.True(t, n.Transform.Position.ApproxEqual(math.Vec3Zero, 1e-6))
}

func TestFitToBoundsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.Float32Range(0.01, 60).Draw(rt, "w")
		h := rapid.Float32Range(0.01, 60).Draw(rt, "h")
		d := rapid.Float32Range(0.01, 60).Draw(rt, "d")
		ox := rapid.Float32Range(-50, 50).Draw(rt, "ox")
		oy := rapid.Float32Range(-50, 50).Draw(rt, "oy")
		oz := rapid.Float32Range(-50, 50).Draw(rt, "oz")
		s := rapid.Float32Range(0.1, 4).Draw(rt, "scale")

		inner := NewMeshNode("part", CreateBox(w, h, d), DefaultMaterial())
		inner.SetPosition(math.NewVec3(ox, oy, oz))
		obj := NewGroup("obj")
		obj.SetScale(math.Splat(s))
		obj.AddChild(inner)

		before := ComputeBounds(obj).Size().MaxComponent()
		box := FitToBounds(obj, 5)

		if !box.Center().ApproxEqual(math.Vec3Zero, 1e-3) {
			rt.Fatalf("center %v not at origin", box.Center())
		}
		largest := box.Size().MaxComponent()
		if largest > 5*(1+1e-5) {
			rt.Fatalf("largest dimension %v exceeds cap", largest)
		}
		if before <= 5 && obj.Transform.Scale.X != s {
			rt.Fatalf("object within the cap was rescaled from %v to %v", s, obj.Transform.Scale.X)
		}
	})
}

func TestAABBIntersectRay(t *testing.T) {
	box := NewAABB(math.Splat(-1), math.Splat(1))

	dist, hit := box.IntersectRay(Ray{Origin: math.NewVec3(0, 0, 5), Direction: math.NewVec3(0, 0, -1)})
	assert.True(t, hit)
	assert.InDelta(t, 4, dist, 1e-6)

	_, hit = box.IntersectRay(Ray{Origin: math.NewVec3(3, 0, 5), Direction: math.NewVec3(0, 0, -1)})
	assert.False(t, hit)
}
