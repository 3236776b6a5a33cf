package editor

import (
	"github.com/chewxy/math32"

	"scene-studio/math"
	"scene-studio/scene"
)

// HitResult stores the result of a ray intersection test
type HitResult struct {
	Hit      bool
	Distance float32
	Point    math.Vec3
	Normal   math.Vec3
	// Node is the mesh that was hit, Object its top-level ancestor.
	Node    *scene.Node
	Object  *scene.Node
	FaceIdx int
}

// ScreenToRay converts a pixel position to a world-space ray
func ScreenToRay(mouseX, mouseY, screenWidth, screenHeight float32, camera *scene.Camera) scene.Ray {
	ndcX := (2.0*mouseX)/screenWidth - 1.0
	ndcY := 1.0 - (2.0*mouseY)/screenHeight // flip Y
	return camera.Ray(ndcX, ndcY)
}

// Pick returns the closest selectable mesh under root hit by ray. Editor
// chrome, hidden nodes and nodes tagged NotSelectable are skipped together
// with their subtrees.
func Pick(root *scene.Node, ray scene.Ray) HitResult {
	closest := HitResult{Distance: math32.MaxFloat32}

	var visit func(n *scene.Node)
	visit = func(n *scene.Node) {
		if !n.Visible || n.IsEditorChrome() || n.Tags.NotSelectable {
			return
		}
		if n.Kind() == scene.KindMesh && n.Geometry != nil && n.Geometry.DrawMode == scene.DrawTriangles {
			world := n.WorldMatrix()
			if t, ok := n.Geometry.LocalAABB().Transform(world).IntersectRay(ray); ok && t <= closest.Distance {
				if hit := rayMeshIntersect(ray, n, world); hit.Hit && hit.Distance < closest.Distance {
					closest = hit
				}
			}
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, c := range root.Children {
		visit(c)
	}

	if closest.Hit {
		closest.Object = closest.Node.TopLevel(root)
	}
	return closest
}

// rayMeshIntersect performs per-triangle intersection using Möller–Trumbore algorithm
func rayMeshIntersect(ray scene.Ray, node *scene.Node, worldMatrix math.Mat4) HitResult {
	geom := node.Geometry
	closest := HitResult{Distance: math32.MaxFloat32}

	for i := 0; i+2 < len(geom.Indices); i += 3 {
		i0, i1, i2 := geom.Indices[i], geom.Indices[i+1], geom.Indices[i+2]
		v0 := worldMatrix.MulVec3(geom.Vertices[i0].Position)
		v1 := worldMatrix.MulVec3(geom.Vertices[i1].Position)
		v2 := worldMatrix.MulVec3(geom.Vertices[i2].Position)

		t, hit := mollerTrumbore(ray, v0, v1, v2)
		if hit && t < closest.Distance {
			closest.Hit = true
			closest.Distance = t
			closest.Point = ray.At(t)
			closest.Normal = v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
			closest.Node = node
			closest.FaceIdx = i / 3
		}
	}

	return closest
}

// mollerTrumbore implements the Möller–Trumbore ray-triangle intersection algorithm
func mollerTrumbore(ray scene.Ray, v0, v1, v2 math.Vec3) (float32, bool) {
	const epsilon = 0.0000001

	edge1 := v1.Sub(v0)
	edge2 := v2.Sub(v0)
	h := ray.Direction.Cross(edge2)
	a := edge1.Dot(h)

	if a > -epsilon && a < epsilon {
		return 0, false // parallel
	}

	f := 1.0 / a
	s := ray.Origin.Sub(v0)
	u := f * s.Dot(h)

	if u < 0.0 || u > 1.0 {
		return 0, false
	}

	q := s.Cross(edge1)
	v := f * ray.Direction.Dot(q)

	if v < 0.0 || u+v > 1.0 {
		return 0, false
	}

	t := f * edge2.Dot(q)
	return t, t > epsilon
}
