package scene

import (
	"github.com/chewxy/math32"

	"scene-studio/math"
)

// AABB is an axis-aligned bounding box. The zero value is empty.
type AABB struct {
	Min, Max math.Vec3
	valid    bool
}

func NewAABB(min, max math.Vec3) AABB {
	return AABB{Min: min, Max: max, valid: true}
}

func (b AABB) IsEmpty() bool {
	return !b.valid
}

// ExpandPoint grows the box to contain p.
func (b AABB) ExpandPoint(p math.Vec3) AABB {
	if !b.valid {
		return NewAABB(p, p)
	}
	return NewAABB(b.Min.Min(p), b.Max.Max(p))
}

func (b AABB) Union(other AABB) AABB {
	switch {
	case !other.valid:
		return b
	case !b.valid:
		return other
	}
	return NewAABB(b.Min.Min(other.Min), b.Max.Max(other.Max))
}

func (b AABB) Center() math.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Size() math.Vec3 {
	if !b.valid {
		return math.Vec3Zero
	}
	return b.Max.Sub(b.Min)
}

// Transform returns the box enclosing the 8 transformed corners.
func (b AABB) Transform(m math.Mat4) AABB {
	if !b.valid {
		return b
	}
	mn, mx := b.Min, b.Max
	corners := [8]math.Vec3{
		{X: mn.X, Y: mn.Y, Z: mn.Z},
		{X: mx.X, Y: mn.Y, Z: mn.Z},
		{X: mn.X, Y: mx.Y, Z: mn.Z},
		{X: mx.X, Y: mx.Y, Z: mn.Z},
		{X: mn.X, Y: mn.Y, Z: mx.Z},
		{X: mx.X, Y: mn.Y, Z: mx.Z},
		{X: mn.X, Y: mx.Y, Z: mx.Z},
		{X: mx.X, Y: mx.Y, Z: mx.Z},
	}
	var out AABB
	for _, c := range corners {
		out = out.ExpandPoint(m.MulVec3(c))
	}
	return out
}

// IntersectRay runs the slab test and returns the entry distance.
func (b AABB) IntersectRay(ray Ray) (float32, bool) {
	if !b.valid {
		return 0, false
	}
	t1 := (b.Min.X - ray.Origin.X) / ray.Direction.X
	t2 := (b.Max.X - ray.Origin.X) / ray.Direction.X
	t3 := (b.Min.Y - ray.Origin.Y) / ray.Direction.Y
	t4 := (b.Max.Y - ray.Origin.Y) / ray.Direction.Y
	t5 := (b.Min.Z - ray.Origin.Z) / ray.Direction.Z
	t6 := (b.Max.Z - ray.Origin.Z) / ray.Direction.Z

	tmin := math32.Max(math32.Max(math32.Min(t1, t2), math32.Min(t3, t4)), math32.Min(t5, t6))
	tmax := math32.Min(math32.Min(math32.Max(t1, t2), math32.Max(t3, t4)), math32.Max(t5, t6))

	if tmax < 0 || tmin > tmax {
		return 0, false
	}
	return tmin, true
}

// ComputeBounds returns the world-space box of every mesh under node.
// Editor chrome is ignored.
func ComputeBounds(node *Node) AABB {
	return boundsIn(node, nil)
}

// boundsIn measures node in the coordinate space of space (nil for world).
func boundsIn(node *Node, space *Node) AABB {
	var out AABB
	node.Traverse(func(n *Node) {
		if n.IsEditorChrome() || !n.HasGeometry() || n.Geometry.IsEmpty() {
			return
		}
		out = out.Union(n.Geometry.LocalAABB().Transform(n.MatrixRelativeTo(space)))
	})
	return out
}

// FitToBounds downscales node uniformly so its largest dimension does not
// exceed maxDimension, then moves it so the box is centered on the origin of
// its parent space. Nodes already within the cap keep their scale.
func FitToBounds(node *Node, maxDimension float32) AABB {
	box := boundsIn(node, node.Parent)
	if box.IsEmpty() {
		return box
	}
	if largest := box.Size().MaxComponent(); largest > maxDimension && largest > 0 {
		node.SetScale(node.Transform.Scale.Mul(maxDimension / largest))
		box = boundsIn(node, node.Parent)
	}
	node.SetPosition(node.Transform.Position.Sub(box.Center()))
	return boundsIn(node, node.Parent)
}
