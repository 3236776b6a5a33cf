package scene

import (
	"scene-studio/core"
	"scene-studio/math"
)

// CreatePlane generates a flat plane in the XZ plane facing +Y.
func CreatePlane(width, depth float32, subdivisions int) *Geometry {
	if subdivisions < 1 {
		subdivisions = 1
	}

	var vertices []core.Vertex
	var indices []uint32

	halfW := width / 2.0
	halfD := depth / 2.0

	for z := 0; z <= subdivisions; z++ {
		for x := 0; x <= subdivisions; x++ {
			u := float32(x) / float32(subdivisions)
			v := float32(z) / float32(subdivisions)

			vertices = append(vertices, core.Vertex{
				Position: math.Vec3{X: -halfW + u*width, Y: 0, Z: -halfD + v*depth},
				Normal:   math.Vec3Up,
				UV:       [2]float32{u, v},
				Color:    core.ColorWhite,
			})
		}
	}

	for z := 0; z < subdivisions; z++ {
		for x := 0; x < subdivisions; x++ {
			topLeft := uint32(z*(subdivisions+1) + x)
			topRight := topLeft + 1
			bottomLeft := topLeft + uint32(subdivisions+1)
			bottomRight := bottomLeft + 1

			indices = append(indices, topLeft, bottomLeft, topRight)
			indices = append(indices, topRight, bottomLeft, bottomRight)
		}
	}

	return NewGeometry("Plane", vertices, indices)
}

// CreateBox generates an axis-aligned box centered on the origin.
func CreateBox(width, height, depth float32) *Geometry {
	hx, hy, hz := width/2, height/2, depth/2
	faces := []struct {
		normal  math.Vec3
		corners [4]math.Vec3
	}{
		{math.NewVec3(0, 0, 1), [4]math.Vec3{{X: -hx, Y: -hy, Z: hz}, {X: hx, Y: -hy, Z: hz}, {X: hx, Y: hy, Z: hz}, {X: -hx, Y: hy, Z: hz}}},
		{math.NewVec3(0, 0, -1), [4]math.Vec3{{X: hx, Y: -hy, Z: -hz}, {X: -hx, Y: -hy, Z: -hz}, {X: -hx, Y: hy, Z: -hz}, {X: hx, Y: hy, Z: -hz}}},
		{math.NewVec3(1, 0, 0), [4]math.Vec3{{X: hx, Y: -hy, Z: hz}, {X: hx, Y: -hy, Z: -hz}, {X: hx, Y: hy, Z: -hz}, {X: hx, Y: hy, Z: hz}}},
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{{X: -hx, Y: -hy, Z: -hz}, {X: -hx, Y: -hy, Z: hz}, {X: -hx, Y: hy, Z: hz}, {X: -hx, Y: hy, Z: -hz}}},
		{math.NewVec3(0, 1, 0), [4]math.Vec3{{X: -hx, Y: hy, Z: hz}, {X: hx, Y: hy, Z: hz}, {X: hx, Y: hy, Z: -hz}, {X: -hx, Y: hy, Z: -hz}}},
		{math.NewVec3(0, -1, 0), [4]math.Vec3{{X: -hx, Y: -hy, Z: -hz}, {X: hx, Y: -hy, Z: -hz}, {X: hx, Y: -hy, Z: hz}, {X: -hx, Y: -hy, Z: hz}}},
	}
	uvs := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	var vertices []core.Vertex
	var indices []uint32
	for _, f := range faces {
		base := uint32(len(vertices))
		for i, c := range f.corners {
			vertices = append(vertices, core.Vertex{Position: c, Normal: f.normal, UV: uvs[i], Color: core.ColorWhite})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return NewGeometry("Box", vertices, indices)
}

// CreateGrid builds a flat line grid from -size/2 to +size/2. The center
// lines are tinted so the axes stand out.
func CreateGrid(size float32, divisions int) *Geometry {
	if divisions < 1 {
		divisions = 1
	}

	half := size / 2.0
	step := size / float32(divisions)
	gray := core.Color{R: 0.35, G: 0.35, B: 0.35, A: 1}
	center := core.Color{R: 0.55, G: 0.55, B: 0.55, A: 1}

	var vertices []core.Vertex
	var indices []uint32
	addLine := func(a, b math.Vec3, c core.Color) {
		base := uint32(len(vertices))
		vertices = append(vertices,
			core.Vertex{Position: a, Normal: math.Vec3Up, Color: c},
			core.Vertex{Position: b, Normal: math.Vec3Up, Color: c},
		)
		indices = append(indices, base, base+1)
	}

	for i := 0; i <= divisions; i++ {
		offset := -half + float32(i)*step
		c := gray
		if i == divisions/2 {
			c = center
		}
		addLine(math.Vec3{X: offset, Z: -half}, math.Vec3{X: offset, Z: half}, c)
		addLine(math.Vec3{X: -half, Z: offset}, math.Vec3{X: half, Z: offset}, c)
	}

	g := NewGeometry("Grid", vertices, indices)
	g.DrawMode = DrawLines
	return g
}

// NewGroundPlane returns a shadow-catching plane tagged as ground. It is a
// regular mesh so the path tracer sees it.
func NewGroundPlane(size, shadowOpacity float32) *Node {
	mat := NewPBRMaterial("GroundMaterial", core.ColorBlack, 0, 1)
	mat.Opacity = shadowOpacity
	mat.Transparent = true
	mat.DepthWrite = false

	n := NewMeshNode("Ground", CreatePlane(size, size, 1), mat)
	n.ReceiveShadow = true
	n.Tags.Ground = true
	n.Tags.NotSelectable = true
	return n
}

// NewGridHelper returns the editor grid, slightly above the ground to avoid
// z-fighting.
func NewGridHelper(size float32, divisions int) *Node {
	n := NewHelper("Grid", CreateGrid(size, divisions), NewUnlitMaterial("GridMaterial", core.ColorWhite))
	n.SetPosition(math.NewVec3(0, 0.001, 0))
	n.Tags.NotSelectable = true
	return n
}
