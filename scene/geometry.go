package scene

import (
	"scene-studio/core"
	"scene-studio/math"
)

// DrawMode controls the primitive type used when rendering a geometry.
type DrawMode int

const (
	DrawTriangles DrawMode = iota
	DrawLines
)

// Geometry holds CPU-side vertex/index data. GPU upload is managed by the
// renderer backend, which installs OnDispose to release its buffers.
type Geometry struct {
	Name     string
	Vertices []core.Vertex
	Indices  []uint32
	DrawMode DrawMode

	// GPUData is set by the renderer backend (e.g. *opengl.GPUMesh).
	GPUData   interface{}
	OnDispose func() error

	localAABB AABB
	disposed  bool
}

// NewGeometry builds a geometry and pre-computes its local-space AABB.
func NewGeometry(name string, vertices []core.Vertex, indices []uint32) *Geometry {
	g := &Geometry{Name: name, Vertices: vertices, Indices: indices}
	g.computeLocalAABB()
	return g
}

func (g *Geometry) computeLocalAABB() {
	var box AABB
	for _, v := range g.Vertices {
		box = box.ExpandPoint(v.Position)
	}
	g.localAABB = box
}

func (g *Geometry) LocalAABB() AABB {
	return g.localAABB
}

func (g *Geometry) IsEmpty() bool {
	return len(g.Vertices) == 0
}

// Clone copies the vertex and index data. The copy has no GPU state.
func (g *Geometry) Clone() *Geometry {
	return &Geometry{
		Name:      g.Name,
		Vertices:  append([]core.Vertex(nil), g.Vertices...),
		Indices:   append([]uint32(nil), g.Indices...),
		DrawMode:  g.DrawMode,
		localAABB: g.localAABB,
	}
}

// Transformed returns a copy with positions and normals baked through m.
func (g *Geometry) Transformed(m math.Mat4) *Geometry {
	out := g.Clone()
	for i := range out.Vertices {
		v := &out.Vertices[i]
		v.Position = m.MulVec3(v.Position)
		v.Normal = m.MulDir(v.Normal).Normalize()
	}
	out.computeLocalAABB()
	return out
}

// Dispose releases backend resources. Only the first call has an effect.
func (g *Geometry) Dispose() error {
	if g.disposed {
		return nil
	}
	g.disposed = true
	g.GPUData = nil
	if g.OnDispose != nil {
		return g.OnDispose()
	}
	return nil
}

func (g *Geometry) Disposed() bool {
	return g.disposed
}
