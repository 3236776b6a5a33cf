package scene

import (
	"scene-studio/core"
	"scene-studio/math"
)

// Kind classifies a node. It is fixed when the node is constructed.
type Kind int

const (
	KindGroup Kind = iota
	KindMesh
	KindLight
	KindHelper
	KindGizmo
	KindOverlay
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindMesh:
		return "mesh"
	case KindLight:
		return "light"
	case KindHelper:
		return "helper"
	case KindGizmo:
		return "gizmo"
	case KindOverlay:
		return "overlay"
	}
	return "unknown"
}

// Tags carries editor metadata that does not change how a node renders.
type Tags struct {
	Ground        bool
	UI            bool
	NotSelectable bool
}

// Node represents an object in the scene graph.
type Node struct {
	Name      string
	ObjectID  string
	Transform core.Transform
	Parent    *Node
	Children  []*Node
	Visible   bool
	Tags      Tags

	// Mesh variant.
	Geometry      *Geometry
	Material      *Material
	CastShadow    bool
	ReceiveShadow bool

	// Light variant.
	Light *Light

	kind                Kind
	visibleInPathTracer bool

	// Cached world transform
	worldMatrixDirty bool
	worldMatrix      math.Mat4
}

func newNode(name string, kind Kind) *Node {
	return &Node{
		Name:                name,
		Transform:           core.NewTransform(),
		Visible:             true,
		kind:                kind,
		visibleInPathTracer: true,
		worldMatrixDirty:    true,
	}
}

func NewGroup(name string) *Node {
	return newNode(name, KindGroup)
}

func NewMeshNode(name string, geometry *Geometry, material *Material) *Node {
	n := newNode(name, KindMesh)
	n.Geometry = geometry
	n.Material = material
	return n
}

func NewLightNode(name string, light *Light) *Node {
	n := newNode(name, KindLight)
	n.Light = light
	return n
}

// NewHelper creates an editor-only node such as a grid. Helpers may carry geometry.
func NewHelper(name string, geometry *Geometry, material *Material) *Node {
	n := newNode(name, KindHelper)
	n.Geometry = geometry
	n.Material = material
	return n
}

// NewGizmoNode creates the root of the transform gizmo visuals.
func NewGizmoNode(name string) *Node {
	n := newNode(name, KindGizmo)
	n.Tags.NotSelectable = true
	n.visibleInPathTracer = false
	return n
}

// NewOverlay creates a highlight artifact. Overlay meshes use NewOverlayMesh.
func NewOverlay(name string) *Node {
	n := newNode(name, KindOverlay)
	n.Tags.NotSelectable = true
	n.visibleInPathTracer = false
	return n
}

func NewOverlayMesh(name string, geometry *Geometry, material *Material) *Node {
	n := NewOverlay(name)
	n.Geometry = geometry
	n.Material = material
	return n
}

func (n *Node) Kind() Kind {
	return n.kind
}

// IsEditorChrome reports whether the node only exists for the editor UI and
// must never reach the path tracer, a capture or a pick.
func (n *Node) IsEditorChrome() bool {
	switch n.kind {
	case KindGizmo, KindOverlay, KindHelper:
		return true
	case KindGroup, KindMesh, KindLight:
		return n.Tags.UI
	}
	return false
}

// HasGeometry reports whether the node draws triangles or lines.
func (n *Node) HasGeometry() bool {
	switch n.kind {
	case KindMesh, KindHelper, KindOverlay, KindGizmo:
		return n.Geometry != nil
	}
	return false
}

func (n *Node) VisibleInPathTracer() bool {
	return n.visibleInPathTracer
}

// SetVisibleInPathTracer sets the flag on n and every descendant.
func (n *Node) SetVisibleInPathTracer(visible bool) {
	n.Traverse(func(node *Node) {
		node.visibleInPathTracer = visible
	})
}

// EffectivelyVisible reports whether n and all of its ancestors are visible.
func (n *Node) EffectivelyVisible() bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if !cur.Visible {
			return false
		}
	}
	return true
}

// AddChild reparents child under n. Adding n itself or one of its ancestors
// is ignored, so the graph stays a tree.
func (n *Node) AddChild(child *Node) {
	if child == nil || n.IsDescendantOf(child) {
		return
	}
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
	child.MarkWorldMatrixDirty()
}

// RemoveChild detaches child and reports whether it was a child of n.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			child.MarkWorldMatrixDirty()
			return true
		}
	}
	return false
}

func (n *Node) RemoveFromParent() {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ClearChildren detaches every child.
func (n *Node) ClearChildren() {
	for _, c := range n.Children {
		c.Parent = nil
		c.MarkWorldMatrixDirty()
	}
	n.Children = nil
}

// IsDescendantOf reports whether ancestor is n or one of its ancestors.
func (n *Node) IsDescendantOf(ancestor *Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// TopLevel returns the ancestor of n that is a direct child of root, or nil
// when n is not under root.
func (n *Node) TopLevel(root *Node) *Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Parent == root {
			return cur
		}
	}
	return nil
}

func (n *Node) WorldMatrix() math.Mat4 {
	if n.worldMatrixDirty {
		local := n.Transform.Matrix()
		if n.Parent != nil {
			n.worldMatrix = local.Mul(n.Parent.WorldMatrix())
		} else {
			n.worldMatrix = local
		}
		n.worldMatrixDirty = false
	}
	return n.worldMatrix
}

// WorldPosition returns the origin of n in world space.
func (n *Node) WorldPosition() math.Vec3 {
	return n.WorldMatrix().Translation()
}

// MatrixRelativeTo accumulates local transforms from n up to, but excluding,
// ancestor. With a nil ancestor it equals the world matrix.
func (n *Node) MatrixRelativeTo(ancestor *Node) math.Mat4 {
	m := math.Mat4Identity()
	for cur := n; cur != nil && cur != ancestor; cur = cur.Parent {
		m = m.Mul(cur.Transform.Matrix())
	}
	return m
}

func (n *Node) MarkWorldMatrixDirty() {
	n.worldMatrixDirty = true
	for _, child := range n.Children {
		child.MarkWorldMatrixDirty()
	}
}

func (n *Node) SetPosition(pos math.Vec3) {
	n.Transform.Position = pos
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetRotation(rot math.Quaternion) {
	n.Transform.Rotation = rot
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetScale(scale math.Vec3) {
	n.Transform.Scale = scale
	n.MarkWorldMatrixDirty()
}

func (n *Node) SetTransform(t core.Transform) {
	n.Transform = t
	n.MarkWorldMatrixDirty()
}

// Traverse visits n and all of its descendants depth-first.
func (n *Node) Traverse(callback func(*Node)) {
	callback(n)
	for _, child := range n.Children {
		child.Traverse(callback)
	}
}

// Find finds a node by name
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Clone returns an independent copy of the subtree rooted at n. Geometry,
// material and textures are shared; transforms, flags and the light
// description are copied. Gizmo and overlay children are not cloned.
func (n *Node) Clone() *Node {
	return n.CloneFiltered(nil)
}

// CloneFiltered is Clone with an extra predicate: descendants for which skip
// returns true are left out together with their subtrees.
func (n *Node) CloneFiltered(skip func(*Node) bool) *Node {
	c := newNode(n.Name, n.kind)
	c.ObjectID = n.ObjectID
	c.Transform = n.Transform
	c.Visible = n.Visible
	c.Tags = n.Tags
	c.visibleInPathTracer = n.visibleInPathTracer

	switch n.kind {
	case KindMesh, KindHelper, KindOverlay, KindGizmo:
		c.Geometry = n.Geometry
		c.Material = n.Material
		c.CastShadow = n.CastShadow
		c.ReceiveShadow = n.ReceiveShadow
	case KindLight:
		if n.Light != nil {
			light := n.Light.Clone()
			c.Light = &light
		}
	case KindGroup:
	}

	for _, child := range n.Children {
		if child.kind == KindGizmo || child.kind == KindOverlay {
			continue
		}
		if skip != nil && skip(child) {
			continue
		}
		c.AddChild(child.CloneFiltered(skip))
	}
	return c
}
