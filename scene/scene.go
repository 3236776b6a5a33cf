package scene

import (
	"scene-studio/core"
)

// Scene owns a node hierarchy together with its background and illumination.
// Textures are references: two scenes may point at the same texture.
type Scene struct {
	Root                 *Node
	BackgroundColor      core.Color
	Background           *Texture
	Environment          *Texture
	BlurredEnvironment   *Texture
	EnvironmentIntensity float32
}

func NewScene() *Scene {
	return &Scene{
		Root:                 NewGroup("Root"),
		BackgroundColor:      core.ColorFromHex(0x101010),
		EnvironmentIntensity: 1,
	}
}

func (s *Scene) Add(node *Node) {
	s.Root.AddChild(node)
}

// Remove detaches a top-level node and reports whether it was present.
func (s *Scene) Remove(node *Node) bool {
	return s.Root.RemoveChild(node)
}

// Contains reports whether node is a direct child of the root.
func (s *Scene) Contains(node *Node) bool {
	return node != nil && node.Parent == s.Root
}

// TopLevel returns a copy of the root's children.
func (s *Scene) TopLevel() []*Node {
	return append([]*Node(nil), s.Root.Children...)
}

// Lights returns every light node in the graph, nested ones included.
func (s *Scene) Lights() []*Node {
	var lights []*Node
	s.Root.Traverse(func(node *Node) {
		if node.Kind() == KindLight && node.Light != nil {
			lights = append(lights, node)
		}
	})
	return lights
}

// VisibleMeshes returns every node with geometry whose whole ancestry is visible.
func (s *Scene) VisibleMeshes() []*Node {
	var visible []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if !n.Visible {
			return
		}
		if n.HasGeometry() {
			visible = append(visible, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(s.Root)
	return visible
}

// Clear detaches every top-level node without disposing anything.
func (s *Scene) Clear() {
	s.Root.ClearChildren()
}
