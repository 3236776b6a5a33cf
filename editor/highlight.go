package editor

import (
	"errors"

	"scene-studio/core"
	"scene-studio/math"
	"scene-studio/scene"
)

// HighlightStyle configures the outline drawn around a selection.
type HighlightStyle struct {
	Color   core.Color
	Opacity float32
	Scale   float32
}

func DefaultHighlightStyle() HighlightStyle {
	return HighlightStyle{Color: core.ColorGreen, Opacity: 0.5, Scale: 1.02}
}

// Highlighter draws a translucent shell around one object at a time. The
// shell is parented under the object so it follows every transform.
type Highlighter struct {
	style    HighlightStyle
	material *scene.Material
	target   *scene.Node
	group    *scene.Node
}

func NewHighlighter(style HighlightStyle) *Highlighter {
	mat := scene.NewUnlitMaterial("HighlightMaterial", style.Color)
	mat.Opacity = style.Opacity
	mat.Transparent = true
	mat.Side = scene.SideBack
	mat.DepthWrite = false
	return &Highlighter{style: style, material: mat}
}

// Target returns the highlighted node or nil.
func (h *Highlighter) Target() *scene.Node {
	return h.target
}

// Group returns the overlay group or nil.
func (h *Highlighter) Group() *scene.Node {
	return h.group
}

func (h *Highlighter) Material() *scene.Material {
	return h.material
}

// Highlight replaces any existing overlay with one for node.
func (h *Highlighter) Highlight(node *scene.Node) error {
	if err := h.Clear(); err != nil {
		return err
	}
	if node == nil {
		return nil
	}

	group := scene.NewOverlay("Highlight")
	scale := math.Mat4Scale(math.Splat(h.style.Scale))
	var visit func(n *scene.Node)
	visit = func(n *scene.Node) {
		if n.Kind() == scene.KindMesh && n.Geometry != nil && !n.Geometry.IsEmpty() {
			rel := n.MatrixRelativeTo(node)
			shell := n.Geometry.Transformed(scale.Mul(rel))
			shell.Name = n.Geometry.Name + "#highlight"
			group.AddChild(scene.NewOverlayMesh(n.Name+"#highlight", shell, h.material))
		}
		for _, c := range n.Children {
			if c.IsEditorChrome() {
				continue
			}
			visit(c)
		}
	}
	visit(node)

	node.AddChild(group)
	h.group = group
	h.target = node
	return nil
}

// Clear removes the overlay and releases its geometries.
func (h *Highlighter) Clear() error {
	if h.group == nil {
		return nil
	}
	h.group.RemoveFromParent()
	var errs []error
	for _, c := range h.group.Children {
		if c.Geometry != nil {
			if err := c.Geometry.Dispose(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	h.group = nil
	h.target = nil
	return errors.Join(errs...)
}

// Dispose clears the overlay and releases the shared material.
func (h *Highlighter) Dispose() error {
	return errors.Join(h.Clear(), h.material.Dispose())
}

// Visibility is a snapshot of Visible flags taken by HideAll.
type Visibility struct {
	nodes   []*scene.Node
	visible []bool
}

// HideAll hides every overlay, gizmo and UI node under root and returns the
// previous state. Helpers such as the grid stay as they are.
func HideAll(root *scene.Node) *Visibility {
	v := &Visibility{}
	root.Traverse(func(n *scene.Node) {
		switch {
		case n.Kind() == scene.KindOverlay, n.Kind() == scene.KindGizmo, n.Tags.UI:
			v.nodes = append(v.nodes, n)
			v.visible = append(v.visible, n.Visible)
			n.Visible = false
		}
	})
	return v
}

// Restore puts every flag back. Calling it again has no effect.
func (v *Visibility) Restore() {
	if v == nil {
		return
	}
	for i, n := range v.nodes {
		n.Visible = v.visible[i]
	}
	v.nodes, v.visible = nil, nil
}
