package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"scene-studio/core"
	"scene-studio/math"
)

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("malformed model payload")

// ParseError reports a model payload that could not be decoded.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model %q: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// GLTFImporter decodes self-contained .glb / .gltf payloads into a node tree.
type GLTFImporter struct {
	logger *zap.Logger
}

func NewGLTFImporter(logger *zap.Logger) *GLTFImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GLTFImporter{logger: logger.Named("gltf")}
}

// Import decodes data and returns a group named after the source holding the
// default scene's root nodes. Malformed payloads yield a *ParseError and no
// node at all. Undecodable images only drop the texture.
func (imp *GLTFImporter) Import(ctx context.Context, name string, data []byte) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &ParseError{Source: name, Err: errors.New("empty payload")}
	}

	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}

	root, err := imp.build(ctx, name, doc)
	if err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}
	return root, nil
}

func (imp *GLTFImporter) build(ctx context.Context, name string, doc *gltf.Document) (*Node, error) {
	// ── 1. Textures ──────────────────────────────────────────────────────────
	texCache := make([]*Texture, len(doc.Textures))
	for i, gt := range doc.Textures {
		if gt.Source == nil || *gt.Source >= len(doc.Images) {
			continue
		}
		img := doc.Images[*gt.Source]
		if img.BufferView == nil {
			imp.logger.Warn("skipping external image", zap.Int("image", *gt.Source), zap.String("uri", img.URI))
			continue
		}
		raw, err := modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
		if err != nil {
			imp.logger.Warn("image buffer view", zap.Int("image", *gt.Source), zap.Error(err))
			continue
		}
		texName := img.Name
		if texName == "" {
			texName = fmt.Sprintf("%s_img_%d", name, *gt.Source)
		}
		decoded, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			imp.logger.Warn("image decode", zap.String("texture", texName), zap.Error(err))
			continue
		}
		texCache[i] = NewTextureFromImage(texName, decoded)
	}
	lookupTex := func(idx int) *Texture {
		if idx >= 0 && idx < len(texCache) {
			return texCache[idx]
		}
		return nil
	}

	// ── 2. Materials ─────────────────────────────────────────────────────────
	matCache := make([]*Material, len(doc.Materials))
	for i, gm := range doc.Materials {
		mat := DefaultMaterial()
		mat.Name = gm.Name

		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			cf := pbr.BaseColorFactorOrDefault()
			mat.Albedo = core.Color{R: float32(cf[0]), G: float32(cf[1]), B: float32(cf[2]), A: float32(cf[3])}
			mat.Metallic = float32(pbr.MetallicFactorOrDefault())
			mat.Roughness = float32(pbr.RoughnessFactorOrDefault())
			if pbr.BaseColorTexture != nil {
				mat.AlbedoTexture = lookupTex(pbr.BaseColorTexture.Index)
			}
			if pbr.MetallicRoughnessTexture != nil {
				mat.MetallicRoughnessTexture = lookupTex(pbr.MetallicRoughnessTexture.Index)
			}
		}
		if gm.NormalTexture != nil && gm.NormalTexture.Index != nil {
			mat.NormalTexture = lookupTex(*gm.NormalTexture.Index)
		}
		if gm.AlphaMode == gltf.AlphaBlend {
			mat.Transparent = true
			mat.Opacity = mat.Albedo.A
		}
		if gm.DoubleSided {
			mat.Side = SideDouble
		}
		matCache[i] = mat
	}

	// ── 3. Mesh primitives ───────────────────────────────────────────────────
	var fallback *Material
	type primitive struct {
		geometry *Geometry
		material *Material
	}
	meshPrims := make([][]primitive, len(doc.Meshes))
	meshCount := 0
	for mi, gm := range doc.Meshes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for pi, prim := range gm.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				imp.logger.Warn("skipping non-triangle primitive", zap.Int("mesh", mi), zap.Int("primitive", pi))
				continue
			}
			g, err := imp.loadPrimitive(doc, gm.Name, pi, prim)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
			var mat *Material
			if prim.Material != nil && *prim.Material < len(matCache) {
				mat = matCache[*prim.Material]
			} else {
				if fallback == nil {
					fallback = DefaultMaterial()
				}
				mat = fallback
			}
			meshPrims[mi] = append(meshPrims[mi], primitive{geometry: g, material: mat})
			meshCount++
		}
	}
	if meshCount == 0 {
		return nil, errors.New("no triangle geometry")
	}

	// ── 4. Nodes ─────────────────────────────────────────────────────────────
	nodes := make([]*Node, len(doc.Nodes))
	for i, gn := range doc.Nodes {
		nodeName := gn.Name
		if nodeName == "" {
			nodeName = fmt.Sprintf("node_%d", i)
		}

		var prims []primitive
		if gn.Mesh != nil && *gn.Mesh < len(meshPrims) {
			prims = meshPrims[*gn.Mesh]
		}

		var n *Node
		if len(prims) == 1 {
			n = NewMeshNode(nodeName, prims[0].geometry, prims[0].material)
		} else {
			n = NewGroup(nodeName)
			for pi, p := range prims {
				n.AddChild(NewMeshNode(fmt.Sprintf("%s_prim%d", nodeName, pi), p.geometry, p.material))
			}
		}

		t := gn.TranslationOrDefault()
		sc := gn.ScaleOrDefault()
		r := gn.RotationOrDefault() // [x, y, z, w]
		n.SetTransform(core.Transform{
			Position: math.Vec3{X: float32(t[0]), Y: float32(t[1]), Z: float32(t[2])},
			Rotation: math.Quaternion{X: float32(r[0]), Y: float32(r[1]), Z: float32(r[2]), W: float32(r[3])},
			Scale:    math.Vec3{X: float32(sc[0]), Y: float32(sc[1]), Z: float32(sc[2])},
		})
		nodes[i] = n
	}

	hasParent := make([]bool, len(nodes))
	for i, gn := range doc.Nodes {
		for _, childIdx := range gn.Children {
			if childIdx < 0 || childIdx >= len(nodes) || childIdx == i || hasParent[childIdx] {
				return nil, fmt.Errorf("node %d: invalid child %d", i, childIdx)
			}
			hasParent[childIdx] = true
			nodes[i].AddChild(nodes[childIdx])
		}
	}

	// ── 5. Root nodes ────────────────────────────────────────────────────────
	root := NewGroup(strings.TrimSuffix(name, path.Ext(name)))
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		for _, rootIdx := range doc.Scenes[*doc.Scene].Nodes {
			if rootIdx >= 0 && rootIdx < len(nodes) && !hasParent[rootIdx] {
				root.AddChild(nodes[rootIdx])
			}
		}
	} else {
		for i, n := range nodes {
			if !hasParent[i] {
				root.AddChild(n)
			}
		}
	}
	if ComputeBounds(root).IsEmpty() {
		return nil, errors.New("default scene has no geometry")
	}
	return root, nil
}

// loadPrimitive converts one glTF triangle primitive into a Geometry.
// Unreadable normals or UVs are dropped with a warning.
func (imp *GLTFImporter) loadPrimitive(doc *gltf.Document, meshName string, primIdx int, prim *gltf.Primitive) (*Geometry, error) {
	name := fmt.Sprintf("%s_p%d", meshName, primIdx)
	if meshName == "" {
		name = fmt.Sprintf("prim_%d", primIdx)
	}

	posIdx, ok := prim.Attributes["POSITION"]
	if !ok || posIdx >= len(doc.Accessors) {
		return nil, errors.New("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	var uvs [][2]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok && idx < len(doc.Accessors) {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
			imp.logger.Warn("dropping normals", zap.String("primitive", name), zap.Error(err))
			normals = nil
		}
	}
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok && idx < len(doc.Accessors) {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			imp.logger.Warn("dropping texture coordinates", zap.String("primitive", name), zap.Error(err))
			uvs = nil
		}
	}

	verts := make([]core.Vertex, len(positions))
	for i, p := range positions {
		v := core.Vertex{
			Position: math.Vec3{X: p[0], Y: p[1], Z: p[2]},
			Normal:   math.Vec3Up,
			Color:    core.ColorWhite,
		}
		if i < len(normals) {
			n := normals[i]
			v.Normal = math.Vec3{X: n[0], Y: n[1], Z: n[2]}
		}
		if i < len(uvs) {
			v.UV = uvs[i]
		}
		verts[i] = v
	}

	var indices []uint32
	if prim.Indices != nil {
		if *prim.Indices >= len(doc.Accessors) {
			return nil, fmt.Errorf("indices accessor %d out of range", *prim.Indices)
		}
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
		for _, idx := range indices {
			if int(idx) >= len(verts) {
				return nil, fmt.Errorf("index %d out of range", idx)
			}
		}
	} else {
		indices = make([]uint32, len(verts))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	return NewGeometry(name, verts, indices), nil
}
