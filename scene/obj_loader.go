package scene

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"scene-studio/core"
	"scene-studio/math"
)

// OBJImporter decodes Wavefront .obj payloads. Material libraries are not
// resolved since a payload carries no sibling files; each usemtl name gets a
// plain gray material.
type OBJImporter struct {
	logger *zap.Logger
}

func NewOBJImporter(logger *zap.Logger) *OBJImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OBJImporter{logger: logger.Named("obj")}
}

var objDefaultColor = core.Color{R: 0.8, G: 0.8, B: 0.8, A: 1}

// objMesh is one object or group section of the file.
type objMesh struct {
	name     string
	vertices []core.Vertex
	indices  []uint32
	material string
	// normals is false when a face vertex had no normal.
	normals bool
}

type objParser struct {
	positions []math.Vec3
	normals   []math.Vec3
	uvs       [][2]float32

	meshes  []objMesh
	current objMesh
	// vertexMap dedups "v/vt/vn" references within the current mesh.
	vertexMap map[string]uint32
	mtllib    string
}

func (imp *OBJImporter) Import(ctx context.Context, name string, data []byte) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &ParseError{Source: name, Err: errors.New("empty payload")}
	}

	p := &objParser{
		current:   objMesh{name: "default", normals: true},
		vertexMap: make(map[string]uint32),
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := p.line(scanner.Text()); err != nil {
			return nil, &ParseError{Source: name, Err: fmt.Errorf("line %d: %w", lineNo, err)}
		}
		if p.mtllib != "" {
			imp.logger.Debug("ignoring material library", zap.String("model", name), zap.String("mtllib", p.mtllib))
			p.mtllib = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}
	p.flush()
	if len(p.meshes) == 0 {
		return nil, &ParseError{Source: name, Err: errors.New("no mesh data found")}
	}

	base := strings.TrimSuffix(name, path.Ext(name))
	root := NewGroup(base)
	materials := make(map[string]*Material)
	for _, m := range p.meshes {
		if !m.normals {
			computeVertexNormals(m.vertices, m.indices)
		}
		mat, ok := materials[m.material]
		if !ok {
			matName := m.material
			if matName == "" {
				matName = base + "_material"
			}
			mat = NewPBRMaterial(matName, objDefaultColor, 0, 0.6)
			materials[m.material] = mat
		}
		root.AddChild(NewMeshNode(m.name, NewGeometry(m.name, m.vertices, m.indices), mat))
	}
	imp.logger.Debug("obj decoded", zap.String("model", name), zap.Int("meshes", len(p.meshes)))
	return root, nil
}

func (p *objParser) line(raw string) error {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	parts := strings.Fields(line)

	switch parts[0] {
	case "v", "vn":
		if len(parts) < 4 {
			return fmt.Errorf("%s needs 3 components", parts[0])
		}
		v, err := parseVec3(parts[1:4])
		if err != nil {
			return err
		}
		if parts[0] == "v" {
			p.positions = append(p.positions, v)
		} else {
			p.normals = append(p.normals, v)
		}
	case "vt":
		if len(parts) < 3 {
			return errors.New("vt needs 2 components")
		}
		u, err := strconv.ParseFloat(parts[1], 32)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(parts[2], 32)
		if err != nil {
			return err
		}
		// OBJ puts v = 0 at the bottom of the image.
		p.uvs = append(p.uvs, [2]float32{float32(u), 1 - float32(v)})
	case "f":
		if len(parts) < 4 {
			return errors.New("face needs at least 3 vertices")
		}
		face := make([]uint32, 0, len(parts)-1)
		for _, ref := range parts[1:] {
			idx, err := p.faceVertex(ref)
			if err != nil {
				return err
			}
			face = append(face, idx)
		}
		// Fan triangulation for n-gons.
		for i := 2; i < len(face); i++ {
			p.current.indices = append(p.current.indices, face[0], face[i-1], face[i])
		}
	case "o", "g":
		p.flush()
		name := "unnamed"
		if len(parts) > 1 {
			name = parts[1]
		}
		p.current = objMesh{name: name, material: p.current.material, normals: true}
	case "usemtl":
		if len(parts) > 1 {
			if len(p.current.indices) > 0 {
				// A material switch mid-group starts a new mesh.
				name := p.current.name
				p.flush()
				p.current = objMesh{name: name, normals: true}
			}
			p.current.material = parts[1]
		}
	case "mtllib":
		if len(parts) > 1 {
			p.mtllib = parts[1]
		}
	}
	return nil
}

func (p *objParser) flush() {
	if len(p.current.indices) > 0 {
		p.meshes = append(p.meshes, p.current)
	}
	p.vertexMap = make(map[string]uint32)
}

// faceVertex resolves a "v/vt/vn" reference to an index in the current mesh.
func (p *objParser) faceVertex(ref string) (uint32, error) {
	if idx, ok := p.vertexMap[ref]; ok {
		return idx, nil
	}
	v := core.Vertex{Color: core.ColorWhite}
	parts := strings.Split(ref, "/")

	pi, err := objIndex(parts[0], len(p.positions))
	if err != nil {
		return 0, fmt.Errorf("vertex %q: %w", ref, err)
	}
	v.Position = p.positions[pi]

	if len(parts) >= 2 && parts[1] != "" {
		ti, err := objIndex(parts[1], len(p.uvs))
		if err != nil {
			return 0, fmt.Errorf("uv %q: %w", ref, err)
		}
		v.UV = p.uvs[ti]
	}
	if len(parts) >= 3 && parts[2] != "" {
		ni, err := objIndex(parts[2], len(p.normals))
		if err != nil {
			return 0, fmt.Errorf("normal %q: %w", ref, err)
		}
		v.Normal = p.normals[ni]
	} else {
		p.current.normals = false
	}

	idx := uint32(len(p.current.vertices))
	p.current.vertices = append(p.current.vertices, v)
	p.vertexMap[ref] = idx
	return idx, nil
}

// objIndex converts a 1-based or negative (relative) OBJ index to 0-based.
func objIndex(s string, n int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if idx < 0 {
		idx = n + idx + 1
	}
	if idx < 1 || idx > n {
		return 0, fmt.Errorf("index %s out of range (%d defined)", s, n)
	}
	return idx - 1, nil
}

func parseVec3(fields []string) (math.Vec3, error) {
	var out [3]float32
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return math.Vec3{}, err
		}
		out[i] = float32(v)
	}
	return math.NewVec3(out[0], out[1], out[2]), nil
}

// computeVertexNormals sets area-weighted smooth normals.
func computeVertexNormals(vertices []core.Vertex, indices []uint32) {
	for i := range vertices {
		vertices[i].Normal = math.Vec3Zero
	}
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := &vertices[indices[i]], &vertices[indices[i+1]], &vertices[indices[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		a.Normal = a.Normal.Add(n)
		b.Normal = b.Normal.Add(n)
		c.Normal = c.Normal.Add(n)
	}
	for i := range vertices {
		if vertices[i].Normal.LengthSqr() > 0 {
			vertices[i].Normal = vertices[i].Normal.Normalize()
		} else {
			vertices[i].Normal = math.Vec3Up
		}
	}
}
