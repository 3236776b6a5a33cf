package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"scene-studio/math"
)

// A single triangle with an embedded buffer: (0,0,0) (1,0,0) (0,1,0).
const triangleGLTF = `{
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [{"mesh": 0, "name": "tri"}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
  "buffers": [{"uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAA", "byteLength": 36}],
  "bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 36, "target": 34962}],
  "accessors": [{"bufferView": 0, "byteOffset": 0, "componentType": 5126, "count": 3, "type": "VEC3", "max": [1, 1, 0], "min": [0, 0, 0]}],
  "asset": {"version": "2.0"}
}`

func TestImportTriangle(t *testing.T) {
	imp := NewGLTFImporter(nil)

	root, err := imp.Import(context.Background(), "triangle.gltf", []byte(triangleGLTF))
	require.NoError(t, err)

	assert.Equal(t, "triangle", root.Name)
	require.Len(t, root.Children, 1)
	tri := root.Children[0]
	assert.Equal(t, KindMesh, tri.Kind())
	assert.Equal(t, "tri", tri.Name)
	require.NotNil(t, tri.Geometry)
	assert.Len(t, tri.Geometry.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, tri.Geometry.Indices)
	assert.NotNil(t, tri.Material)

	box := ComputeBounds(root)
	assert.InDelta(t, 1, box.Size().X, 1e-6)
	assert.InDelta(t, 1, box.Size().Y, 1e-6)
}

// The NORMAL attribute points at a VEC2 accessor, which cannot hold normals.
const badNormalsGLTF = `{
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [{"mesh": 0, "name": "tri"}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0, "NORMAL": 1}}]}],
  "buffers": [{"uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAA", "byteLength": 36}],
  "bufferViews": [{"buffer": 0, "byteOffset": 0, "byteLength": 36, "target": 34962}],
  "accessors": [
    {"bufferView": 0, "byteOffset": 0, "componentType": 5126, "count": 3, "type": "VEC3", "max": [1, 1, 0], "min": [0, 0, 0]},
    {"bufferView": 0, "byteOffset": 0, "componentType": 5126, "count": 3, "type": "VEC2"}
  ],
  "asset": {"version": "2.0"}
}`

func TestImportWarnsOnUnreadableNormals(t *testing.T) {
	obs, logs := observer.New(zap.WarnLevel)
	imp := NewGLTFImporter(zap.New(obs))

	root, err := imp.Import(context.Background(), "triangle.gltf", []byte(badNormalsGLTF))
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	for _, v := range root.Children[0].Geometry.Vertices {
		assert.Equal(t, math.Vec3Up, v.Normal)
	}

	warned := logs.FilterMessage("dropping normals").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "prim_0", warned[0].ContextMap()["primitive"])
}

func TestImportCorruptPayload(t *testing.T) {
	imp := NewGLTFImporter(nil)

	for name, payload := range map[string][]byte{
		"empty.glb":   nil,
		"garbage.glb": []byte("glTF\x02\x00\x00\x00garbage"),
		"json.gltf":   []byte(`{"asset": {"version": "2.0"}`),
		"nomesh.gltf": []byte(`{"asset": {"version": "2.0"}, "nodes": [{"name": "empty"}]}`),
	} {
		t.Run(name, func(t *testing.T) {
			root, err := imp.Import(context.Background(), name, payload)
			assert.Nil(t, root)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, name, pe.Source)
		})
	}
}

func TestImportHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGLTFImporter(nil).Import(ctx, "triangle.gltf", []byte(triangleGLTF))
	assert.ErrorIs(t, err, context.Canceled)
}
