package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-studio/renderer"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	glb := append([]byte("glTF"), 2, 0, 0, 0, 12, 0, 0, 0)

	tests := []struct {
		name string
		file string
		data []byte
		want fileKind
	}{
		{"binary gltf", "chair.glb", glb, kindModel},
		{"binary gltf with wrong extension", "chair.bin", glb, kindModel},
		{"json gltf", "chair.gltf", []byte(`  {"asset":{"version":"2.0"}}`), kindModel},
		{"json without gltf extension", "chair.json", []byte(`{"asset":{}}`), kindUnknown},
		{"radiance hdr", "studio.hdr", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n"), kindImage},
		{"png", "backdrop.png", pngBytes(t), kindImage},
		{"wavefront obj", "crate.OBJ", []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), kindModel},
		{"empty obj", "crate.obj", nil, kindUnknown},
		{"text", "notes.txt", []byte("hello"), kindUnknown},
		{"empty", "empty.glb", nil, kindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.file, tt.data))
		})
	}
}

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}
	model := write("a.glb", []byte("glTF\x02\x00\x00\x00"))
	bg := write("bg.png", pngBytes(t))
	bg2 := write("bg2.hdr", []byte("#?RGBE\n"))
	bad := write("notes.txt", []byte("hello"))

	models, background, err := readInputs([]string{model, bg})
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "a.glb", models[0].Name)
	require.NotNil(t, background)
	assert.Equal(t, "bg.png", background.Name)

	_, _, err = readInputs([]string{bg, bg2})
	assert.ErrorContains(t, err, "more than one background")

	_, _, err = readInputs([]string{bad})
	assert.ErrorContains(t, err, "unsupported file type")

	_, _, err = readInputs([]string{filepath.Join(dir, "missing.glb")})
	assert.Error(t, err)
}

func TestCaptureSize(t *testing.T) {
	size, err := captureSize(0, 0, "16:9")
	require.NoError(t, err)
	assert.Equal(t, renderer.CaptureSize{Width: 1280, Height: 736}, size)

	size, err = captureSize(640, 480, "16:9")
	require.NoError(t, err)
	assert.Equal(t, renderer.CaptureSize{Width: 640, Height: 480}, size)

	_, err = captureSize(640, 0, "")
	assert.Error(t, err)
}
