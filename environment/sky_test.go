package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-studio/core"
	"scene-studio/math"
	"scene-studio/scene"
)

func TestSkyGradientColors(t *testing.T) {
	sky := DefaultSky()

	up := sky.ColorAt(math.NewVec3(0, 1, 0))
	assert.InDelta(t, sky.Top.B, up.B, 1e-4)
	assert.InDelta(t, sky.Top.R, up.R, 1e-4)

	// Directions well below the horizon get the bottom color.
	down := sky.ColorAt(math.NewVec3(0, -1, 0))
	assert.Equal(t, core.ColorWhite, down)

	// The offset lifts the horizon, so a level ray is already partly blue.
	level := sky.ColorAt(math.NewVec3(1, 0, 0))
	assert.Less(t, level.R, float32(1))
	assert.Greater(t, level.R, up.R)
}

func TestSkyBake(t *testing.T) {
	tex := DefaultSky().Bake(16, 8)
	require.True(t, tex.IsHDR())
	assert.Equal(t, "procedural-sky", tex.Name)
	assert.Equal(t, scene.MappingEquirectangular, tex.Mapping)
	assert.Len(t, tex.HDR, 16*8*4)

	// Top row is bluer than bottom row.
	top := tex.HDR[0:4]
	bottom := tex.HDR[(7*16)*4 : (7*16)*4+4]
	assert.Less(t, top[0], bottom[0])
	assert.Equal(t, float32(1), top[3])
}

func TestBlurReducesAndKeepsMapping(t *testing.T) {
	src := DefaultSky().Bake(64, 32)
	out := Blur(src, 2, 16)
	assert.Equal(t, 16, out.Width)
	assert.Equal(t, 8, out.Height)
	assert.Equal(t, "procedural-sky#blurred", out.Name)
	assert.Equal(t, scene.MappingEquirectangular, out.Mapping)
	assert.NotSame(t, src, out)
	assert.False(t, src.Disposed())
}

func TestBlurFloatPreservesConstantImage(t *testing.T) {
	data := make([]float32, 8*4*4)
	for i := range data {
		data[i] = 0.25
	}
	src := scene.NewHDRTexture("flat", 8, 4, data)
	out := Blur(src, 3, 0)
	for _, v := range out.HDR {
		assert.InDelta(t, 0.25, v, 1e-5)
	}
}

func TestBlurLDR(t *testing.T) {
	src := scene.NewSolidTexture("px", 10, 20, 30, 255)
	out := Blur(src, 1, 256)
	require.False(t, out.IsHDR())
	assert.Equal(t, 1, out.Width)
	assert.Equal(t, "px#blurred", out.Name)
}
