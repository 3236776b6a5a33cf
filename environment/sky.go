package environment

import (
	"github.com/chewxy/math32"

	"scene-studio/core"
	"scene-studio/math"
	"scene-studio/scene"
)

// SkyGradient is the procedural fallback sky: a vertical blend from Bottom to
// Top evaluated on a sphere of Radius whose sample points are raised by
// Offset before normalization, shaped by Exponent.
type SkyGradient struct {
	Top      core.Color
	Bottom   core.Color
	Offset   float32
	Exponent float32
	Radius   float32
}

func DefaultSky() SkyGradient {
	return SkyGradient{
		Top:      core.ColorFromHex(0x0077ff),
		Bottom:   core.ColorWhite,
		Offset:   400,
		Exponent: 0.6,
		Radius:   1000,
	}
}

// ColorAt returns the sky color seen along dir.
func (g SkyGradient) ColorAt(dir math.Vec3) core.Color {
	world := dir.Normalize().Mul(g.Radius)
	h := world.Add(math.NewVec3(0, g.Offset, 0)).Normalize().Y
	t := math32.Max(math32.Pow(math32.Max(h, 0), g.Exponent), 0)
	return g.Bottom.Lerp(g.Top, t)
}

// Bake renders the gradient into an equirectangular float texture.
func (g SkyGradient) Bake(width, height int) *scene.Texture {
	if width < 2 {
		width = 2
	}
	if height < 1 {
		height = 1
	}
	data := make([]float32, width*height*4)
	for y := 0; y < height; y++ {
		lat := math32.Pi/2 - (float32(y)+0.5)/float32(height)*math32.Pi
		cosLat, sinLat := math32.Cos(lat), math32.Sin(lat)
		for x := 0; x < width; x++ {
			lon := ((float32(x)+0.5)/float32(width) - 0.5) * 2 * math32.Pi
			dir := math.NewVec3(cosLat*math32.Cos(lon), sinLat, cosLat*math32.Sin(lon))
			c := g.ColorAt(dir)
			i := (y*width + x) * 4
			data[i], data[i+1], data[i+2], data[i+3] = c.R, c.G, c.B, 1
		}
	}
	tex := scene.NewHDRTexture("procedural-sky", width, height, data)
	tex.Mapping = scene.MappingEquirectangular
	return tex
}
