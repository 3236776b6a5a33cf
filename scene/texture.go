package scene

import (
	"image"
	"image/draw"

	"github.com/chewxy/math32"
)

// Mapping tells samplers how to address a texture.
type Mapping int

const (
	MappingUV Mapping = iota
	MappingEquirectangular
)

// Texture holds CPU-side pixel data for a 2D texture. LDR textures fill
// Pixels with RGBA8 rows top to bottom; HDR textures fill HDR with float
// RGBA in the same order.
type Texture struct {
	Name    string
	Width   int
	Height  int
	Pixels  []byte
	HDR     []float32
	Mapping Mapping

	// GLID is the OpenGL texture object ID, set by the backend on upload.
	GLID      uint32
	OnDispose func() error
	disposed  bool
}

// NewTextureFromImage converts img to RGBA8.
func NewTextureFromImage(name string, img image.Image) *Texture {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return &Texture{
		Name:   name,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: rgba.Pix,
	}
}

// NewHDRTexture wraps float RGBA data (4 floats per pixel).
func NewHDRTexture(name string, width, height int, data []float32) *Texture {
	return &Texture{Name: name, Width: width, Height: height, HDR: data}
}

// NewSolidTexture creates a 1x1 texture with the given RGBA color values (0–255).
func NewSolidTexture(name string, r, g, b, a uint8) *Texture {
	return &Texture{
		Name:   name,
		Width:  1,
		Height: 1,
		Pixels: []byte{r, g, b, a},
	}
}

func (t *Texture) IsHDR() bool {
	return t.HDR != nil
}

// Clone returns a texture sharing the pixel data but with its own GPU
// identity, so it can be disposed independently.
func (t *Texture) Clone() *Texture {
	return &Texture{
		Name:    t.Name,
		Width:   t.Width,
		Height:  t.Height,
		Pixels:  t.Pixels,
		HDR:     t.HDR,
		Mapping: t.Mapping,
	}
}

// Image returns an RGBA view of the texture. LDR data is shared; HDR data
// is clamped into a new buffer.
func (t *Texture) Image() *image.RGBA {
	rect := image.Rect(0, 0, t.Width, t.Height)
	if !t.IsHDR() {
		return &image.RGBA{Pix: t.Pixels, Stride: 4 * t.Width, Rect: rect}
	}
	img := image.NewRGBA(rect)
	for i, v := range t.HDR {
		img.Pix[i] = uint8(math32.Min(math32.Max(v, 0), 1)*255 + 0.5)
	}
	return img
}

func (t *Texture) Dispose() error {
	if t.disposed {
		return nil
	}
	t.disposed = true
	t.GLID = 0
	if t.OnDispose != nil {
		return t.OnDispose()
	}
	return nil
}

func (t *Texture) Disposed() bool {
	return t.disposed
}
