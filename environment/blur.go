package environment

import (
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/transform"
	"github.com/chewxy/math32"

	"scene-studio/scene"
)

// Blur derives the low-frequency copy of an environment used by the path
// tracer for background rays. The source is first reduced to maxWidth.
func Blur(src *scene.Texture, radius float64, maxWidth int) *scene.Texture {
	width, height := src.Width, src.Height
	if maxWidth > 0 && width > maxWidth {
		height = max(1, height*maxWidth/width)
		width = maxWidth
	}

	var out *scene.Texture
	if src.IsHDR() {
		data := resizeFloat(src.HDR, src.Width, src.Height, width, height)
		gaussianFloat(data, width, height, float32(radius))
		out = scene.NewHDRTexture(src.Name+"#blurred", width, height, data)
	} else {
		img := src.Image()
		if width != src.Width || height != src.Height {
			img = transform.Resize(img, width, height, transform.Linear)
		}
		out = scene.NewTextureFromImage(src.Name+"#blurred", blur.Gaussian(img, radius))
	}
	out.Mapping = src.Mapping
	return out
}

// resizeFloat box-filters float RGBA data down to w x h. bild works on 8-bit
// images only, so radiance above 1 would be clamped there.
func resizeFloat(src []float32, sw, sh, w, h int) []float32 {
	if sw == w && sh == h {
		return append([]float32(nil), src...)
	}
	dst := make([]float32, w*h*4)
	for y := 0; y < h; y++ {
		y0, y1 := y*sh/h, max((y+1)*sh/h, y*sh/h+1)
		for x := 0; x < w; x++ {
			x0, x1 := x*sw/w, max((x+1)*sw/w, x*sw/w+1)
			var acc [4]float32
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					i := (sy*sw + sx) * 4
					acc[0] += src[i]
					acc[1] += src[i+1]
					acc[2] += src[i+2]
					acc[3] += src[i+3]
				}
			}
			n := float32((y1 - y0) * (x1 - x0))
			i := (y*w + x) * 4
			for c := 0; c < 4; c++ {
				dst[i+c] = acc[c] / n
			}
		}
	}
	return dst
}

// gaussianFloat blurs in place with a separable kernel. Rows wrap
// horizontally so the equirectangular seam stays continuous.
func gaussianFloat(data []float32, w, h int, radius float32) {
	if radius <= 0 {
		return
	}
	r := int(math32.Ceil(radius))
	kernel := make([]float32, 2*r+1)
	var sum float32
	for i := -r; i <= r; i++ {
		v := math32.Exp(-float32(i*i) / (2 * radius * radius))
		kernel[i+r] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float32, len(data))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float32
			for k := -r; k <= r; k++ {
				sx := ((x+k)%w + w) % w
				i := (y*w + sx) * 4
				for c := 0; c < 4; c++ {
					acc[c] += data[i+c] * kernel[k+r]
				}
			}
			copy(tmp[(y*w+x)*4:], acc[:])
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float32
			for k := -r; k <= r; k++ {
				sy := min(max(y+k, 0), h-1)
				i := (sy*w + x) * 4
				for c := 0; c < 4; c++ {
					acc[c] += tmp[i+c] * kernel[k+r]
				}
			}
			copy(data[(y*w+x)*4:], acc[:])
		}
	}
}
