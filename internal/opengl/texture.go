package opengl

import (
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"scene-studio/scene"
)

// textureID returns the GL name for tex, uploading it on first use. The
// upload installs an OnDispose hook that queues the GL texture for deletion,
// since scene textures may be disposed from any goroutine.
func (r *Renderer) textureID(tex *scene.Texture) uint32 {
	if tex == nil || tex.Disposed() {
		return 0
	}
	if id, ok := r.textures[tex]; ok {
		return id
	}
	id := uploadTexture(tex)
	if id == 0 {
		return 0
	}
	r.textures[tex] = id
	tex.GLID = id

	prev := tex.OnDispose
	tex.OnDispose = func() error {
		r.released.addTexture(tex)
		if prev != nil {
			return prev()
		}
		return nil
	}
	return id
}

// uploadTexture creates a mipmapped GL texture from tex. LDR data becomes
// RGBA8 and HDR data RGBA32F. Rows are uploaded top row first, so v = 0
// samples the top of the image.
func uploadTexture(tex *scene.Texture) uint32 {
	if tex.Width <= 0 || tex.Height <= 0 {
		return 0
	}
	n := tex.Width * tex.Height * 4
	if tex.IsHDR() && len(tex.HDR) < n || !tex.IsHDR() && len(tex.Pixels) < n {
		return 0
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)

	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	if tex.Mapping == scene.MappingEquirectangular {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	} else {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	if tex.IsHDR() {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F,
			int32(tex.Width), int32(tex.Height), 0,
			gl.RGBA, gl.FLOAT, unsafe.Pointer(&tex.HDR[0]))
	} else {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8,
			int32(tex.Width), int32(tex.Height), 0,
			gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&tex.Pixels[0]))
	}
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return id
}

// mipLevels is the index of the smallest mip of a w x h texture.
func mipLevels(w, h int) float32 {
	size := max(w, h)
	levels := 0
	for size > 1 {
		size >>= 1
		levels++
	}
	return float32(levels)
}
