package opengl

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"scene-studio/scene"
)

// backgroundPass fills the frame behind the scene from the scene background
// texture. Equirectangular textures are sampled along the view ray of each
// pixel; UV-mapped images are stretched over the viewport.
type backgroundPass struct {
	vao  uint32
	prog uint32

	invViewProjLoc int32
	equirectLoc    int32
	hdrLoc         int32
	toneMapLoc     int32
	exposureLoc    int32
}

// backgroundFragSrc reconstructs the world direction of each pixel from the
// inverse rotation-only view-projection and looks it up in the texture.
const backgroundFragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D background;
uniform mat4      invViewProj;
uniform bool      equirect;
uniform bool      hdr;
uniform bool      toneMap;
uniform float     exposure;
` + equirectGLSL + toneMapGLSL + `
void main() {
    vec3 color;
    if (equirect) {
        vec4 p = invViewProj * vec4(fragUV * 2.0 - 1.0, 1.0, 1.0);
        color = texture(background, equirectUV(p.xyz / p.w)).rgb;
    } else {
        color = texture(background, vec2(fragUV.x, 1.0 - fragUV.y)).rgb;
    }
    if (!hdr) color = pow(color, vec3(2.2));
    outColor = toneMap ? vec4(toDisplay(color, exposure), 1.0) : vec4(color, 1.0);
}
` + "\x00"

func newBackgroundPass() (*backgroundPass, error) {
	prog, err := newProgram(fullscreenVertSrc, backgroundFragSrc)
	if err != nil {
		return nil, fmt.Errorf("background shader: %w", err)
	}
	b := &backgroundPass{
		prog:           prog,
		invViewProjLoc: uniform(prog, "invViewProj"),
		equirectLoc:    uniform(prog, "equirect"),
		hdrLoc:         uniform(prog, "hdr"),
		toneMapLoc:     uniform(prog, "toneMap"),
		exposureLoc:    uniform(prog, "exposure"),
	}
	gl.UseProgram(prog)
	gl.Uniform1i(uniform(prog, "background"), 0)
	gl.GenVertexArrays(1, &b.vao)
	return b, nil
}

// draw covers the viewport without touching the depth buffer.
func (b *backgroundPass) draw(texID uint32, tex *scene.Texture, cam *scene.Camera, toneMap bool, exposure float32) {
	view := cam.ViewMatrix()
	view[3][0], view[3][1], view[3][2] = 0, 0, 0
	invViewProj := view.Mul(cam.ProjectionMatrix()).Inverse()

	gl.Disable(gl.DEPTH_TEST)
	gl.DepthMask(false)
	gl.Disable(gl.CULL_FACE)
	gl.Disable(gl.BLEND)

	gl.UseProgram(b.prog)
	setMat4(b.invViewProjLoc, invViewProj)
	setBool(b.equirectLoc, tex.Mapping == scene.MappingEquirectangular)
	setBool(b.hdrLoc, tex.IsHDR())
	setBool(b.toneMapLoc, toneMap)
	gl.Uniform1f(b.exposureLoc, exposure)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, texID)

	gl.BindVertexArray(b.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)

	gl.DepthMask(true)
	gl.Enable(gl.DEPTH_TEST)
}

func (b *backgroundPass) destroy() {
	if b.vao != 0 {
		gl.DeleteVertexArrays(1, &b.vao)
		b.vao = 0
	}
	if b.prog != 0 {
		gl.DeleteProgram(b.prog)
		b.prog = 0
	}
}
