package opengl

import (
	"errors"
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"scene-studio/renderer"
	"scene-studio/scene"
)

// Composer renders the scene into a linear HDR buffer and resolves it to the
// window with ACES tone mapping, optionally adding bloom first. It satisfies
// renderer.Composer.
type Composer struct {
	r *Renderer

	fbo      uint32
	colorTex uint32
	depthRB  uint32
	width    int32
	height   int32

	prog        uint32
	exposureLoc int32
	bloomStrLoc int32
	hasBloomLoc int32
	vao         uint32

	// Bloom: bright pass, then separable blur ping-ponging between two
	// half-resolution buffers.
	bloom           bool
	bloomFBO        [2]uint32
	bloomTex        [2]uint32
	bloomW, bloomH  int32
	brightProg      uint32
	brightThreshLoc int32
	blurProg        uint32
	blurDirLoc      int32

	Exposure       float32
	BloomThreshold float32
	BloomStrength  float32
	BloomPasses    int
}

var _ renderer.Composer = (*Composer)(nil)

const resolveFragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D hdrBuffer;
uniform sampler2D bloomTex;
uniform float     exposure;
uniform float     bloomStrength;
uniform bool      hasBloom;
` + toneMapGLSL + `
void main() {
    vec3 hdr = texture(hdrBuffer, fragUV).rgb;
    if (hasBloom) {
        hdr += texture(bloomTex, fragUV).rgb * bloomStrength;
    }
    outColor = vec4(toDisplay(hdr, exposure), 1.0);
}
` + "\x00"

const brightFragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D hdrBuffer;
uniform float     threshold;

void main() {
    vec3 c = texture(hdrBuffer, fragUV).rgb;
    float luma = dot(c, vec3(0.2126, 0.7152, 0.0722));
    outColor = vec4(luma > threshold ? c : vec3(0.0), 1.0);
}
` + "\x00"

// blurFragSrc is one direction of a 9-tap Gaussian.
const blurFragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;

uniform sampler2D blurTex;
uniform vec2      texelDir;

const float weights[5] = float[](0.227027, 0.1945946, 0.1216216, 0.054054, 0.016216);

void main() {
    vec3 sum = texture(blurTex, fragUV).rgb * weights[0];
    for (int i = 1; i < 5; i++) {
        sum += texture(blurTex, fragUV + texelDir * float(i)).rgb * weights[i];
        sum += texture(blurTex, fragUV - texelDir * float(i)).rgb * weights[i];
    }
    outColor = vec4(sum, 1.0);
}
` + "\x00"

// NewComposer builds the HDR chain on top of r. Sizes are in physical pixels.
func NewComposer(r *Renderer, width, height int, bloom bool) (*Composer, error) {
	if r == nil {
		return nil, errors.New("opengl: composer needs a renderer")
	}
	prog, err := newProgram(fullscreenVertSrc, resolveFragSrc)
	if err != nil {
		return nil, fmt.Errorf("resolve shader: %w", err)
	}
	c := &Composer{
		r:              r,
		prog:           prog,
		exposureLoc:    uniform(prog, "exposure"),
		bloomStrLoc:    uniform(prog, "bloomStrength"),
		hasBloomLoc:    uniform(prog, "hasBloom"),
		Exposure:       r.exposure,
		BloomThreshold: 1,
		BloomStrength:  0.4,
		BloomPasses:    4,
	}
	gl.UseProgram(prog)
	gl.Uniform1i(uniform(prog, "hdrBuffer"), 0)
	gl.Uniform1i(uniform(prog, "bloomTex"), 1)
	gl.GenVertexArrays(1, &c.vao)

	if bloom {
		if err := c.enableBloom(); err != nil {
			c.Dispose()
			return nil, err
		}
	}
	if err := c.alloc(int32(width), int32(height)); err != nil {
		c.Dispose()
		return nil, err
	}
	return c, nil
}

func (c *Composer) enableBloom() error {
	bp, err := newProgram(fullscreenVertSrc, brightFragSrc)
	if err != nil {
		return fmt.Errorf("bright-pass shader: %w", err)
	}
	c.brightProg = bp
	c.brightThreshLoc = uniform(bp, "threshold")
	gl.UseProgram(bp)
	gl.Uniform1i(uniform(bp, "hdrBuffer"), 0)

	blp, err := newProgram(fullscreenVertSrc, blurFragSrc)
	if err != nil {
		return fmt.Errorf("blur shader: %w", err)
	}
	c.blurProg = blp
	c.blurDirLoc = uniform(blp, "texelDir")
	gl.UseProgram(blp)
	gl.Uniform1i(uniform(blp, "blurTex"), 0)
	c.bloom = true
	return nil
}

// alloc (re)creates the buffers for a width x height frame. A zero size
// leaves the composer without buffers until the next SetSize.
func (c *Composer) alloc(width, height int32) error {
	c.free()
	c.width, c.height = width, height
	if width <= 0 || height <= 0 {
		return nil
	}

	gl.GenTextures(1, &c.colorTex)
	gl.BindTexture(gl.TEXTURE_2D, c.colorTex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA16F, width, height, 0, gl.RGBA, gl.HALF_FLOAT, nil)
	setClampLinear()

	gl.GenRenderbuffers(1, &c.depthRB)
	gl.BindRenderbuffer(gl.RENDERBUFFER, c.depthRB)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, width, height)
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	gl.GenFramebuffers(1, &c.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, c.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, c.colorTex, 0)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, c.depthRB)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		c.free()
		return fmt.Errorf("opengl: HDR framebuffer incomplete: status=0x%X", status)
	}

	if c.bloom {
		c.bloomW, c.bloomH = max(width/2, 1), max(height/2, 1)
		for i := range c.bloomFBO {
			gl.GenTextures(1, &c.bloomTex[i])
			gl.BindTexture(gl.TEXTURE_2D, c.bloomTex[i])
			gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA16F, c.bloomW, c.bloomH, 0, gl.RGBA, gl.HALF_FLOAT, nil)
			setClampLinear()

			gl.GenFramebuffers(1, &c.bloomFBO[i])
			gl.BindFramebuffer(gl.FRAMEBUFFER, c.bloomFBO[i])
			gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, c.bloomTex[i], 0)
		}
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return nil
}

func setClampLinear() {
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
}

func (c *Composer) free() {
	if c.fbo != 0 {
		gl.DeleteFramebuffers(1, &c.fbo)
		c.fbo = 0
	}
	if c.colorTex != 0 {
		gl.DeleteTextures(1, &c.colorTex)
		c.colorTex = 0
	}
	if c.depthRB != 0 {
		gl.DeleteRenderbuffers(1, &c.depthRB)
		c.depthRB = 0
	}
	for i := range c.bloomFBO {
		if c.bloomFBO[i] != 0 {
			gl.DeleteFramebuffers(1, &c.bloomFBO[i])
			c.bloomFBO[i] = 0
		}
		if c.bloomTex[i] != 0 {
			gl.DeleteTextures(1, &c.bloomTex[i])
			c.bloomTex[i] = 0
		}
	}
}

// SetSize resizes the buffers to width x height physical pixels.
func (c *Composer) SetSize(width, height int) {
	if int32(width) == c.width && int32(height) == c.height {
		return
	}
	if err := c.alloc(int32(width), int32(height)); err != nil {
		c.r.logger.Error("composer resize failed", zap.Error(err))
	}
}

// Render draws the scene into the HDR buffer and resolves it to the window.
func (c *Composer) Render(s *scene.Scene, cam *scene.Camera) error {
	if c.fbo == 0 {
		return nil
	}
	if err := c.r.draw(c.fbo, c.width, c.height, s, cam, false); err != nil {
		return err
	}

	gl.Disable(gl.DEPTH_TEST)
	gl.BindVertexArray(c.vao)
	gl.ActiveTexture(gl.TEXTURE0)

	if c.bloom {
		gl.BindFramebuffer(gl.FRAMEBUFFER, c.bloomFBO[0])
		gl.Viewport(0, 0, c.bloomW, c.bloomH)
		gl.UseProgram(c.brightProg)
		gl.Uniform1f(c.brightThreshLoc, c.BloomThreshold)
		gl.BindTexture(gl.TEXTURE_2D, c.colorTex)
		gl.DrawArrays(gl.TRIANGLES, 0, 3)

		// Each horizontal+vertical pair ends back in bloomTex[0].
		src, dst := 0, 1
		gl.UseProgram(c.blurProg)
		for i := 0; i < c.BloomPasses*2; i++ {
			gl.BindFramebuffer(gl.FRAMEBUFFER, c.bloomFBO[dst])
			if i%2 == 0 {
				gl.Uniform2f(c.blurDirLoc, 1/float32(c.bloomW), 0)
			} else {
				gl.Uniform2f(c.blurDirLoc, 0, 1/float32(c.bloomH))
			}
			gl.BindTexture(gl.TEXTURE_2D, c.bloomTex[src])
			gl.DrawArrays(gl.TRIANGLES, 0, 3)
			src, dst = dst, src
		}
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, c.width, c.height)
	gl.UseProgram(c.prog)
	gl.Uniform1f(c.exposureLoc, c.Exposure)
	gl.Uniform1f(c.bloomStrLoc, c.BloomStrength)
	setBool(c.hasBloomLoc, c.bloom)
	gl.BindTexture(gl.TEXTURE_2D, c.colorTex)
	if c.bloom {
		gl.ActiveTexture(gl.TEXTURE1)
		gl.BindTexture(gl.TEXTURE_2D, c.bloomTex[0])
	}
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	gl.BindVertexArray(0)
	gl.Enable(gl.DEPTH_TEST)
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("opengl: composer error 0x%X", e)
	}
	return nil
}

// Dispose frees the buffers and programs. Later calls are no-ops.
func (c *Composer) Dispose() error {
	c.free()
	for _, p := range []*uint32{&c.prog, &c.brightProg, &c.blurProg} {
		if *p != 0 {
			gl.DeleteProgram(*p)
			*p = 0
		}
	}
	if c.vao != 0 {
		gl.DeleteVertexArrays(1, &c.vao)
		c.vao = 0
	}
	return nil
}
