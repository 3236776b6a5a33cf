package opengl

import (
	"errors"
	"fmt"
	"sync"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"scene-studio/renderer"
)

// Target is an offscreen RGBA8 framebuffer with a depth attachment.
type Target struct {
	owner *Renderer

	fbo   uint32
	color uint32
	depth uint32

	width, height int
	once          sync.Once
}

// NewRenderTarget allocates a width x height target in physical pixels.
func (r *Renderer) NewRenderTarget(width, height int) (renderer.RenderTarget, error) {
	if r.disposed {
		return nil, errors.New("opengl: renderer disposed")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("opengl: invalid target size %dx%d", width, height)
	}
	t := &Target{owner: r, width: width, height: height}

	gl.GenTextures(1, &t.color)
	gl.BindTexture(gl.TEXTURE_2D, t.color)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenRenderbuffers(1, &t.depth)
	gl.BindRenderbuffer(gl.RENDERBUFFER, t.depth)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, int32(width), int32(height))
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.color, 0)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, t.depth)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if status != gl.FRAMEBUFFER_COMPLETE {
		t.free()
		return nil, fmt.Errorf("opengl: target framebuffer incomplete: status=0x%X", status)
	}
	return t, nil
}

func (t *Target) Size() (int, int) {
	return t.width, t.height
}

// Dispose queues the target for deletion on the next frame. It is safe to
// call from any goroutine and more than once.
func (t *Target) Dispose() error {
	t.once.Do(func() {
		t.owner.released.addTarget(t)
	})
	return nil
}

func (t *Target) free() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.depth != 0 {
		gl.DeleteRenderbuffers(1, &t.depth)
		t.depth = 0
	}
	if t.color != 0 {
		gl.DeleteTextures(1, &t.color)
		t.color = 0
	}
}

func (r *Renderer) ownTarget(target renderer.RenderTarget) (*Target, error) {
	t, ok := target.(*Target)
	if !ok || t.owner != r {
		return nil, fmt.Errorf("opengl: foreign render target %T", target)
	}
	if t.fbo == 0 {
		return nil, errors.New("opengl: render target released")
	}
	return t, nil
}

// ReadPixels copies the target into dst as tightly packed RGBA8 rows, bottom
// row first as GL stores them.
func (r *Renderer) ReadPixels(target renderer.RenderTarget, dst []byte) error {
	t, err := r.ownTarget(target)
	if err != nil {
		return err
	}
	if need := t.width * t.height * 4; len(dst) < need {
		return fmt.Errorf("opengl: pixel buffer holds %d bytes, need %d", len(dst), need)
	}

	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, t.fbo)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(t.width), int32(t.height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(dst))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("opengl: read pixels error 0x%X", e)
	}
	return nil
}
