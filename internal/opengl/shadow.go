package opengl

import (
	"fmt"

	"github.com/chewxy/math32"
	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"scene-studio/math"
	"scene-studio/scene"
)

// ShadowMap is the depth-only framebuffer of the key light.
type ShadowMap struct {
	FBO      uint32
	DepthTex uint32
	Size     int32
}

// NewShadowMap creates a size x size depth FBO sampled with hardware
// comparison, so shaders read it through sampler2DShadow.
func NewShadowMap(size int) (*ShadowMap, error) {
	sm := &ShadowMap{Size: int32(size)}

	// Depth texture
	gl.GenTextures(1, &sm.DepthTex)
	gl.BindTexture(gl.TEXTURE_2D, sm.DepthTex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH_COMPONENT32F,
		int32(size), int32(size), 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_BORDER)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_BORDER)
	// Outside the map counts as lit.
	border := [4]float32{1, 1, 1, 1}
	gl.TexParameterfv(gl.TEXTURE_2D, gl.TEXTURE_BORDER_COLOR, &border[0])
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_MODE, gl.COMPARE_REF_TO_TEXTURE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_FUNC, gl.LEQUAL)

	gl.GenFramebuffers(1, &sm.FBO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, sm.FBO)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, sm.DepthTex, 0)
	gl.DrawBuffer(gl.NONE)
	gl.ReadBuffer(gl.NONE)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if status != gl.FRAMEBUFFER_COMPLETE {
		gl.DeleteTextures(1, &sm.DepthTex)
		gl.DeleteFramebuffers(1, &sm.FBO)
		return nil, fmt.Errorf("shadow FBO incomplete: status=0x%X", status)
	}

	return sm, nil
}

// Destroy frees the FBO and its depth texture.
func (sm *ShadowMap) Destroy() {
	if sm.FBO != 0 {
		gl.DeleteFramebuffers(1, &sm.FBO)
		sm.FBO = 0
	}
	if sm.DepthTex != 0 {
		gl.DeleteTextures(1, &sm.DepthTex)
		sm.DepthTex = 0
	}
}

// shadowFrustum fits an orthographic light frustum around every shadow
// casting mesh. ok is false when nothing casts or the light has no direction.
func shadowFrustum(key *scene.Node, meshes []*scene.Node) (view, proj math.Mat4, ok bool) {
	var box scene.AABB
	for _, n := range meshes {
		if !n.CastShadow || n.Geometry == nil || n.Geometry.DrawMode != scene.DrawTriangles {
			continue
		}
		box = box.Union(n.Geometry.LocalAABB().Transform(n.WorldMatrix()))
	}
	if box.IsEmpty() {
		return view, proj, false
	}
	dir := key.Light.Direction(key.WorldPosition())
	if dir.LengthSqr() < 1e-6 {
		return view, proj, false
	}

	center := box.Center()
	radius := math32.Max(box.Size().Length()/2, 0.5)
	up := math.Vec3Up
	if math32.Abs(dir.Dot(up)) > 0.999 {
		up = math.NewVec3(0, 0, 1)
	}
	eye := center.Sub(dir.Mul(radius * 2))
	view = math.Mat4LookAt(eye, center, up)
	proj = math.Mat4Orthographic(-radius, radius, -radius, radius, radius*0.5, radius*3.5)
	return view, proj, true
}

// renderShadowMap draws the casters into the key light's depth map and
// returns the light view-projection used to sample it.
func (r *Renderer) renderShadowMap(key *scene.Node, meshes []*scene.Node) (math.Mat4, bool) {
	view, proj, ok := shadowFrustum(key, meshes)
	if !ok {
		return math.Mat4Identity(), false
	}

	size := key.Light.ShadowMapSize
	if size <= 0 {
		size = r.shadowMapSize
	}
	if r.shadowMap == nil || int(r.shadowMap.Size) != size {
		if r.shadowMap != nil {
			r.shadowMap.Destroy()
			r.shadowMap = nil
		}
		sm, err := NewShadowMap(size)
		if err != nil {
			r.logger.Warn("shadows disabled", zap.Error(err))
			r.shadows = false
			return math.Mat4Identity(), false
		}
		r.shadowMap = sm
	}

	lightVP := view.Mul(proj)
	gl.BindFramebuffer(gl.FRAMEBUFFER, r.shadowMap.FBO)
	gl.Viewport(0, 0, r.shadowMap.Size, r.shadowMap.Size)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthMask(true)
	gl.Disable(gl.CULL_FACE)
	gl.Clear(gl.DEPTH_BUFFER_BIT)
	gl.UseProgram(r.shadowProg)

	for _, n := range meshes {
		if !n.CastShadow || n.Geometry == nil || n.Geometry.DrawMode != scene.DrawTriangles {
			continue
		}
		gpu := r.upload(n.Geometry)
		if gpu == nil {
			continue
		}
		setMat4(r.shadowLightMVPLoc, n.WorldMatrix().Mul(lightVP))
		gl.BindVertexArray(gpu.vao)
		if gpu.hasIndices {
			gl.DrawElements(gl.TRIANGLES, gpu.count, gl.UNSIGNED_INT, nil)
		} else {
			gl.DrawArrays(gl.TRIANGLES, 0, gpu.count)
		}
	}
	gl.BindVertexArray(0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return lightVP, true
}
