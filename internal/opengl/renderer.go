// Package opengl is the OpenGL 4.1 rasterizer behind the studio: it draws a
// scene.Scene to the window or to offscreen targets and reads pixels back.
//
// Every method except Target.Dispose must be called on the goroutine that
// owns the GL context. Geometry, textures and targets may be disposed from
// any goroutine; their GL objects are freed at the start of the next frame.
package opengl

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"scene-studio/config"
	"scene-studio/core"
	"scene-studio/math"
	"scene-studio/renderer"
	"scene-studio/scene"
)

const (
	maxDirLights   = 4
	maxPointLights = 8
	maxSpotLights  = 4
)

// gpuMesh holds the buffer objects of an uploaded geometry.
type gpuMesh struct {
	vao        uint32
	vbo        uint32
	ebo        uint32
	count      int32
	hasIndices bool
	primitive  uint32
}

type meshUniforms struct {
	mvp, model, lightViewProj int32

	ambient       int32
	dirCount      int32
	dirDir        [maxDirLights]int32
	dirColor      [maxDirLights]int32
	pointCount    int32
	pointPos      [maxPointLights]int32
	pointColor    [maxPointLights]int32
	pointRange    [maxPointLights]int32
	spotCount     int32
	spotPos       [maxSpotLights]int32
	spotDir       [maxSpotLights]int32
	spotColor     [maxSpotLights]int32
	spotRange     [maxSpotLights]int32
	spotInner     [maxSpotLights]int32
	spotOuter     [maxSpotLights]int32
	cameraPos     int32
	shadowLight   int32
	shadowTexel   int32
	shadowBias    int32
	hasShadows    int32
	receiveShadow int32
	shadowCatcher int32
	toneMap       int32
	exposure      int32

	albedo         int32
	metallic       int32
	roughness      int32
	emissive       int32
	unlit          int32
	hasAlbedoTex   int32
	hasMRTex       int32
	hasEmissiveTex int32
	hasEnvMap      int32
	envIntensity   int32
	envMaxLod      int32
}

// Renderer is the OpenGL rasterizer. It satisfies renderer.Rasterizer.
type Renderer struct {
	logger *zap.Logger

	program uint32
	loc     meshUniforms

	shadowProg        uint32
	shadowLightMVPLoc int32
	shadowMap         *ShadowMap
	shadows           bool
	shadowMapSize     int

	background *backgroundPass
	exposure   float32

	width, height int
	pixelRatio    float32

	meshes          map[*scene.Geometry]*gpuMesh
	textures        map[*scene.Texture]uint32
	released        releaseQueue
	defaultMaterial *scene.Material
	disposed        bool
}

var _ renderer.Rasterizer = (*Renderer)(nil)

// NewRenderer loads the GL entry points and compiles the scene shaders.
// The window's context must be current.
func NewRenderer(cfg config.RendererConfig, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("initialize OpenGL: %w", err)
	}
	logger.Info("OpenGL context ready",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))))

	prog, err := newProgram(meshVertSrc, meshFragSrc)
	if err != nil {
		return nil, fmt.Errorf("mesh shader: %w", err)
	}
	shadowProg, err := newProgram(depthVertSrc, depthFragSrc)
	if err != nil {
		gl.DeleteProgram(prog)
		return nil, fmt.Errorf("depth shader: %w", err)
	}
	bg, err := newBackgroundPass()
	if err != nil {
		gl.DeleteProgram(prog)
		gl.DeleteProgram(shadowProg)
		return nil, err
	}

	r := &Renderer{
		logger:            logger,
		program:           prog,
		shadowProg:        shadowProg,
		shadowLightMVPLoc: uniform(shadowProg, "lightMVP"),
		shadows:           cfg.Shadows,
		shadowMapSize:     cfg.ShadowMapSize,
		background:        bg,
		exposure:          cfg.ToneMappingExposure,
		pixelRatio:        1,
		meshes:            make(map[*scene.Geometry]*gpuMesh),
		textures:          make(map[*scene.Texture]uint32),
		defaultMaterial:   scene.DefaultMaterial(),
	}
	r.resolveUniforms()

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	return r, nil
}

func (r *Renderer) resolveUniforms() {
	p := r.program
	l := &r.loc
	l.mvp = uniform(p, "mvp")
	l.model = uniform(p, "model")
	l.lightViewProj = uniform(p, "lightViewProj")
	l.ambient = uniform(p, "ambientColor")
	l.dirCount = uniform(p, "dirLightCount")
	for i := 0; i < maxDirLights; i++ {
		l.dirDir[i] = uniform(p, fmt.Sprintf("dirLightDir[%d]", i))
		l.dirColor[i] = uniform(p, fmt.Sprintf("dirLightColor[%d]", i))
	}
	l.pointCount = uniform(p, "pointLightCount")
	for i := 0; i < maxPointLights; i++ {
		l.pointPos[i] = uniform(p, fmt.Sprintf("pointLightPos[%d]", i))
		l.pointColor[i] = uniform(p, fmt.Sprintf("pointLightColor[%d]", i))
		l.pointRange[i] = uniform(p, fmt.Sprintf("pointLightRange[%d]", i))
	}
	l.spotCount = uniform(p, "spotLightCount")
	for i := 0; i < maxSpotLights; i++ {
		l.spotPos[i] = uniform(p, fmt.Sprintf("spotLightPos[%d]", i))
		l.spotDir[i] = uniform(p, fmt.Sprintf("spotLightDir[%d]", i))
		l.spotColor[i] = uniform(p, fmt.Sprintf("spotLightColor[%d]", i))
		l.spotRange[i] = uniform(p, fmt.Sprintf("spotLightRange[%d]", i))
		l.spotInner[i] = uniform(p, fmt.Sprintf("spotLightInner[%d]", i))
		l.spotOuter[i] = uniform(p, fmt.Sprintf("spotLightOuter[%d]", i))
	}
	l.cameraPos = uniform(p, "cameraPos")
	l.shadowLight = uniform(p, "shadowLight")
	l.shadowTexel = uniform(p, "shadowTexel")
	l.shadowBias = uniform(p, "shadowBias")
	l.hasShadows = uniform(p, "hasShadows")
	l.receiveShadow = uniform(p, "receiveShadow")
	l.shadowCatcher = uniform(p, "shadowCatcher")
	l.toneMap = uniform(p, "toneMap")
	l.exposure = uniform(p, "exposure")

	l.albedo = uniform(p, "matAlbedo")
	l.metallic = uniform(p, "matMetallic")
	l.roughness = uniform(p, "matRoughness")
	l.emissive = uniform(p, "matEmissive")
	l.unlit = uniform(p, "unlit")
	l.hasAlbedoTex = uniform(p, "hasAlbedoTex")
	l.hasMRTex = uniform(p, "hasMetallicRoughnessTex")
	l.hasEmissiveTex = uniform(p, "hasEmissiveTex")
	l.hasEnvMap = uniform(p, "hasEnvMap")
	l.envIntensity = uniform(p, "envMapIntensity")
	l.envMaxLod = uniform(p, "envMaxLod")

	// Units: albedo 0, shadow 1, metallic-roughness 3, emissive 4, env 5.
	gl.UseProgram(p)
	gl.Uniform1i(uniform(p, "albedoTex"), 0)
	gl.Uniform1i(uniform(p, "shadowMap"), 1)
	gl.Uniform1i(uniform(p, "metallicRoughnessTex"), 3)
	gl.Uniform1i(uniform(p, "emissiveTex"), 4)
	gl.Uniform1i(uniform(p, "envMap"), 5)
	setMat4(l.lightViewProj, math.Mat4Identity())
}

// SetSize records the canvas size in logical pixels.
func (r *Renderer) SetSize(width, height int) {
	r.width, r.height = width, height
}

func (r *Renderer) SetPixelRatio(ratio float32) {
	if ratio <= 0 {
		ratio = 1
	}
	r.pixelRatio = ratio
}

// DrawingBufferSize is the canvas size in physical pixels.
func (r *Renderer) DrawingBufferSize() (int, int) {
	return int(float32(r.width)*r.pixelRatio + 0.5), int(float32(r.height)*r.pixelRatio + 0.5)
}

// SetExposure changes the tone mapping exposure for direct draws.
func (r *Renderer) SetExposure(exposure float32) {
	r.exposure = exposure
}

// Render draws the scene into the default framebuffer.
func (r *Renderer) Render(s *scene.Scene, cam *scene.Camera) error {
	w, h := r.DrawingBufferSize()
	return r.draw(0, int32(w), int32(h), s, cam, true)
}

// RenderTo draws the scene into an offscreen target created by this renderer.
func (r *Renderer) RenderTo(target renderer.RenderTarget, s *scene.Scene, cam *scene.Camera) error {
	t, err := r.ownTarget(target)
	if err != nil {
		return err
	}
	return r.draw(t.fbo, int32(t.width), int32(t.height), s, cam, true)
}

// frameLights is the light setup gathered from the scene once per frame.
type frameLights struct {
	ambient core.Color
	dirs    []*scene.Node
	points  []*scene.Node
	spots   []*scene.Node
	key     *scene.Node
}

func gatherLights(s *scene.Scene) frameLights {
	var fl frameLights
	for _, n := range s.Lights() {
		if !n.EffectivelyVisible() {
			continue
		}
		l := n.Light
		switch l.Type {
		case scene.LightAmbient:
			fl.ambient.R += l.Color.R * l.Intensity
			fl.ambient.G += l.Color.G * l.Intensity
			fl.ambient.B += l.Color.B * l.Intensity
		case scene.LightDirectional:
			if len(fl.dirs) < maxDirLights {
				if fl.key == nil && l.CastShadow {
					fl.key = n
				}
				fl.dirs = append(fl.dirs, n)
			}
		case scene.LightPoint:
			if len(fl.points) < maxPointLights {
				fl.points = append(fl.points, n)
			}
		case scene.LightSpot:
			if len(fl.spots) < maxSpotLights {
				fl.spots = append(fl.spots, n)
			}
		}
	}
	return fl
}

// draw renders one frame into fbo. With toneMap false the output stays in
// linear HDR for a composer to resolve.
func (r *Renderer) draw(fbo uint32, width, height int32, s *scene.Scene, cam *scene.Camera, toneMap bool) error {
	if r.disposed {
		return errors.New("opengl: renderer disposed")
	}
	if s == nil || cam == nil {
		return errors.New("opengl: nil scene or camera")
	}
	r.drainReleased()
	if width <= 0 || height <= 0 {
		return nil
	}

	meshes := s.VisibleMeshes()
	lights := gatherLights(s)

	lightVP, hasShadows := math.Mat4Identity(), false
	if r.shadows && lights.key != nil {
		lightVP, hasShadows = r.renderShadowMap(lights.key, meshes)
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	gl.Viewport(0, 0, width, height)
	bg := s.BackgroundColor
	gl.ClearColor(bg.R, bg.G, bg.B, 1)
	gl.DepthMask(true)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	if id := r.textureID(s.Background); id != 0 {
		r.background.draw(id, s.Background, cam, toneMap, r.exposure)
	}

	gl.UseProgram(r.program)
	r.applyFrame(lights, cam, lightVP, hasShadows, toneMap)

	var opaque, transparent, gizmo []*scene.Node
	for _, n := range meshes {
		switch {
		case isGizmo(n):
			gizmo = append(gizmo, n)
		case n.Material != nil && n.Material.Transparent:
			transparent = append(transparent, n)
		default:
			opaque = append(opaque, n)
		}
	}
	sortBackToFront(transparent, cam.Position)

	viewProj := cam.ViewProjectionMatrix()
	gl.Enable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)
	for _, n := range opaque {
		r.drawMesh(n, viewProj)
	}

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	for _, n := range transparent {
		r.drawMesh(n, viewProj)
	}

	// The gizmo stays readable through geometry.
	gl.Disable(gl.DEPTH_TEST)
	for _, n := range gizmo {
		r.drawMesh(n, viewProj)
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)
	gl.Disable(gl.CULL_FACE)
	gl.DepthMask(true)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("opengl: draw error 0x%X", e)
	}
	return nil
}

func isGizmo(n *scene.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind() == scene.KindGizmo {
			return true
		}
	}
	return false
}

func sortBackToFront(nodes []*scene.Node, eye math.Vec3) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].WorldPosition().Distance(eye) > nodes[j].WorldPosition().Distance(eye)
	})
}

// applyFrame sets the per-frame camera, light and shadow uniforms.
func (r *Renderer) applyFrame(fl frameLights, cam *scene.Camera, lightVP math.Mat4, hasShadows, toneMap bool) {
	l := &r.loc
	gl.Uniform3f(l.cameraPos, cam.Position.X, cam.Position.Y, cam.Position.Z)
	gl.Uniform3f(l.ambient, fl.ambient.R, fl.ambient.G, fl.ambient.B)
	setBool(l.toneMap, toneMap)
	gl.Uniform1f(l.exposure, r.exposure)

	shadowLight := int32(-1)
	for i, n := range fl.dirs {
		light := n.Light
		dir := light.Direction(n.WorldPosition())
		gl.Uniform3f(l.dirDir[i], dir.X, dir.Y, dir.Z)
		gl.Uniform3f(l.dirColor[i],
			light.Color.R*light.Intensity, light.Color.G*light.Intensity, light.Color.B*light.Intensity)
		if n == fl.key {
			shadowLight = int32(i)
		}
	}
	gl.Uniform1i(l.dirCount, int32(len(fl.dirs)))

	for i, n := range fl.points {
		light := n.Light
		pos := n.WorldPosition()
		gl.Uniform3f(l.pointPos[i], pos.X, pos.Y, pos.Z)
		gl.Uniform3f(l.pointColor[i],
			light.Color.R*light.Intensity, light.Color.G*light.Intensity, light.Color.B*light.Intensity)
		gl.Uniform1f(l.pointRange[i], light.Range)
	}
	gl.Uniform1i(l.pointCount, int32(len(fl.points)))

	for i, n := range fl.spots {
		light := n.Light
		pos := n.WorldPosition()
		dir := light.Direction(pos)
		gl.Uniform3f(l.spotPos[i], pos.X, pos.Y, pos.Z)
		gl.Uniform3f(l.spotDir[i], dir.X, dir.Y, dir.Z)
		gl.Uniform3f(l.spotColor[i],
			light.Color.R*light.Intensity, light.Color.G*light.Intensity, light.Color.B*light.Intensity)
		gl.Uniform1f(l.spotRange[i], light.Range)
		gl.Uniform1f(l.spotInner[i], cosAngle(light.SpotAngle*0.8))
		gl.Uniform1f(l.spotOuter[i], cosAngle(light.SpotAngle))
	}
	gl.Uniform1i(l.spotCount, int32(len(fl.spots)))

	setMat4(l.lightViewProj, lightVP)
	gl.Uniform1i(l.shadowLight, shadowLight)
	if hasShadows {
		gl.ActiveTexture(gl.TEXTURE1)
		gl.BindTexture(gl.TEXTURE_2D, r.shadowMap.DepthTex)
		gl.Uniform1f(l.shadowTexel, 1/float32(r.shadowMap.Size))
		gl.Uniform1f(l.shadowBias, 0.002-fl.key.Light.ShadowBias)
	}
	setBool(l.hasShadows, hasShadows)
}

func (r *Renderer) drawMesh(n *scene.Node, viewProj math.Mat4) {
	gpu := r.upload(n.Geometry)
	if gpu == nil {
		return
	}
	model := n.WorldMatrix()
	setMat4(r.loc.mvp, model.Mul(viewProj))
	setMat4(r.loc.model, model)

	mat := n.Material
	if mat == nil || mat.Disposed() {
		mat = r.defaultMaterial
	}
	r.applyMaterial(mat)
	setBool(r.loc.receiveShadow, n.ReceiveShadow)
	setBool(r.loc.shadowCatcher, n.Tags.Ground && n.ReceiveShadow)

	switch mat.Side {
	case scene.SideFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	case scene.SideBack:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		gl.Disable(gl.CULL_FACE)
	}
	gl.DepthMask(!mat.Transparent || mat.DepthWrite)

	gl.BindVertexArray(gpu.vao)
	if gpu.hasIndices {
		gl.DrawElements(gpu.primitive, gpu.count, gl.UNSIGNED_INT, nil)
	} else {
		gl.DrawArrays(gpu.primitive, 0, gpu.count)
	}
	gl.BindVertexArray(0)
}

// applyMaterial sets the material uniforms and binds its textures.
func (r *Renderer) applyMaterial(mat *scene.Material) {
	l := &r.loc
	opacity := mat.Opacity
	if !mat.Transparent {
		opacity = 1
	}
	gl.Uniform4f(l.albedo, mat.Albedo.R, mat.Albedo.G, mat.Albedo.B, opacity)
	gl.Uniform1f(l.metallic, mat.Metallic)
	gl.Uniform1f(l.roughness, mat.Roughness)
	gl.Uniform3f(l.emissive, mat.Emissive.R, mat.Emissive.G, mat.Emissive.B)
	setBool(l.unlit, mat.Unlit)

	bind := func(unit uint32, tex *scene.Texture, flag int32) {
		id := r.textureID(tex)
		if id != 0 {
			gl.ActiveTexture(gl.TEXTURE0 + unit)
			gl.BindTexture(gl.TEXTURE_2D, id)
		}
		setBool(flag, id != 0)
	}
	bind(0, mat.AlbedoTexture, l.hasAlbedoTex)
	bind(3, mat.MetallicRoughnessTexture, l.hasMRTex)
	bind(4, mat.EmissiveTexture, l.hasEmissiveTex)
	bind(5, mat.EnvMap, l.hasEnvMap)
	if env := mat.EnvMap; env != nil {
		gl.Uniform1f(l.envIntensity, mat.EnvMapIntensity)
		gl.Uniform1f(l.envMaxLod, mipLevels(env.Width, env.Height))
	}
}

// upload creates the buffers for g on first use and hooks its disposal.
func (r *Renderer) upload(g *scene.Geometry) *gpuMesh {
	if g == nil || g.Disposed() || len(g.Vertices) == 0 {
		return nil
	}
	if gpu, ok := r.meshes[g]; ok {
		return gpu
	}

	gpu := &gpuMesh{
		count:      int32(len(g.Vertices)),
		hasIndices: len(g.Indices) > 0,
		primitive:  gl.TRIANGLES,
	}
	if gpu.hasIndices {
		gpu.count = int32(len(g.Indices))
	}
	if g.DrawMode == scene.DrawLines {
		gpu.primitive = gl.LINES
	}

	gl.GenVertexArrays(1, &gpu.vao)
	gl.GenBuffers(1, &gpu.vbo)
	gl.BindVertexArray(gpu.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, gpu.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(g.Vertices)*vertexStride, gl.Ptr(g.Vertices), gl.STATIC_DRAW)
	bindVertexLayout()

	if gpu.hasIndices {
		gl.GenBuffers(1, &gpu.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gpu.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(g.Indices)*4, gl.Ptr(g.Indices), gl.STATIC_DRAW)
	}
	gl.BindVertexArray(0)

	r.meshes[g] = gpu
	g.GPUData = gpu
	prev := g.OnDispose
	g.OnDispose = func() error {
		r.released.addGeometry(g)
		if prev != nil {
			return prev()
		}
		return nil
	}
	return gpu
}

func freeMesh(gpu *gpuMesh) {
	gl.DeleteVertexArrays(1, &gpu.vao)
	gl.DeleteBuffers(1, &gpu.vbo)
	if gpu.hasIndices {
		gl.DeleteBuffers(1, &gpu.ebo)
	}
}

// releaseQueue collects resources disposed off the GL thread.
type releaseQueue struct {
	mu         sync.Mutex
	geometries []*scene.Geometry
	textures   []*scene.Texture
	targets    []*Target
}

func (q *releaseQueue) addGeometry(g *scene.Geometry) {
	q.mu.Lock()
	q.geometries = append(q.geometries, g)
	q.mu.Unlock()
}

func (q *releaseQueue) addTexture(t *scene.Texture) {
	q.mu.Lock()
	q.textures = append(q.textures, t)
	q.mu.Unlock()
}

func (q *releaseQueue) addTarget(t *Target) {
	q.mu.Lock()
	q.targets = append(q.targets, t)
	q.mu.Unlock()
}

func (q *releaseQueue) take() ([]*scene.Geometry, []*scene.Texture, []*Target) {
	q.mu.Lock()
	defer q.mu.Unlock()
	g, t, tg := q.geometries, q.textures, q.targets
	q.geometries, q.textures, q.targets = nil, nil, nil
	return g, t, tg
}

// drainReleased frees GL objects whose owners were disposed since the last frame.
func (r *Renderer) drainReleased() {
	geometries, textures, targets := r.released.take()
	for _, g := range geometries {
		if gpu, ok := r.meshes[g]; ok {
			freeMesh(gpu)
			delete(r.meshes, g)
		}
	}
	for _, t := range textures {
		if id, ok := r.textures[t]; ok {
			gl.DeleteTextures(1, &id)
			delete(r.textures, t)
		}
	}
	for _, t := range targets {
		t.free()
	}
	if n := len(geometries) + len(textures) + len(targets); n > 0 {
		r.logger.Debug("released GPU resources",
			zap.Int("geometries", len(geometries)),
			zap.Int("textures", len(textures)),
			zap.Int("targets", len(targets)))
	}
}

// Dispose frees every GL object the renderer created. Later calls are no-ops.
func (r *Renderer) Dispose() error {
	if r.disposed {
		return nil
	}
	r.drainReleased()
	r.disposed = true

	for g, gpu := range r.meshes {
		freeMesh(gpu)
		g.GPUData = nil
	}
	r.meshes = nil
	for t, id := range r.textures {
		gl.DeleteTextures(1, &id)
		t.GLID = 0
	}
	r.textures = nil
	if r.shadowMap != nil {
		r.shadowMap.Destroy()
		r.shadowMap = nil
	}
	r.background.destroy()
	gl.DeleteProgram(r.shadowProg)
	gl.DeleteProgram(r.program)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("opengl: dispose error 0x%X", e)
	}
	return nil
}
