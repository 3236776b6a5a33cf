package editor

import (
	"github.com/chewxy/math32"

	"scene-studio/internal/event"
	"scene-studio/math"
	"scene-studio/scene"
)

// OrbitControls moves a camera on a sphere around Target. Input is
// accumulated and applied by Update, with optional damping.
type OrbitControls struct {
	camera *scene.Camera

	Target      math.Vec3
	MinDistance float32
	MaxDistance float32
	RotateSpeed float32
	PanSpeed    float32
	ZoomSpeed   float32
	// Damping in (0, 1] keeps a fraction of the motion for later frames.
	Damping float32

	distance   float32
	yaw, pitch float32

	pendingYaw, pendingPitch float32
	pendingPan               math.Vec3
	pendingZoom              float32

	enabled  bool
	disposed bool

	Change event.Emitter[*scene.Camera]
}

const maxPitch = math32.Pi/2 - 0.01

func NewOrbitControls(camera *scene.Camera) *OrbitControls {
	o := &OrbitControls{
		camera:      camera,
		Target:      camera.Target,
		MinDistance: 0.1,
		MaxDistance: 500,
		RotateSpeed: 1,
		PanSpeed:    1,
		ZoomSpeed:   1,
		enabled:     true,
	}
	o.syncFromCamera()
	return o
}

func (o *OrbitControls) syncFromCamera() {
	offset := o.camera.Position.Sub(o.Target)
	o.distance = offset.Length()
	if o.distance == 0 {
		o.distance = 1
		offset = math.Vec3Front
	}
	o.yaw = math32.Atan2(offset.X, offset.Z)
	o.pitch = math32.Asin(clamp(offset.Y/o.distance, -1, 1))
}

func (o *OrbitControls) SetEnabled(enabled bool) {
	o.enabled = enabled
	if !enabled {
		o.pendingYaw, o.pendingPitch, o.pendingZoom = 0, 0, 0
		o.pendingPan = math.Vec3Zero
	}
}

func (o *OrbitControls) Enabled() bool {
	return o.enabled
}

func (o *OrbitControls) Distance() float32 {
	return o.distance
}

// Orbit queues a rotation in radians around the target.
func (o *OrbitControls) Orbit(dYaw, dPitch float32) {
	if !o.enabled {
		return
	}
	o.pendingYaw += dYaw * o.RotateSpeed
	o.pendingPitch += dPitch * o.RotateSpeed
}

// Pan queues a target shift in screen units scaled by the orbit distance.
func (o *OrbitControls) Pan(dx, dy float32) {
	if !o.enabled {
		return
	}
	forward := o.camera.Forward()
	right := forward.Cross(o.camera.Up).Normalize()
	up := right.Cross(forward)
	speed := o.distance * 0.002 * o.PanSpeed
	o.pendingPan = o.pendingPan.Add(right.Mul(-dx * speed)).Add(up.Mul(dy * speed))
}

// Zoom queues a dolly; positive values move closer.
func (o *OrbitControls) Zoom(amount float32) {
	if !o.enabled {
		return
	}
	o.pendingZoom += amount * o.ZoomSpeed
}

// HandleInput maps one frame of input: wheel zooms, middle drag orbits and
// shift + middle drag pans.
func (o *OrbitControls) HandleInput(in *InputManager) {
	if in.ScrollDelta != 0 {
		o.Zoom(float32(in.ScrollDelta) * 0.5)
	}
	if !in.IsMouseDown(MouseMiddle) {
		return
	}
	dx := float32(in.MouseDeltaX)
	dy := float32(in.MouseDeltaY)
	if in.ShiftDown {
		o.Pan(dx, dy)
	} else {
		o.Orbit(-dx*0.01, dy*0.01)
	}
}

// Update applies queued motion to the camera and reports whether it moved.
func (o *OrbitControls) Update() bool {
	if o.disposed {
		return false
	}
	const eps = 1e-5
	if math32.Abs(o.pendingYaw) < eps && math32.Abs(o.pendingPitch) < eps &&
		math32.Abs(o.pendingZoom) < eps && o.pendingPan.LengthSqr() < eps*eps {
		o.pendingYaw, o.pendingPitch, o.pendingZoom = 0, 0, 0
		o.pendingPan = math.Vec3Zero
		return false
	}

	step := float32(1)
	if o.Damping > 0 && o.Damping <= 1 {
		step = o.Damping
	}
	o.yaw += o.pendingYaw * step
	o.pitch = clamp(o.pitch+o.pendingPitch*step, -maxPitch, maxPitch)
	o.distance = clamp(o.distance-o.pendingZoom*step, o.MinDistance, o.MaxDistance)
	o.Target = o.Target.Add(o.pendingPan.Mul(step))

	keep := 1 - step
	o.pendingYaw *= keep
	o.pendingPitch *= keep
	o.pendingZoom *= keep
	o.pendingPan = o.pendingPan.Mul(keep)

	o.apply()
	o.Change.Emit(o.camera)
	return true
}

func (o *OrbitControls) apply() {
	cosPitch := math32.Cos(o.pitch)
	offset := math.NewVec3(
		o.distance*cosPitch*math32.Sin(o.yaw),
		o.distance*math32.Sin(o.pitch),
		o.distance*cosPitch*math32.Cos(o.yaw),
	)
	o.camera.SetPosition(o.Target.Add(offset))
	o.camera.LookAt(o.Target)
}

// OnChange registers fn for every camera move made by Update.
func (o *OrbitControls) OnChange(fn func(*scene.Camera)) *event.Subscription {
	return o.Change.Subscribe(fn)
}

// Dispose stops the controls from moving the camera.
func (o *OrbitControls) Dispose() {
	o.disposed = true
	o.enabled = false
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}
