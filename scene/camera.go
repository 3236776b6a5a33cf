package scene

import (
	"github.com/chewxy/math32"

	"scene-studio/math"
)

// Camera represents a perspective view camera aimed at Target.
type Camera struct {
	Position    math.Vec3
	Target      math.Vec3
	Up          math.Vec3
	FOV         float32 // vertical, radians
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	viewMatrix       math.Mat4
	projectionMatrix math.Mat4
	dirty            bool
}

func NewCamera(fov, aspectRatio, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Up:          math.Vec3Up,
		Target:      math.Vec3Zero,
		Position:    math.Vec3Front,
		FOV:         fov,
		AspectRatio: aspectRatio,
		NearPlane:   nearPlane,
		FarPlane:    farPlane,
		dirty:       true,
	}
}

func (c *Camera) UpdateAspectRatio(width, height float32) {
	if height > 0 {
		c.SetAspect(width / height)
	}
}

func (c *Camera) SetAspect(aspect float32) {
	c.AspectRatio = aspect
	c.dirty = true
}

func (c *Camera) SetPosition(pos math.Vec3) {
	c.Position = pos
	c.dirty = true
}

func (c *Camera) LookAt(target math.Vec3) {
	c.Target = target
	c.dirty = true
}

func (c *Camera) ViewMatrix() math.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewMatrix
}

func (c *Camera) ProjectionMatrix() math.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.projectionMatrix
}

// ViewProjectionMatrix applies the view first, then the projection.
func (c *Camera) ViewProjectionMatrix() math.Mat4 {
	return c.ViewMatrix().Mul(c.ProjectionMatrix())
}

func (c *Camera) Forward() math.Vec3 {
	return c.Target.Sub(c.Position).Normalize()
}

func (c *Camera) updateMatrices() {
	c.viewMatrix = math.Mat4LookAt(c.Position, c.Target, c.Up)
	c.projectionMatrix = math.Mat4Perspective(c.FOV, c.AspectRatio, c.NearPlane, c.FarPlane)
	c.dirty = false
}

// Ray builds a world-space ray through normalized device coordinates
// (x, y in [-1, 1], y up).
func (c *Camera) Ray(ndcX, ndcY float32) Ray {
	tanHalf := math32.Tan(c.FOV / 2)
	forward := c.Forward()
	right := forward.Cross(c.Up).Normalize()
	up := right.Cross(forward)

	dir := forward.
		Add(right.Mul(ndcX * tanHalf * c.AspectRatio)).
		Add(up.Mul(ndcY * tanHalf))
	return Ray{Origin: c.Position, Direction: dir.Normalize()}
}

// Ray is a half-line used for picking.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) math.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}
