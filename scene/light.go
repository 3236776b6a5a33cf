package scene

import (
	"scene-studio/core"
	"scene-studio/math"
)

type LightType int

const (
	LightAmbient LightType = iota
	LightDirectional
	LightPoint
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightAmbient:
		return "ambient"
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	}
	return "unknown"
}

// Light describes a light source. Position comes from the owning node;
// directional and spot lights aim at Target.
type Light struct {
	Type          LightType
	Color         core.Color
	Intensity     float32
	Target        math.Vec3
	Range         float32
	SpotAngle     float32
	CastShadow    bool
	ShadowMapSize int
	ShadowBias    float32
}

// Clone returns a copy. Light holds no GPU state so a value copy is complete.
func (l Light) Clone() Light {
	return l
}

// Direction returns the unit vector from position towards Target.
func (l Light) Direction(position math.Vec3) math.Vec3 {
	return l.Target.Sub(position).Normalize()
}

// DefaultLights builds the studio lighting rig: a soft ambient term, a key
// light casting shadows and a dimmer fill light from the opposite side.
func DefaultLights(shadowMapSize int) []*Node {
	ambient := NewLightNode("AmbientLight", &Light{
		Type:      LightAmbient,
		Color:     core.ColorWhite,
		Intensity: 0.2,
	})

	key := NewLightNode("KeyLight", &Light{
		Type:          LightDirectional,
		Color:         core.ColorWhite,
		Intensity:     1,
		CastShadow:    true,
		ShadowMapSize: shadowMapSize,
		ShadowBias:    -0.0001,
	})
	key.SetPosition(math.NewVec3(5, 10, 7.5))

	fill := NewLightNode("FillLight", &Light{
		Type:      LightDirectional,
		Color:     core.ColorWhite,
		Intensity: 0.5,
	})
	fill.SetPosition(math.NewVec3(-5, 2, -7.5))

	return []*Node{ambient, key, fill}
}
