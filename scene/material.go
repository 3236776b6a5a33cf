package scene

import "scene-studio/core"

// Side selects which triangle faces a material renders.
type Side int

const (
	SideFront Side = iota
	SideBack
	SideDouble
)

// Material describes PBR surface appearance for a mesh.
type Material struct {
	Name      string
	Albedo    core.Color
	Metallic  float32
	Roughness float32
	Emissive  core.Color
	Unlit     bool

	Opacity     float32
	Transparent bool
	Side        Side
	DepthWrite  bool

	AlbedoTexture            *Texture
	NormalTexture            *Texture
	MetallicRoughnessTexture *Texture
	EmissiveTexture          *Texture

	// EnvMap is installed by the environment manager and never owned here.
	EnvMap          *Texture
	EnvMapIntensity float32

	GPUData   interface{}
	OnDispose func() error
	disposed  bool
}

// DefaultMaterial returns a plain white dielectric.
func DefaultMaterial() *Material {
	return NewPBRMaterial("Default", core.ColorWhite, 0, 0.5)
}

// NewPBRMaterial creates a PBR material with the given albedo, metallic, and roughness.
func NewPBRMaterial(name string, albedo core.Color, metallic, roughness float32) *Material {
	return &Material{
		Name:            name,
		Albedo:          albedo,
		Metallic:        metallic,
		Roughness:       roughness,
		Opacity:         1,
		DepthWrite:      true,
		EnvMapIntensity: 1,
	}
}

// NewUnlitMaterial creates a flat colored material for lines and helpers.
func NewUnlitMaterial(name string, color core.Color) *Material {
	m := NewPBRMaterial(name, color, 0, 1)
	m.Unlit = true
	return m
}

// OwnedTextures lists the textures released together with the material.
func (m *Material) OwnedTextures() []*Texture {
	var out []*Texture
	for _, t := range []*Texture{m.AlbedoTexture, m.NormalTexture, m.MetallicRoughnessTexture, m.EmissiveTexture} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (m *Material) Dispose() error {
	if m.disposed {
		return nil
	}
	m.disposed = true
	m.GPUData = nil
	if m.OnDispose != nil {
		return m.OnDispose()
	}
	return nil
}

func (m *Material) Disposed() bool {
	return m.disposed
}
