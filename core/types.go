package core

import (
	"fmt"
	"strconv"
	"strings"

	"scene-studio/math"
)

type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite = Color{1, 1, 1, 1}
	ColorBlack = Color{0, 0, 0, 1}
	ColorGreen = Color{0, 1, 0, 1}
)

// ParseHexColor accepts "#rrggbb", "rrggbb" or "0xrrggbb".
func ParseHexColor(s string) (Color, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "#"), "0x")
	if len(raw) != 6 {
		return Color{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return ColorFromHex(uint32(v)), nil
}

// ColorFromHex converts 0xrrggbb into an opaque color.
func ColorFromHex(v uint32) Color {
	return Color{
		R: float32((v>>16)&0xff) / 255,
		G: float32((v>>8)&0xff) / 255,
		B: float32(v&0xff) / 255,
		A: 1,
	}
}

func (c Color) Lerp(other Color, t float32) Color {
	return Color{
		R: c.R + (other.R-c.R)*t,
		G: c.G + (other.G-c.G)*t,
		B: c.B + (other.B-c.B)*t,
		A: c.A + (other.A-c.A)*t,
	}
}

// RGBA8 clamps the color into 8-bit channels.
func (c Color) RGBA8() [4]uint8 {
	return [4]uint8{to8(c.R), to8(c.G), to8(c.B), to8(c.A)}
}

func to8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       [2]float32
	Color    Color
}

type Transform struct {
	Position math.Vec3
	Rotation math.Quaternion
	Scale    math.Vec3
}

func NewTransform() Transform {
	return Transform{
		Position: math.Vec3Zero,
		Rotation: math.QuaternionIdentity(),
		Scale:    math.Vec3One,
	}
}

// Matrix applies scale, rotation and translation in that order.
func (t Transform) Matrix() math.Mat4 {
	return math.Mat4Compose(t.Position, t.Rotation, t.Scale)
}

func (t Transform) Forward() math.Vec3 {
	return t.Rotation.RotateVector(math.Vec3Front)
}

type Rect struct {
	X, Y, Width, Height float32
}
