package math

import (
	"testing"

	"github.com/chewxy/math32"
)

const tolerance = float32(0.0001)

func TestVec3Operations(t *testing.T) {
	v1 := NewVec3(1, 2, 3)
	v2 := NewVec3(4, 5, 6)

	if got, want := v1.Add(v2), NewVec3(5, 7, 9); got != want {
		t.Errorf("Add: expected %v, got %v", want, got)
	}
	if got, want := v2.Sub(v1), NewVec3(3, 3, 3); got != want {
		t.Errorf("Sub: expected %v, got %v", want, got)
	}
	if got := v1.Dot(v2); got != 32 {
		t.Errorf("Dot: expected 32, got %v", got)
	}
	if got := Vec3Right.Cross(Vec3Up); got != Vec3Front {
		t.Errorf("Cross: expected %v, got %v", Vec3Front, got)
	}
	if got, want := v1.Min(NewVec3(0, 5, 3)), NewVec3(0, 2, 3); got != want {
		t.Errorf("Min: expected %v, got %v", want, got)
	}
	if got := NewVec3(1, 7, -9).MaxComponent(); got != 7 {
		t.Errorf("MaxComponent: expected 7, got %v", got)
	}
}

func TestVec3Normalize(t *testing.T) {
	normalized := NewVec3(3, 0, 0).Normalize()
	if normalized != Vec3Right {
		t.Errorf("Normalize: expected %v, got %v", Vec3Right, normalized)
	}
	if math32.Abs(normalized.Length()-1) > tolerance {
		t.Errorf("Normalize: expected length 1, got %v", normalized.Length())
	}
	if Vec3Zero.Normalize() != Vec3Zero {
		t.Error("Normalize: zero vector must stay zero")
	}
}

func TestMat4Translation(t *testing.T) {
	translation := NewVec3(1, 2, 3)
	m := Mat4Translation(translation)

	if m.Translation() != translation {
		t.Errorf("Translation: expected %v, got %v", translation, m.Translation())
	}
	if got := m.MulVec3(Vec3Zero); got != translation {
		t.Errorf("MulVec3: expected %v, got %v", translation, got)
	}
	if got := m.MulDir(Vec3Up); got != Vec3Up {
		t.Errorf("MulDir: translation must not move directions, got %v", got)
	}
}

func TestMat4ComposeAppliesScaleBeforeTranslation(t *testing.T) {
	m := Mat4Compose(NewVec3(1, 0, 0), QuaternionIdentity(), Splat(2))

	got := m.MulVec3(NewVec3(1, 0, 0))
	if !got.ApproxEqual(NewVec3(3, 0, 0), tolerance) {
		t.Errorf("Compose: expected (3,0,0), got %v", got)
	}
}

func TestMat4ComposeRotation(t *testing.T) {
	q := QuaternionFromAxisAngle(Vec3Up, math32.Pi/2)
	m := Mat4Compose(NewVec3(0, 0, 10), q, Vec3One)

	got := m.MulVec3(Vec3Right)
	want := q.RotateVector(Vec3Right).Add(NewVec3(0, 0, 10))
	if !got.ApproxEqual(want, tolerance) {
		t.Errorf("Compose: expected %v, got %v", want, got)
	}
}

func TestMat4Inverse(t *testing.T) {
	q := QuaternionFromEuler(NewVec3(0.3, -1.1, 0.7))
	m := Mat4Compose(NewVec3(4, -2, 9), q, NewVec3(2, 3, 0.5))

	product := m.Mul(m.Inverse())
	identity := Mat4Identity()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math32.Abs(product[i][j]-identity[i][j]) > 0.001 {
				t.Fatalf("Inverse: m * m^-1 [%d][%d] = %v", i, j, product[i][j])
			}
		}
	}
}

func TestQuaternionRotation(t *testing.T) {
	q := QuaternionFromAxisAngle(Vec3Up, math32.Pi/2)

	result := q.RotateVector(Vec3Right)
	if !result.ApproxEqual(NewVec3(0, 0, -1), tolerance) {
		t.Errorf("Quaternion rotation: expected approximately (0,0,-1), got %v", result)
	}

	viaMatrix := q.ToMat4().MulDir(Vec3Right)
	if !viaMatrix.ApproxEqual(result, tolerance) {
		t.Errorf("ToMat4: expected %v, got %v", result, viaMatrix)
	}
}

func TestQuaternionMulOrder(t *testing.T) {
	a := QuaternionFromAxisAngle(Vec3Up, math32.Pi/2)
	b := QuaternionFromAxisAngle(Vec3Right, math32.Pi/2)

	combined := a.Mul(b).RotateVector(Vec3Up)
	stepwise := a.RotateVector(b.RotateVector(Vec3Up))
	if !combined.ApproxEqual(stepwise, tolerance) {
		t.Errorf("Mul: expected %v, got %v", stepwise, combined)
	}
}

func TestMat4LookAt(t *testing.T) {
	eye := NewVec3(0, 0, 5)
	m := Mat4LookAt(eye, Vec3Zero, Vec3Up)

	if got := m.MulVec3(eye); !got.ApproxEqual(Vec3Zero, 0.001) {
		t.Errorf("LookAt: expected eye to transform to origin, got %v", got)
	}
}

func TestMat4Perspective(t *testing.T) {
	m := Mat4Perspective(math32.Pi/4, 16.0/9.0, 0.1, 100)
	if m[0][0] == 0 || m[1][1] == 0 {
		t.Error("Perspective: expected non-zero X and Y scale")
	}
	if m[0][0] >= m[1][1] {
		t.Error("Perspective: wide aspect must shrink the X scale")
	}
}

func TestMat4Orthographic(t *testing.T) {
	m := Mat4Orthographic(-2, 2, -1, 1, 1, 11)

	if got := m.MulVec3(NewVec3(2, 1, -1)); !got.ApproxEqual(NewVec3(1, 1, -1), tolerance) {
		t.Errorf("Orthographic: near corner mapped to %v", got)
	}
	if got := m.MulVec3(NewVec3(-2, -1, -11)); !got.ApproxEqual(NewVec3(-1, -1, 1), tolerance) {
		t.Errorf("Orthographic: far corner mapped to %v", got)
	}
}

func BenchmarkMat4Mul(b *testing.B) {
	m1 := Mat4Compose(NewVec3(1, 2, 3), QuaternionIdentity(), Vec3One)
	m2 := Mat4Identity()

	for i := 0; i < b.N; i++ {
		_ = m1.Mul(m2)
	}
}
