package math

import "testing"

func TestBarycentricInside(t *testing.T) {
	a := Vec2{0, 0}
	b := Vec2{4, 0}
	c := Vec2{0, 4}

	// Centroid
	bc := Barycentric(a, b, c, Vec2{4.0 / 3.0, 4.0 / 3.0})
	for _, w := range []float32{bc.X, bc.Y, bc.Z} {
		if w < 0.332 || w > 0.335 {
			t.Errorf("centroid weight = %v, want ~1/3 (bc=%v)", w, bc)
		}
	}

	// Vertex a
	bc = Barycentric(a, b, c, a)
	if bc.X < 0.999 || bc.Y > 0.001 || bc.Z > 0.001 {
		t.Errorf("vertex weight = %v, want (1,0,0)", bc)
	}
}

func TestBarycentricOutside(t *testing.T) {
	a := Vec2{0, 0}
	b := Vec2{4, 0}
	c := Vec2{0, 4}
	bc := Barycentric(a, b, c, Vec2{5, 5})
	if bc.X >= 0 && bc.Y >= 0 && bc.Z >= 0 {
		t.Errorf("outside point classified inside: %v", bc)
	}
}

func TestBarycentricDegenerate(t *testing.T) {
	a := Vec2{0, 0}
	bc := Barycentric(a, a, a, Vec2{1, 1})
	if bc.X >= 0 && bc.Y >= 0 && bc.Z >= 0 {
		t.Errorf("degenerate triangle should not contain any point: %v", bc)
	}
}

func TestTriArea(t *testing.T) {
	if got := TriArea2D(Vec2{0, 0}, Vec2{2, 0}, Vec2{0, 2}); got != 2 {
		t.Errorf("TriArea2D = %v, want 2", got)
	}
	if got := TriArea2D(Vec2{0, 0}, Vec2{0, 2}, Vec2{2, 0}); got != -2 {
		t.Errorf("TriArea2D clockwise = %v, want -2", got)
	}
	if got := TriArea3D(Vec3{0, 0, 0}, Vec3{2, 0, 0}, Vec3{0, 2, 0}); got != 2 {
		t.Errorf("TriArea3D = %v, want 2", got)
	}
}

func TestTriNormal(t *testing.T) {
	n := TriNormal(Vec3{0, 0, 0}, Vec3{1, 0, 0}, Vec3{0, 1, 0})
	if n != (Vec3{0, 0, 1}) {
		t.Errorf("TriNormal = %v, want +Z", n)
	}
}
