package math

// Barycentric computes the barycentric coordinates of point p in the 2D
// triangle (a, b, c). The returned Vec3 holds the weights of a, b and c;
// all three are non-negative iff p lies inside the triangle.
func Barycentric(a, b, c, p Vec2) Vec3 {
	v0 := c.Sub(a)
	v1 := b.Sub(a)
	v2 := p.Sub(a)

	dot00 := v0.Dot(v0)
	dot01 := v0.Dot(v1)
	dot02 := v0.Dot(v2)
	dot11 := v1.Dot(v1)
	dot12 := v1.Dot(v2)

	denom := dot00*dot11 - dot01*dot01
	if denom == 0 {
		return Vec3{X: -1, Y: -1, Z: -1}
	}
	inv := 1 / denom
	u := (dot11*dot02 - dot01*dot12) * inv
	v := (dot00*dot12 - dot01*dot02) * inv
	return Vec3{X: 1 - u - v, Y: v, Z: u}
}

// TriArea2D returns the signed area of the 2D triangle (a, b, c).
// Positive for counter-clockwise winding.
func TriArea2D(a, b, c Vec2) float32 {
	return b.Sub(a).Cross(c.Sub(a)) * 0.5
}

// TriArea3D returns the area of the 3D triangle (a, b, c).
func TriArea3D(a, b, c Vec3) float32 {
	return b.Sub(a).Cross(c.Sub(a)).Length() * 0.5
}

// TriNormal returns the unit normal of the 3D triangle (a, b, c),
// or the zero vector for a degenerate triangle.
func TriNormal(a, b, c Vec3) Vec3 {
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}
