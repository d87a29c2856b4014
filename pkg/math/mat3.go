package math

// Mat3 is a row-major 3x3 matrix, used for camera rotations and
// local tangent frames.
type Mat3 struct {
	Rows [3]Vec3
}

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{Rows: [3]Vec3{{X: 1}, {Y: 1}, {Z: 1}}}
}

// MulVec returns m * v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m.Rows[0].Dot(v),
		m.Rows[1].Dot(v),
		m.Rows[2].Dot(v),
	}
}

// Transpose returns the transposed matrix.
func (m Mat3) Transpose() Mat3 {
	return Mat3{Rows: [3]Vec3{
		{m.Rows[0].X, m.Rows[1].X, m.Rows[2].X},
		{m.Rows[0].Y, m.Rows[1].Y, m.Rows[2].Y},
		{m.Rows[0].Z, m.Rows[1].Z, m.Rows[2].Z},
	}}
}

// Mul returns m * other.
func (m Mat3) Mul(other Mat3) Mat3 {
	t := other.Transpose()
	var out Mat3
	for i := 0; i < 3; i++ {
		out.Rows[i] = Vec3{
			m.Rows[i].Dot(t.Rows[0]),
			m.Rows[i].Dot(t.Rows[1]),
			m.Rows[i].Dot(t.Rows[2]),
		}
	}
	return out
}
