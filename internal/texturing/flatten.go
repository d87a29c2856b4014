package texturing

import (
	"errors"
	gomath "math"

	"github.com/meshforge/meshtex/internal/scene"
	"github.com/meshforge/meshtex/pkg/math"
)

// errFlatten requests the plane-projection fallback for a chart.
var errFlatten = errors.New("chart flattening failed")

// flattenPlane projects the chart onto the plane of its area-weighted
// average normal. Always succeeds; individual triangles lying
// perpendicular to that plane come out degenerate and are carved out
// by the caller.
func flattenPlane(verts []math.Vec3, tris [][3]int, _ *scene.Camera) ([]math.Vec2, error) {
	var normal math.Vec3
	for _, tri := range tris {
		a, b, c := verts[tri[0]], verts[tri[1]], verts[tri[2]]
		normal = normal.Add(b.Sub(a).Cross(c.Sub(a)))
	}
	if normal.LengthSq() < 1e-20 && len(tris) > 0 {
		tri := tris[0]
		normal = math.TriNormal(verts[tri[0]], verts[tri[1]], verts[tri[2]])
	}
	n := normal.Normalize()
	if n == (math.Vec3{}) {
		n = math.Vec3{Z: 1}
	}

	// Tangent frame: pick the world axis least aligned with n
	up := math.Vec3{Z: 1}
	if n.Z > 0.9 || n.Z < -0.9 {
		up = math.Vec3{X: 1}
	}
	t := up.Cross(n).Normalize()
	b := n.Cross(t)

	uv := make([]math.Vec2, len(verts))
	for i, p := range verts {
		uv[i] = math.Vec2{X: p.Dot(t), Y: p.Dot(b)}
	}
	return uv, nil
}

// flattenProject maps each chart vertex through its dominant camera's
// projection, so the chart keeps the perspective of the photo it will
// mostly be painted from. Falls back to plane projection when the chart
// has no camera or reaches behind it.
func flattenProject(verts []math.Vec3, tris [][3]int, view *scene.Camera) ([]math.Vec2, error) {
	if view == nil {
		return flattenPlane(verts, tris, nil)
	}
	uv := make([]math.Vec2, len(verts))
	for i, p := range verts {
		u, v, depth := view.Project(p)
		if depth <= 0 {
			return nil, errFlatten
		}
		uv[i] = math.Vec2{X: u, Y: v}
	}
	return uv, nil
}

// triFrame computes the 2D coordinates of a triangle in its own plane:
// q0 at the origin, q1 on the +X axis.
func triFrame(a, b, c math.Vec3) (q1, q2 math.Vec2, ok bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	n := e1.Cross(e2)
	if n.LengthSq() < 1e-20 {
		return math.Vec2{}, math.Vec2{}, false
	}
	x := e1.Normalize()
	y := n.Normalize().Cross(x)
	return math.Vec2{X: e1.Length()}, math.Vec2{X: e2.Dot(x), Y: e2.Dot(y)}, true
}

// flattenLSCM computes a least-squares conformal map of the chart. Two
// pin vertices (the extremes of the plane projection) keep the system
// well-posed; the remaining coordinates minimize the conformal energy
// via conjugate gradients on the normal equations.
func flattenLSCM(verts []math.Vec3, tris [][3]int, view *scene.Camera) ([]math.Vec2, error) {
	n := len(verts)
	if n < 3 {
		return nil, errFlatten
	}
	init, _ := flattenPlane(verts, tris, nil)

	// Pin the two vertices farthest apart along the projected X axis
	pinA, pinB := 0, 0
	for i, p := range init {
		if p.X < init[pinA].X || (p.X == init[pinA].X && i < pinA) {
			pinA = i
		}
		if p.X > init[pinB].X || (p.X == init[pinB].X && i < pinB) {
			pinB = i
		}
	}
	if pinA == pinB {
		return nil, errFlatten
	}
	pinDist := float64(init[pinA].Distance(init[pinB]))
	if pinDist <= 0 {
		pinDist = 1
	}

	// Per-triangle frames and basis gradients
	type triData struct {
		area float64
		g    [3][2]float64 // gradient of each barycentric basis
	}
	tds := make([]triData, 0, len(tris))
	triIdx := make([][3]int, 0, len(tris))
	for _, tri := range tris {
		q1, q2, ok := triFrame(verts[tri[0]], verts[tri[1]], verts[tri[2]])
		if !ok {
			continue
		}
		q := [3][2]float64{{0, 0}, {float64(q1.X), float64(q1.Y)}, {float64(q2.X), float64(q2.Y)}}
		area := 0.5 * ((q[1][0]-q[0][0])*(q[2][1]-q[0][1]) - (q[1][1]-q[0][1])*(q[2][0]-q[0][0]))
		if area <= 0 {
			continue
		}
		var td triData
		td.area = area
		for k := 0; k < 3; k++ {
			e := [2]float64{q[(k+2)%3][0] - q[(k+1)%3][0], q[(k+2)%3][1] - q[(k+1)%3][1]}
			// 90-degree rotation of the opposite edge over twice the area
			td.g[k] = [2]float64{-e[1] / (2 * area), e[0] / (2 * area)}
		}
		tds = append(tds, td)
		triIdx = append(triIdx, tri)
	}
	if len(tds) == 0 {
		return nil, errFlatten
	}

	// Unknown vector x holds (u, v) per vertex; pinned slots are fixed.
	pinned := func(i int) bool { return i == pinA || i == pinB }

	// grad computes the gradient of the conformal energy
	// E = sum_t area_t * |rot90(grad u) - grad v|^2 at x, zeroing
	// entries of pinned vertices.
	grad := func(x []float64) []float64 {
		g := make([]float64, 2*n)
		for ti, td := range tds {
			tri := triIdx[ti]
			var gu, gv [2]float64
			for k := 0; k < 3; k++ {
				u := x[2*tri[k]]
				v := x[2*tri[k]+1]
				gu[0] += u * td.g[k][0]
				gu[1] += u * td.g[k][1]
				gv[0] += v * td.g[k][0]
				gv[1] += v * td.g[k][1]
			}
			// Residual of the Cauchy-Riemann condition
			r := [2]float64{-gu[1] - gv[0], gu[0] - gv[1]}
			w := 2 * td.area
			for k := 0; k < 3; k++ {
				if pinned(tri[k]) {
					continue
				}
				// d r / d u_k = rot90(g_k), d r / d v_k = -g_k
				g[2*tri[k]] += w * (r[0]*(-td.g[k][1]) + r[1]*td.g[k][0])
				g[2*tri[k]+1] += w * (r[0]*(-td.g[k][0]) + r[1]*(-td.g[k][1]))
			}
		}
		return g
	}

	// Affine split: grad(x) = H*x_free + c. b = -c comes from the
	// pinned coordinates alone.
	base := make([]float64, 2*n)
	base[2*pinA] = 0
	base[2*pinA+1] = 0
	base[2*pinB] = pinDist
	base[2*pinB+1] = 0
	b := grad(base)
	for i := range b {
		b[i] = -b[i]
	}

	matvec := func(y []float64) []float64 {
		return grad(y) // pins in y are zero, so grad is exactly H*y
	}

	// Conjugate gradient from the plane-projection initial guess
	x := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		if pinned(i) {
			continue
		}
		x[2*i] = float64(init[i].X - init[pinA].X)
		x[2*i+1] = float64(init[i].Y - init[pinA].Y)
	}
	r := matvec(x)
	for i := range r {
		r[i] = b[i] - r[i]
	}
	p := append([]float64(nil), r...)
	rs := dot(r, r)
	maxIter := 4 * n
	if maxIter > 512 {
		maxIter = 512
	}
	for iter := 0; iter < maxIter && rs > 1e-12; iter++ {
		hp := matvec(p)
		php := dot(p, hp)
		if php <= 0 {
			break
		}
		alpha := rs / php
		for i := range x {
			x[i] += alpha * p[i]
			r[i] -= alpha * hp[i]
		}
		rsNew := dot(r, r)
		beta := rsNew / rs
		rs = rsNew
		for i := range p {
			p[i] = r[i] + beta*p[i]
		}
	}

	uv := make([]math.Vec2, n)
	for i := 0; i < n; i++ {
		if pinned(i) {
			uv[i] = math.Vec2{X: float32(base[2*i]), Y: float32(base[2*i+1])}
		} else {
			uv[i] = math.Vec2{X: float32(x[2*i]), Y: float32(x[2*i+1])}
		}
		if gomath.IsNaN(float64(uv[i].X)) || gomath.IsNaN(float64(uv[i].Y)) {
			return nil, errFlatten
		}
	}
	return uv, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// flattenABF is an angle-based flattening: corner angles are rescaled
// so interior vertices become flat (incident angles summing to 2 pi),
// then the chart is laid out by walking triangles across shared edges,
// reconstructing each from its desired angles and one placed edge.
func flattenABF(verts []math.Vec3, tris [][3]int, view *scene.Camera) ([]math.Vec2, error) {
	if len(tris) == 0 {
		return nil, errFlatten
	}
	n := len(verts)

	// Corner angles from 3D geometry
	angles := make([][3]float64, len(tris))
	vertexSum := make([]float64, n)
	for ti, tri := range tris {
		for k := 0; k < 3; k++ {
			a := verts[tri[k]]
			b := verts[tri[(k+1)%3]]
			c := verts[tri[(k+2)%3]]
			angles[ti][k] = cornerAngle(a, b, c)
			vertexSum[tri[k]] += angles[ti][k]
		}
	}

	// Boundary vertices keep their angles; interior ones are scaled to 2 pi
	boundary := boundaryVerts(n, tris)
	for ti, tri := range tris {
		for k := 0; k < 3; k++ {
			vid := tri[k]
			if !boundary[vid] && vertexSum[vid] > 1e-9 {
				angles[ti][k] *= 2 * gomath.Pi / vertexSum[vid]
			}
		}
	}
	// Renormalize each triangle's angles to sum to pi
	for ti := range angles {
		s := angles[ti][0] + angles[ti][1] + angles[ti][2]
		if s <= 1e-9 {
			return nil, errFlatten
		}
		for k := 0; k < 3; k++ {
			angles[ti][k] *= gomath.Pi / s
		}
	}

	// Walk triangles over shared edges, placing the third vertex of
	// each from the placed edge and the desired angles.
	edgeTris := map[[2]int][]int{}
	for ti, tri := range tris {
		for k := 0; k < 3; k++ {
			e := orderedEdge(tri[k], tri[(k+1)%3])
			edgeTris[e] = append(edgeTris[e], ti)
		}
	}

	uv := make([]math.Vec2, n)
	placedV := make([]bool, n)
	placedT := make([]bool, len(tris))

	// Seed with the first triangle
	t0 := tris[0]
	l01 := float64(verts[t0[1]].Sub(verts[t0[0]]).Length())
	if l01 <= 0 {
		return nil, errFlatten
	}
	uv[t0[0]] = math.Vec2{}
	uv[t0[1]] = math.Vec2{X: float32(l01)}
	if gomath.Sin(angles[0][2]) < 1e-9 {
		return nil, errFlatten
	}
	l02 := l01 * gomath.Sin(angles[0][1]) / gomath.Sin(angles[0][2])
	uv[t0[2]] = math.Vec2{
		X: float32(l02 * gomath.Cos(angles[0][0])),
		Y: float32(l02 * gomath.Sin(angles[0][0])),
	}
	placedV[t0[0]], placedV[t0[1]], placedV[t0[2]] = true, true, true
	placedT[0] = true

	queue := []int{0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		tri := tris[cur]
		for k := 0; k < 3; k++ {
			e := orderedEdge(tri[k], tri[(k+1)%3])
			for _, nb := range edgeTris[e] {
				if placedT[nb] {
					continue
				}
				if placeTriangle(tris[nb], angles[nb], uv, placedV, tri, e) {
					placedT[nb] = true
					queue = append(queue, nb)
				}
			}
		}
	}
	for ti := range tris {
		if !placedT[ti] {
			return nil, errFlatten
		}
	}
	for i := range uv {
		if gomath.IsNaN(float64(uv[i].X)) || gomath.IsNaN(float64(uv[i].Y)) {
			return nil, errFlatten
		}
	}
	return uv, nil
}

// placeTriangle lays out triangle tri across the shared edge e, whose
// endpoints are already placed. Returns false when the triangle cannot
// be placed yet.
func placeTriangle(tri [3]int, ang [3]float64, uv []math.Vec2, placedV []bool, fromTri [3]int, e [2]int) bool {
	// Locate the corner opposite the shared edge
	third := -1
	ka := -1
	for k := 0; k < 3; k++ {
		if tri[k] != e[0] && tri[k] != e[1] {
			third = tri[k]
			ka = k
		}
	}
	if third < 0 || !placedV[e[0]] || !placedV[e[1]] {
		return false
	}
	if placedV[third] {
		return true // already pinned by an earlier triangle; keep it
	}

	// Angles at the edge endpoints within this triangle
	var angA, angB float64
	for k := 0; k < 3; k++ {
		switch tri[k] {
		case e[0]:
			angA = ang[k]
		case e[1]:
			angB = ang[k]
		}
	}
	angC := ang[ka]
	if gomath.Sin(angC) < 1e-9 {
		return false
	}

	a := uv[e[0]]
	b := uv[e[1]]
	ab := b.Sub(a)
	lab := float64(ab.Length())
	if lab <= 0 {
		return false
	}
	lac := lab * gomath.Sin(angB) / gomath.Sin(angC)

	// Place on the side away from the neighbor triangle's third vertex
	var nbThird int = -1
	for _, vid := range fromTri {
		if vid != e[0] && vid != e[1] {
			nbThird = vid
		}
	}
	dir := ab.Scale(float32(1 / lab))
	for _, sign := range []float64{1, -1} {
		rot := math.Vec2{
			X: dir.X*float32(gomath.Cos(sign*angA)) - dir.Y*float32(gomath.Sin(sign*angA)),
			Y: dir.X*float32(gomath.Sin(sign*angA)) + dir.Y*float32(gomath.Cos(sign*angA)),
		}
		cand := a.Add(rot.Scale(float32(lac)))
		if nbThird < 0 || oppositeSides(a, b, uv[nbThird], cand) {
			uv[third] = cand
			placedV[third] = true
			return true
		}
	}
	// Both candidates fold onto the neighbor; take the first anyway
	rot := math.Vec2{
		X: dir.X*float32(gomath.Cos(angA)) - dir.Y*float32(gomath.Sin(angA)),
		Y: dir.X*float32(gomath.Sin(angA)) + dir.Y*float32(gomath.Cos(angA)),
	}
	uv[third] = a.Add(rot.Scale(float32(lac)))
	placedV[third] = true
	return true
}

func oppositeSides(a, b, p, q math.Vec2) bool {
	ab := b.Sub(a)
	return ab.Cross(p.Sub(a))*ab.Cross(q.Sub(a)) < 0
}

func cornerAngle(at, p1, p2 math.Vec3) float64 {
	e1 := p1.Sub(at)
	e2 := p2.Sub(at)
	l := float64(e1.Length()) * float64(e2.Length())
	if l <= 0 {
		return 0
	}
	c := float64(e1.Dot(e2)) / l
	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	return gomath.Acos(c)
}

func orderedEdge(a, b int) [2]int {
	if a < b {
		return [2]int{a, b}
	}
	return [2]int{b, a}
}

// boundaryVerts marks vertices on edges used by only one triangle.
func boundaryVerts(n int, tris [][3]int) []bool {
	count := map[[2]int]int{}
	for _, tri := range tris {
		for k := 0; k < 3; k++ {
			count[orderedEdge(tri[k], tri[(k+1)%3])]++
		}
	}
	boundary := make([]bool, n)
	for e, c := range count {
		if c == 1 {
			boundary[e[0]] = true
			boundary[e[1]] = true
		}
	}
	return boundary
}
