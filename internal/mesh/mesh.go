// Package mesh holds the surface mesh data model used by the texturing
// pipeline: vertex/triangle storage, adjacency queries and spatial
// nearest-point lookup.
package mesh

import (
	"github.com/meshforge/meshtex/pkg/formats"
	"github.com/meshforge/meshtex/pkg/math"
)

// Mesh is an indexed triangle mesh. Vertices and triangles are immutable
// for the duration of a texturing run.
type Mesh struct {
	Vertices  []math.Vec3
	Triangles [][3]int
}

// FromData builds a Mesh from a parsed binary mesh payload.
func FromData(data *formats.MeshBin) *Mesh {
	m := &Mesh{
		Vertices:  make([]math.Vec3, len(data.Vertices)),
		Triangles: make([][3]int, len(data.Triangles)),
	}
	for i, v := range data.Vertices {
		m.Vertices[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	for i, t := range data.Triangles {
		m.Triangles[i] = [3]int{int(t[0]), int(t[1]), int(t[2])}
	}
	return m
}

// FromOBJ builds a Mesh from a parsed OBJ file. Only positions and face
// connectivity are kept; UVs are regenerated by the pipeline.
func FromOBJ(obj *formats.OBJ) *Mesh {
	m := &Mesh{
		Vertices:  make([]math.Vec3, len(obj.Positions)),
		Triangles: make([][3]int, len(obj.Faces)),
	}
	for i, v := range obj.Positions {
		m.Vertices[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	for i, f := range obj.Faces {
		m.Triangles[i] = [3]int{int(f.Pos[0]), int(f.Pos[1]), int(f.Pos[2])}
	}
	return m
}

// ToData converts the mesh back into its binary payload form.
func (m *Mesh) ToData() *formats.MeshBin {
	data := &formats.MeshBin{
		Vertices:  make([][3]float32, len(m.Vertices)),
		Triangles: make([][3]uint32, len(m.Triangles)),
	}
	for i, v := range m.Vertices {
		data.Vertices[i] = [3]float32{v.X, v.Y, v.Z}
	}
	for i, t := range m.Triangles {
		data.Triangles[i] = [3]uint32{uint32(t[0]), uint32(t[1]), uint32(t[2])}
	}
	return data
}

// TriVerts returns the three vertex positions of triangle t.
func (m *Mesh) TriVerts(t int) (a, b, c math.Vec3) {
	tri := m.Triangles[t]
	return m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]
}

// TriNormal returns the unit normal of triangle t.
func (m *Mesh) TriNormal(t int) math.Vec3 {
	a, b, c := m.TriVerts(t)
	return math.TriNormal(a, b, c)
}

// TriCenter returns the centroid of triangle t.
func (m *Mesh) TriCenter(t int) math.Vec3 {
	a, b, c := m.TriVerts(t)
	return a.Add(b).Add(c).Scale(1.0 / 3.0)
}

// TriArea returns the area of triangle t.
func (m *Mesh) TriArea(t int) float32 {
	a, b, c := m.TriVerts(t)
	return math.TriArea3D(a, b, c)
}

// Bounds returns the axis-aligned bounding box of the mesh.
func (m *Mesh) Bounds() (min, max math.Vec3) {
	if len(m.Vertices) == 0 {
		return math.Vec3{}, math.Vec3{}
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		min = min.Min(v)
		max = max.Max(v)
	}
	return min, max
}

// SmoothNormals computes area-weighted per-vertex normals.
func (m *Mesh) SmoothNormals() []math.Vec3 {
	normals := make([]math.Vec3, len(m.Vertices))
	for _, tri := range m.Triangles {
		a := m.Vertices[tri[0]]
		b := m.Vertices[tri[1]]
		c := m.Vertices[tri[2]]
		// Cross product length is twice the area, giving the weighting
		n := b.Sub(a).Cross(c.Sub(a))
		for _, vid := range tri {
			normals[vid] = normals[vid].Add(n)
		}
	}
	for i := range normals {
		normals[i] = normals[i].Normalize()
	}
	return normals
}
