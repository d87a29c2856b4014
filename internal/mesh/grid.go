package mesh

import (
	"github.com/chewxy/math32"

	"github.com/meshforge/meshtex/pkg/math"
)

// PointGrid is a uniform hash grid over a point set, used for
// nearest-point queries when remapping visibility between meshes.
type PointGrid struct {
	cell   float32
	points []math.Vec3
	cells  map[[3]int32][]int
}

// NewPointGrid builds a grid over the given points. cell must be > 0;
// a good choice is a small multiple of the expected query radius.
func NewPointGrid(points []math.Vec3, cell float32) *PointGrid {
	g := &PointGrid{
		cell:   cell,
		points: points,
		cells:  make(map[[3]int32][]int, len(points)),
	}
	for i, p := range points {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *PointGrid) key(p math.Vec3) [3]int32 {
	return [3]int32{
		int32(math32.Floor(p.X / g.cell)),
		int32(math32.Floor(p.Y / g.cell)),
		int32(math32.Floor(p.Z / g.cell)),
	}
}

// Nearest returns the index of the closest stored point within maxDist
// of p, or false when none qualifies. Ties go to the lowest index.
func (g *PointGrid) Nearest(p math.Vec3, maxDist float32) (int, bool) {
	reach := int32(math32.Ceil(maxDist/g.cell)) + 1
	center := g.key(p)

	best := -1
	bestSq := maxDist * maxDist
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for dz := -reach; dz <= reach; dz++ {
				k := [3]int32{center[0] + dx, center[1] + dy, center[2] + dz}
				for _, idx := range g.cells[k] {
					dSq := g.points[idx].Sub(p).LengthSq()
					if dSq < bestSq || (dSq == bestSq && best >= 0 && idx < best) {
						best = idx
						bestSq = dSq
					}
				}
			}
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
