package mesh

import "sort"

type edgeKey struct {
	lo, hi int
}

func makeEdgeKey(a, b int) edgeKey {
	if a < b {
		return edgeKey{a, b}
	}
	return edgeKey{b, a}
}

// Adjacency maps each triangle to the triangles sharing an edge with it.
type Adjacency struct {
	neighbors [][]int
}

// BuildAdjacency computes shared-edge adjacency for all triangles.
func (m *Mesh) BuildAdjacency() *Adjacency {
	edgeTris := make(map[edgeKey][]int, len(m.Triangles)*3/2)
	for ti, tri := range m.Triangles {
		for e := 0; e < 3; e++ {
			k := makeEdgeKey(tri[e], tri[(e+1)%3])
			edgeTris[k] = append(edgeTris[k], ti)
		}
	}

	adj := &Adjacency{neighbors: make([][]int, len(m.Triangles))}
	for _, tris := range edgeTris {
		for _, a := range tris {
			for _, b := range tris {
				if a != b {
					adj.neighbors[a] = append(adj.neighbors[a], b)
				}
			}
		}
	}
	// Sorted, deduplicated neighbor lists keep downstream traversal
	// order deterministic.
	for i, ns := range adj.neighbors {
		sort.Ints(ns)
		out := ns[:0]
		for j, n := range ns {
			if j == 0 || n != ns[j-1] {
				out = append(out, n)
			}
		}
		adj.neighbors[i] = out
	}
	return adj
}

// Neighbors returns the triangles sharing an edge with triangle t,
// in ascending order.
func (a *Adjacency) Neighbors(t int) []int {
	return a.neighbors[t]
}
