package scene

import (
	"sort"

	"github.com/meshforge/meshtex/pkg/formats"
)

// Visibility maps each vertex index to the sorted set of camera view
// ids observing it. Every vertex referenced by a triangle has an entry,
// possibly empty.
type Visibility [][]int32

// VisibilityFromData builds a Visibility from its binary payload,
// normalizing each view list to a sorted, deduplicated set.
func VisibilityFromData(data *formats.VisBin) Visibility {
	vis := make(Visibility, len(data.Views))
	for i, views := range data.Views {
		vs := make([]int32, len(views))
		copy(vs, views)
		sort.Slice(vs, func(a, b int) bool { return vs[a] < vs[b] })
		out := vs[:0]
		for j, v := range vs {
			if j == 0 || v != vs[j-1] {
				out = append(out, v)
			}
		}
		vis[i] = out
	}
	return vis
}

// Empty returns a Visibility with an empty view set for every vertex.
func EmptyVisibility(vertexCount int) Visibility {
	vis := make(Visibility, vertexCount)
	for i := range vis {
		vis[i] = []int32{}
	}
	return vis
}

// ToData converts the visibility back into its binary payload form.
func (v Visibility) ToData() *formats.VisBin {
	return &formats.VisBin{Views: v}
}

// Sees reports whether vertex is observed by view.
func (v Visibility) Sees(vertex int, view int32) bool {
	views := v[vertex]
	i := sort.Search(len(views), func(i int) bool { return views[i] >= view })
	return i < len(views) && views[i] == view
}

// Union returns the sorted union of the view sets of the given vertices.
func (v Visibility) Union(vertices ...int) []int32 {
	seen := map[int32]struct{}{}
	for _, vid := range vertices {
		for _, view := range v[vid] {
			seen[view] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for view := range seen {
		out = append(out, view)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Intersection returns the sorted set of views observing every one of
// the given vertices.
func (v Visibility) Intersection(vertices ...int) []int32 {
	if len(vertices) == 0 {
		return nil
	}
	counts := map[int32]int{}
	for _, vid := range vertices {
		for _, view := range v[vid] {
			counts[view]++
		}
	}
	var out []int32
	for view, n := range counts {
		if n == len(vertices) {
			out = append(out, view)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
