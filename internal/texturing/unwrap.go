package texturing

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"

	"github.com/meshforge/meshtex/internal/mesh"
	"github.com/meshforge/meshtex/internal/scene"
	"github.com/meshforge/meshtex/pkg/math"
)

// UnwrapMethod selects the unwrap algorithm.
type UnwrapMethod int

// Available unwrap methods.
const (
	UnwrapBasic UnwrapMethod = iota // visibility charts projected into their dominant view
	UnwrapABF                       // angle-based flattening per chart
	UnwrapLSCM                      // least-squares conformal mapping per chart
)

// ParseUnwrapMethod returns the UnwrapMethod for a config string.
func ParseUnwrapMethod(s string) (UnwrapMethod, error) {
	switch s {
	case "basic", "Basic":
		return UnwrapBasic, nil
	case "abf", "ABF":
		return UnwrapABF, nil
	case "lscm", "LSCM":
		return UnwrapLSCM, nil
	default:
		return 0, fmt.Errorf("%w: unknown unwrap method %q", ErrInvalidParameter, s)
	}
}

// String returns the config string for the method.
func (m UnwrapMethod) String() string {
	switch m {
	case UnwrapBasic:
		return "basic"
	case UnwrapABF:
		return "abf"
	case UnwrapLSCM:
		return "lscm"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Chart is a connected group of mesh triangles unwrapped together into
// one contiguous UV region. Local UVs are chart-relative, origin at
// (0,0), scaled so UV area matches 3D surface area.
type Chart struct {
	Tris  []int   // mesh triangle ids, ascending
	View  int32   // dominant camera view, -1 when unobserved
	Verts []int   // mesh vertex id per local UV slot
	UV    []math.Vec2
	TriUV [][3]int // per chart-triangle local UV indices
	W, H  float32  // local bbox size

	// Packing results, filled by the atlas packer.
	Atlas   int
	Scale   float32
	Rotated bool
	OriginX int
	OriginY int
	Shrunk  bool // chart was force-scaled to fit an atlas alone
}

// Unwrapper produces UV bindings and chart grouping from a mesh.
type Unwrapper interface {
	Unwrap(m *mesh.Mesh, vis scene.Visibility, views *scene.Scene) ([]*Chart, error)
}

// NewUnwrapper returns the Unwrapper implementing the given method.
func NewUnwrapper(method UnwrapMethod) (Unwrapper, error) {
	switch method {
	case UnwrapBasic:
		return &chartUnwrapper{flatten: flattenProject}, nil
	case UnwrapABF:
		return &chartUnwrapper{flatten: flattenABF}, nil
	case UnwrapLSCM:
		return &chartUnwrapper{flatten: flattenLSCM}, nil
	default:
		return nil, fmt.Errorf("%w: unwrap method %d", ErrInvalidParameter, int(method))
	}
}

// flattenFunc maps a chart submesh (local vertices and triangles) to
// local 2D coordinates. view is the chart's dominant camera, nil when
// none. Implementations may return an error to request the projection
// fallback.
type flattenFunc func(verts []math.Vec3, tris [][3]int, view *scene.Camera) ([]math.Vec2, error)

// chartUnwrapper builds visibility-consistent charts and flattens each
// one with the configured method.
type chartUnwrapper struct {
	flatten flattenFunc
}

func (u *chartUnwrapper) Unwrap(m *mesh.Mesh, vis scene.Visibility, views *scene.Scene) ([]*Chart, error) {
	charts := buildCharts(m, vis)

	// Charts are independent subproblems; flatten them in parallel
	// into a pre-sized, index-addressed slice.
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, c := range charts {
		c := c
		g.Go(func() error {
			return u.flattenChart(m, c, views)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Triangles that came out degenerate in UV space are carved into
	// minimal single-triangle charts and flattened on their own plane.
	charts = splitDegenerateUVs(m, charts, views)
	return charts, nil
}

// flattenChart computes local UVs for one chart, falling back to plane
// projection when the method fails, then normalizes to an area-true
// bbox at the origin.
func (u *chartUnwrapper) flattenChart(m *mesh.Mesh, c *Chart, views *scene.Scene) error {
	verts := make([]math.Vec3, len(c.Verts))
	for i, vid := range c.Verts {
		verts[i] = m.Vertices[vid]
	}
	var cam *scene.Camera
	if c.View >= 0 && views != nil {
		cam = views.ByID(int(c.View))
	}

	uv, err := u.flatten(verts, c.TriUV, cam)
	if err != nil || degenerateCount(uv, c.TriUV) > 0 {
		uv, _ = flattenPlane(verts, c.TriUV, nil)
	}
	c.UV = uv
	normalizeChart(m, c)
	return nil
}

// buildCharts groups triangles into connected components sharing a
// dominant best view, then dissolves degenerate charts.
func buildCharts(m *mesh.Mesh, vis scene.Visibility) []*Chart {
	n := len(m.Triangles)
	triView := make([]int32, n)
	for t := 0; t < n; t++ {
		triView[t] = dominantView(m, vis, t)
	}

	adj := m.BuildAdjacency()

	// Connected components over same-view shared edges
	chartOf := make([]int, n)
	for i := range chartOf {
		chartOf[i] = -1
	}
	var groups [][]int
	for t := 0; t < n; t++ {
		if chartOf[t] >= 0 {
			continue
		}
		id := len(groups)
		queue := []int{t}
		chartOf[t] = id
		var tris []int
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			tris = append(tris, cur)
			for _, nb := range adj.Neighbors(cur) {
				if chartOf[nb] < 0 && triView[nb] == triView[t] {
					chartOf[nb] = id
					queue = append(queue, nb)
				}
			}
		}
		sort.Ints(tris)
		groups = append(groups, tris)
	}

	groups = reassignDegenerate(m, adj, groups, chartOf)

	charts := make([]*Chart, 0, len(groups))
	for _, tris := range groups {
		if len(tris) == 0 {
			continue
		}
		c := &Chart{Tris: tris, View: triView[tris[0]]}
		indexChartVerts(m, c)
		charts = append(charts, c)
	}
	return charts
}

// dominantView picks the camera seen by the most of the triangle's
// vertices, ties broken by lowest view id. Returns -1 for triangles
// with no observing view.
func dominantView(m *mesh.Mesh, vis scene.Visibility, t int) int32 {
	tri := m.Triangles[t]
	counts := map[int32]int{}
	for _, vid := range tri {
		for _, view := range vis[vid] {
			counts[view]++
		}
	}
	if len(counts) == 0 {
		return -1
	}
	views := make([]int32, 0, len(counts))
	for view := range counts {
		views = append(views, view)
	}
	sort.Slice(views, func(a, b int) bool { return views[a] < views[b] })

	best := int32(-1)
	bestCount := 0
	for _, view := range views {
		if counts[view] > bestCount {
			best = view
			bestCount = counts[view]
		}
	}
	return best
}

// minChartTris is the smallest connected chart kept as-is; smaller
// groups are degenerate and get reassigned by shared-edge adjacency.
const minChartTris = 3

// reassignDegenerate dissolves charts that are degenerate (zero total
// area or fewer than minChartTris triangles). Their triangles move to
// an adjacent valid chart when one shares an edge; leftovers become
// single-triangle minimal charts.
func reassignDegenerate(m *mesh.Mesh, adj *mesh.Adjacency, groups [][]int, chartOf []int) [][]int {
	valid := make([]bool, len(groups))
	for i, tris := range groups {
		var area float32
		for _, t := range tris {
			area += m.TriArea(t)
		}
		valid[i] = len(tris) >= minChartTris && area > 0
	}

	var out [][]int
	remap := make([]int, len(groups))
	for i, tris := range groups {
		if valid[i] {
			remap[i] = len(out)
			out = append(out, tris)
		} else {
			remap[i] = -1
		}
	}

	for i, tris := range groups {
		if valid[i] {
			continue
		}
		for _, t := range tris {
			target := -1
			for _, nb := range adj.Neighbors(t) {
				g := chartOf[nb]
				if g >= 0 && valid[g] {
					target = remap[g]
					break
				}
			}
			if target >= 0 {
				out[target] = append(out[target], t)
			} else {
				// Zero-area orphans keep a collapsed chart of their
				// own so every triangle still gets an atlas id and
				// resolvable UV slots; they rasterize to nothing.
				out = append(out, []int{t})
			}
		}
	}
	for _, tris := range out {
		sort.Ints(tris)
	}
	return out
}

// indexChartVerts assigns local UV slots to the mesh vertices used by
// the chart, in ascending vertex id order.
func indexChartVerts(m *mesh.Mesh, c *Chart) {
	used := map[int]int{}
	for _, t := range c.Tris {
		for _, vid := range m.Triangles[t] {
			used[vid] = 0
		}
	}
	c.Verts = make([]int, 0, len(used))
	for vid := range used {
		c.Verts = append(c.Verts, vid)
	}
	sort.Ints(c.Verts)
	for i, vid := range c.Verts {
		used[vid] = i
	}

	c.TriUV = make([][3]int, len(c.Tris))
	for i, t := range c.Tris {
		tri := m.Triangles[t]
		c.TriUV[i] = [3]int{used[tri[0]], used[tri[1]], used[tri[2]]}
	}
}

// degenerateCount returns how many chart triangles have (near) zero UV
// area.
func degenerateCount(uv []math.Vec2, tris [][3]int) int {
	n := 0
	for _, tri := range tris {
		a := math.TriArea2D(uv[tri[0]], uv[tri[1]], uv[tri[2]])
		if a > -1e-12 && a < 1e-12 {
			n++
		}
	}
	return n
}

// splitDegenerateUVs carves triangles that remained UV-degenerate out
// of their chart into minimal per-triangle charts flattened on their
// own supporting plane.
func splitDegenerateUVs(m *mesh.Mesh, charts []*Chart, views *scene.Scene) []*Chart {
	var extra []*Chart
	for _, c := range charts {
		bad := map[int]bool{}
		for i, tri := range c.TriUV {
			a := math.TriArea2D(c.UV[tri[0]], c.UV[tri[1]], c.UV[tri[2]])
			if a > -1e-12 && a < 1e-12 && m.TriArea(c.Tris[i]) > 0 {
				bad[i] = true
			}
		}
		if len(bad) == 0 {
			continue
		}
		var keepTris []int
		for i, t := range c.Tris {
			if bad[i] {
				nc := &Chart{Tris: []int{t}, View: c.View}
				indexChartVerts(m, nc)
				verts := make([]math.Vec3, len(nc.Verts))
				for j, vid := range nc.Verts {
					verts[j] = m.Vertices[vid]
				}
				nc.UV, _ = flattenPlane(verts, nc.TriUV, nil)
				normalizeChart(m, nc)
				extra = append(extra, nc)
			} else {
				keepTris = append(keepTris, t)
			}
		}
		c.Tris = keepTris
		indexChartVerts(m, c)
	}
	// Rebuild UVs for charts we carved triangles out of
	for _, c := range charts {
		if len(c.UV) != len(c.Verts) {
			// Slot layout changed; recompute from scratch on the plane
			verts := make([]math.Vec3, len(c.Verts))
			for j, vid := range c.Verts {
				verts[j] = m.Vertices[vid]
			}
			c.UV, _ = flattenPlane(verts, c.TriUV, nil)
			normalizeChart(m, c)
		}
	}

	var out []*Chart
	for _, c := range charts {
		if len(c.Tris) > 0 {
			out = append(out, c)
		}
	}
	return append(out, extra...)
}

// normalizeChart translates local UVs to the origin and scales them so
// UV area equals 3D surface area, recording the bbox size.
func normalizeChart(m *mesh.Mesh, c *Chart) {
	if len(c.UV) == 0 {
		c.W, c.H = 0, 0
		return
	}
	min := c.UV[0]
	max := c.UV[0]
	for _, p := range c.UV[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}

	var area3, areaUV float32
	for i, t := range c.Tris {
		area3 += m.TriArea(t)
		tri := c.TriUV[i]
		a := math.TriArea2D(c.UV[tri[0]], c.UV[tri[1]], c.UV[tri[2]])
		if a < 0 {
			a = -a
		}
		areaUV += a
	}
	scale := float32(1)
	if areaUV > 0 && area3 > 0 {
		scale = math32.Sqrt(area3 / areaUV)
	}

	for i := range c.UV {
		c.UV[i] = c.UV[i].Sub(min).Scale(scale)
	}
	c.W = (max.X - min.X) * scale
	c.H = (max.Y - min.Y) * scale
}
