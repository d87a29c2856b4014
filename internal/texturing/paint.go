package texturing

import (
	"errors"
	"image"
	"image/color"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/anthonynsimon/bild/transform"
	"github.com/chewxy/math32"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meshforge/meshtex/internal/config"
	"github.com/meshforge/meshtex/internal/imgcache"
	"github.com/meshforge/meshtex/internal/logger"
	"github.com/meshforge/meshtex/internal/mesh"
	"github.com/meshforge/meshtex/internal/scene"
	"github.com/meshforge/meshtex/pkg/math"
)

// emptyColor marks texels no triangle painted. It survives into the
// output unless dilation or hole filling reaches the pixel.
var emptyColor = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// PaintStats summarizes quality degradations of a painting run. Safe
// for concurrent updates from per-atlas workers.
type PaintStats struct {
	PaintedPixels int64
	UnpaintedTris int64
	MissingViews  int
	ShrunkCharts  int
	AtlasErrors   []error

	mu sync.Mutex
}

// Degraded reports whether the run produced anything less than a full
// quality texture set.
func (s *PaintStats) Degraded() bool {
	return s.UnpaintedTris > 0 || s.MissingViews > 0 || s.ShrunkCharts > 0 || len(s.AtlasErrors) > 0
}

// Painter rasterizes packed charts into atlas images, sampling colors
// from the best source photograph per triangle.
type Painter struct {
	params config.TextureConfig
	cache  *imgcache.Cache
}

// NewPainter creates a painter over the given image cache.
func NewPainter(params config.TextureConfig, cache *imgcache.Cache) *Painter {
	return &Painter{params: params, cache: cache}
}

// workers returns the painting parallelism bound.
func (p *Painter) workers() int {
	if p.params.Workers > 0 {
		return p.params.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// BestView picks the source camera for a triangle: among the views
// gathered from its vertex visibility (union or intersection policy),
// the one with the best combination of viewing angle and projected
// resolution. Ties break to the lowest view id. Returns -1 when no
// view qualifies.
func BestView(m *mesh.Mesh, vis scene.Visibility, views *scene.Scene, t int, policy string) int32 {
	tri := m.Triangles[t]
	var candidates []int32
	if policy == "intersection" {
		candidates = vis.Intersection(tri[0], tri[1], tri[2])
	} else {
		candidates = vis.Union(tri[0], tri[1], tri[2])
	}
	if len(candidates) == 0 {
		return -1
	}

	normal := m.TriNormal(t)
	center := m.TriCenter(t)

	best := int32(-1)
	bestScore := float32(0)
	for _, id := range candidates {
		cam := views.ByID(int(id))
		if cam == nil {
			continue
		}
		u, v, depth := cam.Project(center)
		if depth <= 0 || !cam.InFrame(u, v) {
			continue
		}
		toCam := cam.Center.Vec().Sub(center)
		dist := toCam.Length()
		if dist <= 0 {
			continue
		}
		cos := normal.Dot(toCam.Scale(1 / dist))
		if cos <= 0 {
			continue
		}
		// Angle term weighted by projected resolution: closer views
		// with more pixels on the surface win.
		score := cos * (cam.Focal / dist)
		if score > bestScore {
			best = id
			bestScore = score
		}
	}
	return best
}

// SelectViews computes the best view for every triangle.
func SelectViews(m *mesh.Mesh, vis scene.Visibility, views *scene.Scene, policy string) []int32 {
	out := make([]int32, len(m.Triangles))
	for t := range m.Triangles {
		out[t] = BestView(m, vis, views, t, policy)
	}
	return out
}

// atlasTri is one triangle queued for rasterization into an atlas.
type atlasTri struct {
	tri  int
	view int32
	uv   [3]math.Vec2 // canvas pixel coords at working resolution
}

// PaintAll paints every atlas, in parallel, and returns one image per
// atlas at the final output resolution. A failure inside one atlas is
// recorded in the stats and leaves that slot nil; other atlases still
// complete.
func (p *Painter) PaintAll(m *mesh.Mesh, views *scene.Scene, charts []*Chart, triView []int32, atlasCount int) ([]*image.NRGBA, *PaintStats, error) {
	images := make([]*image.NRGBA, atlasCount)
	stats := &PaintStats{}

	var g errgroup.Group
	g.SetLimit(p.workers())
	for id := 0; id < atlasCount; id++ {
		id := id
		g.Go(func() error {
			img, err := p.PaintAtlas(m, views, charts, triView, id, stats)
			if err != nil {
				// Degraded output beats no output; keep going
				stats.mu.Lock()
				stats.AtlasErrors = append(stats.AtlasErrors, err)
				stats.mu.Unlock()
				logger.Error("atlas painting failed", zap.Int("atlas", id), zap.Error(err))
				return nil
			}
			images[id] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	return images, stats, nil
}

// PaintAtlas paints a single atlas at working resolution, dilates the
// chart borders, optionally fills holes and reduces the canvas to the
// output resolution.
func (p *Painter) PaintAtlas(m *mesh.Mesh, views *scene.Scene, charts []*Chart, triView []int32, atlasID int, stats *PaintStats) (*image.NRGBA, error) {
	side := p.params.Side
	ss := p.params.Downscale
	work := side * ss

	canvas := image.NewNRGBA(image.Rect(0, 0, work, work))
	for i := 0; i < len(canvas.Pix); i += 4 {
		canvas.Pix[i] = emptyColor.R
		canvas.Pix[i+1] = emptyColor.G
		canvas.Pix[i+2] = emptyColor.B
		canvas.Pix[i+3] = emptyColor.A
	}
	mask := make([]uint32, work*work)

	// Gather this atlas's triangles in canvas space, grouped by the
	// view they sample from so each photo is acquired once per group.
	var tris []atlasTri
	for _, c := range charts {
		if c.Atlas != atlasID {
			continue
		}
		for i, t := range c.Tris {
			at := atlasTri{tri: t, view: triView[t]}
			for k := 0; k < 3; k++ {
				at.uv[k] = chartPixel(c, c.UV[c.TriUV[i][k]]).Scale(float32(ss))
			}
			tris = append(tris, at)
		}
	}
	sort.Slice(tris, func(a, b int) bool {
		if tris[a].view != tris[b].view {
			return tris[a].view < tris[b].view
		}
		return tris[a].tri < tris[b].tri
	})

	var unpainted, painted int64
	missing := map[int32]bool{}

	for lo := 0; lo < len(tris); {
		hi := lo
		for hi < len(tris) && tris[hi].view == tris[lo].view {
			hi++
		}
		group := tris[lo:hi]
		lo = hi

		view := group[0].view
		if view < 0 {
			// No observing camera: these stay holes
			unpainted += int64(len(group))
			continue
		}
		photo, release, err := p.cache.Acquire(int(view))
		if err != nil {
			if errors.Is(err, imgcache.ErrDecode) || errors.Is(err, imgcache.ErrUnknownView) {
				// View unavailable: a local quality loss, not a failure
				logger.Warn("source view unavailable",
					zap.Int32("view", view), zap.Int("atlas", atlasID), zap.Error(err))
				missing[view] = true
				unpainted += int64(len(group))
				continue
			}
			return nil, err
		}

		cam := views.ByID(int(view))
		var g errgroup.Group
		g.SetLimit(p.workers())
		chunk := (len(group) + p.workers() - 1) / p.workers()
		if chunk < 1 {
			chunk = 1
		}
		for start := 0; start < len(group); start += chunk {
			end := start + chunk
			if end > len(group) {
				end = len(group)
			}
			batch := group[start:end]
			g.Go(func() error {
				var n int64
				for _, at := range batch {
					n += rasterize(canvas, mask, work, m, cam, photo, at)
				}
				atomic.AddInt64(&painted, n)
				return nil
			})
		}
		g.Wait()
		release()
	}

	stats.mu.Lock()
	stats.PaintedPixels += painted
	stats.UnpaintedTris += unpainted
	stats.MissingViews += len(missing)
	stats.mu.Unlock()

	// Dilation waits for every triangle: painted and unpainted regions
	// are final before border colors propagate.
	dilate(canvas, mask, work, p.params.Padding*ss, p.params.FillHoles)

	if ss > 1 {
		resized := transform.Resize(canvas, side, side, transform.Box)
		out := image.NewNRGBA(image.Rect(0, 0, side, side))
		copy(out.Pix, resized.Pix)
		return out, nil
	}
	return canvas, nil
}

// rasterize paints one triangle's footprint, claiming pixels through
// the shared mask so concurrent triangles never write the same texel.
// Returns the number of pixels painted.
func rasterize(canvas *image.NRGBA, mask []uint32, work int, m *mesh.Mesh, cam *scene.Camera, photo *image.NRGBA, at atlasTri) int64 {
	a3, b3, c3 := m.TriVerts(at.tri)
	ua, ub, uc := at.uv[0], at.uv[1], at.uv[2]

	minX := int(math32.Floor(math32.Min(ua.X, math32.Min(ub.X, uc.X))))
	maxX := int(math32.Ceil(math32.Max(ua.X, math32.Max(ub.X, uc.X))))
	minY := int(math32.Floor(math32.Min(ua.Y, math32.Min(ub.Y, uc.Y))))
	maxY := int(math32.Ceil(math32.Max(ua.Y, math32.Max(ub.Y, uc.Y))))
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > work-1 {
		maxX = work - 1
	}
	if maxY > work-1 {
		maxY = work - 1
	}

	var painted int64
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			pt := math.Vec2{X: float32(x) + 0.5, Y: float32(y) + 0.5}
			bc := math.Barycentric(ua, ub, uc, pt)
			if bc.X < 0 || bc.Y < 0 || bc.Z < 0 {
				continue
			}

			// Back-project to the surface and into the photo
			p3 := a3.Scale(bc.X).Add(b3.Scale(bc.Y)).Add(c3.Scale(bc.Z))
			u, v, depth := cam.Project(p3)
			if depth <= 0 || !cam.InFrame(u, v) {
				continue
			}
			col := sampleBilinear(photo, u, v)

			idx := y*work + x
			if !atomic.CompareAndSwapUint32(&mask[idx], 0, 1) {
				continue // a neighboring triangle claimed this texel
			}
			off := canvas.PixOffset(x, y)
			canvas.Pix[off] = col.R
			canvas.Pix[off+1] = col.G
			canvas.Pix[off+2] = col.B
			canvas.Pix[off+3] = 255
			painted++
		}
	}
	return painted
}

// sampleBilinear samples the photo at fractional pixel coordinates.
func sampleBilinear(img *image.NRGBA, u, v float32) color.NRGBA {
	x0 := int(math32.Floor(u - 0.5))
	y0 := int(math32.Floor(v - 0.5))
	fx := (u - 0.5) - float32(x0)
	fy := (v - 0.5) - float32(y0)

	w := img.Rect.Dx()
	h := img.Rect.Dy()
	clamp := func(x, lo, hi int) int {
		if x < lo {
			return lo
		}
		if x > hi {
			return hi
		}
		return x
	}
	x1 := clamp(x0+1, 0, w-1)
	y1 := clamp(y0+1, 0, h-1)
	x0 = clamp(x0, 0, w-1)
	y0 = clamp(y0, 0, h-1)

	p00 := img.NRGBAAt(x0, y0)
	p10 := img.NRGBAAt(x1, y0)
	p01 := img.NRGBAAt(x0, y1)
	p11 := img.NRGBAAt(x1, y1)

	lerp := func(a, b uint8, t float32) float32 {
		return float32(a) + (float32(b)-float32(a))*t
	}
	mix := func(a, b, c, d uint8) uint8 {
		top := lerp(a, b, fx)
		bot := lerp(c, d, fx)
		return uint8(top + (bot-top)*fy + 0.5)
	}
	return color.NRGBA{
		R: mix(p00.R, p10.R, p01.R, p11.R),
		G: mix(p00.G, p10.G, p01.G, p11.G),
		B: mix(p00.B, p10.B, p01.B, p11.B),
		A: 255,
	}
}

// dilate propagates painted colors outward by up to radius pixels
// (multi-source BFS over the 4-neighborhood). With fill set, the
// propagation keeps going until no unpainted pixel remains, inpainting
// interior holes.
func dilate(canvas *image.NRGBA, mask []uint32, work, radius int, fill bool) {
	if radius <= 0 && !fill {
		return
	}
	type px struct{ x, y int }
	var frontier []px

	// Seed with unpainted pixels that touch a painted one
	for y := 0; y < work; y++ {
		for x := 0; x < work; x++ {
			if mask[y*work+x] != 0 {
				continue
			}
			if hasPaintedNeighbor(mask, work, x, y) {
				frontier = append(frontier, px{x, y})
			}
		}
	}

	round := 0
	for len(frontier) > 0 {
		if !fill && round >= radius {
			break
		}
		round++

		// Color each frontier pixel from its first painted neighbor,
		// deferring mask updates so this round only reads the previous
		// generation.
		for _, p := range frontier {
			col := paintedNeighborColor(canvas, mask, work, p.x, p.y)
			off := canvas.PixOffset(p.x, p.y)
			canvas.Pix[off] = col.R
			canvas.Pix[off+1] = col.G
			canvas.Pix[off+2] = col.B
			canvas.Pix[off+3] = col.A
		}
		for _, p := range frontier {
			mask[p.y*work+p.x] = 1
		}

		var next []px
		seen := make(map[int]bool)
		for _, p := range frontier {
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := p.x+d[0], p.y+d[1]
				if nx < 0 || ny < 0 || nx >= work || ny >= work {
					continue
				}
				idx := ny*work + nx
				if mask[idx] == 0 && !seen[idx] {
					seen[idx] = true
					next = append(next, px{nx, ny})
				}
			}
		}
		frontier = next
	}
}

func hasPaintedNeighbor(mask []uint32, work, x, y int) bool {
	for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= work || ny >= work {
			continue
		}
		if mask[ny*work+nx] != 0 {
			return true
		}
	}
	return false
}

func paintedNeighborColor(canvas *image.NRGBA, mask []uint32, work, x, y int) color.NRGBA {
	for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= work || ny >= work {
			continue
		}
		if mask[ny*work+nx] != 0 {
			return canvas.NRGBAAt(nx, ny)
		}
	}
	return emptyColor
}
