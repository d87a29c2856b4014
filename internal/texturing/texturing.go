// Package texturing turns a reconstructed surface mesh plus per-vertex
// camera visibility into a packed UV layout and painted texture
// atlases. The pipeline runs unwrap, pack, paint and save as explicit
// stages over a shared state machine.
package texturing

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/bmp"

	"github.com/meshforge/meshtex/internal/config"
	"github.com/meshforge/meshtex/internal/imgcache"
	"github.com/meshforge/meshtex/internal/logger"
	"github.com/meshforge/meshtex/internal/mesh"
	"github.com/meshforge/meshtex/internal/scene"
	"github.com/meshforge/meshtex/pkg/formats"
	"github.com/meshforge/meshtex/pkg/math"
)

// State tracks pipeline progress. Stages must run in order.
type State int

const (
	StateEmpty State = iota
	StateMeshLoaded
	StateUnwrapped
	StatePacked
	StatePainted
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateMeshLoaded:
		return "mesh-loaded"
	case StateUnwrapped:
		return "unwrapped"
	case StatePacked:
		return "packed"
	case StatePainted:
		return "painted"
	case StateSaved:
		return "saved"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// remapTolFactor scales the mesh bounding-box diagonal into the maximum
// nearest-point distance accepted during visibility remapping.
const remapTolFactor = 1e-4

// Texturing owns the mesh, visibility and all derived UV/atlas/paint
// state for one texturing run.
type Texturing struct {
	params   config.TextureConfig
	cacheCap int

	state State
	mesh  *mesh.Mesh
	vis   scene.Visibility

	charts     []*Chart
	atlasCount int
	shrunk     int

	// Global output tables, valid once packed. UVs are stored in native
	// atlas pixel coordinates with the origin at the top-left.
	uvPix    []math.Vec2
	triUV    [][3]int
	triAtlas []int32

	triView []int32
	images  []*image.NRGBA
	stats   *PaintStats
}

// New creates an empty texturing run with validated parameters.
func New(cfg *config.Config) (*Texturing, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseUnwrapMethod(cfg.Texture.Method); err != nil {
		return nil, err
	}
	return &Texturing{
		params:   cfg.Texture,
		cacheCap: cfg.Cache.Capacity,
		state:    StateEmpty,
	}, nil
}

// State returns the current pipeline stage.
func (t *Texturing) State() State { return t.state }

// Mesh returns the loaded mesh, nil before loading.
func (t *Texturing) Mesh() *mesh.Mesh { return t.mesh }

// Visibility returns the current per-vertex visibility.
func (t *Texturing) Visibility() scene.Visibility { return t.vis }

// AtlasCount returns the number of atlases, valid once packed.
func (t *Texturing) AtlasCount() int { return t.atlasCount }

// Images returns the painted atlas images, valid once painted. A slot
// is nil when that atlas failed to paint.
func (t *Texturing) Images() []*image.NRGBA { return t.images }

// Stats returns the paint run summary, valid once painted.
func (t *Texturing) Stats() *PaintStats { return t.stats }

// HasUVs reports whether a packed UV layout exists.
func (t *Texturing) HasUVs() bool { return t.state >= StatePacked }

func (t *Texturing) require(min State, op string) error {
	if t.state < min {
		return fmt.Errorf("%w: %s requires state %s, current %s",
			ErrPrecondition, op, min, t.state)
	}
	return nil
}

// setMesh installs a mesh and visibility and discards derived state.
func (t *Texturing) setMesh(m *mesh.Mesh, vis scene.Visibility) {
	t.mesh = m
	t.vis = vis
	t.charts = nil
	t.atlasCount = 0
	t.shrunk = 0
	t.uvPix = nil
	t.triUV = nil
	t.triAtlas = nil
	t.triView = nil
	t.images = nil
	t.stats = nil
	t.state = StateMeshLoaded
}

// LoadFromReconstruction loads a binary mesh payload and its companion
// binary visibility payload.
func (t *Texturing) LoadFromReconstruction(meshPath, visPath string) error {
	mb, err := formats.ParseMeshFile(meshPath)
	if err != nil {
		return fmt.Errorf("load mesh %s: %w", meshPath, err)
	}
	vb, err := formats.ParseVisibilityFile(visPath)
	if err != nil {
		return fmt.Errorf("load visibility %s: %w", visPath, err)
	}
	m := mesh.FromData(mb)
	vis := scene.VisibilityFromData(vb)
	if len(vis) < len(m.Vertices) {
		// Trailing vertices without an entry get empty sets
		padded := scene.EmptyVisibility(len(m.Vertices))
		copy(padded, vis)
		vis = padded
	}
	t.setMesh(m, vis)
	logger.Info("mesh loaded",
		zap.String("path", meshPath),
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("triangles", len(m.Triangles)))
	return nil
}

// LoadOBJ loads an externally produced mesh from the text interchange
// format. Such meshes carry no visibility, so every vertex starts with
// an empty view set. flipNormals reverses face winding on load.
func (t *Texturing) LoadOBJ(path string, flipNormals bool) error {
	obj, err := formats.ParseOBJFile(path, flipNormals)
	if err != nil {
		return fmt.Errorf("load obj %s: %w", path, err)
	}
	m := mesh.FromOBJ(obj)
	if len(m.Triangles) == 0 {
		return fmt.Errorf("%w: %s has no triangles", ErrInvalidParameter, path)
	}
	t.setMesh(m, scene.EmptyVisibility(len(m.Vertices)))
	logger.Info("obj mesh loaded",
		zap.String("path", path),
		zap.Int("vertices", len(m.Vertices)),
		zap.Bool("flip_normals", flipNormals))
	return nil
}

// ReplaceMesh swaps in a new mesh, carrying visibility over from the
// old one by nearest-point correspondence. The topologies may differ;
// new vertices with no old vertex within tolerance get an empty view
// set. Derived UV/atlas/paint state is discarded.
func (t *Texturing) ReplaceMesh(path string, flipNormals bool) error {
	if err := t.require(StateMeshLoaded, "ReplaceMesh"); err != nil {
		return err
	}
	obj, err := formats.ParseOBJFile(path, flipNormals)
	if err != nil {
		return fmt.Errorf("replace mesh %s: %w", path, err)
	}
	next := mesh.FromOBJ(obj)
	if len(next.Triangles) == 0 {
		return fmt.Errorf("%w: %s has no triangles", ErrInvalidParameter, path)
	}

	vis := t.remapVisibility(next)
	t.setMesh(next, vis)
	logger.Info("mesh replaced",
		zap.String("path", path),
		zap.Int("vertices", len(next.Vertices)))
	return nil
}

// remapVisibility carries the current visibility onto the vertices of
// next by nearest-point lookup within a small fraction of the bounding
// box diagonal.
func (t *Texturing) remapVisibility(next *mesh.Mesh) scene.Visibility {
	min, max := t.mesh.Bounds()
	diag := max.Sub(min).Length()
	tol := diag * remapTolFactor
	if tol <= 0 {
		tol = 1e-6
	}

	grid := mesh.NewPointGrid(t.mesh.Vertices, tol)
	vis := make(scene.Visibility, len(next.Vertices))
	unmatched := 0
	for i, p := range next.Vertices {
		if j, ok := grid.Nearest(p, tol); ok {
			views := make([]int32, len(t.vis[j]))
			copy(views, t.vis[j])
			vis[i] = views
		} else {
			vis[i] = []int32{}
			unmatched++
		}
	}
	if unmatched > 0 {
		logger.Warn("visibility remap left vertices unobserved",
			zap.Int("unmatched", unmatched),
			zap.Int("total", len(next.Vertices)))
	}
	return vis
}

// Unwrap builds UV charts from the mesh and its visibility using the
// configured method. views may be nil for the plane-projection paths.
func (t *Texturing) Unwrap(views *scene.Scene) error {
	if err := t.require(StateMeshLoaded, "Unwrap"); err != nil {
		return err
	}
	method, err := ParseUnwrapMethod(t.params.Method)
	if err != nil {
		return err
	}
	uw, err := NewUnwrapper(method)
	if err != nil {
		return err
	}
	start := time.Now()
	charts, err := uw.Unwrap(t.mesh, t.vis, views)
	if err != nil {
		return err
	}
	t.charts = charts
	t.state = StateUnwrapped
	logger.Info("mesh unwrapped",
		zap.String("method", method.String()),
		zap.Int("charts", len(charts)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Pack places every chart into a fixed-size square atlas, opening new
// atlases as needed, and builds the global per-triangle UV tables.
func (t *Texturing) Pack() error {
	if err := t.require(StateUnwrapped, "Pack"); err != nil {
		return err
	}
	count, shrunk := packCharts(t.charts, t.params.Side, t.params.Padding)
	t.atlasCount = count
	t.shrunk = shrunk
	if shrunk > 0 {
		logger.Warn("oversized charts scaled down to fit",
			zap.Int("charts", shrunk), zap.Int("side", t.params.Side))
	}

	// Flatten chart-local UVs into the global tables. Coordinates are
	// native atlas pixels; the OBJ writer converts on save.
	t.uvPix = t.uvPix[:0]
	t.triUV = make([][3]int, len(t.mesh.Triangles))
	t.triAtlas = make([]int32, len(t.mesh.Triangles))
	for _, c := range t.charts {
		base := len(t.uvPix)
		for _, p := range c.UV {
			t.uvPix = append(t.uvPix, chartPixel(c, p))
		}
		for i, tri := range c.Tris {
			for k := 0; k < 3; k++ {
				t.triUV[tri][k] = base + c.TriUV[i][k]
			}
			t.triAtlas[tri] = int32(c.Atlas)
		}
	}

	t.state = StatePacked
	logger.Info("charts packed",
		zap.Int("atlases", count),
		zap.Int("uv_coords", len(t.uvPix)))
	return nil
}

// Paint selects a source view per triangle and rasterizes every atlas.
// Per-atlas failures degrade the output instead of aborting the run.
func (t *Texturing) Paint(views *scene.Scene) error {
	if err := t.require(StatePacked, "Paint"); err != nil {
		return err
	}
	start := time.Now()
	t.triView = SelectViews(t.mesh, t.vis, views, t.params.BestView)

	cache := imgcache.New(views, t.cacheCap)
	defer cache.Clear()
	painter := NewPainter(t.params, cache)
	images, stats, err := painter.PaintAll(t.mesh, views, t.charts, t.triView, t.atlasCount)
	if err != nil {
		return err
	}
	stats.ShrunkCharts = t.shrunk
	t.images = images
	t.stats = stats
	t.state = StatePainted

	hits, misses := cache.Stats()
	logger.Info("atlases painted",
		zap.Int("atlases", t.atlasCount),
		zap.Int64("painted_pixels", stats.PaintedPixels),
		zap.Int64("unpainted_triangles", stats.UnpaintedTris),
		zap.Int("missing_views", stats.MissingViews),
		zap.Int("failed_atlases", len(stats.AtlasErrors)),
		zap.Int("cache_hits", hits),
		zap.Int("cache_misses", misses),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// PaintAtlas paints one atlas in isolation, without advancing the
// pipeline state. Useful for previews and for repainting a single
// degraded atlas.
func (t *Texturing) PaintAtlas(views *scene.Scene, atlasID int) (*image.NRGBA, error) {
	if err := t.require(StatePacked, "PaintAtlas"); err != nil {
		return nil, err
	}
	if atlasID < 0 || atlasID >= t.atlasCount {
		return nil, fmt.Errorf("%w: atlas id %d out of range [0,%d)",
			ErrInvalidParameter, atlasID, t.atlasCount)
	}
	triView := t.triView
	if triView == nil {
		triView = SelectViews(t.mesh, t.vis, views, t.params.BestView)
	}
	cache := imgcache.New(views, t.cacheCap)
	defer cache.Clear()
	painter := NewPainter(t.params, cache)
	return painter.PaintAtlas(t.mesh, views, t.charts, triView, atlasID, &PaintStats{})
}

// Save writes the textured bundle: <basename>.obj, <basename>.mtl and
// one texture image per atlas in the configured raster format.
func (t *Texturing) Save(dir, basename string) error {
	if err := t.require(StatePainted, "Save"); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	ext := t.params.Format
	materials := make([]formats.ObjMaterial, t.atlasCount)
	for i := range materials {
		materials[i] = formats.ObjMaterial{
			Name:  fmt.Sprintf("TextureAtlas_%04d", i),
			MapKd: fmt.Sprintf("texture_%04d.%s", i, ext),
		}
	}

	obj := t.buildOBJ(basename, materials)
	objPath := filepath.Join(dir, basename+".obj")
	if err := formats.WriteOBJFile(objPath, obj); err != nil {
		return fmt.Errorf("write obj: %w", err)
	}
	mtlPath := filepath.Join(dir, basename+".mtl")
	if err := formats.WriteMTLFile(mtlPath, materials); err != nil {
		return fmt.Errorf("write mtl: %w", err)
	}
	for i, img := range t.images {
		if img == nil {
			logger.Warn("skipping failed atlas image", zap.Int("atlas", i))
			continue
		}
		path := filepath.Join(dir, materials[i].MapKd)
		if err := writeImage(path, img, ext); err != nil {
			return fmt.Errorf("write atlas %d: %w", i, err)
		}
	}

	t.state = StateSaved
	logger.Info("textured mesh saved",
		zap.String("dir", dir),
		zap.String("basename", basename),
		zap.Int("atlases", t.atlasCount))
	return nil
}

// buildOBJ assembles the output geometry: positions, atlas UVs in
// normalized texture space, smooth per-vertex normals in their own
// table, and one face group per atlas material.
func (t *Texturing) buildOBJ(basename string, materials []formats.ObjMaterial) *formats.OBJ {
	side := float32(t.params.Side)
	names := make([]string, len(materials))
	for i, m := range materials {
		names[i] = m.Name
	}
	obj := &formats.OBJ{
		MTLLib:    basename + ".mtl",
		Materials: names,
	}

	obj.Positions = make([][3]float32, len(t.mesh.Vertices))
	for i, v := range t.mesh.Vertices {
		obj.Positions[i] = [3]float32{v.X, v.Y, v.Z}
	}

	// Atlas pixels use a top-left origin; OBJ texture space grows
	// upward from the bottom-left.
	obj.TexCoords = make([][2]float32, len(t.uvPix))
	for i, p := range t.uvPix {
		obj.TexCoords[i] = [2]float32{p.X / side, 1 - p.Y/side}
	}

	normals := t.mesh.SmoothNormals()
	obj.Normals = make([][3]float32, len(normals))
	for i, n := range normals {
		obj.Normals[i] = [3]float32{n.X, n.Y, n.Z}
	}

	obj.Faces = make([]formats.OBJFace, len(t.mesh.Triangles))
	for i, tri := range t.mesh.Triangles {
		f := formats.OBJFace{Material: int(t.triAtlas[i])}
		for k := 0; k < 3; k++ {
			f.Pos[k] = int32(tri[k])
			f.Tex[k] = int32(t.triUV[i][k])
			f.Norm[k] = int32(tri[k])
		}
		obj.Faces[i] = f
	}
	return obj
}

func writeImage(path string, img *image.NRGBA, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case "png":
		err = png.Encode(f, img)
	case "jpeg", "jpg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	case "bmp":
		err = bmp.Encode(f, img)
	default:
		err = fmt.Errorf("%w: image format %q", ErrInvalidParameter, format)
	}
	return err
}
