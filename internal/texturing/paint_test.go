package texturing

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/meshforge/meshtex/internal/imgcache"
	"github.com/meshforge/meshtex/internal/mesh"
	"github.com/meshforge/meshtex/internal/scene"
	"github.com/meshforge/meshtex/pkg/math"
)

// singleTriMesh is one triangle in the z=0 plane facing the test
// cameras.
func singleTriMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices:  []math.Vec3{{X: 0.2, Y: 0.2}, {X: 0.8, Y: 0.8}, {X: 0.8, Y: 0.2}},
		Triangles: [][3]int{{0, 1, 2}},
	}
}

// prepare unwraps and packs a mesh so the painter has placed charts.
func prepare(t *testing.T, m *mesh.Mesh, vis scene.Visibility, views *scene.Scene, side, padding int) ([]*Chart, int) {
	t.Helper()
	uw, err := NewUnwrapper(UnwrapBasic)
	if err != nil {
		t.Fatal(err)
	}
	charts, err := uw.Unwrap(m, vis, views)
	if err != nil {
		t.Fatal(err)
	}
	count, _ := packCharts(charts, side, padding)
	return charts, count
}

func TestBestViewPrefersCloserCamera(t *testing.T) {
	dir := t.TempDir()
	views := paintScene(t, dir) // view 0 at distance 5, view 1 at 6
	m := gridMesh(2, 2)
	vis := uniformVis(len(m.Vertices), 0, 1)

	for tri := range m.Triangles {
		if got := BestView(m, vis, views, tri, "union"); got != 0 {
			t.Errorf("triangle %d best view = %d, want closer view 0", tri, got)
		}
	}
}

func TestBestViewTieBreaksToLowestID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v.png")
	writeSolidPNG(t, path, 64, 64, red)

	// Identical cameras under different ids score identically
	cam := scene.Camera{ImagePath: path, Width: 64, Height: 64,
		Focal: 50, Cx: 32, Cy: 32, Center: scene.Vec3Row{0.5, 0.5, -5}}
	a, b := cam, cam
	a.ID, b.ID = 3, 1
	views, err := scene.New([]scene.Camera{a, b})
	if err != nil {
		t.Fatal(err)
	}

	m := singleTriMesh()
	vis := uniformVis(3, 1, 3)
	if got := BestView(m, vis, views, 0, "union"); got != 1 {
		t.Errorf("best view = %d, want lowest id 1 on tie", got)
	}
}

func TestBestViewRejectsBackfacingAndUnseen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v.png")
	writeSolidPNG(t, path, 64, 64, red)

	// Camera behind the surface: triangle normal faces away
	behind := scene.Camera{ID: 0, ImagePath: path, Width: 64, Height: 64,
		Focal: 50, Cx: 32, Cy: 32, Center: scene.Vec3Row{0.5, 0.5, 5}}
	views, err := scene.New([]scene.Camera{behind})
	if err != nil {
		t.Fatal(err)
	}

	m := singleTriMesh()
	if got := BestView(m, uniformVis(3, 0), views, 0, "union"); got != -1 {
		t.Errorf("backfacing best view = %d, want -1", got)
	}
	if got := BestView(m, scene.EmptyVisibility(3), views, 0, "union"); got != -1 {
		t.Errorf("unseen best view = %d, want -1", got)
	}
}

func TestBestViewIntersectionPolicy(t *testing.T) {
	dir := t.TempDir()
	views := paintScene(t, dir)
	m := singleTriMesh()

	// Only view 1 observes all three vertices
	vis := scene.Visibility{{0, 1}, {1}, {0, 1}}
	if got := BestView(m, vis, views, 0, "intersection"); got != 1 {
		t.Errorf("intersection best view = %d, want 1", got)
	}
	// Union still admits the closer view 0
	if got := BestView(m, vis, views, 0, "union"); got != 0 {
		t.Errorf("union best view = %d, want 0", got)
	}

	// Disjoint vertex visibility leaves no intersection candidate
	vis = scene.Visibility{{0}, {1}, {0}}
	if got := BestView(m, vis, views, 0, "intersection"); got != -1 {
		t.Errorf("disjoint intersection best view = %d, want -1", got)
	}
}

func TestPaintSingleTriangle(t *testing.T) {
	dir := t.TempDir()
	views := paintScene(t, dir)
	m := singleTriMesh()
	vis := uniformVis(3, 0, 1)

	cfg := testConfig()
	charts, count := prepare(t, m, vis, views, cfg.Texture.Side, cfg.Texture.Padding)
	if count != 1 {
		t.Fatalf("atlas count = %d, want 1", count)
	}

	cache := imgcache.New(views, 4)
	painter := NewPainter(cfg.Texture, cache)
	triView := SelectViews(m, vis, views, "union")
	images, stats, err := painter.PaintAll(m, views, charts, triView, count)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.AtlasErrors) != 0 {
		t.Fatalf("atlas errors: %v", stats.AtlasErrors)
	}
	if stats.PaintedPixels == 0 {
		t.Fatal("no pixels painted")
	}
	if stats.UnpaintedTris != 0 {
		t.Errorf("unpainted triangles = %d, want 0", stats.UnpaintedTris)
	}

	img := images[0]
	redCount := 0
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			switch got := img.NRGBAAt(x, y); got {
			case red:
				redCount++
			case emptyColor:
			default:
				t.Fatalf("pixel (%d,%d) = %v, want red or empty", x, y, got)
			}
		}
	}
	if redCount == 0 {
		t.Fatal("no red pixels in atlas")
	}
	// Dilation extends past the rasterized footprint
	if int64(redCount) <= stats.PaintedPixels {
		t.Errorf("red pixels = %d, want > %d rasterized (dilated border)", redCount, stats.PaintedPixels)
	}
	// Far corner stays in the empty color
	if got := img.NRGBAAt(63, 63); got != emptyColor {
		t.Errorf("corner pixel = %v, want empty color", got)
	}
}

func TestPaintFillHolesCoversCanvas(t *testing.T) {
	dir := t.TempDir()
	views := paintScene(t, dir)
	m := singleTriMesh()
	vis := uniformVis(3, 0, 1)

	cfg := testConfig()
	cfg.Texture.FillHoles = true
	charts, count := prepare(t, m, vis, views, cfg.Texture.Side, cfg.Texture.Padding)

	painter := NewPainter(cfg.Texture, imgcache.New(views, 4))
	images, _, err := painter.PaintAll(m, views, charts, SelectViews(m, vis, views, "union"), count)
	if err != nil {
		t.Fatal(err)
	}
	img := images[0]
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if got := img.NRGBAAt(x, y); got != red {
				t.Fatalf("pixel (%d,%d) = %v, want red everywhere with fillHoles", x, y, got)
			}
		}
	}
}

func TestPaintSupersampledDownscale(t *testing.T) {
	dir := t.TempDir()
	views := paintScene(t, dir)
	m := singleTriMesh()
	vis := uniformVis(3, 0, 1)

	cfg := testConfig()
	cfg.Texture.Downscale = 2
	charts, count := prepare(t, m, vis, views, cfg.Texture.Side, cfg.Texture.Padding)

	painter := NewPainter(cfg.Texture, imgcache.New(views, 4))
	images, _, err := painter.PaintAll(m, views, charts, SelectViews(m, vis, views, "union"), count)
	if err != nil {
		t.Fatal(err)
	}
	img := images[0]
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Fatalf("output bounds = %v, want final 64x64 resolution", img.Bounds())
	}
	found := false
	for y := 0; y < 64 && !found; y++ {
		for x := 0; x < 64; x++ {
			c := img.NRGBAAt(x, y)
			if c.R > 100 && c.G < 50 && c.B < 50 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("no red content survived the downscale")
	}
}

func TestPaintMissingViewDegradesQuietly(t *testing.T) {
	dir := t.TempDir()
	views := paintScene(t, dir)
	m := singleTriMesh()
	vis := uniformVis(3, 0) // only the view we are about to break

	if err := os.Remove(views.ByID(0).ImagePath); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	charts, count := prepare(t, m, vis, views, cfg.Texture.Side, cfg.Texture.Padding)
	painter := NewPainter(cfg.Texture, imgcache.New(views, 4))
	images, stats, err := painter.PaintAll(m, views, charts, SelectViews(m, vis, views, "union"), count)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MissingViews != 1 {
		t.Errorf("missing views = %d, want 1", stats.MissingViews)
	}
	if !stats.Degraded() {
		t.Error("stats not flagged degraded")
	}
	img := images[0]
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if got := img.NRGBAAt(x, y); got != emptyColor {
				t.Fatalf("pixel (%d,%d) = %v, want empty color", x, y, got)
			}
		}
	}
}

func TestSampleBilinear(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 100, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{R: 200, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 100, A: 255})

	// Dead center averages all four texels
	got := sampleBilinear(img, 1, 1)
	if got.R != 100 {
		t.Errorf("center sample R = %d, want 100", got.R)
	}
	// Texel centers sample exactly
	if got := sampleBilinear(img, 0.5, 0.5); got.R != 0 {
		t.Errorf("texel center R = %d, want 0", got.R)
	}
	if got := sampleBilinear(img, 1.5, 1.5); got.R != 100 {
		t.Errorf("texel center R = %d, want 100", got.R)
	}
}
