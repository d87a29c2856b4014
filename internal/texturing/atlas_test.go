package texturing

import (
	"testing"

	"github.com/meshforge/meshtex/pkg/math"
)

// chartRect returns a chart's padded placement rectangle in atlas
// pixels, accounting for rotation.
func chartRect(c *Chart, padding int) (x0, y0, x1, y1 float32) {
	w, h := c.W*c.Scale, c.H*c.Scale
	if c.Rotated {
		w, h = h, w
	}
	pad := float32(padding)
	x0 = float32(c.OriginX) - pad
	y0 = float32(c.OriginY) - pad
	return x0, y0, x0 + w + 2*pad, y0 + h + 2*pad
}

func testCharts() []*Chart {
	return []*Chart{
		{W: 10, H: 10},
		{W: 4, H: 8},
		{W: 2, H: 12},
		{W: 6, H: 3},
		{W: 1, H: 1},
	}
}

func TestPackPlacesEveryChart(t *testing.T) {
	const side, padding = 64, 2
	charts := testCharts()
	count, shrunk := packCharts(charts, side, padding)
	if count < 1 {
		t.Fatalf("atlas count = %d, want >= 1", count)
	}
	if shrunk != 0 {
		t.Errorf("shrunk charts = %d, want 0", shrunk)
	}

	for i, c := range charts {
		if c.Atlas < 0 || c.Atlas >= count {
			t.Errorf("chart %d atlas %d outside [0,%d)", i, c.Atlas, count)
		}
		if c.Scale <= 0 {
			t.Errorf("chart %d scale = %g, want > 0", i, c.Scale)
		}
		x0, y0, x1, y1 := chartRect(c, padding)
		if x0 < 0 || y0 < 0 || x1 > side || y1 > side {
			t.Errorf("chart %d rect (%g,%g)-(%g,%g) outside %dpx atlas", i, x0, y0, x1, y1, side)
		}
	}

	// Padded rectangles within one atlas never overlap
	for i := range charts {
		for j := i + 1; j < len(charts); j++ {
			if charts[i].Atlas != charts[j].Atlas {
				continue
			}
			ax0, ay0, ax1, ay1 := chartRect(charts[i], padding)
			bx0, by0, bx1, by1 := chartRect(charts[j], padding)
			if ax0 < bx1 && bx0 < ax1 && ay0 < by1 && by0 < ay1 {
				t.Errorf("charts %d and %d overlap in atlas %d", i, j, charts[i].Atlas)
			}
		}
	}
}

func TestPackOversizedChartIsShrunk(t *testing.T) {
	const side, padding = 64, 4
	// A sliver this long overflows the canvas even at the global scale
	big := &Chart{W: 1000, H: 10}
	count, shrunk := packCharts([]*Chart{big}, side, padding)
	if count != 1 {
		t.Fatalf("atlas count = %d, want 1", count)
	}
	if shrunk != 1 || !big.Shrunk {
		t.Errorf("shrunk = %d / %v, want oversized chart flagged", shrunk, big.Shrunk)
	}
	_, _, x1, y1 := chartRect(big, padding)
	if x1 > side || y1 > side {
		t.Errorf("shrunk chart rect extends to (%g,%g), exceeds %dpx atlas", x1, y1, side)
	}
}

func TestPackRotatesTallCharts(t *testing.T) {
	tall := &Chart{W: 2, H: 20}
	wide := &Chart{W: 20, H: 2}
	packCharts([]*Chart{tall, wide}, 64, 2)
	if !tall.Rotated {
		t.Error("tall chart not rotated to fit shelf packing")
	}
	if wide.Rotated {
		t.Error("wide chart rotated needlessly")
	}
}

func TestShelfSurvivesFailedPlacement(t *testing.T) {
	a := &shelfAtlas{}
	if _, _, ok := a.place(40, 10, 64); !ok {
		t.Fatal("first placement rejected")
	}
	// Too tall for the remaining height: must fail without closing
	// the shelf that is still open.
	if _, _, ok := a.place(30, 60, 64); ok {
		t.Fatal("oversized placement accepted")
	}
	x, y, ok := a.place(20, 10, 64)
	if !ok {
		t.Fatal("placement after a failed attempt rejected")
	}
	if x != 40 || y != 0 {
		t.Errorf("placed at (%d,%d), want (40,0) on the open shelf", x, y)
	}
}

func TestPackOpensNewAtlasWhenFull(t *testing.T) {
	// Equal-size square charts at a fill target over one canvas must
	// spill into additional atlases.
	var charts []*Chart
	for i := 0; i < 8; i++ {
		charts = append(charts, &Chart{W: 10, H: 10})
	}
	count, _ := packCharts(charts, 64, 2)
	if count < 2 {
		t.Fatalf("atlas count = %d, want >= 2 for spillover", count)
	}
	used := map[int]bool{}
	for _, c := range charts {
		used[c.Atlas] = true
	}
	for id := 0; id < count; id++ {
		if !used[id] {
			t.Errorf("atlas %d opened but unused", id)
		}
	}
}

func TestPackIsDeterministic(t *testing.T) {
	a := testCharts()
	b := testCharts()
	packCharts(a, 64, 2)
	packCharts(b, 64, 2)
	for i := range a {
		if a[i].Atlas != b[i].Atlas || a[i].OriginX != b[i].OriginX ||
			a[i].OriginY != b[i].OriginY || a[i].Rotated != b[i].Rotated ||
			a[i].Scale != b[i].Scale {
			t.Errorf("chart %d placed differently across identical runs", i)
		}
	}
}

func TestChartPixelMapping(t *testing.T) {
	c := &Chart{W: 10, H: 5, Scale: 2, OriginX: 10, OriginY: 20}

	got := chartPixel(c, math.Vec2{})
	if got.X != 10 || got.Y != 20 {
		t.Errorf("origin maps to %v, want (10,20)", got)
	}
	got = chartPixel(c, math.Vec2{X: 10, Y: 5})
	if got.X != 30 || got.Y != 30 {
		t.Errorf("far corner maps to %v, want (30,30)", got)
	}

	// Rotation swaps the box: local (0,0) lands at the placed box's
	// top-right, the far corner at the bottom-left.
	c.Rotated = true
	got = chartPixel(c, math.Vec2{})
	if got.X != 20 || got.Y != 20 {
		t.Errorf("rotated origin maps to %v, want (20,20)", got)
	}
	got = chartPixel(c, math.Vec2{X: 10, Y: 5})
	if got.X != 10 || got.Y != 40 {
		t.Errorf("rotated far corner maps to %v, want (10,40)", got)
	}
}
