package texturing

import (
	"sort"

	"github.com/chewxy/math32"

	"github.com/meshforge/meshtex/pkg/math"
)

// atlasFillTarget is the fraction of one canvas the global texel scale
// aims to fill; charts that still overflow spill into further atlases.
const atlasFillTarget = 0.6

// shelfAtlas tracks the packing cursor of one fixed-size canvas.
type shelfAtlas struct {
	x, y, shelfH int
}

func (a *shelfAtlas) place(w, h, side int) (x, y int, ok bool) {
	if w > side || h > side {
		return 0, 0, false
	}
	px, py, sh := a.x, a.y, a.shelfH
	if px+w > side {
		// Close the shelf and start the next one
		py += sh
		px = 0
		sh = 0
	}
	if py+h > side {
		// Leave the cursor untouched so the open shelf stays usable
		// for smaller charts.
		return 0, 0, false
	}
	x, y = px, py
	a.x = px + w
	a.y = py
	a.shelfH = sh
	if h > a.shelfH {
		a.shelfH = h
	}
	return x, y, true
}

// packCharts assigns every chart an atlas id and a pixel placement
// inside a side x side canvas, reserving a padding margin around each
// chart. Charts are placed largest first into the lowest atlas with
// room; new atlases open on demand. A chart too large to fit a canvas
// even alone is scaled down to fit and flagged, never rejected.
// Returns the number of atlases used and how many charts were shrunk.
func packCharts(charts []*Chart, side, padding int) (atlasCount, shrunk int) {
	if len(charts) == 0 {
		return 0, 0
	}

	// Global texel scale from total chart area
	var total float64
	for _, c := range charts {
		total += float64(c.W) * float64(c.H)
	}
	scale := float32(1)
	if total > 0 {
		scale = math32.Sqrt(float32(atlasFillTarget * float64(side) * float64(side) / total))
	}

	maxContent := side - 2*padding
	if maxContent < 1 {
		maxContent = 1
	}

	type placed struct {
		idx    int
		area   int
		pw, ph int
	}
	items := make([]placed, len(charts))
	for i, c := range charts {
		s := scale
		// Force-shrink a chart whose padded bbox exceeds the canvas
		if c.W*s > float32(maxContent) || c.H*s > float32(maxContent) {
			sw := float32(maxContent) / c.W
			sh := float32(maxContent) / c.H
			if sh < sw {
				sw = sh
			}
			s = sw
			c.Shrunk = true
			shrunk++
		}
		c.Scale = s

		wpx := int(math32.Ceil(c.W * s))
		hpx := int(math32.Ceil(c.H * s))
		if wpx < 1 {
			wpx = 1
		}
		if hpx < 1 {
			hpx = 1
		}
		// Axis-aligned 90-degree rotation only: lay the long side flat
		if hpx > wpx {
			c.Rotated = true
			wpx, hpx = hpx, wpx
		}
		items[i] = placed{idx: i, area: (wpx + 2*padding) * (hpx + 2*padding), pw: wpx + 2*padding, ph: hpx + 2*padding}
	}

	// Classic greedy bin packing: biggest bounding boxes first
	sort.Slice(items, func(a, b int) bool {
		if items[a].area != items[b].area {
			return items[a].area > items[b].area
		}
		return items[a].idx < items[b].idx
	})

	var atlases []*shelfAtlas
	for _, it := range items {
		c := charts[it.idx]
		done := false
		for ai, atlas := range atlases {
			if x, y, ok := atlas.place(it.pw, it.ph, side); ok {
				c.Atlas = ai
				c.OriginX = x + padding
				c.OriginY = y + padding
				done = true
				break
			}
		}
		if !done {
			atlas := &shelfAtlas{}
			x, y, _ := atlas.place(it.pw, it.ph, side)
			atlases = append(atlases, atlas)
			c.Atlas = len(atlases) - 1
			c.OriginX = x + padding
			c.OriginY = y + padding
		}
	}
	return len(atlases), shrunk
}

// chartPixel maps a chart-local UV coordinate to atlas pixel space at
// native (undownscaled) resolution.
func chartPixel(c *Chart, p math.Vec2) math.Vec2 {
	if c.Rotated {
		// 90-degree rotation: (x, y) -> (h - y, x)
		return math.Vec2{
			X: float32(c.OriginX) + (c.H-p.Y)*c.Scale,
			Y: float32(c.OriginY) + p.X*c.Scale,
		}
	}
	return math.Vec2{
		X: float32(c.OriginX) + p.X*c.Scale,
		Y: float32(c.OriginY) + p.Y*c.Scale,
	}
}
