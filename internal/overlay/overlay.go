// Package overlay rasterizes operator-defined wall segments onto an occupancy
// grid.
//
// Walls are given in world coordinates. Each endpoint is transformed into
// grid index space, the segment is thickened into a four-vertex polygon and
// every cell whose centre lies inside or on that polygon is marked occupied.
// Cells outside the grid are never written, so geometry that leaves the map
// is clipped rather than rejected.
package overlay

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/navmap/internal/grid"
)

// DefaultThickness is the half-width of a wall, in cells.
const DefaultThickness = 1

// WallSegment is a virtual no-go line in world coordinates.
type WallSegment struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Finite reports whether every coordinate is a finite number.
func (w WallSegment) Finite() bool {
	for _, v := range [...]float64{w.X1, w.Y1, w.X2, w.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// WorldToGrid maps a world position to (col, row) grid indices. The result
// may lie outside the grid.
func WorldToGrid(g *grid.OccupancyGrid, x, y float64) (col, row int) {
	col = toIndex((x - g.Origin.X) / g.Resolution)
	row = toIndex((y - g.Origin.Y) / g.Resolution)
	return col, row
}

// maxIndex bounds converted indices so far-away geometry cannot overflow int.
const maxIndex = 1 << 30

func toIndex(v float64) int {
	v = math.Floor(v)
	if v > maxIndex {
		return maxIndex
	}
	if v < -maxIndex {
		return -maxIndex
	}
	return int(v)
}

// Rasterize returns a copy of base with every wall drawn as occupied cells.
// base is never modified. thickness values below zero are treated as zero.
func Rasterize(base *grid.OccupancyGrid, walls []WallSegment, thickness int) *grid.OccupancyGrid {
	out := base.Clone()
	if thickness < 0 {
		thickness = 0
	}
	for _, w := range walls {
		if !w.Finite() {
			continue
		}
		fill(out, Footprint(base, w, thickness))
	}
	return out
}

// Footprint returns the thickened polygon of w in grid index space, as a
// closed ring with x = column and y = row.
func Footprint(g *grid.OccupancyGrid, w WallSegment, thickness int) orb.Ring {
	c1, r1 := WorldToGrid(g, w.X1, w.Y1)
	c2, r2 := WorldToGrid(g, w.X2, w.Y2)
	t := float64(thickness)

	p1 := orb.Point{float64(c1), float64(r1)}
	p2 := orb.Point{float64(c2), float64(r2)}

	// displace along the axis the segment varies least in
	var off orb.Point
	if abs(c2-c1) >= abs(r2-r1) {
		off = orb.Point{0, t}
	} else {
		off = orb.Point{t, 0}
	}

	return orb.Ring{
		{p1[0] - off[0], p1[1] - off[1]},
		{p2[0] - off[0], p2[1] - off[1]},
		{p2[0] + off[0], p2[1] + off[1]},
		{p1[0] + off[0], p1[1] + off[1]},
		{p1[0] - off[0], p1[1] - off[1]},
	}
}

// fill writes CellOccupied to every in-grid cell covered by ring.
func fill(g *grid.OccupancyGrid, ring orb.Ring) {
	b := ring.Bound()
	extent := orb.Bound{
		Min: orb.Point{0, 0},
		Max: orb.Point{float64(g.Width - 1), float64(g.Height - 1)},
	}
	if !b.Intersects(extent) {
		return
	}

	colMin := clamp(int(math.Ceil(b.Min[0])), 0, g.Width-1)
	colMax := clamp(int(math.Floor(b.Max[0])), 0, g.Width-1)
	rowMin := clamp(int(math.Ceil(b.Min[1])), 0, g.Height-1)
	rowMax := clamp(int(math.Floor(b.Max[1])), 0, g.Height-1)

	for row := rowMin; row <= rowMax; row++ {
		for col := colMin; col <= colMax; col++ {
			if covers(ring, b, orb.Point{float64(col), float64(row)}) {
				g.Cells[g.Idx(row, col)] = grid.CellOccupied
			}
		}
	}
}

// covers reports whether p lies inside or on the boundary of the convex ring.
// Degenerate rings (zero-length segments, zero thickness) collapse to a line
// or a point and still cover the points on them.
func covers(ring orb.Ring, b orb.Bound, p orb.Point) bool {
	if !b.Contains(p) {
		return false
	}
	var pos, neg bool
	for i := 0; i < len(ring)-1; i++ {
		a, e := ring[i], ring[i+1]
		cross := (e[0]-a[0])*(p[1]-a[1]) - (e[1]-a[1])*(p[0]-a[0])
		switch {
		case cross > 0:
			pos = true
		case cross < 0:
			neg = true
		}
		if pos && neg {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
