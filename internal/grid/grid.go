// Package grid holds the occupancy grid model and the store that owns the
// baseline and working grids.
package grid

import (
	"errors"
	"fmt"
)

// Cell values used by the navigation stack.
const (
	CellUnknown  int8 = -1
	CellFree     int8 = 0
	CellOccupied int8 = 100
)

// ErrInvalidGrid is returned by Validate for malformed grids.
var ErrInvalidGrid = errors.New("invalid occupancy grid")

// Origin is the world position of cell (0,0).
type Origin struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// OccupancyGrid is a row-major 2D occupancy map. Row index is y.
//
// Grids handed to a Store are treated as immutable; use Clone before
// modifying cells.
type OccupancyGrid struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution float64 `json:"resolution"` // meters per cell
	Origin     Origin  `json:"origin"`
	Cells      []int8  `json:"data"`
}

// New allocates a grid filled with fill.
func New(width, height int, resolution float64, origin Origin, fill int8) *OccupancyGrid {
	cells := make([]int8, width*height)
	if fill != 0 {
		for i := range cells {
			cells[i] = fill
		}
	}
	return &OccupancyGrid{
		Width:      width,
		Height:     height,
		Resolution: resolution,
		Origin:     origin,
		Cells:      cells,
	}
}

// Validate checks dimensions, resolution and cell count.
func (g *OccupancyGrid) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil grid", ErrInvalidGrid)
	}
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidGrid, g.Width, g.Height)
	}
	if !(g.Resolution > 0) {
		return fmt.Errorf("%w: resolution %v", ErrInvalidGrid, g.Resolution)
	}
	if len(g.Cells) != g.Width*g.Height {
		return fmt.Errorf("%w: %d cells for %dx%d", ErrInvalidGrid, len(g.Cells), g.Width, g.Height)
	}
	return nil
}

// Idx returns the flat index of (row, col).
func (g *OccupancyGrid) Idx(row, col int) int {
	return row*g.Width + col
}

// At returns the value at (row, col).
func (g *OccupancyGrid) At(row, col int) int8 {
	return g.Cells[g.Idx(row, col)]
}

// InBounds reports whether (row, col) addresses a cell of the grid.
func (g *OccupancyGrid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Height && col >= 0 && col < g.Width
}

// Clone returns a deep copy.
func (g *OccupancyGrid) Clone() *OccupancyGrid {
	if g == nil {
		return nil
	}
	c := *g
	c.Cells = make([]int8, len(g.Cells))
	copy(c.Cells, g.Cells)
	return &c
}

// Equal reports whether two grids have identical metadata and cells.
func (g *OccupancyGrid) Equal(o *OccupancyGrid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.Width != o.Width || g.Height != o.Height || g.Resolution != o.Resolution || g.Origin != o.Origin {
		return false
	}
	if len(g.Cells) != len(o.Cells) {
		return false
	}
	for i := range g.Cells {
		if g.Cells[i] != o.Cells[i] {
			return false
		}
	}
	return true
}

// CountValue returns how many cells hold v.
func (g *OccupancyGrid) CountValue(v int8) int {
	n := 0
	for _, c := range g.Cells {
		if c == v {
			n++
		}
	}
	return n
}
