// Package export renders occupancy grids into a viewable PNG and a portable
// graymap (PGM) for map servers. Encoding is pure; Writer persists the
// results.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/banshee-data/navmap/internal/grid"
)

// Raster colours.
var (
	ColorUnknown  = color.Gray{Y: 255}
	ColorFree     = color.Gray{Y: 200}
	ColorOccupied = color.Gray{Y: 0}
)

// CellColor maps a cell value to its raster colour. Occupancy probabilities
// between free and occupied shade linearly from ColorFree to black; any other
// value renders as unknown.
func CellColor(v int8) color.Gray {
	switch {
	case v == grid.CellFree:
		return ColorFree
	case v == grid.CellOccupied:
		return ColorOccupied
	case v > 0 && v < grid.CellOccupied:
		shade := float64(ColorFree.Y) * (1 - float64(v)/float64(grid.CellOccupied))
		return color.Gray{Y: uint8(math.Round(shade))}
	default:
		return ColorUnknown
	}
}

// Image builds the raster image for g: one pixel per cell, grid row 0 at the
// top, mirrored left-right.
func Image(g *grid.OccupancyGrid) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			img.Set(g.Width-1-col, row, CellColor(g.At(row, col)))
		}
	}
	return img
}

// RasterImage encodes g as a PNG.
func RasterImage(g *grid.OccupancyGrid) ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Image(g)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// BitmapValue converts one cell to its PGM byte:
// 255 - round((cell+1) * 127.5 / 100), clamped to [0, 255].
func BitmapValue(v int8) byte {
	out := 255 - math.Round((float64(v)+1)*127.5/100)
	if out < 0 {
		return 0
	}
	if out > 255 {
		return 255
	}
	return byte(out)
}

// PortableBitmap encodes g as a binary PGM (P5) with max value 255. Cells are
// written in grid order.
func PortableBitmap(g *grid.OccupancyGrid) []byte {
	header := fmt.Sprintf("P5\n%d %d\n255\n", g.Width, g.Height)
	out := make([]byte, 0, len(header)+len(g.Cells))
	out = append(out, header...)
	for _, c := range g.Cells {
		out = append(out, BitmapValue(c))
	}
	return out
}
