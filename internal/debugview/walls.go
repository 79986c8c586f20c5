package debugview

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/overlay"
	"github.com/banshee-data/navmap/internal/telemetry"
)

var (
	extentColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	wallColor   = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	robotColor  = color.RGBA{R: 30, G: 90, B: 200, A: 255}
)

// WallsPlot renders a PNG of the map extent in world coordinates with the
// active walls drawn on top and, when known, the robot position.
func WallsPlot(g *grid.OccupancyGrid, walls []overlay.WallSegment, pose *telemetry.Pose) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Active walls (%d)", len(walls))
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	if g != nil {
		x0, y0 := g.Origin.X, g.Origin.Y
		x1 := x0 + float64(g.Width)*g.Resolution
		y1 := y0 + float64(g.Height)*g.Resolution
		extent, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}})
		if err != nil {
			return nil, fmt.Errorf("map extent: %w", err)
		}
		extent.Color = extentColor
		extent.Width = vg.Points(1)
		extent.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(extent)
		p.Legend.Add("map", extent)
	}

	for i, w := range walls {
		if !w.Finite() {
			continue
		}
		l, err := plotter.NewLine(plotter.XYs{{X: w.X1, Y: w.Y1}, {X: w.X2, Y: w.Y2}})
		if err != nil {
			return nil, fmt.Errorf("wall %d: %w", i, err)
		}
		l.Color = wallColor
		l.Width = vg.Points(2)
		p.Add(l)
		if i == 0 {
			p.Legend.Add("walls", l)
		}
	}

	if pose != nil {
		s, err := plotter.NewScatter(plotter.XYs{{X: pose.X, Y: pose.Y}})
		if err != nil {
			return nil, fmt.Errorf("robot marker: %w", err)
		}
		s.Color = robotColor
		s.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add("robot", s)
	}

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("walls plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode walls plot: %w", err)
	}
	return buf.Bytes(), nil
}
