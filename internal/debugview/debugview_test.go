package debugview

import (
	"bytes"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/overlay"
	"github.com/banshee-data/navmap/internal/telemetry"
)

func TestVelocityChart(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	samples := []telemetry.VelocitySample{
		{At: start, Velocity: telemetry.Velocity{Linear: telemetry.Vector3{X: 0.1}}},
		{At: start.Add(500 * time.Millisecond), Velocity: telemetry.Velocity{Linear: telemetry.Vector3{X: 0.25}, Angular: telemetry.Vector3{Z: -0.4}}},
	}

	page, err := VelocityChart(samples)
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "Robot Velocity")
	assert.Contains(t, html, "linear.x")
	assert.Contains(t, html, "angular.z")
	assert.Contains(t, html, "08:00:00.500")
	assert.Contains(t, html, "samples=2")
}

func TestVelocityChartEmpty(t *testing.T) {
	t.Parallel()
	page, err := VelocityChart(nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(page), "no samples yet"))
}

func TestWallsPlot(t *testing.T) {
	t.Parallel()
	g := grid.New(100, 80, 0.05, grid.Origin{X: -2.5, Y: -2}, grid.CellFree)
	walls := []overlay.WallSegment{
		{X1: -1, Y1: 0, X2: 1, Y2: 0},
		{X1: 0, Y1: -1, X2: 0, Y2: 1},
		{X1: math.NaN(), Y1: 0, X2: 1, Y2: 1},
	}
	pose := &telemetry.Pose{X: 0.5, Y: 0.5}

	data, err := WallsPlot(g, walls, pose)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
	assert.Greater(t, img.Bounds().Dy(), 0)
}

func TestWallsPlotWithoutMap(t *testing.T) {
	t.Parallel()
	data, err := WallsPlot(nil, nil, nil)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}
