// Package mapstate owns the map lifecycle: baseline capture, wall overlays,
// and the re-export and re-publication that follow every change.
//
// The working grid is always recomputed from the baseline and the complete
// active wall set, so applying the same walls twice yields identical grids
// and clearing walls restores the baseline exactly.
package mapstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/navmap/internal/export"
	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/monitoring"
	"github.com/banshee-data/navmap/internal/overlay"
	"github.com/banshee-data/navmap/internal/telemetry"
)

var logf = monitoring.Component("MapState")

// ErrMapUnavailable is returned when an operation needs a grid and none has
// been received yet.
var ErrMapUnavailable = errors.New("map data not available")

// Exporter persists map artifacts.
type Exporter interface {
	WriteAll(g *grid.OccupancyGrid) error
	WriteImage(g *grid.OccupancyGrid) error
	ImagePath() string
}

// GridPublisher hands the corrected grid to the navigation stack.
type GridPublisher interface {
	PublishGrid(ctx context.Context, g *grid.OccupancyGrid) error
}

// Notifier tells notify-stream clients that the map changed.
type Notifier interface {
	Notify(ctx context.Context, msg []byte) int
}

// Options configures a Manager. Nil collaborators are skipped.
type Options struct {
	Thickness int
	Exporter  Exporter
	Publisher GridPublisher
	Notifier  Notifier
}

// MapInfo describes the working grid.
type MapInfo struct {
	Origin     grid.Origin `json:"origin"`
	Resolution float64     `json:"resolution"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	ImagePath  string      `json:"map_image"`
}

// Manager is the only writer of its grid.Store. Grid updates and wall
// changes are serialized so the working grid always corresponds to one
// (baseline, walls) pair.
type Manager struct {
	store *grid.Store
	opts  Options

	mu    sync.Mutex
	walls []overlay.WallSegment

	// exportMu orders artifact writes and publications so the last one
	// always reflects the latest working grid.
	exportMu sync.Mutex
}

// NewManager creates a Manager over store.
func NewManager(store *grid.Store, opts Options) *Manager {
	if opts.Thickness < 0 {
		opts.Thickness = overlay.DefaultThickness
	}
	return &Manager{store: store, opts: opts}
}

// OnGridUpdate makes g the working grid and captures it as the baseline if
// it is the first grid ever received. The manager keeps its own copy of g.
func (m *Manager) OnGridUpdate(g *grid.OccupancyGrid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	g = g.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.ReplaceWorking(g)
	if m.store.CaptureBaselineIfAbsent(g) {
		logf("baseline captured: %dx%d @ %.3fm origin=(%.3f, %.3f)",
			g.Width, g.Height, g.Resolution, g.Origin.X, g.Origin.Y)
	}
	return nil
}

// SetWalls replaces the active wall set and recomputes the working grid
// from the baseline. Export, publication and notification follow the state
// change; their failures are logged and do not undo it.
func (m *Manager) SetWalls(ctx context.Context, walls []overlay.WallSegment) error {
	m.mu.Lock()
	baseline := m.store.Baseline()
	if baseline == nil {
		m.mu.Unlock()
		return ErrMapUnavailable
	}
	m.walls = append([]overlay.WallSegment(nil), walls...)
	working := overlay.Rasterize(baseline, m.walls, m.opts.Thickness)
	m.store.ReplaceWorking(working)
	n := len(m.walls)
	m.mu.Unlock()

	logf("applied %d walls (%d occupied cells)", n, working.CountValue(grid.CellOccupied))
	m.afterChange(ctx, n)
	return nil
}

// ClearWalls drops every wall and restores the baseline as the working grid.
func (m *Manager) ClearWalls(ctx context.Context) error {
	m.mu.Lock()
	baseline := m.store.Baseline()
	if baseline == nil {
		m.mu.Unlock()
		return ErrMapUnavailable
	}
	m.walls = nil
	m.store.ReplaceWorking(baseline)
	m.mu.Unlock()

	logf("cleared all walls and restored the baseline map")
	m.afterChange(ctx, 0)
	return nil
}

// afterChange exports and publishes the latest working grid, then notifies
// subscribers.
func (m *Manager) afterChange(ctx context.Context, walls int) {
	m.exportMu.Lock()
	g := m.store.Snapshot()
	if m.opts.Exporter != nil {
		if err := m.opts.Exporter.WriteAll(g); err != nil {
			logf("export failed: %v", err)
		}
	}
	if m.opts.Publisher != nil {
		if err := m.opts.Publisher.PublishGrid(ctx, g); err != nil {
			logf("publishing corrected grid failed: %v", err)
		}
	}
	m.exportMu.Unlock()

	if m.opts.Notifier != nil {
		msg, err := telemetry.EncodeEvent(telemetry.Event{Type: telemetry.EventMapUpdated, Walls: walls})
		if err != nil {
			logf("encoding map update event: %v", err)
			return
		}
		m.opts.Notifier.Notify(ctx, msg)
	}
}

// MapInfo describes the working grid, or returns ErrMapUnavailable.
func (m *Manager) MapInfo() (MapInfo, error) {
	g := m.store.Snapshot()
	if g == nil {
		return MapInfo{}, ErrMapUnavailable
	}
	info := MapInfo{
		Origin:     g.Origin,
		Resolution: g.Resolution,
		Width:      g.Width,
		Height:     g.Height,
	}
	if m.opts.Exporter != nil {
		info.ImagePath = m.opts.Exporter.ImagePath()
	}
	return info, nil
}

// RenderImage encodes the working grid as a PNG. The image file is
// refreshed as a side effect; a failed write is logged only.
func (m *Manager) RenderImage() ([]byte, error) {
	g := m.store.Snapshot()
	if g == nil {
		return nil, ErrMapUnavailable
	}
	data, err := export.RasterImage(g)
	if err != nil {
		return nil, fmt.Errorf("render map image: %w", err)
	}
	if m.opts.Exporter != nil {
		m.exportMu.Lock()
		if err := m.opts.Exporter.WriteImage(m.store.Snapshot()); err != nil {
			logf("writing map image failed: %v", err)
		}
		m.exportMu.Unlock()
	}
	return data, nil
}

// RenderBitmap encodes the working grid as a PGM.
func (m *Manager) RenderBitmap() ([]byte, error) {
	g := m.store.Snapshot()
	if g == nil {
		return nil, ErrMapUnavailable
	}
	return export.PortableBitmap(g), nil
}

// Walls returns a copy of the active wall set.
func (m *Manager) Walls() []overlay.WallSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]overlay.WallSegment{}, m.walls...)
}

// Working returns the working grid snapshot.
func (m *Manager) Working() (*grid.OccupancyGrid, error) {
	if g := m.store.Snapshot(); g != nil {
		return g, nil
	}
	return nil, ErrMapUnavailable
}

// Baseline returns the baseline grid.
func (m *Manager) Baseline() (*grid.OccupancyGrid, error) {
	if g := m.store.Baseline(); g != nil {
		return g, nil
	}
	return nil, ErrMapUnavailable
}

// Status summarizes the map state for debugging.
type Status struct {
	HasBaseline   bool   `json:"has_baseline"`
	HasWorking    bool   `json:"has_working"`
	ActiveWalls   int    `json:"active_walls"`
	OccupiedCells int    `json:"occupied_cells"`
	Generation    uint64 `json:"generation"`
}

// Status reports the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	n := len(m.walls)
	m.mu.Unlock()

	st := Status{
		HasBaseline: m.store.Baseline() != nil,
		ActiveWalls: n,
		Generation:  m.store.Generation(),
	}
	if g := m.store.Snapshot(); g != nil {
		st.HasWorking = true
		st.OccupiedCells = g.CountValue(grid.CellOccupied)
	}
	return st
}
