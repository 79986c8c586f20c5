package robot

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/monitoring"
	"github.com/banshee-data/navmap/internal/telemetry"
)

var logf = monitoring.Component("Robot")

// Feed carries robot updates, one channel per kind.
type Feed struct {
	Grids      chan *grid.OccupancyGrid
	Poses      chan telemetry.Pose
	Velocities chan telemetry.Velocity
	SimPoses   chan telemetry.SimPose
}

// NewFeed returns a Feed whose channels hold up to buf pending updates each.
func NewFeed(buf int) *Feed {
	return &Feed{
		Grids:      make(chan *grid.OccupancyGrid, buf),
		Poses:      make(chan telemetry.Pose, buf),
		Velocities: make(chan telemetry.Velocity, buf),
		SimPoses:   make(chan telemetry.SimPose, buf),
	}
}

// DataSource produces robot updates onto a Feed until ctx is cancelled.
type DataSource interface {
	Stream(ctx context.Context, feed *Feed) error
}

// GridConsumer accepts occupancy grid updates.
type GridConsumer interface {
	OnGridUpdate(g *grid.OccupancyGrid) error
}

// StateConsumer accepts telemetry updates.
type StateConsumer interface {
	UpdatePose(p telemetry.Pose)
	UpdateVelocity(v telemetry.Velocity)
	UpdateSimPose(p telemetry.SimPose)
}

// Ingestor is the single consumer of a Feed. It applies grids to the map
// state and everything else to the telemetry cache.
type Ingestor struct {
	feed  *Feed
	maps  GridConsumer
	state StateConsumer

	grids    atomic.Uint64
	rejected atomic.Uint64
	updates  atomic.Uint64
}

// NewIngestor creates an Ingestor.
func NewIngestor(feed *Feed, maps GridConsumer, state StateConsumer) *Ingestor {
	return &Ingestor{feed: feed, maps: maps, state: state}
}

// Run consumes the feed until ctx is done or every channel is closed.
func (in *Ingestor) Run(ctx context.Context) error {
	grids := in.feed.Grids
	poses := in.feed.Poses
	velocities := in.feed.Velocities
	simPoses := in.feed.SimPoses

	for grids != nil || poses != nil || velocities != nil || simPoses != nil {
		select {
		case <-ctx.Done():
			return nil
		case g, ok := <-grids:
			if !ok {
				grids = nil
				continue
			}
			in.applyGrid(g)
		case p, ok := <-poses:
			if !ok {
				poses = nil
				continue
			}
			in.state.UpdatePose(p)
			in.updates.Add(1)
		case v, ok := <-velocities:
			if !ok {
				velocities = nil
				continue
			}
			in.state.UpdateVelocity(v)
			in.updates.Add(1)
		case p, ok := <-simPoses:
			if !ok {
				simPoses = nil
				continue
			}
			in.state.UpdateSimPose(p)
			in.updates.Add(1)
		}
	}
	logf("feed closed, ingestion stopped")
	return nil
}

func (in *Ingestor) applyGrid(g *grid.OccupancyGrid) {
	if err := in.maps.OnGridUpdate(g); err != nil {
		in.rejected.Add(1)
		logf("rejected grid update: %v", err)
		return
	}
	in.grids.Add(1)
}

// IngestStats counts applied updates.
type IngestStats struct {
	Grids         uint64 `json:"grids"`
	RejectedGrids uint64 `json:"rejected_grids"`
	Telemetry     uint64 `json:"telemetry"`
}

// Stats returns update counters.
func (in *Ingestor) Stats() IngestStats {
	return IngestStats{
		Grids:         in.grids.Load(),
		RejectedGrids: in.rejected.Load(),
		Telemetry:     in.updates.Load(),
	}
}
