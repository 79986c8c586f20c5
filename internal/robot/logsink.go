package robot

import (
	"context"

	"github.com/banshee-data/navmap/internal/grid"
)

// LogSink is a CommandSink that only logs. It stands in for the middleware
// bridge when none is attached.
type LogSink struct{}

func (LogSink) PublishInitialPose(ctx context.Context, cmd PoseCommand) error {
	logf("initial pose: (%.3f, %.3f) yaw=%.3f frame=%s", cmd.Position.X, cmd.Position.Y, Yaw(cmd.Orientation), cmd.FrameID)
	return nil
}

func (LogSink) PublishNavGoal(ctx context.Context, cmd PoseCommand) error {
	logf("navigation goal: (%.3f, %.3f) yaw=%.3f frame=%s", cmd.Position.X, cmd.Position.Y, Yaw(cmd.Orientation), cmd.FrameID)
	return nil
}

func (LogSink) PublishGrid(ctx context.Context, g *grid.OccupancyGrid) error {
	logf("corrected grid: %dx%d, %d occupied cells", g.Width, g.Height, g.CountValue(grid.CellOccupied))
	return nil
}
