// Package robot connects the service to the robot middleware: typed update
// streams flow in through a Feed, operator commands flow out through a
// CommandSink.
package robot

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/telemetry"
	"github.com/banshee-data/navmap/internal/timeutil"
)

// MapFrame is the reference frame for every published pose.
const MapFrame = "map"

// PoseCommand is a stamped planar pose in the map frame, used for both the
// initial pose estimate and navigation goals.
type PoseCommand struct {
	FrameID     string               `json:"frame_id"`
	Stamp       time.Time            `json:"stamp"`
	Position    telemetry.Vector3    `json:"position"`
	Orientation telemetry.Quaternion `json:"orientation"`
}

// CommandSink receives operator commands destined for the navigation stack.
type CommandSink interface {
	PublishInitialPose(ctx context.Context, cmd PoseCommand) error
	PublishNavGoal(ctx context.Context, cmd PoseCommand) error
	PublishGrid(ctx context.Context, g *grid.OccupancyGrid) error
}

// NewPoseCommand builds a PoseCommand at (x, y) facing theta radians,
// stamped with clock's current time.
func NewPoseCommand(clock timeutil.Clock, x, y, theta float64) PoseCommand {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return PoseCommand{
		FrameID:     MapFrame,
		Stamp:       clock.Now(),
		Position:    telemetry.Vector3{X: x, Y: y},
		Orientation: YawQuaternion(theta),
	}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// YawQuaternion returns the unit quaternion for a rotation of theta radians
// about the z axis.
func YawQuaternion(theta float64) telemetry.Quaternion {
	q := quat.Exp(quat.Number{Kmag: theta / 2})
	return telemetry.Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// Yaw extracts the rotation about the z axis from q, in radians, within
// [-pi, pi]. q may also carry roll and pitch; those are ignored, which the
// axis-angle form from quat.Log cannot do for a tilted orientation.
func Yaw(q telemetry.Quaternion) float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}
