package robot

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/navmap/internal/grid"
	"github.com/banshee-data/navmap/internal/telemetry"
	"github.com/banshee-data/navmap/internal/timeutil"
)

// SimulatorConfig describes the simulated room and robot.
type SimulatorConfig struct {
	Width      int
	Height     int
	Resolution float64
	Origin     grid.Origin
	Interval   time.Duration // time between pose updates
	Speed      float64       // m/s towards the current goal
	Clock      timeutil.Clock
}

// DefaultSimulatorConfig is a 10m x 8m room at 5cm resolution.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Width:      200,
		Height:     160,
		Resolution: 0.05,
		Origin:     grid.Origin{X: -5, Y: -4},
		Interval:   100 * time.Millisecond,
		Speed:      0.5,
	}
}

// Simulator is a self-contained robot used in dev mode. It is both a
// DataSource and a CommandSink: initial poses teleport the robot, goals
// drive it in a straight line, and published grids are echoed back onto the
// grid stream the way a latched map topic would.
type Simulator struct {
	cfg SimulatorConfig

	mu    sync.Mutex
	x, y  float64
	theta float64
	goal  *telemetry.Vector3

	published chan *grid.OccupancyGrid
}

// NewSimulator creates a Simulator with the robot at the map centre.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	def := DefaultSimulatorConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Resolution <= 0 {
		cfg.Width, cfg.Height, cfg.Resolution, cfg.Origin = def.Width, def.Height, def.Resolution, def.Origin
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Simulator{
		cfg:       cfg,
		x:         cfg.Origin.X + float64(cfg.Width)*cfg.Resolution/2,
		y:         cfg.Origin.Y + float64(cfg.Height)*cfg.Resolution/2,
		published: make(chan *grid.OccupancyGrid, 1),
	}
}

// RoomGrid returns the simulated map: free space bounded by a one-cell
// occupied border.
func (s *Simulator) RoomGrid() *grid.OccupancyGrid {
	g := grid.New(s.cfg.Width, s.cfg.Height, s.cfg.Resolution, s.cfg.Origin, grid.CellFree)
	for col := 0; col < g.Width; col++ {
		g.Cells[g.Idx(0, col)] = grid.CellOccupied
		g.Cells[g.Idx(g.Height-1, col)] = grid.CellOccupied
	}
	for row := 0; row < g.Height; row++ {
		g.Cells[g.Idx(row, 0)] = grid.CellOccupied
		g.Cells[g.Idx(row, g.Width-1)] = grid.CellOccupied
	}
	return g
}

// Stream emits the room grid once, then a pose, velocity and simulated pose
// every interval. Grids passed to PublishGrid are forwarded as they arrive.
func (s *Simulator) Stream(ctx context.Context, feed *Feed) error {
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if !send(ctx, feed.Grids, s.RoomGrid()) {
		return nil
	}
	logf("simulator streaming %dx%d map every %v", s.cfg.Width, s.cfg.Height, s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case g := <-s.published:
			if !send(ctx, feed.Grids, g) {
				return nil
			}
		case <-ticker.C():
			pose, vel, sim := s.Step(s.cfg.Interval)
			if !send(ctx, feed.Poses, pose) || !send(ctx, feed.Velocities, vel) || !send(ctx, feed.SimPoses, sim) {
				return nil
			}
		}
	}
}

func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Step advances the robot by dt and returns its new state.
func (s *Simulator) Step(dt time.Duration) (telemetry.Pose, telemetry.Velocity, telemetry.SimPose) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var vel telemetry.Velocity
	secs := dt.Seconds()
	if s.goal != nil && secs > 0 {
		dx, dy := s.goal.X-s.x, s.goal.Y-s.y
		dist := math.Hypot(dx, dy)
		heading := math.Atan2(dy, dx)
		if dist > 0 {
			vel.Angular.Z = normalizeAngle(heading-s.theta) / secs
			s.theta = heading
		}
		step := math.Min(dist, s.cfg.Speed*secs)
		s.x += step * math.Cos(heading)
		s.y += step * math.Sin(heading)
		vel.Linear.X = step / secs
		if step >= dist {
			s.x, s.y = s.goal.X, s.goal.Y
			s.goal = nil
			logf("simulator reached goal (%.2f, %.2f)", s.x, s.y)
		}
	}
	return s.stateLocked(), vel, telemetry.SimPose{X: s.x, Y: s.y, Theta: s.theta}
}

func (s *Simulator) stateLocked() telemetry.Pose {
	return telemetry.Pose{X: s.x, Y: s.y, Orientation: YawQuaternion(s.theta)}
}

// PublishInitialPose teleports the robot and cancels any goal.
func (s *Simulator) PublishInitialPose(ctx context.Context, cmd PoseCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x, s.y = cmd.Position.X, cmd.Position.Y
	s.theta = Yaw(cmd.Orientation)
	s.goal = nil
	return nil
}

// PublishNavGoal sets the position the robot drives towards.
func (s *Simulator) PublishNavGoal(ctx context.Context, cmd PoseCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal := cmd.Position
	s.goal = &goal
	return nil
}

// PublishGrid queues g for re-emission on the grid stream. Only the latest
// unsent grid is kept.
func (s *Simulator) PublishGrid(ctx context.Context, g *grid.OccupancyGrid) error {
	for {
		select {
		case s.published <- g:
			return nil
		default:
		}
		select {
		case <-s.published:
		default:
		}
	}
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
