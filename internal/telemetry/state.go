// Package telemetry caches the latest robot state and fans it out to live
// subscribers on a fixed cadence.
package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/navmap/internal/timeutil"
)

var (
	ErrPoseUnavailable     = errors.New("robot pose not available")
	ErrVelocityUnavailable = errors.New("robot velocity not available")
	ErrSimPoseUnavailable  = errors.New("simulated pose not available")
)

// DefaultHistorySize is how many velocity samples State keeps for charts.
const DefaultHistorySize = 240

// Vector3 is a 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a unit orientation quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is the localized robot pose in the map frame.
type Pose struct {
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Z           float64    `json:"z"`
	Orientation Quaternion `json:"orientation"`
}

// Velocity is the commanded robot twist.
type Velocity struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// SimPose is the planar pose reported by the simulator.
type SimPose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Snapshot is a consistent copy of the cached robot state. Nil fields have
// not been reported yet.
type Snapshot struct {
	Pose     *Pose
	Velocity *Velocity
	SimPose  *SimPose
}

// VelocitySample is one timestamped velocity report.
type VelocitySample struct {
	At       time.Time
	Velocity Velocity
}

// State holds the most recent value of every robot stream.
type State struct {
	clock timeutil.Clock

	mu       sync.RWMutex
	pose     *Pose
	velocity *Velocity
	simPose  *SimPose
	history  []VelocitySample
	histSize int
}

// NewState returns an empty State. A nil clock uses the real clock.
func NewState(clock timeutil.Clock) *State {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &State{clock: clock, histSize: DefaultHistorySize}
}

// UpdatePose records the latest localized pose.
func (s *State) UpdatePose(p Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = &p
}

// UpdateVelocity records the latest velocity and appends it to the history.
func (s *State) UpdateVelocity(v Velocity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.velocity = &v
	s.history = append(s.history, VelocitySample{At: s.clock.Now(), Velocity: v})
	if over := len(s.history) - s.histSize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// UpdateSimPose records the latest simulator pose.
func (s *State) UpdateSimPose(p SimPose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simPose = &p
}

// Snapshot copies the cached state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap Snapshot
	if s.pose != nil {
		p := *s.pose
		snap.Pose = &p
	}
	if s.velocity != nil {
		v := *s.velocity
		snap.Velocity = &v
	}
	if s.simPose != nil {
		p := *s.simPose
		snap.SimPose = &p
	}
	return snap
}

// Pose returns the latest pose or ErrPoseUnavailable.
func (s *State) Pose() (Pose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pose == nil {
		return Pose{}, ErrPoseUnavailable
	}
	return *s.pose, nil
}

// Velocity returns the latest velocity or ErrVelocityUnavailable.
func (s *State) Velocity() (Velocity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.velocity == nil {
		return Velocity{}, ErrVelocityUnavailable
	}
	return *s.velocity, nil
}

// SimPose returns the latest simulator pose or ErrSimPoseUnavailable.
func (s *State) SimPose() (SimPose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.simPose == nil {
		return SimPose{}, ErrSimPoseUnavailable
	}
	return *s.simPose, nil
}

// VelocityHistory returns the retained velocity samples, oldest first.
func (s *State) VelocityHistory() []VelocitySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VelocitySample, len(s.history))
	copy(out, s.history)
	return out
}
