package gripper

import (
	"math"
	"time"
)

// DefaultGoalTolerance is the distance, in meters, under which a goal
// position counts as reached.
const DefaultGoalTolerance = 0.003

// minDerivativeStep keeps duplicate timestamps from dividing by zero.
const minDerivativeStep = 1e-8

// KinematicState is the single-slot history needed for the forward
// difference. The caller owns it and passes it to every OnStatus call.
type KinematicState struct {
	lastPosition float64
	lastTime     time.Time
	primed       bool
}

// Monitor interprets raw device status.
type Monitor struct {
	conv *Converter
}

// NewMonitor reads positions through conv.
func NewMonitor(conv *Converter) *Monitor {
	return &Monitor{conv: conv}
}

// OnStatus derives position and velocity from a new sample and advances
// state. The velocity is an unfiltered forward difference; consumers
// have to tolerate the noise. The first sample reports zero velocity.
func (m *Monitor) OnStatus(state *KinematicState, status DeviceStatus, now time.Time) KinematicEstimate {
	pos := m.conv.CountsToPosition(status.Position)

	var vel float64
	if state.primed {
		dt := math.Max(now.Sub(state.lastTime).Seconds(), minDerivativeStep)
		vel = (pos - state.lastPosition) / dt
	}

	state.lastPosition = pos
	state.lastTime = now
	state.primed = true

	return KinematicEstimate{
		Position: pos,
		Velocity: vel,
		Time:     now,
	}
}

// Position returns the opening width reported by status.
func (m *Monitor) Position(status DeviceStatus) float64 {
	return m.conv.CountsToPosition(status.Position)
}

// IsReady reports whether activation has completed.
func IsReady(status DeviceStatus) bool {
	return status.ActivationStatus == activationComplete && status.Activated == 1
}

// IsStalled reports whether the fingers stopped on an object.
func IsStalled(status DeviceStatus) bool {
	return status.Object == ObjectDetectedOpening || status.Object == ObjectDetectedClosing
}

// IsMoving reports a go-to in progress with no object detected.
func IsMoving(status DeviceStatus) bool {
	return status.GoTo == 1 && status.Object == ObjectNone
}

// ReachedGoal compares positions in meters.
func ReachedGoal(goal, current, tol float64) bool {
	return math.Abs(goal-current) < tol
}
