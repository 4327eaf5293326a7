package gripper

import "time"

// MotionGoal is a caller supplied motion request in physical units.
type MotionGoal struct {
	Position float64 `json:"position"` // opening width, m
	Velocity float64 `json:"velocity"` // m/s
	Force    float64 `json:"force"`    // N
}

// OutcomeStatus is how a goal ended.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomePreempted OutcomeStatus = "preempted"
	OutcomeNotReady  OutcomeStatus = "not_ready"
)

// MotionOutcome is the terminal result of one goal execution.
// A stall is reported as Succeeded with Stalled set.
type MotionOutcome struct {
	Status        OutcomeStatus `json:"status"`
	FinalPosition float64       `json:"final_position"`
	Stalled       bool          `json:"stalled"`
	ReachedGoal   bool          `json:"reached_goal"`
}

// Succeeded is true for reached and stalled goals alike.
func (o MotionOutcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}

// Feedback is emitted once per control tick while a goal runs.
type Feedback struct {
	Position    float64 `json:"position"`
	Velocity    float64 `json:"velocity"`
	Stalled     bool    `json:"stalled"`
	ReachedGoal bool    `json:"reached_goal"`
}

// KinematicEstimate is derived from a single status sample.
type KinematicEstimate struct {
	Position float64   `json:"position"`
	Velocity float64   `json:"velocity"`
	Time     time.Time `json:"time"`
}

// JointState is the joint-like telemetry sample published per status.
type JointState struct {
	Name     string    `json:"name"`
	Position float64   `json:"position"`
	Velocity float64   `json:"velocity"`
	Effort   float64   `json:"effort"`
	Stamp    time.Time `json:"stamp"`
}

// GripperStatus is the condensed status published alongside joint states.
type GripperStatus struct {
	Name      string    `json:"name"`
	Activated bool      `json:"activated"`
	Position  float64   `json:"position"`
	Velocity  float64   `json:"velocity"`
	Stalled   bool      `json:"stalled"`
	Moving    bool      `json:"moving"`
	Fault     uint8     `json:"fault"`
	Stamp     time.Time `json:"stamp"`
}

// TelemetrySink receives best-effort telemetry. Errors are logged by the
// caller and never stop the control loop.
type TelemetrySink interface {
	PublishJointState(js JointState) error
	PublishGripperStatus(gs GripperStatus) error
}
