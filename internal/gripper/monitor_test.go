package gripper_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

func TestMonitor_OnStatusForwardDifference(t *testing.T) {
	mon := gripper.NewMonitor(gripper.NewConverter(gripper.DefaultCalibration()))
	var state gripper.KinematicState
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := mon.OnStatus(&state, gripper.DeviceStatus{Position: 230}, t0)
	assert.InDelta(t, 0.0, first.Position, 1e-12)
	assert.Equal(t, 0.0, first.Velocity, "first sample has no history")
	assert.Equal(t, t0, first.Time)

	second := mon.OnStatus(&state, gripper.DeviceStatus{Position: 0}, t0.Add(500*time.Millisecond))
	assert.InDelta(t, 0.085, second.Position, 1e-12)
	assert.InDelta(t, 0.17, second.Velocity, 1e-9)

	third := mon.OnStatus(&state, gripper.DeviceStatus{Position: 0}, t0.Add(time.Second))
	assert.InDelta(t, 0.0, third.Velocity, 1e-12)
}

func TestMonitor_DuplicateTimestampStaysFinite(t *testing.T) {
	mon := gripper.NewMonitor(gripper.NewConverter(gripper.DefaultCalibration()))
	var state gripper.KinematicState
	now := time.Now()

	mon.OnStatus(&state, gripper.DeviceStatus{Position: 100}, now)
	est := mon.OnStatus(&state, gripper.DeviceStatus{Position: 90}, now)

	assert.False(t, math.IsInf(est.Velocity, 0))
	assert.False(t, math.IsNaN(est.Velocity))
	assert.Greater(t, est.Velocity, 0.0, "opening motion has positive velocity")
}

func TestMonitor_IndependentStates(t *testing.T) {
	mon := gripper.NewMonitor(gripper.NewConverter(gripper.DefaultCalibration()))
	var a, b gripper.KinematicState
	now := time.Now()

	mon.OnStatus(&a, gripper.DeviceStatus{Position: 0}, now)
	est := mon.OnStatus(&b, gripper.DeviceStatus{Position: 100}, now.Add(time.Second))

	assert.Equal(t, 0.0, est.Velocity, "b has its own history")
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  gripper.DeviceStatus
		ready   bool
		stalled bool
		moving  bool
	}{
		{"reset", gripper.DeviceStatus{}, false, false, false},
		{"activation in progress", gripper.DeviceStatus{Activated: 1, ActivationStatus: 1}, false, false, false},
		{"ready idle", gripper.DeviceStatus{Activated: 1, ActivationStatus: 3, Object: gripper.ObjectAtPosition}, true, false, false},
		{"ready moving", gripper.DeviceStatus{Activated: 1, ActivationStatus: 3, GoTo: 1}, true, false, true},
		{"object while opening", gripper.DeviceStatus{Activated: 1, ActivationStatus: 3, GoTo: 1, Object: gripper.ObjectDetectedOpening}, true, true, false},
		{"object while closing", gripper.DeviceStatus{Activated: 1, ActivationStatus: 3, GoTo: 1, Object: gripper.ObjectDetectedClosing}, true, true, false},
		{"complete bits without gACT", gripper.DeviceStatus{ActivationStatus: 3}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ready, gripper.IsReady(tt.status), "ready")
			assert.Equal(t, tt.stalled, gripper.IsStalled(tt.status), "stalled")
			assert.Equal(t, tt.moving, gripper.IsMoving(tt.status), "moving")
		})
	}
}

func TestReachedGoal(t *testing.T) {
	assert.True(t, gripper.ReachedGoal(0.04, 0.0415, gripper.DefaultGoalTolerance))
	assert.False(t, gripper.ReachedGoal(0.04, 0.044, gripper.DefaultGoalTolerance))
	assert.False(t, gripper.ReachedGoal(0, 0.003, 0.003), "tolerance is exclusive")
}
