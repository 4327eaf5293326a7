package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper/grippertest"
)

func TestFanout_DeliversToAllSinks(t *testing.T) {
	f := NewFanout(zaptest.NewLogger(t))
	a := &grippertest.RecordingTelemetry{}
	b := &grippertest.RecordingTelemetry{}
	f.Add("a", a)
	f.Add("b", b)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"a", "b"}, f.Names())

	require.NoError(t, f.PublishJointState(gripper.JointState{Name: "finger_joint", Position: 0.02}))
	require.NoError(t, f.PublishGripperStatus(gripper.GripperStatus{Name: "gripper"}))

	assert.Len(t, a.JointStates(), 1)
	assert.Len(t, b.JointStates(), 1)
	assert.Len(t, a.GripperStatuses(), 1)
	assert.Len(t, b.GripperStatuses(), 1)
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	f := NewFanout(zaptest.NewLogger(t))
	broken := &grippertest.RecordingTelemetry{Err: errors.New("broker down")}
	healthy := &grippertest.RecordingTelemetry{}
	f.Add("broken", broken)
	f.Add("healthy", healthy)

	err := f.PublishJointState(gripper.JointState{Name: "finger_joint"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, healthy.JointStates(), 1)
}

func TestFanout_Empty(t *testing.T) {
	f := NewFanout(zaptest.NewLogger(t))
	assert.NoError(t, f.PublishGripperStatus(gripper.GripperStatus{}))
}
