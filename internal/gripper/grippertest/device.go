package grippertest

import (
	"sync"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

// ReadyStatus is an activated gripper holding its position at count.
func ReadyStatus(count uint8) gripper.DeviceStatus {
	return gripper.DeviceStatus{
		Activated:        1,
		GoTo:             1,
		ActivationStatus: 3,
		Object:           gripper.ObjectNone,
		Position:         count,
	}
}

// ScriptedSource answers the n-th Latest call (starting at zero) with
// Script(n).
type ScriptedSource struct {
	Script func(call int) gripper.DeviceStatus

	mu    sync.Mutex
	calls int
}

func (s *ScriptedSource) Latest() gripper.DeviceStatus {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.mu.Unlock()
	return s.Script(n)
}

func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// RecordingSink stores every published command. OnPublish, when set, is
// called with the 1-based count after each publish.
type RecordingSink struct {
	OnPublish func(n int, cmd gripper.Command)
	Err       error

	mu       sync.Mutex
	commands []gripper.Command
}

func (s *RecordingSink) Publish(cmd gripper.Command) error {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	n := len(s.commands)
	hook := s.OnPublish
	s.mu.Unlock()

	if hook != nil {
		hook(n, cmd)
	}
	return s.Err
}

func (s *RecordingSink) Commands() []gripper.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gripper.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Last returns the most recent command and whether one was published.
func (s *RecordingSink) Last() (gripper.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commands) == 0 {
		return gripper.Command{}, false
	}
	return s.commands[len(s.commands)-1], true
}

// RecordingTelemetry stores published telemetry samples.
type RecordingTelemetry struct {
	Err error

	mu       sync.Mutex
	joints   []gripper.JointState
	statuses []gripper.GripperStatus
}

func (r *RecordingTelemetry) PublishJointState(js gripper.JointState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joints = append(r.joints, js)
	return r.Err
}

func (r *RecordingTelemetry) PublishGripperStatus(gs gripper.GripperStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, gs)
	return r.Err
}

func (r *RecordingTelemetry) JointStates() []gripper.JointState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gripper.JointState(nil), r.joints...)
}

func (r *RecordingTelemetry) GripperStatuses() []gripper.GripperStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gripper.GripperStatus(nil), r.statuses...)
}
