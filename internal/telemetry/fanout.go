// Package telemetry distributes joint-state and gripper-status samples to
// every configured sink.
package telemetry

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

type namedSink struct {
	name string
	sink gripper.TelemetrySink
}

// Fanout implements gripper.TelemetrySink over any number of sinks. A
// failing sink is logged and does not keep the others from receiving the
// sample.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger) *Fanout {
	return &Fanout{logger: logger}
}

func (f *Fanout) Add(name string, sink gripper.TelemetrySink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	f.mu.Unlock()

	f.logger.Info("Telemetry sink added", zap.String("sink", name))
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// Names lists the sinks in the order they were added.
func (f *Fanout) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.name)
	}
	return names
}

func (f *Fanout) PublishJointState(js gripper.JointState) error {
	return f.each("joint_state", func(s gripper.TelemetrySink) error {
		return s.PublishJointState(js)
	})
}

func (f *Fanout) PublishGripperStatus(gs gripper.GripperStatus) error {
	return f.each("gripper_status", func(s gripper.TelemetrySink) error {
		return s.PublishGripperStatus(gs)
	})
}

func (f *Fanout) each(kind string, publish func(gripper.TelemetrySink) error) error {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := publish(s.sink); err != nil {
			f.logger.Debug("Telemetry sink failed",
				zap.String("sink", s.name),
				zap.String("kind", kind),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
