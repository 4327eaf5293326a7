package gripper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultActivationRetry is the cadence at which the activation command
// is resent while waiting for the device.
const DefaultActivationRetry = 100 * time.Millisecond

// StateListener is notified after every activation state change.
type StateListener func(previous, current ActivationState)

// Activator drives the device from an unknown or inactive state to ready.
type Activator struct {
	sink     CommandSink
	source   StatusSource
	clock    Clock
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	state    ActivationState
	listener StateListener
}

// NewActivator retries the activation command every interval while waiting.
func NewActivator(sink CommandSink, source StatusSource, clock Clock, interval time.Duration, logger *zap.Logger) *Activator {
	if interval <= 0 {
		interval = DefaultActivationRetry
	}
	return &Activator{
		sink:     sink,
		source:   source,
		clock:    clock,
		interval: interval,
		logger:   logger,
		state:    ActivationUnknown,
	}
}

// SetStateListener registers the callback for state changes.
func (a *Activator) SetStateListener(l StateListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = l
}

// State returns the current activation state.
func (a *Activator) State() ActivationState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Activate blocks until the device reports ready, the timeout elapses or
// ctx is cancelled. The activation command is resent on every retry tick.
func (a *Activator) Activate(ctx context.Context, timeout time.Duration) bool {
	if IsReady(a.source.Latest()) {
		a.setState(ActivationReady)
		return true
	}

	a.setState(ActivationActivating)
	a.logger.Info("Activating gripper", zap.Duration("timeout", timeout))

	cmd := ActivationCommand()
	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()

	start := a.clock.Now()
	now := start
	for {
		if IsReady(a.source.Latest()) {
			a.setState(ActivationReady)
			a.logger.Info("Gripper activated", zap.Duration("elapsed", now.Sub(start)))
			return true
		}

		if ctx.Err() != nil {
			a.abort()
			return false
		}

		if now.Sub(start) > timeout {
			a.setState(ActivationFailed)
			a.logger.Warn("Failed to activate gripper", zap.Duration("timeout", timeout))
			return false
		}

		a.publish(cmd)

		select {
		case <-ctx.Done():
			a.abort()
			return false
		case now = <-ticker.C():
		}
	}
}

// ActivateAsync sends a single activation command without waiting for
// the device to confirm.
func (a *Activator) ActivateAsync() error {
	if IsReady(a.source.Latest()) {
		a.setState(ActivationReady)
		return nil
	}

	a.setState(ActivationActivating)
	return a.sink.Publish(ActivationCommand())
}

// Observe updates the state from a fresh status sample.
func (a *Activator) Observe(status DeviceStatus) {
	ready := IsReady(status)
	current := a.State()

	switch {
	case ready && current != ActivationReady:
		a.setState(ActivationReady)
	case !ready && current == ActivationReady:
		a.logger.Warn("Gripper dropped out of ready state",
			zap.Uint8("gACT", status.Activated),
			zap.Uint8("gSTA", status.ActivationStatus),
			zap.Uint8("gFLT", status.Fault))
		a.setState(ActivationUnknown)
	}
}

func (a *Activator) abort() {
	a.publish(StopCommand())
	a.setState(ActivationFailed)
	a.logger.Info("Gripper activation preempted")
}

func (a *Activator) publish(cmd Command) {
	if err := a.sink.Publish(cmd); err != nil {
		a.logger.Warn("Failed to publish activation command", zap.Error(err))
	}
}

func (a *Activator) setState(state ActivationState) {
	a.mu.Lock()
	previous := a.state
	a.state = state
	listener := a.listener
	a.mu.Unlock()

	if previous == state {
		return
	}

	a.logger.Debug("Activation state changed",
		zap.String("state", string(state)),
		zap.String("previous", string(previous)))

	if listener != nil {
		listener(previous, state)
	}
}
