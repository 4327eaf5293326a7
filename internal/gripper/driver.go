package gripper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DriverConfig names the gripper and its joint and carries the calibration.
type DriverConfig struct {
	Name            string
	JointName       string
	Prefix          string
	Calibration     Calibration
	ActivationRetry time.Duration
}

// StartupConfig mirrors the boot sequence of the device node: wait for
// the first status, then activate if needed.
type StartupConfig struct {
	Delay             time.Duration
	ActivationDelay   time.Duration
	ActivateOnStart   bool
	ActivationTimeout time.Duration
}

// Snapshot is a consistent copy of the driver state.
type Snapshot struct {
	Name       string            `json:"name"`
	Activation ActivationState   `json:"activation"`
	Status     DeviceStatus      `json:"status"`
	Estimate   KinematicEstimate `json:"estimate"`
	Stalled    bool              `json:"stalled"`
	Moving     bool              `json:"moving"`
	HasStatus  bool              `json:"has_status"`
	UpdatedAt  time.Time         `json:"updated_at"`
	GoalActive bool              `json:"goal_active"`
}

// Driver owns the state of one gripper: the latest status, the derived
// kinematics and the single active goal.
type Driver struct {
	name      string
	jointName string
	monitor   *Monitor
	activator *Activator
	executor  *Executor
	telemetry TelemetrySink
	clock     Clock
	logger    *zap.Logger

	mu        sync.RWMutex
	status    DeviceStatus
	estimate  KinematicEstimate
	kinematic KinematicState
	updatedAt time.Time
	hasStatus bool

	goalMu     sync.Mutex
	cancelGoal context.CancelFunc
	goalSeq    uint64

	// held for the whole duration of a goal
	runMu sync.Mutex
}

// NewDriver validates the calibration and wires the control components.
// telemetry may be nil.
func NewDriver(cfg DriverConfig, sink CommandSink, telemetry TelemetrySink, clock Clock, logger *zap.Logger) (*Driver, error) {
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = RealClock()
	}

	conv := NewConverter(cfg.Calibration)
	logger = logger.With(zap.String("gripper", cfg.Name))

	d := &Driver{
		name:      cfg.Name,
		jointName: cfg.Prefix + cfg.JointName,
		monitor:   NewMonitor(conv),
		telemetry: telemetry,
		clock:     clock,
		logger:    logger,
	}
	d.activator = NewActivator(sink, d, clock, cfg.ActivationRetry, logger)
	d.executor = NewExecutor(conv, d.activator, sink, d, clock, logger)

	return d, nil
}

// Activator exposes the activation state for listeners.
func (d *Driver) Activator() *Activator {
	return d.activator
}

// HandleStatus is the transport callback for every status sample.
func (d *Driver) HandleStatus(status DeviceStatus) {
	now := d.clock.Now()

	d.mu.Lock()
	d.status = status
	est := d.monitor.OnStatus(&d.kinematic, status, now)
	d.estimate = est
	d.updatedAt = now
	d.hasStatus = true
	d.mu.Unlock()

	d.activator.Observe(status)
	d.publishTelemetry(status, est)
}

func (d *Driver) publishTelemetry(status DeviceStatus, est KinematicEstimate) {
	if d.telemetry == nil {
		return
	}

	js := JointState{
		Name:     d.jointName,
		Position: est.Position,
		Velocity: est.Velocity,
		Effort:   0,
		Stamp:    est.Time,
	}
	if err := d.telemetry.PublishJointState(js); err != nil {
		d.logger.Debug("Failed to publish joint state", zap.Error(err))
	}

	gs := GripperStatus{
		Name:      d.name,
		Activated: IsReady(status),
		Position:  est.Position,
		Velocity:  est.Velocity,
		Stalled:   IsStalled(status),
		Moving:    IsMoving(status),
		Fault:     status.Fault,
		Stamp:     est.Time,
	}
	if err := d.telemetry.PublishGripperStatus(gs); err != nil {
		d.logger.Debug("Failed to publish gripper status", zap.Error(err))
	}
}

// Latest implements StatusSource.
func (d *Driver) Latest() DeviceStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Estimate implements EstimateSource.
func (d *Driver) Estimate() KinematicEstimate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.estimate
}

// Snapshot returns a consistent copy of the driver state.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	s := Snapshot{
		Name:      d.name,
		Status:    d.status,
		Estimate:  d.estimate,
		Stalled:   IsStalled(d.status),
		Moving:    IsMoving(d.status),
		HasStatus: d.hasStatus,
		UpdatedAt: d.updatedAt,
	}
	d.mu.RUnlock()

	s.Activation = d.activator.State()

	d.goalMu.Lock()
	s.GoalActive = d.cancelGoal != nil
	d.goalMu.Unlock()

	return s
}

// Execute runs goal as the only active goal of this gripper. A goal that
// is still running is cancelled and allowed to unwind first.
func (d *Driver) Execute(ctx context.Context, goal MotionGoal, cfg ExecConfig, onFeedback func(Feedback)) (MotionOutcome, error) {
	ctx, cancel := d.beginGoal(ctx)
	defer cancel()

	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.clearObjectDetection()
	return d.executor.Execute(ctx, goal, cfg, onFeedback)
}

// ExecuteNoWait sends goal once without waiting. It preempts a running goal.
func (d *Driver) ExecuteNoWait(ctx context.Context, goal MotionGoal, cfg ExecConfig) (MotionOutcome, error) {
	ctx, cancel := d.beginGoal(ctx)
	defer cancel()

	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.clearObjectDetection()
	return d.executor.ExecuteNoWait(ctx, goal, cfg)
}

// Cancel preempts the active goal, if any. It returns false when no goal
// was running.
func (d *Driver) Cancel() bool {
	d.goalMu.Lock()
	defer d.goalMu.Unlock()

	if d.cancelGoal == nil {
		return false
	}
	d.cancelGoal()
	return true
}

// Activate runs the confirmed activation handshake. Like a goal, it
// preempts the active goal and can itself be cancelled with Cancel.
func (d *Driver) Activate(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := d.beginGoal(ctx)
	defer cancel()

	d.runMu.Lock()
	defer d.runMu.Unlock()

	return d.activator.Activate(ctx, timeout)
}

// ActivateAsync fires one activation command after preempting the active
// goal.
func (d *Driver) ActivateAsync() error {
	_, cancel := d.beginGoal(context.Background())
	defer cancel()

	d.runMu.Lock()
	defer d.runMu.Unlock()

	return d.activator.ActivateAsync()
}

// Startup waits for the device to report and activates it when asked to.
// It returns an error only if activation was requested and failed.
func (d *Driver) Startup(ctx context.Context, cfg StartupConfig) error {
	if err := d.wait(ctx, cfg.Delay); err != nil {
		return err
	}

	if !cfg.ActivateOnStart || IsReady(d.Latest()) {
		d.activator.Observe(d.Latest())
		return nil
	}

	if err := d.wait(ctx, cfg.ActivationDelay); err != nil {
		return err
	}

	if !d.Activate(ctx, cfg.ActivationTimeout) {
		return fmt.Errorf("gripper %s did not become ready within %s", d.name, cfg.ActivationTimeout)
	}
	return nil
}

func (d *Driver) beginGoal(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	d.goalMu.Lock()
	if d.cancelGoal != nil {
		d.logger.Info("Preempting active goal")
		d.cancelGoal()
	}
	d.goalSeq++
	seq := d.goalSeq
	d.cancelGoal = cancel
	d.goalMu.Unlock()

	return ctx, func() {
		d.goalMu.Lock()
		if d.goalSeq == seq {
			d.cancelGoal = nil
		}
		d.goalMu.Unlock()
		cancel()
	}
}

// clearObjectDetection drops the object flag of the cached status so a
// stall left over from the previous goal is not reported before the
// device sends a fresh sample.
func (d *Driver) clearObjectDetection() {
	d.mu.Lock()
	d.status.Object = ObjectNone
	d.mu.Unlock()
}

func (d *Driver) wait(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	t := d.clock.NewTicker(dur)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
