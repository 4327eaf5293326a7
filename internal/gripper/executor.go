package gripper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var ErrInvalidFeedbackRate = errors.New("feedback rate must be positive")

// ExecConfig parameterizes one goal execution. The two goal API shapes
// differ only in these values.
type ExecConfig struct {
	FeedbackRate      float64 // Hz
	StallGrace        time.Duration
	Activation        ActivationMode
	ActivationTimeout time.Duration
	Tolerance         float64 // m, DefaultGoalTolerance when zero
}

// Validate rejects a non-positive feedback rate and negative durations or tolerance.
func (c ExecConfig) Validate() error {
	if !(c.FeedbackRate > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidFeedbackRate, c.FeedbackRate)
	}
	if c.StallGrace < 0 {
		return fmt.Errorf("stall grace must not be negative: %s", c.StallGrace)
	}
	if c.Activation != "" && !c.Activation.Valid() {
		return fmt.Errorf("unknown activation mode: %q", c.Activation)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("goal tolerance must not be negative: %v", c.Tolerance)
	}
	return nil
}

func (c ExecConfig) period() time.Duration {
	return time.Duration(float64(time.Second) / c.FeedbackRate)
}

func (c ExecConfig) tolerance() float64 {
	if c.Tolerance == 0 {
		return DefaultGoalTolerance
	}
	return c.Tolerance
}

// EstimateSource is implemented by status sources that also track the
// kinematic estimate; it adds velocity to feedback.
type EstimateSource interface {
	Estimate() KinematicEstimate
}

// Executor runs goals: it resends the goal command every tick and
// evaluates status until the goal is reached, the gripper stalls past
// the grace period or the context is cancelled.
type Executor struct {
	conv      *Converter
	activator *Activator
	sink      CommandSink
	source    StatusSource
	clock     Clock
	logger    *zap.Logger
}

// NewExecutor publishes goal commands to sink and reads status from source.
func NewExecutor(conv *Converter, activator *Activator, sink CommandSink, source StatusSource, clock Clock, logger *zap.Logger) *Executor {
	return &Executor{
		conv:      conv,
		activator: activator,
		sink:      sink,
		source:    source,
		clock:     clock,
		logger:    logger,
	}
}

// Execute runs goal to completion. onFeedback may be nil. A stall past
// the grace period ends the goal as succeeded with Stalled set;
// cancellation ends it as preempted.
func (e *Executor) Execute(ctx context.Context, goal MotionGoal, cfg ExecConfig, onFeedback func(Feedback)) (MotionOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return MotionOutcome{}, err
	}

	goal = e.conv.Calibration().Clamp(goal)
	tol := cfg.tolerance()

	if !e.ensureReady(ctx, cfg) {
		e.logger.Warn("Gripper not ready, goal aborted", zap.Float64("position", goal.Position))
		return MotionOutcome{
			Status:        OutcomeNotReady,
			FinalPosition: e.conv.CountsToPosition(e.source.Latest().Position),
		}, nil
	}

	cmd := e.conv.GoalCommand(goal)
	e.logger.Debug("Moving gripper",
		zap.Float64("position", goal.Position),
		zap.Float64("velocity", goal.Velocity),
		zap.Float64("force", goal.Force),
		zap.Uint8("rPR", cmd.Position),
		zap.Uint8("rSP", cmd.Speed),
		zap.Uint8("rFR", cmd.Force))

	ticker := e.clock.NewTicker(cfg.period())
	defer ticker.Stop()

	start := e.clock.Now()
	now := start
	var fb Feedback
	for {
		if ctx.Err() != nil {
			return e.preempted(goal.Position, tol), nil
		}

		if err := e.sink.Publish(cmd); err != nil {
			e.logger.Warn("Failed to publish goal command", zap.Error(err))
		}

		fb = e.feedback(e.source.Latest(), goal.Position, tol)
		if onFeedback != nil {
			onFeedback(fb)
		}

		if fb.ReachedGoal {
			break
		}

		if now.Sub(start) > cfg.StallGrace && fb.Stalled {
			e.logger.Debug("Gripper stalled past grace period",
				zap.Duration("elapsed", now.Sub(start)),
				zap.Float64("position", fb.Position))
			break
		}

		select {
		case <-ctx.Done():
			return e.preempted(goal.Position, tol), nil
		case now = <-ticker.C():
		}
	}

	// the sample that ended the loop, not a later one
	outcome := MotionOutcome{
		Status:        OutcomeSucceeded,
		FinalPosition: fb.Position,
		Stalled:       fb.Stalled,
		ReachedGoal:   fb.ReachedGoal,
	}

	e.logger.Debug("Goal finished",
		zap.Float64("final_position", outcome.FinalPosition),
		zap.Bool("stalled", outcome.Stalled),
		zap.Bool("reached_goal", outcome.ReachedGoal))

	return outcome, nil
}

// ExecuteNoWait publishes the goal command once and reports the current
// state without waiting for motion.
func (e *Executor) ExecuteNoWait(ctx context.Context, goal MotionGoal, cfg ExecConfig) (MotionOutcome, error) {
	if err := cfg.Validate(); err != nil {
		return MotionOutcome{}, err
	}

	goal = e.conv.Calibration().Clamp(goal)
	tol := cfg.tolerance()

	if !e.ensureReady(ctx, cfg) {
		return MotionOutcome{
			Status:        OutcomeNotReady,
			FinalPosition: e.conv.CountsToPosition(e.source.Latest().Position),
		}, nil
	}
	if ctx.Err() != nil {
		return e.preempted(goal.Position, tol), nil
	}

	if err := e.sink.Publish(e.conv.GoalCommand(goal)); err != nil {
		return MotionOutcome{}, fmt.Errorf("failed to publish goal command: %w", err)
	}

	status := e.source.Latest()
	pos := e.conv.CountsToPosition(status.Position)
	return MotionOutcome{
		Status:        OutcomeSucceeded,
		FinalPosition: pos,
		Stalled:       IsStalled(status),
		ReachedGoal:   ReachedGoal(goal.Position, pos, tol),
	}, nil
}

func (e *Executor) ensureReady(ctx context.Context, cfg ExecConfig) bool {
	if IsReady(e.source.Latest()) {
		return true
	}

	if cfg.Activation == ActivationSilent {
		if err := e.activator.ActivateAsync(); err != nil {
			e.logger.Warn("Failed to publish activation command", zap.Error(err))
		}
		return true
	}

	return e.activator.Activate(ctx, cfg.ActivationTimeout)
}

func (e *Executor) feedback(status DeviceStatus, target, tol float64) Feedback {
	pos := e.conv.CountsToPosition(status.Position)
	fb := Feedback{
		Position:    pos,
		Stalled:     IsStalled(status),
		ReachedGoal: ReachedGoal(target, pos, tol),
	}
	if es, ok := e.source.(EstimateSource); ok {
		fb.Velocity = es.Estimate().Velocity
	}
	return fb
}

// preempted never reports Stalled, even when the fingers rest on an object.
func (e *Executor) preempted(target, tol float64) MotionOutcome {
	status := e.source.Latest()
	pos := e.conv.CountsToPosition(status.Position)
	e.logger.Info("Goal preempted", zap.Float64("position", pos))
	return MotionOutcome{
		Status:        OutcomePreempted,
		FinalPosition: pos,
		ReachedGoal:   ReachedGoal(target, pos, tol),
	}
}
