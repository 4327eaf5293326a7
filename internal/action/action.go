// Package action serves the two goal API shapes on top of one gripper
// executor. The full shape takes position, velocity and force and streams
// velocity in its feedback; the minimal shape takes a position and a
// maximum effort. Both differ only in their execution settings.
package action

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

type Kind string

const (
	KindFull    Kind = "full"
	KindMinimal Kind = "minimal"
)

// Executor runs goals against one gripper. *gripper.Driver implements it.
type Executor interface {
	Execute(ctx context.Context, goal gripper.MotionGoal, cfg gripper.ExecConfig, onFeedback func(gripper.Feedback)) (gripper.MotionOutcome, error)
	ExecuteNoWait(ctx context.Context, goal gripper.MotionGoal, cfg gripper.ExecConfig) (gripper.MotionOutcome, error)
}

type FullGoal struct {
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Force    float64 `json:"force"`
	NoWait   bool    `json:"no_wait,omitempty"`
}

type FullFeedback struct {
	GoalID      string  `json:"goal_id"`
	Position    float64 `json:"position"`
	Velocity    float64 `json:"velocity"`
	Stalled     bool    `json:"stalled"`
	ReachedGoal bool    `json:"reached_goal"`
}

type FullResult struct {
	GoalID        string                `json:"goal_id"`
	Status        gripper.OutcomeStatus `json:"status"`
	FinalPosition float64               `json:"final_position"`
	Stalled       bool                  `json:"stalled"`
	ReachedGoal   bool                  `json:"reached_goal"`
}

type MinimalGoal struct {
	Position  float64 `json:"position"`
	MaxEffort float64 `json:"max_effort"`
}

type MinimalFeedback struct {
	GoalID      string  `json:"goal_id"`
	Position    float64 `json:"position"`
	Stalled     bool    `json:"stalled"`
	ReachedGoal bool    `json:"reached_goal"`
}

type MinimalResult struct {
	GoalID      string                `json:"goal_id"`
	Status      gripper.OutcomeStatus `json:"status"`
	Position    float64               `json:"position"`
	Stalled     bool                  `json:"stalled"`
	ReachedGoal bool                  `json:"reached_goal"`
}

// Record describes one finished goal.
type Record struct {
	ID         uuid.UUID
	Kind       Kind
	Goal       gripper.MotionGoal
	Outcome    gripper.MotionOutcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists finished goals. Failures are logged only.
type Recorder interface {
	RecordGoal(ctx context.Context, rec Record) error
}

// Observer is told about every goal regardless of which API started it.
type Observer interface {
	GoalFeedback(id uuid.UUID, kind Kind, fb gripper.Feedback)
	GoalFinished(rec Record)
}

type Config struct {
	Calibration gripper.Calibration
	Full        gripper.ExecConfig
	Minimal     gripper.ExecConfig
}

const recordTimeout = 5 * time.Second

type Server struct {
	exec     Executor
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
	observer Observer
}

func NewServer(exec Executor, cfg Config, logger *zap.Logger) *Server {
	return &Server{
		exec:   exec,
		cfg:    cfg,
		logger: logger,
	}
}

// SetRecorder and SetObserver must be called before the first goal.
func (s *Server) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Server) SetObserver(o Observer) {
	s.observer = o
}

// ExecuteFull runs a full goal. onFeedback may be nil.
func (s *Server) ExecuteFull(ctx context.Context, goal FullGoal, onFeedback func(FullFeedback)) (FullResult, error) {
	motion := gripper.MotionGoal{
		Position: goal.Position,
		Velocity: goal.Velocity,
		Force:    goal.Force,
	}

	id, outcome, err := s.run(ctx, KindFull, motion, s.cfg.Full, goal.NoWait, func(id uuid.UUID, fb gripper.Feedback) {
		if onFeedback != nil {
			onFeedback(FullFeedback{
				GoalID:      id.String(),
				Position:    fb.Position,
				Velocity:    fb.Velocity,
				Stalled:     fb.Stalled,
				ReachedGoal: fb.ReachedGoal,
			})
		}
	})
	if err != nil {
		return FullResult{}, err
	}

	return FullResult{
		GoalID:        id.String(),
		Status:        outcome.Status,
		FinalPosition: outcome.FinalPosition,
		Stalled:       outcome.Stalled,
		ReachedGoal:   outcome.ReachedGoal,
	}, nil
}

// ExecuteMinimal runs a minimal goal at the slowest speed. A zero effort
// grips with the maximum force.
func (s *Server) ExecuteMinimal(ctx context.Context, goal MinimalGoal, onFeedback func(MinimalFeedback)) (MinimalResult, error) {
	force := goal.MaxEffort
	if force <= 0 {
		force = s.cfg.Calibration.MaxForce
	}
	motion := gripper.MotionGoal{
		Position: goal.Position,
		Velocity: s.cfg.Calibration.MinSpeed,
		Force:    force,
	}

	id, outcome, err := s.run(ctx, KindMinimal, motion, s.cfg.Minimal, false, func(id uuid.UUID, fb gripper.Feedback) {
		if onFeedback != nil {
			onFeedback(MinimalFeedback{
				GoalID:      id.String(),
				Position:    fb.Position,
				Stalled:     fb.Stalled,
				ReachedGoal: fb.ReachedGoal,
			})
		}
	})
	if err != nil {
		return MinimalResult{}, err
	}

	return MinimalResult{
		GoalID:      id.String(),
		Status:      outcome.Status,
		Position:    outcome.FinalPosition,
		Stalled:     outcome.Stalled,
		ReachedGoal: outcome.ReachedGoal,
	}, nil
}

func (s *Server) run(ctx context.Context, kind Kind, goal gripper.MotionGoal, cfg gripper.ExecConfig, noWait bool,
	onFeedback func(uuid.UUID, gripper.Feedback)) (uuid.UUID, gripper.MotionOutcome, error) {

	id := uuid.New()
	logger := s.logger.With(zap.String("goal_id", id.String()), zap.String("api", string(kind)))
	logger.Info("Goal accepted",
		zap.Float64("position", goal.Position),
		zap.Float64("velocity", goal.Velocity),
		zap.Float64("force", goal.Force),
		zap.Bool("no_wait", noWait))

	started := time.Now()

	var (
		outcome gripper.MotionOutcome
		err     error
	)
	if noWait {
		outcome, err = s.exec.ExecuteNoWait(ctx, goal, cfg)
	} else {
		outcome, err = s.exec.Execute(ctx, goal, cfg, func(fb gripper.Feedback) {
			if s.observer != nil {
				s.observer.GoalFeedback(id, kind, fb)
			}
			onFeedback(id, fb)
		})
	}
	if err != nil {
		logger.Error("Goal failed", zap.Error(err))
		return id, outcome, err
	}

	rec := Record{
		ID:         id,
		Kind:       kind,
		Goal:       goal,
		Outcome:    outcome,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}

	logger.Info("Goal finished",
		zap.String("status", string(outcome.Status)),
		zap.Float64("final_position", outcome.FinalPosition),
		zap.Bool("stalled", outcome.Stalled),
		zap.Bool("reached_goal", outcome.ReachedGoal),
		zap.Duration("duration", rec.FinishedAt.Sub(started)))

	if s.observer != nil {
		s.observer.GoalFinished(rec)
	}
	s.record(ctx, logger, rec)

	return id, outcome, nil
}

func (s *Server) record(ctx context.Context, logger *zap.Logger, rec Record) {
	if s.recorder == nil {
		return
	}

	// the goal context is usually cancelled by now for preempted goals
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.recorder.RecordGoal(ctx, rec); err != nil {
		logger.Warn("Failed to record goal", zap.Error(err))
	}
}
