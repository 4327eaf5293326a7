package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

type fakeExecutor struct {
	feedback []gripper.Feedback
	outcome  gripper.MotionOutcome
	err      error

	goal   gripper.MotionGoal
	cfg    gripper.ExecConfig
	noWait bool
}

func (f *fakeExecutor) Execute(ctx context.Context, goal gripper.MotionGoal, cfg gripper.ExecConfig, onFeedback func(gripper.Feedback)) (gripper.MotionOutcome, error) {
	f.goal, f.cfg = goal, cfg
	for _, fb := range f.feedback {
		onFeedback(fb)
	}
	return f.outcome, f.err
}

func (f *fakeExecutor) ExecuteNoWait(ctx context.Context, goal gripper.MotionGoal, cfg gripper.ExecConfig) (gripper.MotionOutcome, error) {
	f.goal, f.cfg, f.noWait = goal, cfg, true
	return f.outcome, f.err
}

type recordingObserver struct {
	mu       sync.Mutex
	feedback int
	finished []Record
}

func (o *recordingObserver) GoalFeedback(uuid.UUID, Kind, gripper.Feedback) {
	o.mu.Lock()
	o.feedback++
	o.mu.Unlock()
}

func (o *recordingObserver) GoalFinished(rec Record) {
	o.mu.Lock()
	o.finished = append(o.finished, rec)
	o.mu.Unlock()
}

type fakeRecorder struct {
	records []Record
	ctxErr  error
	err     error
}

func (r *fakeRecorder) RecordGoal(ctx context.Context, rec Record) error {
	r.records = append(r.records, rec)
	r.ctxErr = ctx.Err()
	return r.err
}

func testConfig() Config {
	return Config{
		Calibration: gripper.DefaultCalibration(),
		Full: gripper.ExecConfig{
			FeedbackRate: 60,
			StallGrace:   500 * time.Millisecond,
			Activation:   gripper.ActivationConfirmed,
		},
		Minimal: gripper.ExecConfig{
			FeedbackRate: 60,
			StallGrace:   time.Second,
			Activation:   gripper.ActivationSilent,
		},
	}
}

func TestServer_ExecuteFull(t *testing.T) {
	exec := &fakeExecutor{
		feedback: []gripper.Feedback{
			{Position: 0.06, Velocity: -0.02},
			{Position: 0.04, Velocity: -0.01, ReachedGoal: true},
		},
		outcome: gripper.MotionOutcome{Status: gripper.OutcomeSucceeded, FinalPosition: 0.04, ReachedGoal: true},
	}
	obs := &recordingObserver{}
	rec := &fakeRecorder{}

	s := NewServer(exec, testConfig(), zaptest.NewLogger(t))
	s.SetObserver(obs)
	s.SetRecorder(rec)

	var feedback []FullFeedback
	res, err := s.ExecuteFull(context.Background(), FullGoal{Position: 0.04, Velocity: 0.05, Force: 60}, func(fb FullFeedback) {
		feedback = append(feedback, fb)
	})
	require.NoError(t, err)

	assert.Equal(t, gripper.OutcomeSucceeded, res.Status)
	assert.Equal(t, 0.04, res.FinalPosition)
	assert.True(t, res.ReachedGoal)
	_, err = uuid.Parse(res.GoalID)
	require.NoError(t, err)

	require.Len(t, feedback, 2)
	assert.Equal(t, -0.02, feedback[0].Velocity)
	assert.Equal(t, res.GoalID, feedback[1].GoalID)

	assert.Equal(t, gripper.MotionGoal{Position: 0.04, Velocity: 0.05, Force: 60}, exec.goal)
	assert.Equal(t, 500*time.Millisecond, exec.cfg.StallGrace)
	assert.Equal(t, gripper.ActivationConfirmed, exec.cfg.Activation)

	assert.Equal(t, 2, obs.feedback)
	require.Len(t, rec.records, 1)
	assert.Equal(t, KindFull, rec.records[0].Kind)
	assert.Equal(t, res.GoalID, rec.records[0].ID.String())
	assert.False(t, rec.records[0].FinishedAt.Before(rec.records[0].StartedAt))
}

func TestServer_ExecuteFullNoWait(t *testing.T) {
	exec := &fakeExecutor{outcome: gripper.MotionOutcome{Status: gripper.OutcomeSucceeded, FinalPosition: 0.085}}
	s := NewServer(exec, testConfig(), zaptest.NewLogger(t))

	res, err := s.ExecuteFull(context.Background(), FullGoal{Position: 0.01, Velocity: 0.1, Force: 40, NoWait: true}, nil)
	require.NoError(t, err)
	assert.True(t, exec.noWait)
	assert.Equal(t, 0.085, res.FinalPosition)
}

func TestServer_ExecuteMinimal(t *testing.T) {
	exec := &fakeExecutor{
		feedback: []gripper.Feedback{{Position: 0.03, Velocity: 0.5, Stalled: true}},
		outcome:  gripper.MotionOutcome{Status: gripper.OutcomeSucceeded, FinalPosition: 0.03, Stalled: true},
	}
	s := NewServer(exec, testConfig(), zaptest.NewLogger(t))

	var feedback []MinimalFeedback
	res, err := s.ExecuteMinimal(context.Background(), MinimalGoal{Position: 0.0}, func(fb MinimalFeedback) {
		feedback = append(feedback, fb)
	})
	require.NoError(t, err)

	assert.True(t, res.Stalled)
	assert.Equal(t, 0.03, res.Position)
	require.Len(t, feedback, 1)
	assert.True(t, feedback[0].Stalled)

	cal := gripper.DefaultCalibration()
	assert.Equal(t, cal.MinSpeed, exec.goal.Velocity, "minimal goals move at the slowest speed")
	assert.Equal(t, cal.MaxForce, exec.goal.Force, "zero effort means maximum force")
	assert.Equal(t, gripper.ActivationSilent, exec.cfg.Activation)
	assert.Equal(t, time.Second, exec.cfg.StallGrace)

	_, err = s.ExecuteMinimal(context.Background(), MinimalGoal{Position: 0.02, MaxEffort: 55}, nil)
	require.NoError(t, err)
	assert.Equal(t, 55.0, exec.goal.Force)
}

func TestServer_PreemptedGoalIsStillRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExecutor{outcome: gripper.MotionOutcome{Status: gripper.OutcomePreempted, FinalPosition: 0.05}}
	rec := &fakeRecorder{err: errors.New("database unavailable")}
	s := NewServer(exec, testConfig(), zaptest.NewLogger(t))
	s.SetRecorder(rec)

	res, err := s.ExecuteFull(ctx, FullGoal{Position: 0}, nil)
	require.NoError(t, err, "recording failures are not goal failures")
	assert.Equal(t, gripper.OutcomePreempted, res.Status)

	require.Len(t, rec.records, 1)
	assert.NoError(t, rec.ctxErr, "recording outlives the goal context")
}

func TestServer_ExecutorError(t *testing.T) {
	exec := &fakeExecutor{err: gripper.ErrInvalidFeedbackRate}
	obs := &recordingObserver{}
	s := NewServer(exec, testConfig(), zaptest.NewLogger(t))
	s.SetObserver(obs)

	_, err := s.ExecuteFull(context.Background(), FullGoal{}, nil)
	require.ErrorIs(t, err, gripper.ErrInvalidFeedbackRate)
	assert.Empty(t, obs.finished)
}
