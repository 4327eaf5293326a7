package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/omron-sinicx/robotiq-cri/internal/action"
	"github.com/omron-sinicx/robotiq-cri/internal/api/websocket"
	"github.com/omron-sinicx/robotiq-cri/internal/auth"
	"github.com/omron-sinicx/robotiq-cri/internal/config"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
	"github.com/omron-sinicx/robotiq-cri/internal/interfaces"
	"github.com/omron-sinicx/robotiq-cri/internal/storage"
	"github.com/omron-sinicx/robotiq-cri/internal/types"
)

type fakeGripper struct {
	snapshot    gripper.Snapshot
	cancelled   bool
	ready       bool
	asyncErr    error
	lastTimeout time.Duration
	asyncCalls  int
}

func (f *fakeGripper) Snapshot() gripper.Snapshot { return f.snapshot }
func (f *fakeGripper) Cancel() bool               { return f.cancelled }

func (f *fakeGripper) Activate(_ context.Context, timeout time.Duration) bool {
	f.lastTimeout = timeout
	return f.ready
}

func (f *fakeGripper) ActivateAsync() error {
	f.asyncCalls++
	return f.asyncErr
}

type fakeExecutor struct {
	outcome gripper.MotionOutcome
	goal    gripper.MotionGoal
	noWait  bool
}

func (f *fakeExecutor) Execute(_ context.Context, goal gripper.MotionGoal, _ gripper.ExecConfig, _ func(gripper.Feedback)) (gripper.MotionOutcome, error) {
	f.goal = goal
	return f.outcome, nil
}

func (f *fakeExecutor) ExecuteNoWait(_ context.Context, goal gripper.MotionGoal, _ gripper.ExecConfig) (gripper.MotionOutcome, error) {
	f.goal, f.noWait = goal, true
	return f.outcome, nil
}

type fakeHistory struct {
	goals []storage.GoalExecution
}

func (f *fakeHistory) ListGoals(_ context.Context, limit int) ([]storage.GoalExecution, error) {
	if limit < len(f.goals) {
		return f.goals[:limit], nil
	}
	return f.goals, nil
}

func (f *fakeHistory) GetGoal(_ context.Context, id uuid.UUID) (*storage.GoalExecution, error) {
	for i := range f.goals {
		if f.goals[i].ID == id {
			return &f.goals[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrGoalNotFound, id)
}

type fakeSystem struct{}

func (fakeSystem) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", Gripper: "left", Transport: "mqtt"}
}

func (fakeSystem) Shutdown(context.Context) error { return nil }

type fixture struct {
	srv     *Server
	gripper *fakeGripper
	exec    *fakeExecutor
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &fixture{
		gripper: &fakeGripper{ready: true},
		exec:    &fakeExecutor{outcome: gripper.MotionOutcome{Status: gripper.OutcomeSucceeded, FinalPosition: 0.04, ReachedGoal: true}},
	}

	cfg := &config.Config{}
	cfg.Gripper.ActivationTimeout = 5 * time.Second

	deps.Gripper = f.gripper
	deps.Actions = action.NewServer(f.exec, action.Config{Calibration: gripper.DefaultCalibration()}, logger)
	deps.Hub = websocket.NewHub(logger, nil)

	srv, err := NewServer(cfg, deps, logger)
	require.NoError(t, err)
	f.srv = srv
	return f
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Deps{})
	w := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSystemStatus(t *testing.T) {
	f := newFixture(t, Deps{})
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/system/status", "", "").Code)

	f = newFixture(t, Deps{System: fakeSystem{}})
	w := f.do(http.MethodGet, "/api/v1/system/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st interfaces.SystemStatus
	decode(t, w, &st)
	assert.Equal(t, "RUNNING", st.State)
	assert.Equal(t, "mqtt", st.Transport)
}

func TestExecuteGoal(t *testing.T) {
	f := newFixture(t, Deps{})

	w := f.do(http.MethodPost, "/api/v1/gripper/goal", `{"position":0.04,"velocity":0.05,"force":60}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	var res action.FullResult
	decode(t, w, &res)
	assert.Equal(t, gripper.OutcomeSucceeded, res.Status)
	assert.Equal(t, 0.04, res.FinalPosition)
	assert.NotEmpty(t, res.GoalID)
	assert.Equal(t, gripper.MotionGoal{Position: 0.04, Velocity: 0.05, Force: 60}, f.exec.goal)
	assert.False(t, f.exec.noWait)
}

func TestExecuteGoal_NoWait(t *testing.T) {
	f := newFixture(t, Deps{})

	w := f.do(http.MethodPost, "/api/v1/gripper/goal", `{"position":0.0,"velocity":0.1,"force":100,"no_wait":true}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.exec.noWait)
}

func TestExecuteGoal_InvalidBody(t *testing.T) {
	f := newFixture(t, Deps{})

	for _, body := range []string{`{"position":0.04}`, `not json`, `{"position":0.04,"velocity":0.05,"force":60,"speed":1}`} {
		w := f.do(http.MethodPost, "/api/v1/gripper/goal", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)

		var res types.ErrorResponse
		decode(t, w, &res)
		assert.Equal(t, "GRIPPER_400", res.Error.Code)
	}
}

func TestExecuteGoal_NotReady(t *testing.T) {
	f := newFixture(t, Deps{})
	f.exec.outcome = gripper.MotionOutcome{Status: gripper.OutcomeNotReady}

	w := f.do(http.MethodPost, "/api/v1/gripper/goal", `{"position":0.04,"velocity":0.05,"force":60}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	var res action.FullResult
	decode(t, w, &res)
	assert.Equal(t, gripper.OutcomeNotReady, res.Status)
}

func TestExecuteCommand(t *testing.T) {
	f := newFixture(t, Deps{})

	w := f.do(http.MethodPost, "/api/v1/gripper/command", `{"position":0.02,"max_effort":0}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	var res action.MinimalResult
	decode(t, w, &res)
	assert.Equal(t, 0.04, res.Position)

	cal := gripper.DefaultCalibration()
	assert.Equal(t, cal.MinSpeed, f.exec.goal.Velocity)
	assert.Equal(t, cal.MaxForce, f.exec.goal.Force)
}

func TestCancelAndStatus(t *testing.T) {
	f := newFixture(t, Deps{})
	f.gripper.cancelled = true
	f.gripper.snapshot = gripper.Snapshot{Name: "left", Activation: gripper.ActivationReady}

	w := f.do(http.MethodPost, "/api/v1/gripper/cancel", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":true}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/v1/gripper/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap gripper.Snapshot
	decode(t, w, &snap)
	assert.Equal(t, "left", snap.Name)
	assert.Equal(t, gripper.ActivationReady, snap.Activation)
}

func TestActivate(t *testing.T) {
	f := newFixture(t, Deps{})

	w := f.do(http.MethodPost, "/api/v1/gripper/activate", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5*time.Second, f.gripper.lastTimeout)

	f.gripper.ready = false
	w = f.do(http.MethodPost, "/api/v1/gripper/activate", `{"timeout_ms":250}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 250*time.Millisecond, f.gripper.lastTimeout)

	w = f.do(http.MethodPost, "/api/v1/gripper/activate", `{"silent":true}`, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, f.gripper.asyncCalls)

	w = f.do(http.MethodPost, "/api/v1/gripper/activate", `{"timeout_ms":-1}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGoalHistory(t *testing.T) {
	id := uuid.New()
	history := &fakeHistory{goals: []storage.GoalExecution{
		{ID: id, API: "full", Status: "succeeded"},
		{ID: uuid.New(), API: "minimal", Status: "preempted"},
	}}
	f := newFixture(t, Deps{History: history})

	w := f.do(http.MethodGet, "/api/v1/gripper/goals?limit=1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Goals []storage.GoalExecution `json:"goals"`
		Count int                     `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	w = f.do(http.MethodGet, "/api/v1/gripper/goals/"+id.String(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var g storage.GoalExecution
	decode(t, w, &g)
	assert.Equal(t, "succeeded", g.Status)

	w = f.do(http.MethodGet, "/api/v1/gripper/goals/"+uuid.NewString(), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/gripper/goals/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/gripper/goals?limit=zero", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGoalHistory_Disabled(t *testing.T) {
	f := newFixture(t, Deps{})

	w := f.do(http.MethodGet, "/api/v1/gripper/goals", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthEnabled(t *testing.T) {
	jwt := auth.NewJWTHandler("0123456789abcdef0123456789abcdef", time.Hour)
	f := newFixture(t, Deps{JWT: jwt})

	viewer, err := jwt.GenerateAccessToken("dashboard", auth.RoleViewer)
	require.NoError(t, err)
	operator, err := jwt.GenerateAccessToken("cell", auth.RoleOperator)
	require.NoError(t, err)

	goal := `{"position":0.04,"velocity":0.05,"force":60}`

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/gripper/status", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/gripper/status", "", viewer).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/gripper/goal", goal, viewer).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/gripper/goal", goal, operator).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/ws/status", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/ws/status", "", viewer).Code)
}
