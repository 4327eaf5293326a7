package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/action"
	"github.com/omron-sinicx/robotiq-cri/internal/auth"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

func startHub(t *testing.T, tokens TokenValidator) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop(), tokens)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func fakeClient(buffer int) *Client {
	return &Client{send: make(chan []byte, buffer), remoteAddr: "test"}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_BroadcastsTelemetry(t *testing.T) {
	h := startHub(t, nil)
	c := fakeClient(8)
	require.True(t, h.registerClient(c))
	assert.Equal(t, 1, h.GetClientCount())

	require.NoError(t, h.PublishGripperStatus(gripper.GripperStatus{Name: "left", Activated: true}))
	msg := receive(t, c)
	assert.Equal(t, MessageTypeGripperStatus, msg.Type)
	assert.Equal(t, "left", msg.Data.(map[string]interface{})["name"])

	h.ActivationChanged(gripper.ActivationActivating, gripper.ActivationReady)
	msg = receive(t, c)
	assert.Equal(t, MessageTypeActivationState, msg.Type)
	assert.Equal(t, "ready", msg.Data.(map[string]interface{})["state"])
}

func TestHub_GoalEvents(t *testing.T) {
	h := startHub(t, nil)
	c := fakeClient(8)
	require.True(t, h.registerClient(c))

	id := uuid.New()
	h.GoalFeedback(id, action.KindMinimal, gripper.Feedback{Position: 0.03})
	msg := receive(t, c)
	assert.Equal(t, MessageTypeGoalFeedback, msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, id.String(), data["goal_id"])
	assert.Equal(t, "minimal", data["api"])

	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	h.GoalFinished(action.Record{
		ID:         id,
		Kind:       action.KindFull,
		Outcome:    gripper.MotionOutcome{Status: gripper.OutcomePreempted, FinalPosition: 0.02},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})
	msg = receive(t, c)
	assert.Equal(t, MessageTypeGoalResult, msg.Type)
	data = msg.Data.(map[string]interface{})
	assert.Equal(t, "preempted", data["status"])
	assert.Equal(t, float64(1500), data["duration_ms"])
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := startHub(t, nil)
	c := fakeClient(0)
	require.True(t, h.registerClient(c))

	h.Broadcast(NewMessage(MessageTypeJointState, nil))

	require.Eventually(t, func() bool { return h.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	h := NewHub(zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := fakeClient(1)
	require.True(t, h.registerClient(c))
	cancel()
	<-h.done

	_, ok := <-c.send
	assert.False(t, ok)
	assert.False(t, h.registerClient(fakeClient(1)))
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(h, w, r)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestServeWs_Unauthenticated(t *testing.T) {
	h := startHub(t, nil)
	conn := dial(t, h)

	require.Eventually(t, func() bool { return h.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.PublishJointState(gripper.JointState{Name: "finger_joint", Position: 0.04}))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeJointState, msg.Type)
}

func TestServeWs_AuthHandshake(t *testing.T) {
	jwt := auth.NewJWTHandler("0123456789abcdef0123456789abcdef", time.Hour)
	h := startHub(t, jwt)

	t.Run("valid token", func(t *testing.T) {
		token, err := jwt.GenerateAccessToken("dashboard", auth.RoleViewer)
		require.NoError(t, err)

		conn := dial(t, h)
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": token}))

		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageTypeAuthSuccess, msg.Type)
		require.Eventually(t, func() bool { return h.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("bad token", func(t *testing.T) {
		conn := dial(t, h)
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "nope"}))

		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageTypeAuthFailed, msg.Type)
	})

	t.Run("no auth message", func(t *testing.T) {
		conn := dial(t, h)
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))

		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageTypeAuthFailed, msg.Type)
	})
}
