package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

type memoryRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	m.values[key] = string(value.([]byte))
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestStatusCache_RoundTrip(t *testing.T) {
	mem := newMemoryRedis()
	c := &StatusCache{client: mem, ttl: time.Minute}

	stamp := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, c.PublishGripperStatus(gripper.GripperStatus{Name: "left", Activated: true, Position: 0.04, Stamp: stamp}))
	require.NoError(t, c.PublishJointState(gripper.JointState{Name: "left_finger_joint", Position: 0.04}))

	assert.Equal(t, time.Minute, mem.ttls["gripper:status:left"])
	assert.Contains(t, mem.values, "gripper:joint:left_finger_joint")

	gs, err := c.GripperStatus(context.Background(), "left")
	require.NoError(t, err)
	assert.True(t, gs.Activated)
	assert.Equal(t, 0.04, gs.Position)
	assert.True(t, stamp.Equal(gs.Stamp))
}

func TestStatusCache_Missing(t *testing.T) {
	c := &StatusCache{client: newMemoryRedis()}

	_, err := c.GripperStatus(context.Background(), "right")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusCache_SetError(t *testing.T) {
	mem := newMemoryRedis()
	mem.setErr = errors.New("READONLY")
	c := &StatusCache{client: mem}

	err := c.PublishGripperStatus(gripper.GripperStatus{Name: "left"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
	assert.NoError(t, c.Close())
}
