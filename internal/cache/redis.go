// Package cache mirrors the latest gripper telemetry into Redis so other
// processes can read the gripper state without talking to the daemon.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/omron-sinicx/robotiq-cri/internal/config"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

var ErrNotFound = errors.New("no cached state")

const writeTimeout = time.Second

// cmdable is the part of redis.Cmdable used here.
type cmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// StatusCache implements gripper.TelemetrySink.
type StatusCache struct {
	client cmdable
	closer func() error
	ttl    time.Duration
}

func NewStatusCache(ctx context.Context, cfg config.RedisConfig) (*StatusCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &StatusCache{client: rdb, closer: rdb.Close, ttl: cfg.TTL}, nil
}

func (c *StatusCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func statusKey(name string) string {
	return fmt.Sprintf("gripper:status:%s", name)
}

func jointKey(name string) string {
	return fmt.Sprintf("gripper:joint:%s", name)
}

func (c *StatusCache) PublishGripperStatus(gs gripper.GripperStatus) error {
	return c.save(statusKey(gs.Name), gs)
}

func (c *StatusCache) PublishJointState(js gripper.JointState) error {
	return c.save(jointKey(js.Name), js)
}

func (c *StatusCache) save(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s to Redis: %w", key, err)
	}
	return nil
}

// GripperStatus returns the last status mirrored for the named gripper.
func (c *StatusCache) GripperStatus(ctx context.Context, name string) (*gripper.GripperStatus, error) {
	val, err := c.client.Get(ctx, statusKey(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w for gripper %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get status from Redis: %w", err)
	}

	var gs gripper.GripperStatus
	if err := json.Unmarshal([]byte(val), &gs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &gs, nil
}
