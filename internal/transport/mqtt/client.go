// Package mqtt carries gripper status and commands over an MQTT broker and
// publishes the joint-state and gripper-status telemetry.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/config"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

const publishTimeout = 5 * time.Second

// pahoClient is the part of paho.Client used here.
type pahoClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

type Topics struct {
	Status        string
	Command       string
	JointStates   string
	GripperStatus string
}

func NewTopics(prefix string) Topics {
	return Topics{
		Status:        prefix + "/status",
		Command:       prefix + "/command",
		JointStates:   prefix + "/joint_states",
		GripperStatus: prefix + "/gripper_status",
	}
}

// Client implements gripper.CommandSink and gripper.TelemetrySink and
// delivers every status message to the registered handler.
type Client struct {
	client pahoClient
	topics Topics
	qos    byte
	logger *zap.Logger

	mu      sync.RWMutex
	handler func(gripper.DeviceStatus)
}

func NewClient(cfg config.MQTTConfig, logger *zap.Logger) *Client {
	c := &Client{
		topics: NewTopics(cfg.TopicPrefix),
		qos:    cfg.QoS,
		logger: logger.With(zap.String("component", "mqtt")),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)

	opts.SetOnConnectHandler(func(paho.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Error("MQTT connection lost, reconnecting", zap.Error(err))
	})

	c.client = paho.NewClient(opts)
	return c
}

func newClient(client pahoClient, topics Topics, qos byte, logger *zap.Logger) *Client {
	return &Client{
		client: client,
		topics: topics,
		qos:    qos,
		logger: logger,
	}
}

// OnStatus registers the callback for decoded status messages. It is
// called from the paho delivery goroutine.
func (c *Client) OnStatus(handler func(gripper.DeviceStatus)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// Connect blocks until the broker accepted the connection. Subscriptions
// are (re)established by the on-connect handler.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info("MQTT client disconnected")
	}
}

func (c *Client) onConnect() {
	c.logger.Info("Connected to MQTT broker, subscribing", zap.String("topic", c.topics.Status))

	token := c.client.Subscribe(c.topics.Status, c.qos, c.handleStatus)
	if token.Wait() && token.Error() != nil {
		c.logger.Error("Failed to subscribe to topic",
			zap.String("topic", c.topics.Status),
			zap.Error(token.Error()))
	}
}

func (c *Client) handleStatus(_ paho.Client, msg paho.Message) {
	var status gripper.DeviceStatus
	if err := json.Unmarshal(msg.Payload(), &status); err != nil {
		c.logger.Warn("Failed to decode status message",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(status)
	}
}

// Publish implements gripper.CommandSink.
func (c *Client) Publish(cmd gripper.Command) error {
	return c.publishJSON(c.topics.Command, cmd)
}

func (c *Client) PublishJointState(js gripper.JointState) error {
	return c.publishJSON(c.topics.JointStates, js)
}

func (c *Client) PublishGripperStatus(gs gripper.GripperStatus) error {
	return c.publishJSON(c.topics.GripperStatus, gs)
}

func (c *Client) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return c.publish(topic, payload)
}

// publish does not wait for the broker; delivery failures are logged.
func (c *Client) publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, c.qos, false, payload)
	go func() {
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			c.logger.Error("Failed to publish message",
				zap.String("topic", topic),
				zap.Error(token.Error()))
		}
	}()
	return nil
}
