package system

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/config"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
	"github.com/omron-sinicx/robotiq-cri/internal/telemetry"
	"github.com/omron-sinicx/robotiq-cri/internal/transport/modbus"
	"github.com/omron-sinicx/robotiq-cri/internal/transport/mqtt"
)

// Transport carries commands to the device and status back to the driver.
type Transport interface {
	gripper.CommandSink
	OnStatus(handler func(gripper.DeviceStatus))
	Start(ctx context.Context) error
	Stop()
}

type mqttTransport struct {
	*mqtt.Client
}

func (t mqttTransport) Start(ctx context.Context) error {
	return t.Connect(ctx)
}

func (t mqttTransport) Stop() {
	t.Disconnect()
}

type modbusTransport struct {
	cfg    config.ModbusConfig
	logger *zap.Logger

	conn *modbus.Conn
	*modbus.Poller
}

func (t *modbusTransport) Start(ctx context.Context) error {
	conn, err := modbus.Dial(t.cfg)
	if err != nil {
		return err
	}
	t.conn = conn
	t.Poller.SetClient(conn)
	return t.Poller.Start()
}

func (t *modbusTransport) Stop() {
	t.Poller.Stop()
	if t.conn != nil {
		if err := t.conn.Close(); err != nil {
			t.logger.Warn("Failed to close modbus connection", zap.Error(err))
		}
	}
}

// newTransport builds the configured transport. The MQTT transport also
// publishes telemetry and is added to fanout.
func newTransport(cfg config.TransportConfig, fanout *telemetry.Fanout, logger *zap.Logger) (Transport, error) {
	switch cfg.Kind {
	case "mqtt":
		client := mqtt.NewClient(cfg.MQTT, logger)
		fanout.Add("mqtt", client)
		return mqttTransport{client}, nil
	case "modbus":
		return &modbusTransport{
			cfg:    cfg.Modbus,
			logger: logger,
			Poller: modbus.NewPoller(nil, cfg.Modbus.PollInterval, logger),
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Kind)
	}
}
