package modbus

import (
	"fmt"
	"io"
	"sync"

	"github.com/goburrow/modbus"

	"github.com/omron-sinicx/robotiq-cri/internal/config"
)

// RegisterClient is the part of modbus.Client used by the poller.
type RegisterClient interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// Conn is a connected RTU or TCP handler. Requests are serialized.
type Conn struct {
	mu      sync.Mutex
	handler io.Closer
	client  modbus.Client
}

// Dial opens the serial port or TCP connection described by cfg.
func Dial(cfg config.ModbusConfig) (*Conn, error) {
	switch cfg.Mode {
	case "rtu":
		h := modbus.NewRTUClientHandler(cfg.Address)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.SlaveId = cfg.SlaveID
		h.Timeout = cfg.Timeout

		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.Address, err)
		}
		return &Conn{handler: h, client: modbus.NewClient(h)}, nil

	case "tcp":
		h := modbus.NewTCPClientHandler(cfg.Address)
		h.SlaveId = cfg.SlaveID
		h.Timeout = cfg.Timeout

		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address, err)
		}
		return &Conn{handler: h, client: modbus.NewClient(h)}, nil

	default:
		return nil, fmt.Errorf("unknown modbus mode %q", cfg.Mode)
	}
}

func (c *Conn) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.ReadInputRegisters(address, quantity)
}

func (c *Conn) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.WriteMultipleRegisters(address, quantity, value)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}
