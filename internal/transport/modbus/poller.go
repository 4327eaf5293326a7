package modbus

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

// Poller writes the pending command and reads the status block once per
// interval. It implements gripper.CommandSink: Publish only stores the
// command for the next cycle.
type Poller struct {
	client   RegisterClient
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	cmdMu   sync.Mutex
	pending *gripper.Command

	handler func(gripper.DeviceStatus)
}

func NewPoller(client RegisterClient, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		client:   client,
		interval: interval,
		logger:   logger.With(zap.String("component", "modbus")),
		stopChan: make(chan struct{}),
	}
}

// OnStatus registers the status callback. Call before Start.
func (p *Poller) OnStatus(handler func(gripper.DeviceStatus)) {
	p.handler = handler
}

// Publish implements gripper.CommandSink. A command not yet written is
// replaced by the newer one.
func (p *Poller) Publish(cmd gripper.Command) error {
	p.cmdMu.Lock()
	p.pending = &cmd
	p.cmdMu.Unlock()
	return nil
}

// SetClient replaces the register client. Call before Start.
func (p *Poller) SetClient(client RegisterClient) {
	p.client = client
}

// Start begins the polling loop.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.client == nil {
		return errors.New("modbus poller has no register client")
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started", zap.Duration("interval", p.interval))

	return nil
}

// Stop ends the polling loop and waits for the last cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped")
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	p.cmdMu.Lock()
	cmd := p.pending
	p.pending = nil
	p.cmdMu.Unlock()

	if cmd != nil {
		if _, err := p.client.WriteMultipleRegisters(CommandAddress, blockRegisters, EncodeCommand(*cmd)); err != nil {
			p.logger.Error("Command write failed", zap.Error(err))
		}
	}

	data, err := p.client.ReadInputRegisters(StatusAddress, blockRegisters)
	if err != nil {
		p.logger.Error("Poll failed", zap.Error(err))
		return
	}

	status, err := DecodeStatus(data)
	if err != nil {
		p.logger.Error("Poll failed", zap.Error(err))
		return
	}

	if p.handler != nil {
		p.handler(status)
	}
}
