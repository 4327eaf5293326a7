package modbus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  gripper.Command
		want []byte
	}{
		{"reset", gripper.Command{}, []byte{0x00, 0, 0, 0, 0, 0}},
		{"activation", gripper.ActivationCommand(), []byte{0x09, 0, 0, 0, 255, 150}},
		{"stop", gripper.StopCommand(), []byte{0x01, 0, 0, 0, 0, 0}},
		{"goal with auto release", gripper.Command{Activate: 1, GoTo: 1, AutoRelease: 1, Position: 122, Speed: 94, Force: 43}, []byte{0x19, 0, 0, 122, 94, 43}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeCommand(tt.cmd))
		})
	}
}

func TestDecodeStatus(t *testing.T) {
	// gACT=1, gGTO=1, gSTA=3, gOBJ=2
	status, err := DecodeStatus([]byte{0xB9, 0x00, 0x00, 200, 187, 12})
	require.NoError(t, err)
	assert.Equal(t, gripper.DeviceStatus{
		Activated:        1,
		GoTo:             1,
		ActivationStatus: 3,
		Object:           gripper.ObjectDetectedClosing,
		PositionEcho:     200,
		Position:         187,
		Current:          12,
	}, status)
	assert.True(t, gripper.IsReady(status))
	assert.True(t, gripper.IsStalled(status))

	// activation in progress with a fault
	status, err = DecodeStatus([]byte{0x11, 0x00, 0x05, 0, 3, 0})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), status.ActivationStatus)
	assert.Equal(t, uint8(5), status.Fault)
	assert.False(t, gripper.IsReady(status))

	_, err = DecodeStatus([]byte{0x01, 0x00})
	require.Error(t, err)
}

type fakeRegisters struct {
	mu      sync.Mutex
	status  []byte
	readErr error
	writes  [][]byte
	addrs   []uint16
}

func (f *fakeRegisters) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.status, nil
}

func (f *fakeRegisters) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrs = append(f.addrs, address)
	f.writes = append(f.writes, append([]byte(nil), value...))
	return nil, nil
}

func (f *fakeRegisters) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func TestPoller_WritesLatestPendingCommandOnce(t *testing.T) {
	regs := &fakeRegisters{status: []byte{0x31, 0, 0, 0, 0, 0}}
	p := NewPoller(regs, time.Millisecond, zaptest.NewLogger(t))

	var got []gripper.DeviceStatus
	p.OnStatus(func(s gripper.DeviceStatus) { got = append(got, s) })

	require.NoError(t, p.Publish(gripper.ActivationCommand()))
	require.NoError(t, p.Publish(gripper.StopCommand()))
	p.poll()
	p.poll()

	require.Len(t, regs.writes, 1, "only the newest command is written")
	assert.Equal(t, CommandAddress, regs.addrs[0])
	assert.Equal(t, EncodeCommand(gripper.StopCommand()), regs.writes[0])

	require.Len(t, got, 2)
	assert.True(t, gripper.IsReady(got[0]))
}

func TestPoller_ReadErrorSkipsHandler(t *testing.T) {
	regs := &fakeRegisters{readErr: errors.New("timeout")}
	p := NewPoller(regs, time.Millisecond, zaptest.NewLogger(t))

	called := false
	p.OnStatus(func(gripper.DeviceStatus) { called = true })
	p.poll()

	assert.False(t, called)
}

func TestPoller_StartStop(t *testing.T) {
	regs := &fakeRegisters{status: []byte{0x31, 0, 0, 0, 0, 0}}
	p := NewPoller(regs, time.Millisecond, zap.NewNop())

	statuses := make(chan gripper.DeviceStatus, 16)
	p.OnStatus(func(s gripper.DeviceStatus) {
		select {
		case statuses <- s:
		default:
		}
	})

	require.NoError(t, p.Start())
	require.NoError(t, p.Start(), "starting twice is a no-op")
	assert.True(t, p.IsRunning())

	require.NoError(t, p.Publish(gripper.ActivationCommand()))

	select {
	case <-statuses:
	case <-time.After(2 * time.Second):
		t.Fatal("no status polled")
	}
	require.Eventually(t, func() bool { return regs.writeCount() == 1 }, 2*time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())
	p.Stop()
}

func TestPoller_StartWithoutClient(t *testing.T) {
	p := NewPoller(nil, time.Millisecond, zap.NewNop())
	require.Error(t, p.Start())
	assert.False(t, p.IsRunning())

	p.SetClient(&fakeRegisters{status: make([]byte, 6)})
	require.NoError(t, p.Start())
	p.Stop()
}
