// Package modbus exchanges the gripper register blocks over Modbus RTU or
// TCP and polls the status block at a fixed interval.
package modbus

import (
	"fmt"

	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
)

const (
	// StatusAddress is the first input register of the status block.
	StatusAddress uint16 = 0x07D0
	// CommandAddress is the first holding register of the command block.
	CommandAddress uint16 = 0x03E8

	// both blocks are three registers (six bytes)
	blockRegisters uint16 = 3
	blockBytes            = int(blockRegisters) * 2
)

// EncodeCommand packs cmd as
// [action request, reserved, reserved, rPR, rSP, rFR].
func EncodeCommand(cmd gripper.Command) []byte {
	action := cmd.Activate&0x01 |
		(cmd.GoTo&0x01)<<3 |
		(cmd.AutoRelease&0x01)<<4

	return []byte{action, 0, 0, cmd.Position, cmd.Speed, cmd.Force}
}

// DecodeStatus unpacks [gripper status, reserved, fault, gPR, gPO, gCU].
func DecodeStatus(b []byte) (gripper.DeviceStatus, error) {
	if len(b) < blockBytes {
		return gripper.DeviceStatus{}, fmt.Errorf("status block too short: got %d bytes, want %d", len(b), blockBytes)
	}

	status := b[0]
	return gripper.DeviceStatus{
		Activated:        status & 0x01,
		GoTo:             (status >> 3) & 0x01,
		ActivationStatus: (status >> 4) & 0x03,
		Object:           gripper.ObjectStatus((status >> 6) & 0x03),
		Fault:            b[2],
		PositionEcho:     b[3],
		Position:         b[4],
		Current:          b[5],
	}, nil
}
