package gripper

// ActivationState tracks the activation handshake.
type ActivationState string

const (
	ActivationUnknown    ActivationState = "unknown"
	ActivationActivating ActivationState = "activating"
	ActivationReady      ActivationState = "ready"
	ActivationFailed     ActivationState = "failed"
)

func (s ActivationState) String() string {
	return string(s)
}

// ActivationMode selects how a goal handles a device that is not ready.
type ActivationMode string

const (
	// ActivationConfirmed blocks until the device reports ready or the
	// activation timeout elapses.
	ActivationConfirmed ActivationMode = "confirmed"
	// ActivationSilent fires one activation command and carries on.
	ActivationSilent ActivationMode = "silent"
)

func (m ActivationMode) Valid() bool {
	return m == ActivationConfirmed || m == ActivationSilent
}
