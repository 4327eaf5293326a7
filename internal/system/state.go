package system

import "fmt"

// SystemState is the daemon's lifecycle phase, reported by /api/v1/system/status.
type SystemState int

const (
	StateInitializing SystemState = iota
	StateRunning
	StateStopping
	StateStopped
	StateError
)

var stateNames = [...]string{
	StateInitializing: "INITIALIZING",
	StateRunning:      "RUNNING",
	StateStopping:     "STOPPING",
	StateStopped:      "STOPPED",
	StateError:        "ERROR",
}

func (s SystemState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Stopped is terminal: a LifecycleManager is not restarted after Shutdown.
var transitions = map[SystemState]map[SystemState]bool{
	StateInitializing: {StateRunning: true, StateError: true, StateStopping: true},
	StateRunning:      {StateStopping: true, StateError: true},
	StateStopping:     {StateStopped: true},
	StateError:        {StateStopping: true},
	StateStopped:      {},
}

func ValidateTransition(from, to SystemState) error {
	allowed, ok := transitions[from]
	if !ok {
		return fmt.Errorf("invalid current state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid state transition: %s -> %s", from, to)
	}
	return nil
}
