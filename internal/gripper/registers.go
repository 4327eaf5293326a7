package gripper

// ObjectStatus is the gOBJ object detection code.
type ObjectStatus uint8

const (
	ObjectNone            ObjectStatus = 0 // fingers moving, nothing detected
	ObjectDetectedOpening ObjectStatus = 1
	ObjectDetectedClosing ObjectStatus = 2
	ObjectAtPosition      ObjectStatus = 3 // reached requested position, no object
)

func (o ObjectStatus) String() string {
	switch o {
	case ObjectNone:
		return "none"
	case ObjectDetectedOpening:
		return "detected_opening"
	case ObjectDetectedClosing:
		return "detected_closing"
	case ObjectAtPosition:
		return "at_position"
	default:
		return "unknown"
	}
}

// gSTA value reported once the activation sequence has completed.
const activationComplete uint8 = 3

// DeviceStatus is one register snapshot reported by the gripper.
// It is replaced wholesale on every sample, never merged.
type DeviceStatus struct {
	Activated        uint8        `json:"gACT"`
	GoTo             uint8        `json:"gGTO"`
	ActivationStatus uint8        `json:"gSTA"`
	Object           ObjectStatus `json:"gOBJ"`
	Fault            uint8        `json:"gFLT"`
	PositionEcho     uint8        `json:"gPR"`
	Position         uint8        `json:"gPO"`
	Current          uint8        `json:"gCU"`
}

// Command is the register block sent to the gripper. The device keeps
// only the last one received, so it has to be resent while a goal runs.
type Command struct {
	Activate    uint8 `json:"rACT"`
	GoTo        uint8 `json:"rGTO"`
	AutoRelease uint8 `json:"rATR"`
	Position    uint8 `json:"rPR"`
	Speed       uint8 `json:"rSP"`
	Force       uint8 `json:"rFR"`
}

// ActivationCommand requests activation with full speed and default force.
func ActivationCommand() Command {
	return Command{
		Activate: 1,
		GoTo:     1,
		Speed:    255,
		Force:    150,
	}
}

// StopCommand keeps the gripper active but clears the go-to bit.
func StopCommand() Command {
	return Command{Activate: 1, GoTo: 0}
}

// CommandSink accepts commands for the device. Publish must not block on
// device I/O.
type CommandSink interface {
	Publish(cmd Command) error
}

// StatusSource exposes the most recent device status.
type StatusSource interface {
	Latest() DeviceStatus
}
