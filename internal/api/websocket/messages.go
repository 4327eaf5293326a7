package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Goal execution messages
	MessageTypeGoalFeedback MessageType = "goal_feedback"
	MessageTypeGoalResult   MessageType = "goal_result"

	// Telemetry messages
	MessageTypeJointState    MessageType = "joint_state"
	MessageTypeGripperStatus MessageType = "gripper_status"

	// Device state messages
	MessageTypeActivationState MessageType = "activation_state"

	// Connection messages
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// GoalFeedbackData is sent once per control tick of a running goal.
type GoalFeedbackData struct {
	GoalID      string  `json:"goal_id"`
	API         string  `json:"api"`
	Position    float64 `json:"position"`
	Velocity    float64 `json:"velocity"`
	Stalled     bool    `json:"stalled"`
	ReachedGoal bool    `json:"reached_goal"`
}

type GoalResultData struct {
	GoalID        string  `json:"goal_id"`
	API           string  `json:"api"`
	Status        string  `json:"status"`
	FinalPosition float64 `json:"final_position"`
	Stalled       bool    `json:"stalled"`
	ReachedGoal   bool    `json:"reached_goal"`
	DurationMS    int64   `json:"duration_ms"`
}

// ActivationStateData represents an activation state change
type ActivationStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewActivationStateMessage(state, previous string) Message {
	return NewMessage(MessageTypeActivationState, ActivationStateData{
		State:    state,
		Previous: previous,
	})
}
