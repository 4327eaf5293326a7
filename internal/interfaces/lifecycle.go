package interfaces

import "context"

// SystemStatus represents the current daemon state
type SystemStatus struct {
	State          string   `json:"state"`
	Gripper        string   `json:"gripper"`
	Transport      string   `json:"transport"`
	Activation     string   `json:"activation"`
	HasStatus      bool     `json:"has_status"`
	GoalActive     bool     `json:"goal_active"`
	TelemetrySinks []string `json:"telemetry_sinks"`
	HistoryEnabled bool     `json:"history_enabled"`
	StartedAt      int64    `json:"started_at,omitempty"`
}

type LifecycleManager interface {
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
