package storage

import (
	"time"

	"github.com/google/uuid"
)

// GoalExecution is one row of goal_executions.
type GoalExecution struct {
	ID             uuid.UUID `json:"id"`
	Gripper        string    `json:"gripper"`
	API            string    `json:"api"`
	TargetPosition float64   `json:"target_position"`
	TargetVelocity float64   `json:"target_velocity"`
	TargetForce    float64   `json:"target_force"`
	Status         string    `json:"status"`
	FinalPosition  float64   `json:"final_position"`
	Stalled        bool      `json:"stalled"`
	ReachedGoal    bool      `json:"reached_goal"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
