package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/omron-sinicx/robotiq-cri/internal/action"
)

var ErrGoalNotFound = errors.New("goal not found")

const DefaultHistoryLimit = 50

const createGoalExecutions = `
	CREATE TABLE IF NOT EXISTS goal_executions (
		id              UUID PRIMARY KEY,
		gripper         TEXT NOT NULL,
		api             TEXT NOT NULL,
		target_position DOUBLE PRECISION NOT NULL,
		target_velocity DOUBLE PRECISION NOT NULL,
		target_force    DOUBLE PRECISION NOT NULL,
		status          TEXT NOT NULL,
		final_position  DOUBLE PRECISION NOT NULL,
		stalled         BOOLEAN NOT NULL,
		reached_goal    BOOLEAN NOT NULL,
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS goal_executions_started_at_idx ON goal_executions (started_at DESC);
`

// EnsureSchema creates the goal history table if it does not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createGoalExecutions); err != nil {
		return fmt.Errorf("failed to create goal_executions: %w", err)
	}
	return nil
}

// RecordGoal implements action.Recorder.
func (p *PostgresClient) RecordGoal(ctx context.Context, rec action.Record) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO goal_executions (
			id, gripper, api, target_position, target_velocity, target_force,
			status, final_position, stalled, reached_goal, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, p.gripper, string(rec.Kind),
		rec.Goal.Position, rec.Goal.Velocity, rec.Goal.Force,
		string(rec.Outcome.Status), rec.Outcome.FinalPosition, rec.Outcome.Stalled, rec.Outcome.ReachedGoal,
		rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert goal execution: %w", err)
	}
	return nil
}

// ListGoals returns the most recent goals of this gripper, newest first.
func (p *PostgresClient) ListGoals(ctx context.Context, limit int) ([]GoalExecution, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := p.db.Query(ctx, `
		SELECT id, gripper, api, target_position, target_velocity, target_force,
		       status, final_position, stalled, reached_goal, started_at, finished_at
		FROM goal_executions
		WHERE gripper = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, p.gripper, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal executions: %w", err)
	}
	defer rows.Close()

	var goals []GoalExecution
	for rows.Next() {
		var g GoalExecution
		if err := scanGoal(rows, &g); err != nil {
			return nil, fmt.Errorf("failed to scan goal execution: %w", err)
		}
		goals = append(goals, g)
	}

	return goals, rows.Err()
}

func (p *PostgresClient) GetGoal(ctx context.Context, id uuid.UUID) (*GoalExecution, error) {
	var g GoalExecution
	err := scanGoal(p.db.QueryRow(ctx, `
		SELECT id, gripper, api, target_position, target_velocity, target_force,
		       status, final_position, stalled, reached_goal, started_at, finished_at
		FROM goal_executions
		WHERE id = $1
	`, id), &g)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrGoalNotFound, id)
		}
		return nil, fmt.Errorf("failed to load goal execution: %w", err)
	}

	return &g, nil
}

func scanGoal(row pgx.Row, g *GoalExecution) error {
	return row.Scan(
		&g.ID,
		&g.Gripper,
		&g.API,
		&g.TargetPosition,
		&g.TargetVelocity,
		&g.TargetForce,
		&g.Status,
		&g.FinalPosition,
		&g.Stalled,
		&g.ReachedGoal,
		&g.StartedAt,
		&g.FinishedAt,
	)
}
