package relational

import (
	"context"
	"encoding/json"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
)

// WorkflowExecution is a row of workflow_executions (spec.md §4.7/§3).
type WorkflowExecution struct {
	ID                  string
	OptimizationID      string
	AgentID             string
	GraphName           string
	Status              string
	CurrentPhasePercent int
	StartedAt           time.Time
	CompletedAt         *time.Time
}

// CreateExecution inserts a new workflow_executions row in status=pending.
func (s *Store) CreateExecution(ctx context.Context, e WorkflowExecution) error {
	_, err := s.Pool.Exec(ctx, `
        INSERT INTO workflow_executions (id, optimization_id, agent_id, graph_name, status, current_phase_percent, started_at)
        VALUES ($1, $2, $3, $4, 'pending', 0, $5)`,
		e.ID, e.OptimizationID, e.AgentID, e.GraphName, e.StartedAt)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "create workflow execution", err)
	}
	return nil
}

// AppendStep records one workflow_steps row and its transition, per
// spec.md §4.7 ("each node execution appends a workflow_steps row with its
// status, and every status change appends a workflow_state_transitions
// row"). sequence is scoped to phasePercent, not global to the execution,
// since each rollout phase re-runs the same ordered steps.
func (s *Store) AppendStep(ctx context.Context, stepID, executionID, stepName string, phasePercent, sequence int, status string, input, output any) error {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal step input", err)
	}
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal step output", err)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "begin append step tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO workflow_steps (id, execution_id, step_name, phase_percent, sequence, status, input, output, started_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		stepID, executionID, stepName, phasePercent, sequence, status, inputJSON, outputJSON)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "insert workflow step", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO workflow_state_transitions (id, execution_id, step_id, from_status, to_status)
        VALUES ($1, $2, $3, '', $4)`,
		core.NewID(), executionID, stepID, status)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "insert state transition", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.New(core.KindUnavailable, "relational", "commit append step tx", err)
	}
	return nil
}

// TransitionStep updates a step's status and records the transition.
func (s *Store) TransitionStep(ctx context.Context, stepID, executionID, fromStatus, toStatus string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "begin transition step tx", err)
	}
	defer tx.Rollback(ctx)

	completedClause := ""
	if toStatus == "completed" || toStatus == "failed" || toStatus == "undone" {
		completedClause = ", completed_at = now()"
	}
	_, err = tx.Exec(ctx, `UPDATE workflow_steps SET status = $2`+completedClause+` WHERE id = $1`, stepID, toStatus)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "update workflow step", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO workflow_state_transitions (id, execution_id, step_id, from_status, to_status)
        VALUES ($1, $2, $3, $4, $5)`,
		core.NewID(), executionID, stepID, fromStatus, toStatus)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "insert state transition", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.New(core.KindUnavailable, "relational", "commit transition step tx", err)
	}
	return nil
}

// SaveArtifact persists a durable before/after snapshot or diff, per
// spec.md §4.7.
func (s *Store) SaveArtifact(ctx context.Context, id, executionID, stepID, artifactType string, content any) error {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal artifact content", err)
	}
	_, err = s.Pool.Exec(ctx, `
        INSERT INTO workflow_artifacts (id, execution_id, step_id, artifact_type, content)
        VALUES ($1, $2, $3, $4, $5)`,
		id, executionID, stepID, artifactType, contentJSON)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "insert workflow artifact", err)
	}
	return nil
}

// AdvancePhase updates the execution's current_phase_percent, per the
// gradual-rollout phase sequence (spec.md §4.7).
func (s *Store) AdvancePhase(ctx context.Context, executionID string, percent int) error {
	_, err := s.Pool.Exec(ctx, `UPDATE workflow_executions SET current_phase_percent = $2 WHERE id = $1`, executionID, percent)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "advance workflow phase", err)
	}
	return nil
}

// CompleteExecution sets the execution's terminal status.
func (s *Store) CompleteExecution(ctx context.Context, executionID, status string, completedAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `
        UPDATE workflow_executions SET status = $2, completed_at = $3 WHERE id = $1`,
		executionID, status, completedAt)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "complete workflow execution", err)
	}
	return nil
}

// ResumePoint returns the last completed step's sequence for executionID
// within phasePercent, so a crashed Workflow Engine resumes only the steps
// still outstanding in the phase it crashed in rather than skipping steps
// in every later phase, per spec.md §4.7's checkpointing invariant.
func (s *Store) ResumePoint(ctx context.Context, executionID string, phasePercent int) (int, error) {
	var lastSequence int
	err := s.Pool.QueryRow(ctx, `
        SELECT COALESCE(MAX(sequence), -1) FROM workflow_steps
        WHERE execution_id = $1 AND phase_percent = $2 AND status = 'completed'`, executionID, phasePercent).Scan(&lastSequence)
	if err != nil {
		return -1, core.New(core.KindUnavailable, "relational", "resolve resume point", err)
	}
	return lastSequence, nil
}
