package relational

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
)

// Agent is a row of the agents table (spec.md §3).
type Agent struct {
	ID                 string
	Type               string
	Status             string
	Endpoint           string
	Capabilities       []string
	HeartbeatIntervalS int
	LastHeartbeatAt    *time.Time
	RegisteredAt       time.Time
}

// RegisterAgent inserts a new agents row in status=registered and a
// matching agent_states row in current_status=idle, per spec.md §4.6 step 1.
func (s *Store) RegisterAgent(ctx context.Context, a Agent) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "begin register agent tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO agents (id, type, status, endpoint, capabilities, heartbeat_interval_s)
        VALUES ($1, $2, 'registered', $3, $4, $5)`,
		a.ID, a.Type, a.Endpoint, a.Capabilities, a.HeartbeatIntervalS)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "insert agent", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO agent_states (agent_id, current_status) VALUES ($1, 'idle')`, a.ID)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "insert agent state", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.New(core.KindUnavailable, "relational", "commit register agent tx", err)
	}
	return nil
}

// RecordHeartbeat updates last_heartbeat_at and flips status to active,
// per spec.md §4.6 step 2 / the agents.status state machine.
func (s *Store) RecordHeartbeat(ctx context.Context, agentID string, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
        UPDATE agents SET last_heartbeat_at = $2, status = 'active'
        WHERE id = $1 AND status != 'terminated'`, agentID, at)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "record heartbeat", err)
	}
	if tag.RowsAffected() == 0 {
		return core.New(core.KindNotFound, "relational", "agent not found or terminated", nil)
	}
	return nil
}

// ReapUnhealthyAgents flips status to unhealthy for every active agent
// whose last heartbeat is older than its interval times graceFactor, per
// the agents.status state machine's "heartbeat timeout" transition.
func (s *Store) ReapUnhealthyAgents(ctx context.Context, now time.Time, graceFactor float64) (int, error) {
	tag, err := s.Pool.Exec(ctx, `
        UPDATE agents
        SET status = 'unhealthy'
        WHERE status = 'active'
          AND last_heartbeat_at IS NOT NULL
          AND last_heartbeat_at < $1 - (heartbeat_interval_s * $2 * interval '1 second')`,
		now, graceFactor)
	if err != nil {
		return 0, core.New(core.KindUnavailable, "relational", "reap unhealthy agents", err)
	}
	return int(tag.RowsAffected()), nil
}

// UnregisterAgent transitions an agent to terminated, per spec.md §4.6 step 4.
func (s *Store) UnregisterAgent(ctx context.Context, agentID string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE agents SET status = 'terminated' WHERE id = $1`, agentID)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "unregister agent", err)
	}
	return nil
}

// SetAgentState updates agent_states.current_status, per the agent_states
// state machine (idle -> busy -> processing -> waiting/idle/error).
func (s *Store) SetAgentState(ctx context.Context, agentID, status string) error {
	_, err := s.Pool.Exec(ctx, `
        UPDATE agent_states SET current_status = $2, updated_at = now() WHERE agent_id = $1`,
		agentID, status)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "set agent state", err)
	}
	return nil
}

// ListAgentsByType returns every non-terminated agent of the given type,
// used by the dashboard and the agents-by-type HTTP handler. The Workflow
// Engine's approval gate does not call it; it polls agentruntime.Registry.
func (s *Store) ListAgentsByType(ctx context.Context, agentType string) ([]Agent, error) {
	rows, err := s.Pool.Query(ctx, `
        SELECT id, type, status, endpoint, capabilities, heartbeat_interval_s, last_heartbeat_at, registered_at
        FROM agents WHERE type = $1 AND status != 'terminated'`, agentType)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "relational", "list agents by type", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Type, &a.Status, &a.Endpoint, &a.Capabilities,
			&a.HeartbeatIntervalS, &a.LastHeartbeatAt, &a.RegisteredAt); err != nil {
			return nil, core.New(core.KindUnavailable, "relational", "scan agent row", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
