package relational

import (
	"context"
	"encoding/json"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
)

// RecordEvent appends an audit-trail row to events, per spec.md §3's
// "append-only event log" requirement.
func (s *Store) RecordEvent(ctx context.Context, id, customerID, eventType string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal event payload", err)
	}
	_, err = s.Pool.Exec(ctx, `
        INSERT INTO events (id, customer_id, event_type, payload)
        VALUES ($1, $2, $3, $4)`,
		id, customerID, eventType, payloadJSON)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "record event", err)
	}
	return nil
}

// Recommendation is a row of recommendations (spec.md §4.6/§4.7).
type Recommendation struct {
	ID                 string
	OptimizationID     string
	CustomerID         string
	AgentID            string
	RecommendationType string
	Detail             json.RawMessage
	CreatedAt          time.Time
}

// CreateRecommendation inserts a recommendation proposed by a domain agent.
func (s *Store) CreateRecommendation(ctx context.Context, r Recommendation, detail any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal recommendation detail", err)
	}
	_, err = s.Pool.Exec(ctx, `
        INSERT INTO recommendations (id, optimization_id, customer_id, agent_id, recommendation_type, detail)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.OptimizationID, r.CustomerID, r.AgentID, r.RecommendationType, detailJSON)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "create recommendation", err)
	}
	return nil
}

// RecordApproval stores one peer agent's vote on a recommendation, per
// spec.md §4.7's cross-domain approval gate (each of the four domain agents
// votes approve/deny with a confidence score before a workflow proceeds).
func (s *Store) RecordApproval(ctx context.Context, recommendationID, agentType string, approved bool, confidence float64, rationale string) error {
	_, err := s.Pool.Exec(ctx, `
        INSERT INTO approvals (recommendation_id, approving_agent_type, approved, confidence, rationale)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (recommendation_id, approving_agent_type)
        DO UPDATE SET approved = EXCLUDED.approved, confidence = EXCLUDED.confidence,
            rationale = EXCLUDED.rationale, decided_at = now()`,
		recommendationID, agentType, approved, confidence, nullIfEmpty(rationale))
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "record approval", err)
	}
	return nil
}

// ApprovalTally is the outcome of counting votes cast so far for a
// recommendation. MeanConfidence averages every cast vote's confidence
// regardless of its literal approved/denied decision, per spec.md §8
// invariant 3 ("no approved=false AND mean confidence >= 0.75") — the two
// conditions are independent and must be evaluated separately.
type ApprovalTally struct {
	Approved       int
	Denied         int
	MeanConfidence float64
	Pending        []string // agent types that have not yet voted
}

// Tally counts approvals already cast for recommendationID among
// requiredAgentTypes, used by the Workflow Engine to decide whether the
// approval gate has enough votes to proceed (spec.md §4.7).
func (s *Store) Tally(ctx context.Context, recommendationID string, requiredAgentTypes []string) (ApprovalTally, error) {
	rows, err := s.Pool.Query(ctx, `
        SELECT approving_agent_type, approved, confidence FROM approvals WHERE recommendation_id = $1`, recommendationID)
	if err != nil {
		return ApprovalTally{}, core.New(core.KindUnavailable, "relational", "query approvals", err)
	}
	defer rows.Close()

	voted := map[string]bool{}
	var tally ApprovalTally
	var confidenceSum float64
	var voteCount int
	for rows.Next() {
		var agentType string
		var approved bool
		var confidence float64
		if err := rows.Scan(&agentType, &approved, &confidence); err != nil {
			return ApprovalTally{}, core.New(core.KindUnavailable, "relational", "scan approval row", err)
		}
		voted[agentType] = true
		voteCount++
		confidenceSum += confidence
		if approved {
			tally.Approved++
		} else {
			tally.Denied++
		}
	}
	if err := rows.Err(); err != nil {
		return ApprovalTally{}, core.New(core.KindUnavailable, "relational", "iterate approvals", err)
	}
	if voteCount > 0 {
		tally.MeanConfidence = confidenceSum / float64(voteCount)
	}

	for _, agentType := range requiredAgentTypes {
		if !voted[agentType] {
			tally.Pending = append(tally.Pending, agentType)
		}
	}
	return tally, nil
}

// RecommendationSummary is the flattened shape the dashboard's
// recommendations[] entries use: detail decoded back into a map so API
// clients don't need to re-parse a nested JSON string.
type RecommendationSummary struct {
	ID                 string         `json:"id"`
	OptimizationID     string         `json:"optimization_id"`
	AgentID            string         `json:"agent_id"`
	RecommendationType string         `json:"recommendation_type"`
	Detail             map[string]any `json:"detail"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ListRecentRecommendations returns customerID's most recently created
// recommendations, newest first, bounded to limit — the query behind the
// dashboard's recommendations[] entries.
func (s *Store) ListRecentRecommendations(ctx context.Context, customerID string, limit int) ([]RecommendationSummary, error) {
	rows, err := s.Pool.Query(ctx, `
        SELECT id, optimization_id, agent_id, recommendation_type, detail, created_at
        FROM recommendations WHERE customer_id = $1
        ORDER BY created_at DESC LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "relational", "list recent recommendations", err)
	}
	defer rows.Close()

	var out []RecommendationSummary
	for rows.Next() {
		var r RecommendationSummary
		var detailJSON json.RawMessage
		if err := rows.Scan(&r.ID, &r.OptimizationID, &r.AgentID, &r.RecommendationType, &detailJSON, &r.CreatedAt); err != nil {
			return nil, core.New(core.KindUnavailable, "relational", "scan recommendation row", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &r.Detail); err != nil {
				return nil, core.New(core.KindFatal, "relational", "unmarshal recommendation detail", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateOptimization inserts the execution record a recommendation becomes
// once the approval gate clears, in outcome=pending.
func (s *Store) CreateOptimization(ctx context.Context, id, recommendationID string) error {
	_, err := s.Pool.Exec(ctx, `
        INSERT INTO optimizations (id, recommendation_id, outcome)
        VALUES ($1, $2, 'pending')`, id, recommendationID)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "create optimization", err)
	}
	return nil
}

// StartOptimization marks an optimization as executing.
func (s *Store) StartOptimization(ctx context.Context, id string, executedAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE optimizations SET executed_at = $2 WHERE id = $1`, id, executedAt)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "start optimization", err)
	}
	return nil
}

// CompleteOptimization records the terminal outcome of an optimization, per
// spec.md §4.7's undo path (outcome can be rolled_back when a validation
// check fails post-rollout).
func (s *Store) CompleteOptimization(ctx context.Context, id, outcome string, completedAt time.Time, detail any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal optimization detail", err)
	}
	_, err = s.Pool.Exec(ctx, `
        UPDATE optimizations SET outcome = $2, completed_at = $3, detail = $4 WHERE id = $1`,
		id, outcome, completedAt, detailJSON)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "complete optimization", err)
	}
	return nil
}
