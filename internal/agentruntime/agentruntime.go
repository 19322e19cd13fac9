// Package agentruntime is the domain-agent process runtime spec.md §4.6
// describes: registration, heartbeat, and the Handler interface a cost/
// performance/resource/application agent implements to both propose
// recommendations and vote on peers' recommendations during a workflow's
// approval gate. The Handler shape is grounded on the teacher's
// core.AgentHandler (internal/orchestrator/sequential.go: a single Run-style
// entry point invoked by an external runtime), generalized from "process one
// event" to "evaluate one customer/provider window".
package agentruntime

import (
	"context"

	"github.com/archokshi/optiinfra/internal/core"
)

// EvaluationRequest is what a Handler needs to propose recommendations.
type EvaluationRequest struct {
	CustomerID string
	Provider   string
	Window     core.Window
}

// RecommendationDraft is one recommendation a Handler proposes; the caller
// (the agent's HTTP surface or the workflow engine) persists it via
// relational.Store.CreateRecommendation.
type RecommendationDraft struct {
	Type   string
	Detail map[string]any
}

// EvaluationResponse is a Handler's output from Evaluate.
type EvaluationResponse struct {
	Recommendations []RecommendationDraft
}

// Vote is a domain agent's opinion on a recommendation proposed by another
// agent, cast during a workflow's cross-domain approval gate (spec.md §4.7).
type Vote struct {
	Approved   bool
	Confidence float64
	Rationale  string
}

// Handler is implemented by each of the four domain agents (cost,
// performance, resource, application).
type Handler interface {
	AgentType() string
	Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResponse, error)
	VoteOn(ctx context.Context, recommendationType string, detail map[string]any) (Vote, error)
}

// Registry maps agent type to the in-process Handler serving it. A
// deployment that runs agents as separate processes instead populates this
// with HTTP-calling adapters implementing the same Handler interface.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the Handler for agentType.
func (r *Registry) Register(agentType string, h Handler) {
	r.handlers[agentType] = h
}

// Get returns the Handler for agentType, if any.
func (r *Registry) Get(agentType string) (Handler, bool) {
	h, ok := r.handlers[agentType]
	return h, ok
}

// Types returns every registered agent type, used by the Workflow Engine to
// compute the full voting quorum (spec.md §4.7).
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
