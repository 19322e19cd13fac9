package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/archokshi/optiinfra/internal/agentruntime"
	"github.com/archokshi/optiinfra/internal/collector"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/archokshi/optiinfra/internal/workflow"
)

// domainDataType maps a URL {domain} segment to the core.DataType the
// Query Readers and Collection Scheduler key on, per spec.md §6's
// `/api/v2/{domain}/{customer_id}/{provider}/...` surface.
func domainDataType(domain string) (core.DataType, bool) {
	switch domain {
	case "cost":
		return core.DataTypeCost, true
	case "performance":
		return core.DataTypePerformance, true
	case "resource":
		return core.DataTypeResource, true
	case "application":
		return core.DataTypeApplication, true
	default:
		return "", false
	}
}

// domainMetrics serves a domain agent's narrow read surface:
// `/api/v2/{domain}/{customer_id}/{provider}/metrics` returning
// {metric_count, metrics[]} over the requested window, per spec.md §6.
func (h *handlers) domainMetrics(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if _, ok := domainDataType(domain); !ok {
		writeError(w, http.StatusNotFound, "unknown domain "+domain)
		return
	}
	customerID := chi.URLParam(r, "customerID")
	provider := chi.URLParam(r, "provider")
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since and until query params must be RFC3339 timestamps")
		return
	}

	var rows any
	switch domain {
	case "cost":
		rows, err = h.deps.Reader.Cost(r.Context(), customerID, provider, window)
	case "performance":
		rows, err = h.deps.Reader.Performance(r.Context(), customerID, provider, window)
	case "resource":
		rows, err = h.deps.Reader.Resource(r.Context(), customerID, provider, window)
	case "application":
		rows, err = h.deps.Reader.Application(r.Context(), customerID, provider, window)
	}
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metric_count": metricCount(rows), "metrics": rows})
}

func metricCount(rows any) int {
	switch v := rows.(type) {
	case []core.CostMetric:
		return len(v)
	case []core.PerformanceMetric:
		return len(v)
	case []core.ResourceMetric:
		return len(v)
	case []core.ApplicationMetric:
		return len(v)
	default:
		return 0
	}
}

type domainTriggerRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	Provider   string `json:"provider" validate:"required"`
	AsyncMode  bool   `json:"async_mode"`
}

// domainTriggerCollection is a single-data-type on-demand pull scoped to
// one domain agent, per spec.md §6's `POST /api/v2/{domain}/trigger-collection`.
func (h *handlers) domainTriggerCollection(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	dataType, ok := domainDataType(domain)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown domain "+domain)
		return
	}

	var req domainTriggerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	full, err := h.verifiedCredential(r.Context(), req.CustomerID, req.Provider)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}

	job := collector.Job{Credential: *full, DataType: dataType}
	if req.AsyncMode {
		id, err := h.deps.Scheduler.EnqueueAsync(job)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"history_id": id, "status": "queued"})
		return
	}
	outcome := h.deps.Scheduler.RunNow(r.Context(), job)
	resp := map[string]any{"history_id": outcome.HistoryID, "status": outcome.Status, "metrics_collected": outcome.Count}
	if outcome.Err != nil {
		resp["error"] = outcome.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type domainApproveRequest struct {
	RecommendationID   string         `json:"recommendation_id" validate:"required"`
	RecommendationType string         `json:"recommendation_type" validate:"required"`
	Detail             map[string]any `json:"detail"`
}

// domainApprove lets a peer agent cast its vote on another agent's
// recommendation, per spec.md §6's `POST /{domain}/approve`. In this
// single-process deployment the Workflow Engine's own approval gate calls
// each registered Handler in-process (see workflow.approvalGate) rather
// than over this HTTP surface; the route exists so an external caller or a
// future out-of-process agent can exercise the same vote.
func (h *handlers) domainApprove(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if h.deps.Agents == nil {
		writeError(w, http.StatusServiceUnavailable, "agent runtime not configured")
		return
	}
	handler, ok := h.deps.Agents.Get(domain)
	if !ok {
		writeError(w, http.StatusNotFound, "no handler registered for domain "+domain)
		return
	}

	var req domainApproveRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vote, err := handler.VoteOn(r.Context(), req.RecommendationType, req.Detail)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	if err := h.deps.Relational.RecordApproval(r.Context(), req.RecommendationID, domain, vote.Approved, vote.Confidence, vote.Rationale); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, vote)
}

type domainEvaluateRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	Provider   string `json:"provider" validate:"required"`
}

// domainEvaluate asks a domain agent to evaluate its customer/provider
// window and, for every recommendation it proposes, persists it and drives
// it through the full Workflow Engine (approval gate, gradual rollout,
// checkpointing) using a NoopExecutor for the concrete infrastructure
// action, since which provider SDK call a recommendation names is out of
// scope here (spec.md §1). This is the HTTP path that actually constructs
// and invokes the engine end to end.
func (h *handlers) domainEvaluate(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if h.deps.Agents == nil || h.deps.Workflow == nil {
		writeError(w, http.StatusServiceUnavailable, "workflow engine not configured")
		return
	}
	handler, ok := h.deps.Agents.Get(domain)
	if !ok {
		writeError(w, http.StatusNotFound, "no handler registered for domain "+domain)
		return
	}

	var req domainEvaluateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	window := core.Window{Since: time.Now().Add(-time.Hour), Until: time.Now()}
	evalResp, err := handler.Evaluate(r.Context(), agentruntime.EvaluationRequest{
		CustomerID: req.CustomerID, Provider: req.Provider, Window: window,
	})
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	if len(evalResp.Recommendations) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"recommendations": []string{}})
		return
	}

	results := make([]map[string]any, 0, len(evalResp.Recommendations))
	for _, draft := range evalResp.Recommendations {
		recID, optID, executionID := core.NewID(), core.NewID(), core.NewID()

		if err := h.deps.Relational.CreateRecommendation(r.Context(), relational.Recommendation{
			ID: recID, OptimizationID: optID, CustomerID: req.CustomerID, AgentID: domain, RecommendationType: draft.Type,
		}, draft.Detail); err != nil {
			results = append(results, map[string]any{"recommendation_type": draft.Type, "error": err.Error()})
			continue
		}
		if err := h.deps.Relational.CreateOptimization(r.Context(), optID, recID); err != nil {
			results = append(results, map[string]any{"recommendation_type": draft.Type, "error": err.Error()})
			continue
		}

		steps := []workflow.StepSpec{{Name: draft.Type, Input: draft.Detail}}
		runErr := h.deps.Workflow.Run(r.Context(), executionID, optID, domain, req.CustomerID, domain+"_optimization",
			recID, draft.Type, draft.Detail, steps, workflow.NoopExecutor{})

		entry := map[string]any{"recommendation_id": recID, "optimization_id": optID, "recommendation_type": draft.Type}
		if runErr != nil {
			entry["status"] = "failed"
			entry["error"] = runErr.Error()
		} else {
			entry["status"] = "success"
		}
		results = append(results, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": results})
}
