package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/relational"
)

// registerAgentRequest mirrors spec.md §6's orchestrator registration body.
type registerAgentRequest struct {
	Type               string   `json:"type" validate:"required,oneof=cost performance resource application"`
	Endpoint           string   `json:"endpoint" validate:"required"`
	Capabilities       []string `json:"capabilities"`
	HeartbeatIntervalS int      `json:"heartbeat_interval_s" validate:"required,min=1"`
}

// registerAgent records an agent instance's lifecycle start per spec.md
// §4.6 step 1. In this single-process deployment the four domain Handlers
// are already wired into agentruntime.Registry at startup (see
// cmd/optiinfra/main.go); registration here tracks presence/health for the
// dashboard and heartbeat reaper, it does not add a new in-process Handler.
func (h *handlers) registerAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := core.NewID()
	agent := relational.Agent{
		ID: id, Type: req.Type, Endpoint: req.Endpoint,
		Capabilities: req.Capabilities, HeartbeatIntervalS: req.HeartbeatIntervalS,
	}
	if err := h.deps.Relational.RegisterAgent(r.Context(), agent); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// heartbeat records a liveness ping, transitioning agents.status toward
// active per the agents.status state machine (spec.md §4.6).
func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := h.deps.Relational.RecordHeartbeat(r.Context(), agentID, time.Now()); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
