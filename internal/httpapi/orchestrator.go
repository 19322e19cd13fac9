package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/archokshi/optiinfra/internal/core"
)

// This file holds the orchestrator-level routes spec.md §6 names at the
// top level (not nested under /customers/{customerID}/...): a flat
// credentials surface keyed by provider+customer_id, and a flat collection
// trigger. They share their logic with the nested /api/v1/customers/...
// routes already in handlers.go rather than duplicating it.

type createCredentialFlatRequest struct {
	CustomerID     string            `json:"customer_id" validate:"required"`
	Provider       string            `json:"provider" validate:"required"`
	CredentialName string            `json:"credential_name" validate:"required"`
	Secret         map[string]string `json:"secret" validate:"required"`
	Metadata       map[string]string `json:"metadata"`
}

// createCredentialFlat backs `POST /api/v1/credentials`.
func (h *handlers) createCredentialFlat(w http.ResponseWriter, r *http.Request) {
	var req createCredentialFlatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := core.NewID()
	if err := h.deps.Credentials.Create(r.Context(), id, req.CustomerID, req.Provider, req.CredentialName, req.Secret, req.Metadata); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	_ = h.deps.Cache.Delete(r.Context(), credentialsCacheKey(req.CustomerID))

	verified := h.verifyNewCredential(r.Context(), id, req.Provider, req.Secret, req.Metadata)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "is_verified": verified})
}

// getCredentialByProvider backs `GET /api/v1/credentials/{provider}?customer_id`.
func (h *handlers) getCredentialByProvider(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	provider := chi.URLParam(r, "provider")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id query parameter is required")
		return
	}
	creds, err := h.deps.Credentials.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	for i := range creds {
		if creds[i].Provider == provider {
			writeJSON(w, http.StatusOK, creds[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "no credential on file for that provider")
}

// deleteCredentialByProvider backs `DELETE /api/v1/credentials/{provider}?customer_id`.
func (h *handlers) deleteCredentialByProvider(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	provider := chi.URLParam(r, "provider")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id query parameter is required")
		return
	}
	creds, err := h.deps.Credentials.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	var id string
	for i := range creds {
		if creds[i].Provider == provider {
			id = creds[i].ID
			break
		}
	}
	if id == "" {
		writeError(w, http.StatusNotFound, "no credential on file for that provider")
		return
	}
	if err := h.deps.Credentials.SoftDelete(r.Context(), id, time.Now()); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	_ = h.deps.Cache.Delete(r.Context(), credentialsCacheKey(customerID))
	w.WriteHeader(http.StatusNoContent)
}

type collectTriggerFlatRequest struct {
	CustomerID string          `json:"customer_id" validate:"required"`
	Provider   string          `json:"provider" validate:"required"`
	DataTypes  []core.DataType `json:"data_types" validate:"required,min=1,dive,oneof=cost performance resource application"`
	AsyncMode  bool            `json:"async_mode"`
}

// collectTriggerFlat backs `POST /api/v1/collect/trigger`, spec.md §6's
// top-level on-demand collection entry point.
func (h *handlers) collectTriggerFlat(w http.ResponseWriter, r *http.Request) {
	var req collectTriggerFlatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.runCollectionTrigger(w, r, req.CustomerID, req.Provider, req.DataTypes, req.AsyncMode)
}
