package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/collector"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/relational"
)

// demoModeKey/demoModeValue mirror the collector package's own credential
// metadata convention for bypassing the round-trip probe (spec.md §4.4);
// duplicated rather than imported so this package doesn't need to reach
// into collector's unexported internals for a two-constant convention.
const demoModeKey = "mode"
const demoModeValue = "demo"

// cachedJSON serves key from h.deps.Cache if present, otherwise calls load,
// caches its JSON encoding for the configured TTL, and writes the response
// either way. Read-through caching for listing endpoints whose backing
// tables change far less often than they're read.
func (h *handlers) cachedJSON(w http.ResponseWriter, r *http.Request, key string, load func() (any, error)) {
	ctx := r.Context()
	if cached, ok, err := h.deps.Cache.Get(ctx, key); err == nil && ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	body, err := load()
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = h.deps.Cache.Set(ctx, key, encoded, h.deps.CacheTTL)
	writeJSON(w, http.StatusOK, body)
}

type handlers struct {
	deps Deps
}

// validate is shared across every request body this package decodes, the
// same single-instance-per-process pattern ops-agent's confgenerator uses
// for its own struct-tag validation.
var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeAndValidate reads a JSON body into dst and runs struct-tag
// validation, replacing each handler's own ad hoc required-field checks.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindUnavailable, core.KindTransient:
		return http.StatusServiceUnavailable
	case core.KindApprovalDenied:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// --- credentials --------------------------------------------------------

type createCredentialRequest struct {
	Provider       string            `json:"provider" validate:"required"`
	CredentialName string            `json:"credential_name" validate:"required"`
	Secret         map[string]string `json:"secret" validate:"required"`
	Metadata       map[string]string `json:"metadata"`
}

func (h *handlers) createCredential(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req createCredentialRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := core.NewID()
	if err := h.deps.Credentials.Create(r.Context(), id, customerID, req.Provider, req.CredentialName, req.Secret, req.Metadata); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	_ = h.deps.Cache.Delete(r.Context(), credentialsCacheKey(customerID))

	verified := h.verifyNewCredential(r.Context(), id, req.Provider, req.Secret, req.Metadata)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "is_verified": verified})
}

// verifyNewCredential runs the same round-trip-probe-or-demo-bypass check
// the background discovery loop runs on a timer, but inline at creation
// time so a caller finds out immediately whether the credential it just
// submitted actually works (spec.md §4.4). A failed probe is not an error:
// the credential is stored unverified and the background loop will retry it.
func (h *handlers) verifyNewCredential(ctx context.Context, id, provider string, secret, metadata map[string]string) bool {
	if metadata[demoModeKey] == demoModeValue {
		_ = h.deps.Credentials.MarkVerified(ctx, id, true)
		return true
	}
	if h.deps.Registry == nil {
		return false
	}
	a, err := h.deps.Registry.Build(adapter.Config{Provider: provider})
	if err != nil {
		return false
	}
	cred := core.Credential{ID: id, Provider: provider, Secret: secret, Metadata: metadata}
	if err := adapter.Probe(ctx, a, cred); err != nil {
		return false
	}
	_ = h.deps.Credentials.MarkVerified(ctx, id, true)
	return true
}

func credentialsCacheKey(customerID string) string { return "credentials:" + customerID }

func (h *handlers) listCredentials(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	h.cachedJSON(w, r, credentialsCacheKey(customerID), func() (any, error) {
		return h.deps.Credentials.ListByCustomer(r.Context(), customerID)
	})
}

func (h *handlers) deleteCredential(w http.ResponseWriter, r *http.Request) {
	credentialID := chi.URLParam(r, "credentialID")
	cred, err := h.deps.Credentials.Get(r.Context(), credentialID)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	if err := h.deps.Credentials.SoftDelete(r.Context(), credentialID, time.Now()); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	_ = h.deps.Cache.Delete(r.Context(), credentialsCacheKey(cred.CustomerID))
	w.WriteHeader(http.StatusNoContent)
}

// --- collections ---------------------------------------------------------

// triggerCollectionRequest matches spec.md §4.3/§6's on-demand collection
// contract: one or more data types pulled in a single call, with
// async_mode selecting between a 202-and-poll-later response and a
// blocking call that returns row counts directly.
type triggerCollectionRequest struct {
	Provider  string          `json:"provider" validate:"required"`
	DataTypes []core.DataType `json:"data_types" validate:"required,min=1,dive,oneof=cost performance resource application"`
	AsyncMode bool            `json:"async_mode"`
}

type collectionOutcome struct {
	DataType  core.DataType `json:"data_type"`
	HistoryID string        `json:"history_id"`
	Status    string        `json:"status,omitempty"`
	Count     int           `json:"metrics_collected,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// triggerCollection resolves customerID's verified credential for
// req.Provider and runs one collection job per requested data type,
// refusing to run against a credential that hasn't passed verification
// (spec.md §4.4) — the gap the discovery loop alone doesn't close for
// on-demand requests.
func (h *handlers) triggerCollection(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req triggerCollectionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.runCollectionTrigger(w, r, customerID, req.Provider, req.DataTypes, req.AsyncMode)
}

// runCollectionTrigger is the body both the nested (`triggerCollection`)
// and flat (`collectTriggerFlat`) on-demand collection routes share, so a
// fix to the verification gate or response shape can't drift between the
// two URL shapes that front the same operation (spec.md §6).
func (h *handlers) runCollectionTrigger(w http.ResponseWriter, r *http.Request, customerID, provider string, dataTypes []core.DataType, asyncMode bool) {
	full, err := h.verifiedCredential(r.Context(), customerID, provider)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}

	if asyncMode {
		outcomes := make([]collectionOutcome, 0, len(dataTypes))
		for _, dt := range dataTypes {
			id, err := h.deps.Scheduler.EnqueueAsync(collector.Job{Credential: *full, DataType: dt})
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			outcomes = append(outcomes, collectionOutcome{DataType: dt, HistoryID: id, Status: "queued"})
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"customer_id": customerID, "provider": provider, "results": outcomes})
		return
	}

	// Each data type targets an independent adapter round trip and table, so
	// the synchronous path runs them concurrently instead of paying their
	// latencies back-to-back; outcomes is pre-sized and written by index so
	// the response preserves the request's data_types order regardless of
	// which goroutine finishes first.
	outcomes := make([]collectionOutcome, len(dataTypes))
	var eg errgroup.Group
	for i, dt := range dataTypes {
		i, dt := i, dt
		eg.Go(func() error {
			result := h.deps.Scheduler.RunNow(r.Context(), collector.Job{Credential: *full, DataType: dt})
			o := collectionOutcome{DataType: dt, HistoryID: result.HistoryID, Status: result.Status, Count: result.Count}
			if result.Err != nil {
				o.Error = result.Err.Error()
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = eg.Wait()

	writeJSON(w, http.StatusOK, map[string]any{"customer_id": customerID, "provider": provider, "results": outcomes})
}

// verifiedCredential resolves customerID's credential for provider and
// rejects it unless it has passed verification, per spec.md §4.4 — the
// on-demand path must honor the same gate the background discovery loop
// applies via ListAllActive.
func (h *handlers) verifiedCredential(ctx context.Context, customerID, provider string) (*relational.Credential, error) {
	creds, err := h.deps.Credentials.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	var match *relational.Credential
	for i := range creds {
		if creds[i].Provider == provider {
			match = &creds[i]
			break
		}
	}
	if match == nil {
		return nil, core.New(core.KindNotFound, "httpapi", "no credential on file for that provider", nil)
	}
	if !match.IsVerified {
		return nil, core.New(core.KindValidation, "httpapi", "credential has not passed verification yet", nil)
	}
	return h.deps.Credentials.Get(ctx, match.ID)
}

// --- metrics ---------------------------------------------------------------

func parseWindow(r *http.Request) (core.Window, error) {
	q := r.URL.Query()
	since, err := time.Parse(time.RFC3339, q.Get("since"))
	if err != nil {
		return core.Window{}, err
	}
	until, err := time.Parse(time.RFC3339, q.Get("until"))
	if err != nil {
		return core.Window{}, err
	}
	return core.Window{Since: since, Until: until}, nil
}

func (h *handlers) queryCost(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	provider := r.URL.Query().Get("provider")
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since and until query params must be RFC3339 timestamps")
		return
	}
	rows, err := h.deps.Reader.Cost(r.Context(), customerID, provider, window)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) queryPerformance(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	provider := r.URL.Query().Get("provider")
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since and until query params must be RFC3339 timestamps")
		return
	}
	rows, err := h.deps.Reader.Performance(r.Context(), customerID, provider, window)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) queryResource(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	provider := r.URL.Query().Get("provider")
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since and until query params must be RFC3339 timestamps")
		return
	}
	rows, err := h.deps.Reader.Resource(r.Context(), customerID, provider, window)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) queryApplication(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	provider := r.URL.Query().Get("provider")
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since and until query params must be RFC3339 timestamps")
		return
	}
	rows, err := h.deps.Reader.Application(r.Context(), customerID, provider, window)
	if err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// --- agents & approvals ------------------------------------------------

func (h *handlers) listAgentsByType(w http.ResponseWriter, r *http.Request) {
	agentType := chi.URLParam(r, "agentType")
	h.cachedJSON(w, r, "agents:"+agentType, func() (any, error) {
		return h.deps.Relational.ListAgentsByType(r.Context(), agentType)
	})
}

type recordApprovalRequest struct {
	AgentType  string  `json:"agent_type" validate:"required"`
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence" validate:"min=0,max=1"`
	Rationale  string  `json:"rationale"`
}

func (h *handlers) recordApproval(w http.ResponseWriter, r *http.Request) {
	recommendationID := chi.URLParam(r, "recommendationID")

	var req recordApprovalRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.Relational.RecordApproval(r.Context(), recommendationID, req.AgentType, req.Approved, req.Confidence, req.Rationale); err != nil {
		writeError(w, statusForKind(core.KindOf(err)), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
