package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/archokshi/optiinfra/internal/agentruntime"
	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for relational.Store, used because
// Store is a concrete *pgxpool.Pool wrapper and no live Postgres is
// available to this test run (SPEC_FULL.md §8's integration-style tests
// lean on in-memory fakes for exactly this reason).
type fakeStore struct {
	mu          sync.Mutex
	executions  map[string]relational.WorkflowExecution
	steps       map[string]fakeStep // keyed by stepID
	optimize    map[string]fakeOptimization
	approvals   map[string]map[string]fakeApproval // recommendationID -> agentType
	artifacts   []fakeArtifact
	executeCall int
}

type fakeStep struct {
	executionID  string
	phasePercent int
	sequence     int
	status       string
}

type fakeOptimization struct {
	outcome     string
	completedAt time.Time
	detail      any
}

type fakeApproval struct {
	approved   bool
	confidence float64
}

type fakeArtifact struct {
	executionID, stepID, artifactType string
	content                           any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		executions: map[string]relational.WorkflowExecution{},
		steps:      map[string]fakeStep{},
		optimize:   map[string]fakeOptimization{},
		approvals:  map[string]map[string]fakeApproval{},
	}
}

func (f *fakeStore) CreateExecution(ctx context.Context, e relational.WorkflowExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[e.ID] = e
	return nil
}

func (f *fakeStore) AppendStep(ctx context.Context, stepID, executionID, stepName string, phasePercent, sequence int, status string, input, output any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[stepID] = fakeStep{executionID: executionID, phasePercent: phasePercent, sequence: sequence, status: status}
	return nil
}

func (f *fakeStore) TransitionStep(ctx context.Context, stepID, executionID, fromStatus, toStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.steps[stepID]
	step.status = toStatus
	f.steps[stepID] = step
	return nil
}

func (f *fakeStore) SaveArtifact(ctx context.Context, id, executionID, stepID, artifactType string, content any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, fakeArtifact{executionID: executionID, stepID: stepID, artifactType: artifactType, content: content})
	return nil
}

func (f *fakeStore) AdvancePhase(ctx context.Context, executionID string, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.executions[executionID]
	e.CurrentPhasePercent = percent
	f.executions[executionID] = e
	return nil
}

func (f *fakeStore) ResumePoint(ctx context.Context, executionID string, phasePercent int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := -1
	for _, step := range f.steps {
		if step.executionID == executionID && step.phasePercent == phasePercent && step.status == "completed" && step.sequence > last {
			last = step.sequence
		}
	}
	return last, nil
}

func (f *fakeStore) CompleteExecution(ctx context.Context, executionID, status string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.executions[executionID]
	e.Status = status
	e.CompletedAt = &completedAt
	f.executions[executionID] = e
	return nil
}

func (f *fakeStore) StartOptimization(ctx context.Context, id string, executedAt time.Time) error {
	return nil
}

func (f *fakeStore) CompleteOptimization(ctx context.Context, id, outcome string, completedAt time.Time, detail any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimize[id] = fakeOptimization{outcome: outcome, completedAt: completedAt, detail: detail}
	return nil
}

func (f *fakeStore) RecordApproval(ctx context.Context, recommendationID, agentType string, approved bool, confidence float64, rationale string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approvals[recommendationID] == nil {
		f.approvals[recommendationID] = map[string]fakeApproval{}
	}
	f.approvals[recommendationID][agentType] = fakeApproval{approved: approved, confidence: confidence}
	return nil
}

func (f *fakeStore) Tally(ctx context.Context, recommendationID string, requiredAgentTypes []string) (relational.ApprovalTally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tally relational.ApprovalTally
	var sum float64
	voted := f.approvals[recommendationID]
	for _, agentType := range requiredAgentTypes {
		vote, ok := voted[agentType]
		if !ok {
			tally.Pending = append(tally.Pending, agentType)
			continue
		}
		sum += vote.confidence
		if vote.approved {
			tally.Approved++
		} else {
			tally.Denied++
		}
	}
	cast := tally.Approved + tally.Denied
	if cast > 0 {
		tally.MeanConfidence = sum / float64(cast)
	}
	return tally, nil
}

// votingHandler always casts the same fixed vote, naming itself after the
// domain it stands in for.
type votingHandler struct {
	agentType  string
	vote       agentruntime.Vote
	executions int
	lastCtx    context.Context
}

func (v *votingHandler) AgentType() string { return v.agentType }
func (v *votingHandler) Evaluate(ctx context.Context, req agentruntime.EvaluationRequest) (agentruntime.EvaluationResponse, error) {
	return agentruntime.EvaluationResponse{}, nil
}
func (v *votingHandler) VoteOn(ctx context.Context, recommendationType string, detail map[string]any) (agentruntime.Vote, error) {
	v.executions++
	v.lastCtx = ctx
	return v.vote, nil
}

func registryOf(handlers ...*votingHandler) *agentruntime.Registry {
	r := agentruntime.NewRegistry()
	for _, h := range handlers {
		r.Register(h.AgentType(), h)
	}
	return r
}

func testWorkflowConfig() config.WorkflowConfig {
	return config.WorkflowConfig{
		RolloutPhasePercents:        []int{100},
		ApprovalConfidenceThreshold: 0.75,
		QualityRegressionThreshold:  0.05,
	}
}

// TestApprovalGateProceedsOnMeanConfidenceAboveThreshold reproduces the
// reviewer's counterexample: three approving votes whose individual
// confidences are 0.80, 0.80, 0.68 average to 0.76, which clears the 0.75
// gate even though the lowest individual vote does not — and every vote's
// literal Approved value must still land in the audit trail unchanged.
func TestApprovalGateProceedsOnMeanConfidenceAboveThreshold(t *testing.T) {
	store := newFakeStore()
	agents := registryOf(
		&votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.80}},
		&votingHandler{agentType: "resource", vote: agentruntime.Vote{Approved: true, Confidence: 0.80}},
		&votingHandler{agentType: "application", vote: agentruntime.Vote{Approved: true, Confidence: 0.68}},
	)
	engine := New(store, agents, nil, testWorkflowConfig())

	recID := "rec-1"
	err := engine.Run(context.Background(), "exec-1", "opt-1", "cost", "cust-1", "spot_migration",
		recID, "spot_migration", map[string]any{"instance": "i-1"},
		[]StepSpec{{Name: "migrate"}}, NoopExecutor{})
	require.NoError(t, err)

	assert.Equal(t, "success", store.optimize["opt-1"].outcome)
	for _, agentType := range []string{"performance", "resource", "application"} {
		assert.True(t, store.approvals[recID][agentType].approved, "agent %s's literal vote must be recorded as cast", agentType)
	}
	assert.InDelta(t, 0.68, store.approvals[recID]["application"].confidence, 0.0001)
}

// TestApprovalGateDeniesOnPeerRejection mirrors S4's second leg: a single
// rejecting vote blocks the gate even though the other two approve with
// high confidence.
func TestApprovalGateDeniesOnPeerRejection(t *testing.T) {
	store := newFakeStore()
	agents := registryOf(
		&votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.92}},
		&votingHandler{agentType: "resource", vote: agentruntime.Vote{Approved: true, Confidence: 0.95}},
		&votingHandler{agentType: "application", vote: agentruntime.Vote{Approved: false, Confidence: 0.4}},
	)
	engine := New(store, agents, nil, testWorkflowConfig())

	err := engine.Run(context.Background(), "exec-2", "opt-2", "cost", "cust-1", "spot_migration",
		"rec-2", "spot_migration", map[string]any{"instance": "i-1"},
		[]StepSpec{{Name: "migrate"}}, NoopExecutor{})
	require.Error(t, err)
	assert.Equal(t, core.KindApprovalDenied, core.KindOf(err))
	assert.NotEqual(t, "success", store.optimize["opt-2"].outcome)
}

// countingExecutor counts Execute calls so a test can assert which steps a
// resumed run actually re-executed.
type countingExecutor struct {
	calls int
}

func (c *countingExecutor) Execute(ctx context.Context, step StepSpec, phasePercent int) (map[string]any, map[string]any, error) {
	c.calls++
	return map[string]any{"ran": step.Name}, map[string]any{"step": step.Name}, nil
}

func (c *countingExecutor) Undo(ctx context.Context, step StepSpec, undo map[string]any) error {
	return nil
}

// TestWorkflowResumesFromLastCompletedStep exercises invariant 6: an
// engine that picks back up against an execution whose first two steps are
// already persisted as completed only re-executes what's left, and reaches
// the same terminal state ("success") as an uninterrupted run over the
// same three steps.
func TestWorkflowResumesFromLastCompletedStep(t *testing.T) {
	agents := registryOf(&votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.9}})
	steps := []StepSpec{{Name: "step-0"}, {Name: "step-1"}, {Name: "step-2"}}

	uninterrupted := newFakeStore()
	freshExecutor := &countingExecutor{}
	engine := New(uninterrupted, agents, nil, testWorkflowConfig())
	err := engine.Run(context.Background(), "exec-full", "opt-full", "cost", "cust-1", "right_sizing",
		"rec-full", "right_sizing", nil, steps, freshExecutor)
	require.NoError(t, err)
	assert.Equal(t, 3, freshExecutor.calls)
	assert.Equal(t, "success", uninterrupted.optimize["opt-full"].outcome)

	resumed := newFakeStore()
	resumed.steps["step-0-id"] = fakeStep{executionID: "exec-resume", phasePercent: 100, sequence: 0, status: "completed"}
	resumed.steps["step-1-id"] = fakeStep{executionID: "exec-resume", phasePercent: 100, sequence: 1, status: "completed"}
	resumedExecutor := &countingExecutor{}
	engine = New(resumed, agents, nil, testWorkflowConfig())
	err = engine.Run(context.Background(), "exec-resume", "opt-resume", "cost", "cust-1", "right_sizing",
		"rec-resume", "right_sizing", nil, steps, resumedExecutor)
	require.NoError(t, err)
	assert.Equal(t, 1, resumedExecutor.calls, "only the step after the last completed one should re-execute")
	assert.Equal(t, "success", resumed.optimize["opt-resume"].outcome)
}

// TestWorkflowResumeIsScopedPerPhase guards against a resume point computed
// once from the whole execution's step history being applied to every
// rollout phase: since each phase re-runs the same step sequence numbers
// (0..len(steps)-1), a resume point belonging to a completed earlier phase
// must not cause a later phase's steps to be skipped as if they were the
// same steps already run.
func TestWorkflowResumeIsScopedPerPhase(t *testing.T) {
	agents := registryOf(&votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.9}})
	steps := []StepSpec{{Name: "step-0"}, {Name: "step-1"}}
	store := newFakeStore()
	// Phase 10 fully completed on a prior run; phase 50 never started.
	store.steps["p10-step-0"] = fakeStep{executionID: "exec-multi", phasePercent: 10, sequence: 0, status: "completed"}
	store.steps["p10-step-1"] = fakeStep{executionID: "exec-multi", phasePercent: 10, sequence: 1, status: "completed"}

	cfg := testWorkflowConfig()
	cfg.RolloutPhasePercents = []int{10, 50}
	executor := &countingExecutor{}
	engine := New(store, agents, nil, cfg)

	err := engine.Run(context.Background(), "exec-multi", "opt-multi", "cost", "cust-1", "right_sizing",
		"rec-multi", "right_sizing", nil, steps, executor)
	require.NoError(t, err)
	assert.Equal(t, 2, executor.calls, "phase 50's two steps must both execute even though phase 10 left completed steps at the same sequence numbers")
	assert.Equal(t, "success", store.optimize["opt-multi"].outcome)
}

// fakeChecker lets a test control whether the post-phase quality gate
// returns a score, an error, or records the context it was called with.
type fakeChecker struct {
	score   float64
	err     error
	lastCtx context.Context
}

func (f *fakeChecker) Check(ctx context.Context, customerID, metricType string) (float64, error) {
	f.lastCtx = ctx
	return f.score, f.err
}

// TestWorkflowQualityCheckErrorFailsOpen guards the fail-open policy this
// package applies when the quality checker itself errors (a stalled
// query or a store outage must not be indistinguishable from a healthy
// phase, but it also must not block every rollout): the execution still
// completes successfully, and the error does not surface to the caller.
func TestWorkflowQualityCheckErrorFailsOpen(t *testing.T) {
	agents := registryOf(&votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.9}})
	store := newFakeStore()
	checker := &fakeChecker{err: assert.AnError}
	engine := New(store, agents, checker, testWorkflowConfig())

	err := engine.Run(context.Background(), "exec-checker-err", "opt-checker-err", "cost", "cust-1", "right_sizing",
		"rec-checker-err", "right_sizing", nil, []StepSpec{{Name: "step-0"}}, &countingExecutor{})
	require.NoError(t, err)
	assert.Equal(t, "success", store.optimize["opt-checker-err"].outcome)
}

// TestWorkflowApprovalTimeoutBoundsVoteContext confirms approvalGate
// actually applies config.WorkflowConfig.ApprovalTimeout to the context
// each agent's VoteOn receives, rather than leaving the field unused.
func TestWorkflowApprovalTimeoutBoundsVoteContext(t *testing.T) {
	handler := &votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.9}}
	agents := registryOf(handler)
	store := newFakeStore()
	cfg := testWorkflowConfig()
	cfg.ApprovalTimeout = 5 * time.Second
	engine := New(store, agents, nil, cfg)

	approved, err := engine.approvalGate(context.Background(), "rec-timeout", "right_sizing", nil)
	require.NoError(t, err)
	assert.True(t, approved)
	_, hasDeadline := handler.lastCtx.Deadline()
	assert.True(t, hasDeadline, "VoteOn must receive a context bounded by ApprovalTimeout")
}

// TestWorkflowUnconfiguredTimeoutLeavesContextUnbounded confirms a zero
// ApprovalTimeout (an unconfigured config.WorkflowConfig, as every other
// test in this file uses) does not hand VoteOn an already-expired
// context — zero means "no bound", not "expire immediately".
func TestWorkflowUnconfiguredTimeoutLeavesContextUnbounded(t *testing.T) {
	handler := &votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.9}}
	agents := registryOf(handler)
	store := newFakeStore()
	engine := New(store, agents, nil, testWorkflowConfig())

	_, err := engine.approvalGate(context.Background(), "rec-nobound", "right_sizing", nil)
	require.NoError(t, err)
	_, hasDeadline := handler.lastCtx.Deadline()
	assert.False(t, hasDeadline)
}

// TestWorkflowQualityGateUsesPerAgentTypeThreshold guards against the
// per-data-type override (config.WorkflowConfig.QualityRegressionThresholdByType)
// being configured but silently ignored in favor of the flat global
// threshold. A score of 0.7 trips the regression gate under the global
// 0.05 threshold (the pass boundary is 1-0.05 = 0.95), but passes under a
// looser 0.5 override configured for this run's agentID (boundary 0.5) —
// so the run must succeed only when the per-type override is honored.
func TestWorkflowQualityGateUsesPerAgentTypeThreshold(t *testing.T) {
	agents := registryOf(&votingHandler{agentType: "performance", vote: agentruntime.Vote{Approved: true, Confidence: 0.9}})
	store := newFakeStore()
	checker := &fakeChecker{score: 0.7}
	cfg := testWorkflowConfig()
	cfg.QualityRegressionThresholdByType = map[string]float64{"performance": 0.5}
	engine := New(store, agents, checker, cfg)

	err := engine.Run(context.Background(), "exec-per-type", "opt-per-type", "performance", "cust-1", "right_sizing",
		"rec-per-type", "right_sizing", nil, []StepSpec{{Name: "step-0"}}, &countingExecutor{})
	require.NoError(t, err)
	assert.Equal(t, "success", store.optimize["opt-per-type"].outcome)
}

func TestUndoAllReversesExecutionOrder(t *testing.T) {
	var undone []string
	executor := &recordingExecutor{
		onUndo: func(step StepSpec) { undone = append(undone, step.Name) },
	}
	executed := []executedStep{
		{spec: StepSpec{Name: "a"}},
		{spec: StepSpec{Name: "b"}},
		{spec: StepSpec{Name: "c"}},
	}
	engine := New(newFakeStore(), agentruntime.NewRegistry(), nil, testWorkflowConfig())
	engine.undoAll(context.Background(), "exec-undo", executed, executor, engine.log)
	assert.Equal(t, []string{"c", "b", "a"}, undone)
}

type recordingExecutor struct {
	onUndo func(step StepSpec)
}

func (r *recordingExecutor) Execute(ctx context.Context, step StepSpec, phasePercent int) (map[string]any, map[string]any, error) {
	return nil, nil, nil
}

func (r *recordingExecutor) Undo(ctx context.Context, step StepSpec, undo map[string]any) error {
	if r.onUndo != nil {
		r.onUndo(step)
	}
	return nil
}
