// Package workflow is the Workflow Engine spec.md §4.7 describes: a
// cross-domain approval gate followed by a gradual phased rollout, with
// crash-resumable checkpointing and an undo path when a phase regresses
// quality. The phased-execution shape (ordered named steps, state threaded
// step to step, resumable from the last completed one) is grounded on the
// teacher's internal/orchestrator/sequential.go SequentialOrchestrator,
// generalized from "run registered agent handlers in order" to "run
// infrastructure-change steps in order, gated by peer votes between
// phases".
package workflow

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/agentruntime"
	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/logging"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/rs/zerolog"
)

// StepSpec describes one executable change within a phase.
type StepSpec struct {
	Name  string
	Input map[string]any
}

// StepExecutor performs (and can reverse) the actual infrastructure change
// a StepSpec names; the Workflow Engine only sequences and records, it
// never knows what a step actually does.
type StepExecutor interface {
	Execute(ctx context.Context, step StepSpec, phasePercent int) (output map[string]any, undo map[string]any, err error)
	Undo(ctx context.Context, step StepSpec, undo map[string]any) error
}

// QualityChecker evaluates whether a completed phase regressed the
// optimization's target metric, per spec.md §4.7's post-phase validation
// gate.
type QualityChecker interface {
	Check(ctx context.Context, customerID, metricType string) (score float64, err error)
}

// Store is the subset of relational.Store the engine depends on, narrowed
// to an interface so tests can substitute an in-memory fake in place of a
// live Postgres-backed *relational.Store — the same "accept the interface
// your code actually calls" shape the teacher's internal/memory package
// uses for its VectorMemory backends.
type Store interface {
	CreateExecution(ctx context.Context, e relational.WorkflowExecution) error
	AppendStep(ctx context.Context, stepID, executionID, stepName string, phasePercent, sequence int, status string, input, output any) error
	TransitionStep(ctx context.Context, stepID, executionID, fromStatus, toStatus string) error
	SaveArtifact(ctx context.Context, id, executionID, stepID, artifactType string, content any) error
	AdvancePhase(ctx context.Context, executionID string, percent int) error
	ResumePoint(ctx context.Context, executionID string, phasePercent int) (int, error)
	CompleteExecution(ctx context.Context, executionID, status string, completedAt time.Time) error
	StartOptimization(ctx context.Context, id string, executedAt time.Time) error
	CompleteOptimization(ctx context.Context, id, outcome string, completedAt time.Time, detail any) error
	RecordApproval(ctx context.Context, recommendationID, agentType string, approved bool, confidence float64, rationale string) error
	Tally(ctx context.Context, recommendationID string, requiredAgentTypes []string) (relational.ApprovalTally, error)
}

// Engine runs executions end to end.
type Engine struct {
	store   Store
	agents  *agentruntime.Registry
	checker QualityChecker
	cfg     config.WorkflowConfig
	log     zerolog.Logger
}

// New builds an Engine.
func New(store Store, agents *agentruntime.Registry, checker QualityChecker, cfg config.WorkflowConfig) *Engine {
	return &Engine{
		store:   store,
		agents:  agents,
		checker: checker,
		cfg:     cfg,
		log:     logging.Component("workflow"),
	}
}

// Run executes one optimization: it gates on cross-domain approval, then
// walks the configured rollout phases, executing steps and validating
// quality after each phase, undoing everything executed so far if a phase
// regresses.
func (e *Engine) Run(ctx context.Context, executionID, optimizationID, agentID, customerID, graphName, recommendationID, recommendationType string, detail map[string]any, steps []StepSpec, executor StepExecutor) error {
	logger := e.log.With().Str("execution_id", executionID).Str("optimization_id", optimizationID).Logger()

	if err := e.store.CreateExecution(ctx, relational.WorkflowExecution{
		ID: executionID, OptimizationID: optimizationID, AgentID: agentID, GraphName: graphName, StartedAt: time.Now(),
	}); err != nil {
		return err
	}

	approved, err := e.approvalGate(ctx, recommendationID, recommendationType, detail)
	if err != nil {
		e.fail(ctx, executionID, optimizationID, err, logger)
		return err
	}
	if !approved {
		err := core.New(core.KindApprovalDenied, "workflow", "cross-domain approval gate denied this recommendation", nil)
		e.fail(ctx, executionID, optimizationID, err, logger)
		return err
	}

	if err := e.store.StartOptimization(ctx, optimizationID, time.Now()); err != nil {
		return err
	}

	var executed []executedStep

	for _, percent := range e.cfg.RolloutPhasePercents {
		resumeFrom, _ := e.store.ResumePoint(ctx, executionID, percent)
		phaseExecuted, err := e.runPhase(ctx, executionID, percent, steps, resumeFrom, executor, logger)
		executed = append(executed, phaseExecuted...)
		if err != nil {
			e.undoAll(ctx, executionID, executed, executor, logger)
			e.fail(ctx, executionID, optimizationID, err, logger)
			return err
		}

		if err := e.store.AdvancePhase(ctx, executionID, percent); err != nil {
			logger.Warn().Err(err).Int("percent", percent).Msg("failed to record phase advance")
		}

		if e.checker != nil {
			checkCtx, cancel := withTimeout(ctx, e.cfg.ReaderTimeout)
			score, checkErr := e.checker.Check(checkCtx, customerID, recommendationType)
			cancel()
			if checkErr != nil {
				logger.Warn().Err(checkErr).Int("percent", percent).Msg("quality check failed, proceeding without regression gate for this phase")
			}
			if checkErr == nil && score < (1-e.cfg.ThresholdFor(agentID)) {
				err := core.New(core.KindQualityRegression, "workflow",
					"phase regressed quality below acceptable threshold", nil)
				e.undoAll(ctx, executionID, executed, executor, logger)
				e.fail(ctx, executionID, optimizationID, err, logger)
				return err
			}
		}
	}

	completedAt := time.Now()
	if err := e.store.CompleteExecution(ctx, executionID, "completed", completedAt); err != nil {
		return err
	}
	return e.store.CompleteOptimization(ctx, optimizationID, "success", completedAt, detail)
}

// withTimeout bounds ctx by d, unless d is zero (unconfigured), in which
// case ctx is returned unchanged with a no-op cancel — callers always get
// a cancel func to defer regardless of which branch ran.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

type executedStep struct {
	spec StepSpec
	id   string
	undo map[string]any
}

func (e *Engine) fail(ctx context.Context, executionID, optimizationID string, cause error, logger zerolog.Logger) {
	logger.Error().Err(cause).Msg("workflow execution failed")
	completedAt := time.Now()
	if err := e.store.CompleteExecution(ctx, executionID, "failed", completedAt); err != nil {
		logger.Warn().Err(err).Msg("failed to record execution failure")
	}
	outcome := "failed"
	if core.KindOf(cause) == core.KindQualityRegression {
		outcome = "rolled_back"
	}
	if err := e.store.CompleteOptimization(ctx, optimizationID, outcome, completedAt, map[string]any{"error": cause.Error()}); err != nil {
		logger.Warn().Err(err).Msg("failed to record optimization outcome")
	}
}
