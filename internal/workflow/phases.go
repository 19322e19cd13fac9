package workflow

import (
	"context"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/rs/zerolog"
)

// runPhase executes every step at the given rollout percent, skipping steps
// already completed in a prior crashed run of this same phase (sequence <=
// resumeFrom, where resumeFrom is looked up scoped to percent), per spec.md
// §4.7's checkpoint-and-resume invariant. The caller supplies a StepExecutor
// per call site since different executions run different infrastructure
// changes.
func (e *Engine) runPhase(ctx context.Context, executionID string, percent int, steps []StepSpec, resumeFrom int, executor StepExecutor, logger zerolog.Logger) ([]executedStep, error) {
	var executed []executedStep

	for i, step := range steps {
		if i <= resumeFrom {
			continue
		}

		stepID := core.NewID()
		if err := e.store.AppendStep(ctx, stepID, executionID, step.Name, percent, i, "running", step.Input, nil); err != nil {
			return executed, err
		}

		output, undo, err := executor.Execute(ctx, step, percent)
		if err != nil {
			_ = e.store.TransitionStep(ctx, stepID, executionID, "running", "failed")
			return executed, core.New(core.KindFatal, "workflow", "step "+step.Name+" failed", err)
		}

		if err := e.store.TransitionStep(ctx, stepID, executionID, "running", "completed"); err != nil {
			logger.Warn().Err(err).Str("step", step.Name).Msg("failed to record step completion")
		}
		if len(undo) > 0 {
			if err := e.store.SaveArtifact(ctx, core.NewID(), executionID, stepID, "before_snapshot", undo); err != nil {
				logger.Warn().Err(err).Str("step", step.Name).Msg("failed to save undo artifact")
			}
		}
		if len(output) > 0 {
			if err := e.store.SaveArtifact(ctx, core.NewID(), executionID, stepID, "after_snapshot", output); err != nil {
				logger.Warn().Err(err).Str("step", step.Name).Msg("failed to save output artifact")
			}
		}

		executed = append(executed, executedStep{spec: step, id: stepID, undo: undo})
	}
	return executed, nil
}

// undoAll reverses every executed step in reverse order, per spec.md §4.7's
// undo path ("steps are undone most-recent-first").
func (e *Engine) undoAll(ctx context.Context, executionID string, executed []executedStep, executor StepExecutor, logger zerolog.Logger) {
	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		if err := executor.Undo(ctx, step.spec, step.undo); err != nil {
			logger.Error().Err(err).Str("step", step.spec.Name).Msg("undo failed")
			continue
		}
		if err := e.store.TransitionStep(ctx, step.id, executionID, "completed", "undone"); err != nil {
			logger.Warn().Err(err).Str("step", step.spec.Name).Msg("failed to record undo transition")
		}
	}
}

// approvalGate polls every registered domain agent for a vote on the
// recommendation, records each agent's literal decision and confidence
// verbatim, and applies spec.md §4.7's policy as two independent checks:
// no peer rejects AND the mean confidence across all votes clears the
// configured threshold. Neither check is folded into the other, so the
// approvals table always reflects what the agent actually voted.
func (e *Engine) approvalGate(ctx context.Context, recommendationID, recommendationType string, detail map[string]any) (bool, error) {
	required := e.agents.Types()
	if len(required) == 0 {
		return true, nil
	}

	for _, agentType := range required {
		handler, ok := e.agents.Get(agentType)
		if !ok {
			continue
		}
		voteCtx, cancel := withTimeout(ctx, e.cfg.ApprovalTimeout)
		vote, err := handler.VoteOn(voteCtx, recommendationType, detail)
		cancel()
		if err != nil {
			return false, core.New(core.KindFatal, "workflow", "approval vote failed for "+agentType, err)
		}
		if err := e.store.RecordApproval(ctx, recommendationID, agentType, vote.Approved, vote.Confidence, vote.Rationale); err != nil {
			return false, err
		}
	}

	tally, err := e.store.Tally(ctx, recommendationID, required)
	if err != nil {
		return false, err
	}
	if len(tally.Pending) > 0 {
		return false, core.New(core.KindFatal, "workflow", "approval gate incomplete: missing votes", nil)
	}
	if tally.Denied > 0 {
		return false, nil
	}
	return tally.MeanConfidence >= e.cfg.ApprovalConfidenceThreshold, nil
}
