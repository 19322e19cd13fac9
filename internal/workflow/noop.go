package workflow

import "context"

// NoopExecutor is a StepExecutor that records a step's input as its own
// output and undo payload without calling out to any provider. It backs
// workflow runs triggered from the HTTP surface, where the concrete
// infrastructure action a recommendation names (spot-migration,
// right-sizing, latency tune) is provider-specific and out of scope here
// (spec.md §1 excludes per-provider SDK quirks); the engine still exercises
// its full checkpoint/undo machinery against it.
type NoopExecutor struct{}

func (NoopExecutor) Execute(ctx context.Context, step StepSpec, phasePercent int) (map[string]any, map[string]any, error) {
	output := map[string]any{"phase_percent": phasePercent}
	for k, v := range step.Input {
		output[k] = v
	}
	return output, map[string]any{"step": step.Name, "input": step.Input}, nil
}

func (NoopExecutor) Undo(ctx context.Context, step StepSpec, undo map[string]any) error {
	return nil
}
