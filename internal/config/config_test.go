package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonMonotonicPhases(t *testing.T) {
	cfg := Default()
	cfg.Workflow.RolloutPhasePercents = []int{50, 10, 100}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadConfidenceThreshold(t *testing.T) {
	cfg := Default()
	cfg.Workflow.ApprovalConfidenceThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownMemoryBackend(t *testing.T) {
	cfg := Default()
	cfg.Memory.Backend = "redis"
	assert.Error(t, cfg.Validate())
}

func TestThresholdForFallsBackToGlobal(t *testing.T) {
	w := Default().Workflow
	w.QualityRegressionThreshold = 0.05
	w.QualityRegressionThresholdByType = map[string]float64{"application": 0.1}

	assert.InDelta(t, 0.1, w.ThresholdFor("application"), 0.0001)
	assert.InDelta(t, 0.05, w.ThresholdFor("performance"), 0.0001)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}
