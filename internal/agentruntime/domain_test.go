package agentruntime

import (
	"context"
	"testing"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	cost        []core.CostMetric
	resource    []core.ResourceMetric
	performance []core.PerformanceMetric
	application []core.ApplicationMetric
}

func (f *fakeReader) Cost(ctx context.Context, customerID, provider string, window core.Window) ([]core.CostMetric, error) {
	return f.cost, nil
}
func (f *fakeReader) Resource(ctx context.Context, customerID, provider string, window core.Window) ([]core.ResourceMetric, error) {
	return f.resource, nil
}
func (f *fakeReader) Performance(ctx context.Context, customerID, provider string, window core.Window) ([]core.PerformanceMetric, error) {
	return f.performance, nil
}
func (f *fakeReader) Application(ctx context.Context, customerID, provider string, window core.Window) ([]core.ApplicationMetric, error) {
	return f.application, nil
}

func TestDomainHandlerEvaluateProposesWhenThresholdCrossed(t *testing.T) {
	reader := &fakeReader{cost: []core.CostMetric{{Amount: 40}, {Amount: 70}}}
	handler := &DomainHandler{Type: string(core.DataTypeCost), Reader: reader, Threshold: 100}

	resp, err := handler.Evaluate(context.Background(), EvaluationRequest{
		CustomerID: "c1", Provider: "aws", Window: core.Window{Since: time.Now().Add(-time.Hour), Until: time.Now()},
	})
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "cost_optimization", resp.Recommendations[0].Type)
	assert.InDelta(t, 110.0, resp.Recommendations[0].Detail["signal"], 0.001)
}

func TestDomainHandlerEvaluateStaysSilentBelowThreshold(t *testing.T) {
	reader := &fakeReader{cost: []core.CostMetric{{Amount: 5}}}
	handler := &DomainHandler{Type: string(core.DataTypeCost), Reader: reader, Threshold: 100}

	resp, err := handler.Evaluate(context.Background(), EvaluationRequest{CustomerID: "c1", Provider: "aws"})
	require.NoError(t, err)
	assert.Empty(t, resp.Recommendations)
}

func TestDomainHandlerVoteOnClipsConfidenceToUnitRange(t *testing.T) {
	handler := &DomainHandler{Type: string(core.DataTypeResource), Reader: &fakeReader{}, Threshold: 0.5}

	vote, err := handler.VoteOn(context.Background(), "resource_optimization", map[string]any{"signal": 1.4})
	require.NoError(t, err)
	assert.True(t, vote.Approved)
	assert.InDelta(t, 1.0, vote.Confidence, 0.0001)

	vote, err = handler.VoteOn(context.Background(), "resource_optimization", map[string]any{})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, vote.Confidence, 0.0001)
}

// TestDomainHandlerApplicationProposesOnlyWhenQualityDropsBelowFloor
// guards the direction inversion every other domain's signal doesn't need:
// quality_score is a "good" quantity, so crossing the threshold from above
// (degrading) should trigger a recommendation, not crossing it from below
// the way cost/resource/performance's "bad" signals do.
func TestDomainHandlerApplicationProposesOnlyWhenQualityDropsBelowFloor(t *testing.T) {
	healthy := &fakeReader{application: []core.ApplicationMetric{{Score: 0.95}, {Score: 0.9}}}
	handler := &DomainHandler{Type: string(core.DataTypeApplication), Reader: healthy, Threshold: 0.7}

	resp, err := handler.Evaluate(context.Background(), EvaluationRequest{CustomerID: "c1", Provider: "aws"})
	require.NoError(t, err)
	assert.Empty(t, resp.Recommendations, "a quality score above the floor must not propose a recommendation")

	degraded := &fakeReader{application: []core.ApplicationMetric{{Score: 0.4}, {Score: 0.5}}}
	handler = &DomainHandler{Type: string(core.DataTypeApplication), Reader: degraded, Threshold: 0.7}

	resp, err = handler.Evaluate(context.Background(), EvaluationRequest{CustomerID: "c1", Provider: "aws"})
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1, "a quality score below the floor must propose a recommendation")
	assert.Equal(t, "application_optimization", resp.Recommendations[0].Type)
}

// TestDomainHandlerApplicationNoDataDoesNotPropose guards the fail-open
// case: a customer/window with zero application_metrics rows must not be
// mistaken for a quality collapse, matching the same no-data call
// timeseries.ApplicationQualityScore makes.
func TestDomainHandlerApplicationNoDataDoesNotPropose(t *testing.T) {
	handler := &DomainHandler{Type: string(core.DataTypeApplication), Reader: &fakeReader{}, Threshold: 0.7}

	resp, err := handler.Evaluate(context.Background(), EvaluationRequest{CustomerID: "c1", Provider: "aws"})
	require.NoError(t, err)
	assert.Empty(t, resp.Recommendations, "no application_metrics rows must not be treated as a quality drop")
}

func TestDomainHandlerResourceMeasuresAverageCPUUtilization(t *testing.T) {
	reader := &fakeReader{resource: []core.ResourceMetric{
		{MetricName: "cpu_utilization", MetricValue: 20},
		{MetricName: "cpu_utilization", MetricValue: 40},
		{MetricName: "memory_utilization", MetricValue: 90},
	}}
	handler := &DomainHandler{Type: string(core.DataTypeResource), Reader: reader, Threshold: 10}

	resp, err := handler.Evaluate(context.Background(), EvaluationRequest{CustomerID: "c1", Provider: "gcp"})
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1)
	assert.InDelta(t, 30.0, resp.Recommendations[0].Detail["signal"], 0.001)
}
