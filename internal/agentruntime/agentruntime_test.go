package agentruntime

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	agentType string
}

func (f fakeHandler) AgentType() string { return f.agentType }

func (f fakeHandler) Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResponse, error) {
	return EvaluationResponse{Recommendations: []RecommendationDraft{{Type: f.agentType + "_saving", Detail: map[string]any{}}}}, nil
}

func (f fakeHandler) VoteOn(ctx context.Context, recommendationType string, detail map[string]any) (Vote, error) {
	return Vote{Approved: true, Confidence: 0.9}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("cost", fakeHandler{agentType: "cost"})

	h, ok := r.Get("cost")
	require.True(t, ok)
	assert.Equal(t, "cost", h.AgentType())

	_, ok = r.Get("performance")
	assert.False(t, ok)
}

func TestRegistryTypesListsEveryRegisteredAgent(t *testing.T) {
	r := NewRegistry()
	r.Register("cost", fakeHandler{agentType: "cost"})
	r.Register("resource", fakeHandler{agentType: "resource"})

	types := r.Types()
	sort.Strings(types)
	assert.Equal(t, []string{"cost", "resource"}, types)
}

func TestFakeHandlerEvaluateAndVote(t *testing.T) {
	h := fakeHandler{agentType: "application"}
	resp, err := h.Evaluate(context.Background(), EvaluationRequest{CustomerID: "c1"})
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "application_saving", resp.Recommendations[0].Type)

	vote, err := h.VoteOn(context.Background(), "application_saving", nil)
	require.NoError(t, err)
	assert.True(t, vote.Approved)
}
