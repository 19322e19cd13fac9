package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archokshi/optiinfra/internal/embedding"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	embedder, err := embedding.New("dummy", "", "", "", 16)
	require.NoError(t, err)
	return New(NewMemoryBackend(), embedder)
}

func TestPutAndSearchRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, CostOptimizationKnowledge, "rec-1",
		"migrate idle m5.xlarge instances to spot", map[string]any{"provider": "aws"}))
	require.NoError(t, store.Put(ctx, CostOptimizationKnowledge, "rec-2",
		"scale down oversized gcp n2 vms", map[string]any{"provider": "gcp"}))

	matches, err := store.Search(ctx, CostOptimizationKnowledge, "migrate idle m5.xlarge instances to spot", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "rec-1", matches[0].ID)
}

func TestSearchAppliesPredicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, PerformancePatterns, "p-aws", "cpu saturation pattern", map[string]any{"provider": "aws"}))
	require.NoError(t, store.Put(ctx, PerformancePatterns, "p-azure", "cpu saturation pattern", map[string]any{"provider": "azure"}))

	onlyAzure := func(payload map[string]any) bool {
		return payload["provider"] == "azure"
	}
	matches, err := store.Search(ctx, PerformancePatterns, "cpu saturation pattern", 5, onlyAzure)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "p-azure", matches[0].ID)
}

func TestPutRejectsUnknownCollection(t *testing.T) {
	store := newTestStore(t)
	err := store.Put(context.Background(), Collection("bogus"), "id", "text", nil)
	assert.Error(t, err)
}

func TestSearchRejectsNonPositiveTopK(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Search(context.Background(), CustomerContext, "text", 0, nil)
	assert.Error(t, err)
}

func TestUpsertOverwritesExistingID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, CustomerContext, "cust-1", "enterprise tier customer", map[string]any{"tier": "free"}))
	require.NoError(t, store.Put(ctx, CustomerContext, "cust-1", "enterprise tier customer", map[string]any{"tier": "enterprise"}))

	matches, err := store.Search(ctx, CustomerContext, "enterprise tier customer", 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "enterprise", matches[0].Payload["tier"])
}
