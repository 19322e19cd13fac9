package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyServiceIsDeterministic(t *testing.T) {
	svc, err := New("dummy", "", "", "", 16)
	require.NoError(t, err)
	assert.Equal(t, 16, svc.Dimensions())

	a, err := svc.Embed(context.Background(), "migrate batch ETL to spot")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "migrate batch ETL to spot")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := svc.Embed(context.Background(), "a completely different phrase")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New("bogus", "", "", "", 8)
	assert.Error(t, err)
}

func TestNewRejectsOpenAIWithoutAPIKey(t *testing.T) {
	_, err := New("openai", "text-embedding-3-small", "", "", 0)
	assert.Error(t, err)
}
