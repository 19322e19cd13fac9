package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

type erroringCache struct {
	err error
}

func (e *erroringCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, e.err }
func (e *erroringCache) Set(context.Context, string, []byte, time.Duration) error { return e.err }
func (e *erroringCache) Delete(context.Context, string) error              { return e.err }

func TestFallbackFallsBackOnPrimaryError(t *testing.T) {
	secondary := NewMemoryCache()
	require.NoError(t, secondary.Set(context.Background(), "k", []byte("from-secondary"), time.Minute))

	fb := NewFallback(&erroringCache{err: assert.AnError}, secondary)
	val, ok, err := fb.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("from-secondary"), val)
}

func TestFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	primary := NewMemoryCache()
	secondary := NewMemoryCache()
	fb := NewFallback(primary, secondary)

	require.NoError(t, fb.Set(context.Background(), "k", []byte("v"), time.Minute))
	val, ok, err := primary.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}
