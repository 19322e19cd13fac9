package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archokshi/optiinfra/internal/core"
)

type fakeAdapter struct {
	unsupported
	provider string
	caps     []Capability
}

func (f *fakeAdapter) Provider() string            { return f.provider }
func (f *fakeAdapter) Capabilities() []Capability { return f.caps }

func (f *fakeAdapter) CollectCost(_ context.Context, cred core.Credential, _ core.Window, _ string) (Result, error) {
	return Result{Rows: []core.CostMetric{{CustomerID: cred.CustomerID, Provider: f.provider}}}, nil
}

func TestRegistryBuildUsesRegisteredConstructor(t *testing.T) {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register("fake", func(cfg Config) (Adapter, error) {
		return &fakeAdapter{unsupported: unsupported{provider: "fake"}, provider: "fake", caps: []Capability{CapabilityCost}}, nil
	})

	a, err := r.Build(Config{Provider: "fake"})
	require.NoError(t, err)
	assert.Equal(t, "fake", a.Provider())
}

func TestRegistryBuildRejectsUnknownProvider(t *testing.T) {
	r := &Registry{constructors: make(map[string]Constructor)}
	_, err := r.Build(Config{Provider: "bogus"})
	assert.Error(t, err)
}

func TestForCapabilityDetectsAdvertisedCapability(t *testing.T) {
	a := &fakeAdapter{unsupported: unsupported{provider: "fake"}, provider: "fake", caps: []Capability{CapabilityCost}}

	_, ok := ForCapability(a, core.DataTypeCost)
	assert.True(t, ok)

	_, ok = ForCapability(a, core.DataTypeResource)
	assert.False(t, ok)
}

func TestUnsupportedCollectReturnsValidationError(t *testing.T) {
	a := &fakeAdapter{unsupported: unsupported{provider: "fake"}, provider: "fake", caps: []Capability{CapabilityCost}}
	_, err := a.CollectResource(context.Background(), core.Credential{}, core.Window{}, "")
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}
