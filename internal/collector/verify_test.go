package collector

import (
	"context"
	"testing"
	"time"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/stretchr/testify/assert"
)

// fakeVerifyCredentials is a credentialLister fake whose ListAllUnverified
// returns a fixed set and whose MarkVerified calls are recorded.
type fakeVerifyCredentials struct {
	unverified []relational.Credential
	marked     map[string]bool
}

func (f *fakeVerifyCredentials) ListAllActive(ctx context.Context) ([]relational.Credential, error) {
	return nil, nil
}
func (f *fakeVerifyCredentials) ListAllUnverified(ctx context.Context) ([]relational.Credential, error) {
	return f.unverified, nil
}
func (f *fakeVerifyCredentials) MarkVerified(ctx context.Context, id string, verified bool) error {
	if f.marked == nil {
		f.marked = map[string]bool{}
	}
	f.marked[id] = verified
	return nil
}

func TestVerifyOnceBypassesProbeInDemoMode(t *testing.T) {
	creds := &fakeVerifyCredentials{unverified: []relational.Credential{
		{ID: "cred-demo", CustomerID: "c1", Provider: "faketest", Metadata: map[string]string{"mode": "demo"}},
	}}
	a := &fakeAdapter{capability: adapter.CapabilityCost, err: core.New(core.KindTransient, "adapter.faketest", "should never be called", nil)}
	s := newTestSchedulerWithCredentials(creds, a)

	s.verifyOnce(context.Background())

	assert.True(t, creds.marked["cred-demo"])
}

func TestVerifyOnceMarksVerifiedOnSuccessfulProbe(t *testing.T) {
	creds := &fakeVerifyCredentials{unverified: []relational.Credential{
		{ID: "cred-real", CustomerID: "c1", Provider: "faketest"},
	}}
	a := &fakeAdapter{capability: adapter.CapabilityCost, result: adapter.Result{Rows: []core.CostMetric{}}}
	s := newTestSchedulerWithCredentials(creds, a)

	s.verifyOnce(context.Background())

	assert.True(t, creds.marked["cred-real"])
}

func TestVerifyOnceLeavesCredentialUnverifiedOnProbeFailure(t *testing.T) {
	creds := &fakeVerifyCredentials{unverified: []relational.Credential{
		{ID: "cred-bad", CustomerID: "c1", Provider: "faketest"},
	}}
	a := &fakeAdapter{capability: adapter.CapabilityCost, err: core.New(core.KindTransient, "adapter.faketest", "unreachable", nil)}
	s := newTestSchedulerWithCredentials(creds, a)

	s.verifyOnce(context.Background())

	_, marked := creds.marked["cred-bad"]
	assert.False(t, marked)
}

func newTestSchedulerWithCredentials(creds credentialLister, a adapter.Adapter) *Scheduler {
	reg := adapter.NewRegistry()
	reg.Register("faketest", func(adapter.Config) (adapter.Adapter, error) { return a, nil })
	return New(reg, newFakeHistory(), creds, &fakeWriter{}, config.SchedulerConfig{GlobalWorkerPoolSize: 2, AdapterTimeout: 5 * time.Second})
}
