package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportsMatchesCapability(t *testing.T) {
	caps := []adapter.Capability{adapter.CapabilityCost, adapter.CapabilityResource}
	assert.True(t, adapter.HasCapability(caps, core.DataTypeCost))
	assert.True(t, adapter.HasCapability(caps, core.DataTypeResource))
	assert.False(t, adapter.HasCapability(caps, core.DataTypePerformance))
	assert.False(t, adapter.HasCapability(caps, core.DataTypeApplication))
}

func TestToCoreCredentialCopiesFields(t *testing.T) {
	rc := relational.Credential{
		ID: "c1", CustomerID: "cust1", Provider: "aws",
		Secret: map[string]string{"access_key_id": "AKIA"}, Metadata: map[string]string{"region": "us-east-1"},
		Version: 2, IsVerified: true,
	}
	c := toCoreCredential(rc)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "cust1", c.CustomerID)
	assert.Equal(t, "aws", c.Provider)
	assert.Equal(t, "AKIA", c.Secret["access_key_id"])
	assert.Equal(t, "us-east-1", c.Metadata["region"])
	assert.Equal(t, 2, c.Version)
	assert.True(t, c.IsVerified)
}

func TestHistoryEntryStampsJobFields(t *testing.T) {
	job := Job{Credential: relational.Credential{CustomerID: "cust1", Provider: "gcp"}, DataType: core.DataTypePerformance}
	startedAt := time.Now()
	e := historyEntry("h1", job, startedAt)
	assert.Equal(t, "h1", e.ID)
	assert.Equal(t, "cust1", e.CustomerID)
	assert.Equal(t, "gcp", e.Provider)
	assert.Equal(t, []string{"performance"}, e.DataTypes)
	assert.Equal(t, startedAt, e.StartedAt)
}

func TestFillCommonStampsEveryRow(t *testing.T) {
	rows := []core.ResourceMetric{{ResourceID: "i-1"}, {ResourceID: "i-2"}}
	fillCommon(rows, "cust1", "aws")
	for _, r := range rows {
		assert.Equal(t, "cust1", r.CustomerID)
		assert.Equal(t, "aws", r.Provider)
		assert.False(t, r.CollectedAt.IsZero())
	}
}

// --- in-memory fakes for the scheduler's storage dependencies -------------

type fakeHistory struct {
	mu        sync.Mutex
	enqueued  map[string]relational.CollectionHistoryEntry
	completed map[string]string // id -> status
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{enqueued: map[string]relational.CollectionHistoryEntry{}, completed: map[string]string{}}
}

func (f *fakeHistory) EnqueueCollection(ctx context.Context, e relational.CollectionHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued[e.ID] = e
	return nil
}

func (f *fakeHistory) CompleteCollection(ctx context.Context, id, status string, completedAt time.Time, metricsCollected int, cursor, errSummary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = status
	return nil
}

func (f *fakeHistory) LastSuccessfulWindow(ctx context.Context, customerID, provider, dataType string) (*time.Time, string, error) {
	return nil, "", nil
}

type fakeWriter struct {
	mu   sync.Mutex
	cost []core.CostMetric
	perf []core.PerformanceMetric
}

func (f *fakeWriter) WriteCost(ctx context.Context, rows []core.CostMetric) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cost = append(f.cost, rows...)
	return len(rows), nil
}
func (f *fakeWriter) WritePerformance(ctx context.Context, rows []core.PerformanceMetric) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perf = append(f.perf, rows...)
	return len(rows), nil
}
func (f *fakeWriter) WriteResource(ctx context.Context, rows []core.ResourceMetric) (int, error) {
	return len(rows), nil
}
func (f *fakeWriter) WriteApplication(ctx context.Context, rows []core.ApplicationMetric) (int, error) {
	return len(rows), nil
}

// fakeAdapter implements adapter.Adapter, advertising exactly one
// capability and returning a scripted Result for it.
type fakeAdapter struct {
	capability adapter.Capability
	result     adapter.Result
	err        error
}

func (a *fakeAdapter) Provider() string                   { return "faketest" }
func (a *fakeAdapter) Capabilities() []adapter.Capability  { return []adapter.Capability{a.capability} }
func (a *fakeAdapter) CollectCost(ctx context.Context, cred core.Credential, window core.Window, cursor string) (adapter.Result, error) {
	if a.capability != adapter.CapabilityCost {
		return adapter.Result{}, core.New(core.KindValidation, "adapter.faketest", "collect_cost not supported", nil)
	}
	return a.result, a.err
}
func (a *fakeAdapter) CollectPerformance(ctx context.Context, cred core.Credential, window core.Window, cursor string) (adapter.Result, error) {
	if a.capability != adapter.CapabilityPerformance {
		return adapter.Result{}, core.New(core.KindValidation, "adapter.faketest", "collect_performance not supported", nil)
	}
	return a.result, a.err
}
func (a *fakeAdapter) CollectResource(ctx context.Context, cred core.Credential, window core.Window, cursor string) (adapter.Result, error) {
	return adapter.Result{}, core.New(core.KindValidation, "adapter.faketest", "collect_resource not supported", nil)
}
func (a *fakeAdapter) CollectApplication(ctx context.Context, cred core.Credential, window core.Window, cursor string) (adapter.Result, error) {
	return adapter.Result{}, core.New(core.KindValidation, "adapter.faketest", "collect_application not supported", nil)
}

func newTestScheduler(history *fakeHistory, writer *fakeWriter, a adapter.Adapter) *Scheduler {
	reg := adapter.NewRegistry()
	reg.Register("faketest", func(adapter.Config) (adapter.Adapter, error) { return a, nil })
	return New(reg, history, &fakeActiveCredentials{}, writer, config.SchedulerConfig{GlobalWorkerPoolSize: 2, AdapterTimeout: 5 * time.Second})
}

type fakeActiveCredentials struct{}

func (fakeActiveCredentials) ListAllActive(ctx context.Context) ([]relational.Credential, error) {
	return nil, nil
}
func (fakeActiveCredentials) ListAllUnverified(ctx context.Context) ([]relational.Credential, error) {
	return nil, nil
}
func (fakeActiveCredentials) MarkVerified(ctx context.Context, id string, verified bool) error {
	return nil
}

// TestSchedulerRunNowCostHappyPath exercises S1: a verified credential's
// on-demand synchronous cost collection writes rows and completes with
// status=success.
func TestSchedulerRunNowCostHappyPath(t *testing.T) {
	history := newFakeHistory()
	writer := &fakeWriter{}
	a := &fakeAdapter{capability: adapter.CapabilityCost, result: adapter.Result{
		Rows: []core.CostMetric{{Timestamp: time.Now(), Amount: 12.5, Currency: "USD", CostType: "compute"}},
	}}
	s := newTestScheduler(history, writer, a)

	cred := relational.Credential{ID: "cred-1", CustomerID: "c1", Provider: "faketest", IsVerified: true}
	outcome := s.RunNow(context.Background(), Job{Credential: cred, DataType: core.DataTypeCost})

	require.NoError(t, outcome.Err)
	assert.Equal(t, "success", outcome.Status)
	assert.Equal(t, 1, outcome.Count)
	assert.Len(t, writer.cost, 1)
	assert.Equal(t, "success", history.completed[outcome.HistoryID])
}

// TestSchedulerRunNowPartialPerformance exercises S2: an adapter that
// returns rows for some sub-queries and errors for others yields
// status=partial, the successful rows still land, and no error escapes to
// the caller as a hard failure.
func TestSchedulerRunNowPartialPerformance(t *testing.T) {
	history := newFakeHistory()
	writer := &fakeWriter{}
	partialErr := core.NewMultiError([]error{core.New(core.KindTransient, "adapter.faketest", "sub-query 3 timed out", nil)})
	a := &fakeAdapter{capability: adapter.CapabilityPerformance, result: adapter.Result{
		Rows: []core.PerformanceMetric{
			{Timestamp: time.Now(), MetricName: "latency_ms", MetricValue: 42},
			{Timestamp: time.Now(), MetricName: "latency_ms", MetricValue: 55},
		},
		Partial: true,
		Errors:  partialErr,
	}}
	s := newTestScheduler(history, writer, a)

	cred := relational.Credential{ID: "cred-2", CustomerID: "c1", Provider: "faketest", IsVerified: true}
	outcome := s.RunNow(context.Background(), Job{Credential: cred, DataType: core.DataTypePerformance})

	assert.Equal(t, "partial", outcome.Status)
	assert.Equal(t, 2, outcome.Count)
	assert.Error(t, outcome.Err)
	assert.Len(t, writer.perf, 2)
	assert.Equal(t, "partial", history.completed[outcome.HistoryID])
}

// TestSchedulerEnqueueAsyncReturnsHistoryIDImmediately backs the
// async_mode=true leg of the on-demand trigger contract: the caller gets a
// history id back without waiting for the job to run.
func TestSchedulerEnqueueAsyncReturnsHistoryIDImmediately(t *testing.T) {
	history := newFakeHistory()
	writer := &fakeWriter{}
	a := &fakeAdapter{capability: adapter.CapabilityCost, result: adapter.Result{Rows: []core.CostMetric{}}}
	s := newTestScheduler(history, writer, a)
	s.Start(context.Background())
	defer s.Stop()

	cred := relational.Credential{ID: "cred-3", CustomerID: "c1", Provider: "faketest", IsVerified: true}
	id, err := s.EnqueueAsync(Job{Credential: cred, DataType: core.DataTypeCost})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
