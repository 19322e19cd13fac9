// Package collector is the Collection Scheduler spec.md §4.3 describes: a
// worker pool that pulls due (customer, provider, data_type) tuples through
// the Provider Adapter registry on a per-provider interval, persists the
// results through the Metrics Writer, and records every attempt in
// collection_history. The worker-pool shape (buffered job channel, fixed
// goroutine pool, context-cancellable Start/Stop) is grounded on the
// teacher's internal/core/runner.go event queue.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/logging"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/rs/zerolog"
)

// Job describes one due collection pull. HistoryID is pre-assigned by the
// caller when the caller needs to hand the id back immediately (the
// on-demand async trigger), and left empty for the discovery loop's own
// jobs, which assign one internally.
type Job struct {
	Credential relational.Credential
	DataType   core.DataType
	HistoryID  string
}

// historyStore is the subset of relational.Store the scheduler needs to
// record collection attempts, narrowed to an interface so tests can
// substitute an in-memory fake instead of a live Postgres pool.
type historyStore interface {
	EnqueueCollection(ctx context.Context, e relational.CollectionHistoryEntry) error
	CompleteCollection(ctx context.Context, id, status string, completedAt time.Time, metricsCollected int, cursor, errSummary string) error
	LastSuccessfulWindow(ctx context.Context, customerID, provider, dataType string) (*time.Time, string, error)
}

// credentialLister is the subset of relational.CredentialStore the
// discovery loop needs: ListAllActive to find due work, and
// ListAllUnverified/MarkVerified to run the round-trip verification pass
// spec.md §4.4 requires before a credential becomes eligible for
// ListAllActive in the first place.
type credentialLister interface {
	ListAllActive(ctx context.Context) ([]relational.Credential, error)
	ListAllUnverified(ctx context.Context) ([]relational.Credential, error)
	MarkVerified(ctx context.Context, id string, verified bool) error
}

// metricsWriter is the subset of timeseries.Writer the scheduler needs to
// persist collected rows.
type metricsWriter interface {
	WriteCost(ctx context.Context, rows []core.CostMetric) (int, error)
	WritePerformance(ctx context.Context, rows []core.PerformanceMetric) (int, error)
	WriteResource(ctx context.Context, rows []core.ResourceMetric) (int, error)
	WriteApplication(ctx context.Context, rows []core.ApplicationMetric) (int, error)
}

// Scheduler owns the worker pool and the adapter/storage wiring every
// worker needs to execute a Job end to end.
type Scheduler struct {
	registry    *adapter.Registry
	history     historyStore
	credentials credentialLister
	writer      metricsWriter
	cfg         config.SchedulerConfig
	log         zerolog.Logger

	queue    chan Job
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

// New builds a Scheduler.
func New(registry *adapter.Registry, history historyStore, credentials credentialLister, writer metricsWriter, cfg config.SchedulerConfig) *Scheduler {
	poolSize := cfg.GlobalWorkerPoolSize
	if poolSize <= 0 {
		poolSize = 8
	}
	return &Scheduler{
		registry:    registry,
		history:     history,
		credentials: credentials,
		writer:      writer,
		cfg:         cfg,
		log:         logging.Component("collector"),
		queue:       make(chan Job, poolSize*4),
		stopChan:    make(chan struct{}),
	}
}
