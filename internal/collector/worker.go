package collector

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/rs/zerolog"
)

// Start launches the worker pool. It is non-blocking, mirroring the
// teacher's Runner.Start: callers get a handle back immediately and stop
// the pool later via Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	poolSize := s.cfg.GlobalWorkerPoolSize
	if poolSize <= 0 {
		poolSize = 8
	}
	s.mu.Unlock()

	for i := 0; i < poolSize; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.log.Info().Int("workers", poolSize).Msg("collection scheduler started")
}

// Stop signals every worker to exit and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("collection scheduler stopped")
}

// Enqueue submits job for processing asynchronously, blocking up to 2
// seconds if every worker is busy and the queue is full. The caller never
// learns the outcome directly; it lands in collection_history.
func (s *Scheduler) Enqueue(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	select {
	case s.queue <- job:
		return nil
	case <-ctx.Done():
		return core.New(core.KindUnavailable, "collector", "enqueue timed out: scheduler backlog full", nil)
	case <-s.stopChan:
		return core.New(core.KindUnavailable, "collector", "scheduler is stopped", nil)
	}
}

// EnqueueAsync assigns a history id up front and enqueues job for
// background processing, returning the id immediately so an `async_mode:
// true` on-demand trigger (spec.md §4.3) can hand it back to the caller
// without waiting for the pull to finish.
func (s *Scheduler) EnqueueAsync(job Job) (string, error) {
	job.HistoryID = core.NewID()
	if err := s.Enqueue(job); err != nil {
		return "", err
	}
	return job.HistoryID, nil
}

// RunNow executes job synchronously and returns its outcome, for an
// `async_mode: false` on-demand trigger that must block until completion
// and return the row counts (spec.md §4.3). It shares run's logic with the
// background worker path so the two never diverge.
func (s *Scheduler) RunNow(ctx context.Context, job Job) runOutcome {
	return s.run(ctx, job)
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case job := <-s.queue:
			s.run(ctx, job)
		}
	}
}

// runOutcome is one Job's terminal result, returned by run so both the
// background worker path and RunNow's synchronous callers can observe it.
type runOutcome struct {
	HistoryID string
	Status    string // success | partial | failed
	Count     int
	Cursor    string
	Err       error
}

// run executes one Job end to end: build the adapter, resolve the window
// from the last successful attempt, pull, write, and record the outcome.
func (s *Scheduler) run(ctx context.Context, job Job) runOutcome {
	logger := s.log.With().Str("customer_id", job.Credential.CustomerID).
		Str("provider", job.Credential.Provider).Str("data_type", string(job.DataType)).Logger()

	historyID := job.HistoryID
	if historyID == "" {
		historyID = core.NewID()
	}
	startedAt := time.Now()
	if err := s.history.EnqueueCollection(ctx, historyEntry(historyID, job, startedAt)); err != nil {
		logger.Error().Err(err).Msg("failed to record collection attempt")
		return runOutcome{HistoryID: historyID, Status: "failed", Err: err}
	}

	a, err := s.registry.Build(adapter.Config{Provider: job.Credential.Provider, HTTPTimeout: s.cfg.AdapterTimeout})
	if err != nil {
		return s.complete(ctx, historyID, "failed", 0, "", err, logger)
	}
	if _, ok := adapter.ForCapability(a, job.DataType); !ok {
		return s.complete(ctx, historyID, "failed", 0, "",
			core.New(core.KindValidation, "collector", "adapter does not support "+string(job.DataType), nil), logger)
	}

	window, cursor := s.resolveWindow(ctx, job)

	pullCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.AdapterTimeout > 0 {
		pullCtx, cancel = context.WithTimeout(ctx, s.cfg.AdapterTimeout)
		defer cancel()
	}

	cred := toCoreCredential(job.Credential)
	result, pullErr := s.collect(pullCtx, a, job.DataType, cred, window, cursor)
	if pullErr != nil {
		return s.complete(ctx, historyID, "failed", 0, "", pullErr, logger)
	}

	count, writeErr := s.persist(ctx, job.DataType, job.Credential.CustomerID, job.Credential.Provider, result.Rows)
	if writeErr != nil {
		return s.complete(ctx, historyID, "failed", count, result.Cursor, writeErr, logger)
	}

	status := "success"
	var outcomeErr error
	if result.Partial {
		status = "partial"
		outcomeErr = result.Errors
	}
	return s.complete(ctx, historyID, status, count, result.Cursor, outcomeErr, logger)
}

func (s *Scheduler) collect(ctx context.Context, a adapter.Adapter, dataType core.DataType, cred core.Credential, window core.Window, cursor string) (adapter.Result, error) {
	switch dataType {
	case core.DataTypeCost:
		return a.CollectCost(ctx, cred, window, cursor)
	case core.DataTypePerformance:
		return a.CollectPerformance(ctx, cred, window, cursor)
	case core.DataTypeResource:
		return a.CollectResource(ctx, cred, window, cursor)
	case core.DataTypeApplication:
		return a.CollectApplication(ctx, cred, window, cursor)
	default:
		return adapter.Result{}, core.New(core.KindValidation, "collector", "unknown data type "+string(dataType), nil)
	}
}

func (s *Scheduler) resolveWindow(ctx context.Context, job Job) (core.Window, string) {
	until := time.Now()
	since := until.Add(-s.cfg.MaxLookback)

	lastCompleted, cursor, err := s.history.LastSuccessfulWindow(ctx, job.Credential.CustomerID, job.Credential.Provider, string(job.DataType))
	if err != nil {
		s.log.Warn().Err(err).Str("customer_id", job.Credential.CustomerID).Str("provider", job.Credential.Provider).
			Msg("failed to look up last successful collection window, falling back to max lookback")
	}
	if err == nil && lastCompleted != nil && lastCompleted.After(since) {
		since = *lastCompleted
	}
	return core.Window{Since: since, Until: until}, cursor
}

func (s *Scheduler) complete(ctx context.Context, historyID, status string, count int, cursor string, outcomeErr error, logger zerolog.Logger) runOutcome {
	errSummary := ""
	if outcomeErr != nil {
		errSummary = outcomeErr.Error()
	}
	if err := s.history.CompleteCollection(ctx, historyID, status, time.Now(), count, cursor, errSummary); err != nil {
		logger.Error().Err(err).Msg("failed to record collection outcome")
		return runOutcome{HistoryID: historyID, Status: status, Count: count, Cursor: cursor, Err: err}
	}
	ev := logger.Info()
	if status != "success" {
		ev = logger.Warn()
	}
	ev.Str("status", status).Int("metrics_collected", count).Msg("collection attempt finished")
	return runOutcome{HistoryID: historyID, Status: status, Count: count, Cursor: cursor, Err: outcomeErr}
}
