package collector

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/core"
)

var allDataTypes = []core.DataType{
	core.DataTypeCost, core.DataTypePerformance, core.DataTypeResource, core.DataTypeApplication,
}

// RunDiscovery polls every active credential on a fixed tick, enqueuing a
// Job for each (credential, data type) whose interval has elapsed since its
// last successful or partial attempt, per spec.md §4.3's periodic-pull model. It blocks
// until ctx is cancelled, so callers run it in its own goroutine.
func (s *Scheduler) RunDiscovery(ctx context.Context) {
	interval := time.Duration(s.cfg.DefaultIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.verifyOnce(ctx)
	s.discoverOnce(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.verifyOnce(ctx)
			s.discoverOnce(ctx, interval)
		}
	}
}

// discoverOnce resolves each active credential's adapter capabilities
// sequentially (registry.Build is a plain map lookup, but capsByProvider
// itself is shared state, so it isn't worth contending over), then checks
// each (credential, data type) pair's due-ness concurrently, bounded to the
// scheduler's own worker pool size so discovery never outpaces the workers
// that will actually execute the jobs it enqueues.
func (s *Scheduler) discoverOnce(ctx context.Context, interval time.Duration) {
	creds, err := s.credentials.ListAllActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list active credentials")
		return
	}

	capsByProvider := map[string][]adapter.Capability{}
	for _, cred := range creds {
		if _, ok := capsByProvider[cred.Provider]; ok {
			continue
		}
		a, err := s.registry.Build(adapter.Config{Provider: cred.Provider})
		if err != nil {
			s.log.Warn().Str("provider", cred.Provider).Err(err).Msg("no adapter registered for provider")
			capsByProvider[cred.Provider] = nil
			continue
		}
		capsByProvider[cred.Provider] = a.Capabilities()
	}

	limit := s.cfg.GlobalWorkerPoolSize
	if limit <= 0 {
		limit = 8
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, cred := range creds {
		cred := cred
		caps := capsByProvider[cred.Provider]
		for _, dt := range allDataTypes {
			dt := dt
			if !adapter.HasCapability(caps, dt) {
				continue
			}
			eg.Go(func() error {
				if !s.due(egCtx, cred.CustomerID, cred.Provider, dt, interval) {
					return nil
				}
				if err := s.Enqueue(Job{Credential: cred, DataType: dt}); err != nil {
					s.log.Warn().Err(err).Str("customer_id", cred.CustomerID).Str("provider", cred.Provider).
						Str("data_type", string(dt)).Msg("failed to enqueue collection job")
				}
				return nil
			})
		}
	}
	_ = eg.Wait()
}

func (s *Scheduler) due(ctx context.Context, customerID, provider string, dataType core.DataType, interval time.Duration) bool {
	lastCompleted, _, err := s.history.LastSuccessfulWindow(ctx, customerID, provider, string(dataType))
	if err != nil || lastCompleted == nil {
		return true
	}
	return time.Since(*lastCompleted) >= interval
}

