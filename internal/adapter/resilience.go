package adapter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// resilientCaller wraps a provider call with a cenkalti/backoff/v4 retry
// policy and a sony/gobreaker circuit breaker, per spec.md §4.1: adapter
// pulls are idempotent reads, safe to retry transiently, but a sustained
// provider outage must trip the breaker rather than pin down scheduler
// workers (enrichment from kubernaut's go.mod, which already carries
// gobreaker for its own provider-call resilience).
type resilientCaller struct {
	breaker *gobreaker.CircuitBreaker
}

func newResilientCaller(name string) *resilientCaller {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &resilientCaller{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// call runs every attempt of fn through the circuit breaker and retries
// failed attempts with exponential backoff until ctx is done or the
// backoff's own elapsed-time limit is reached, so repeated failures from an
// unreachable provider open the breaker for subsequent calls.
func (r *resilientCaller) call(ctx context.Context, fn func(context.Context) error) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	operation := func() error {
		_, err := r.breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		return err
	}
	return backoff.Retry(operation, policy)
}
