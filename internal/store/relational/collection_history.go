package relational

import (
	"context"
	"errors"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/jackc/pgx/v5"
)

// CollectionHistoryEntry is a row of collection_history (spec.md §3).
type CollectionHistoryEntry struct {
	ID               string
	CustomerID       string
	Provider         string
	DataTypes        []string
	Status           string // queued | success | partial | failed
	StartedAt        time.Time
	CompletedAt      *time.Time
	MetricsCollected int
	Cursor           string
	Error            string
}

// EnqueueCollection records a new attempt in status=queued. The Scheduler
// calls it when a worker starts a job, not when the job is enqueued: jobs
// waiting for a worker sit in the Scheduler's in-memory channel, which is
// not durable, and nothing claims queued rows from this table.
func (s *Store) EnqueueCollection(ctx context.Context, e CollectionHistoryEntry) error {
	_, err := s.Pool.Exec(ctx, `
        INSERT INTO collection_history (id, customer_id, provider, data_types, status, started_at)
        VALUES ($1, $2, $3, $4, 'queued', $5)`,
		e.ID, e.CustomerID, e.Provider, e.DataTypes, e.StartedAt)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "enqueue collection", err)
	}
	return nil
}

// CompleteCollection records the terminal outcome of a collection attempt.
func (s *Store) CompleteCollection(ctx context.Context, id, status string, completedAt time.Time, metricsCollected int, cursor, errSummary string) error {
	_, err := s.Pool.Exec(ctx, `
        UPDATE collection_history
        SET status = $2, completed_at = $3, metrics_collected = $4, cursor = $5, error = $6
        WHERE id = $1`,
		id, status, completedAt, metricsCollected, nullIfEmpty(cursor), nullIfEmpty(errSummary))
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "complete collection", err)
	}
	return nil
}

// LastSuccessfulWindow returns the end of the most recent successful or
// partial collection for (customer, provider, dataType), used by the
// scheduler to compute the next pull's time window per spec.md §4.3.
func (s *Store) LastSuccessfulWindow(ctx context.Context, customerID, provider, dataType string) (*time.Time, string, error) {
	var completedAt *time.Time
	var cursor *string
	err := s.Pool.QueryRow(ctx, `
        SELECT completed_at, cursor FROM collection_history
        WHERE customer_id = $1 AND provider = $2 AND $3 = ANY(data_types)
          AND status IN ('success', 'partial')
        ORDER BY started_at DESC LIMIT 1`,
		customerID, provider, dataType).Scan(&completedAt, &cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil // no prior attempt; caller falls back to default lookback
	}
	if err != nil {
		return nil, "", core.New(core.KindUnavailable, "relational", "query last successful collection window", err)
	}
	c := ""
	if cursor != nil {
		c = *cursor
	}
	return completedAt, c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
