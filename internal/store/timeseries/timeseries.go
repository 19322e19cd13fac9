// Package timeseries writes and reads the four partitioned metric tables
// (cost_metrics, performance_metrics, resource_metrics, application_metrics)
// spec.md §3 describes. Writes are idempotent on each table's composite
// primary key (ON CONFLICT DO NOTHING) per spec.md §4.2's replay-safety
// requirement; reads sanitize non-finite floats to zero at the boundary per
// §4.5, using core.SanitizeFloat.
package timeseries

import (
	"context"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer batch-inserts collected metrics. One Writer serves all four
// domains since every table shares the same pool and idempotence pattern.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter builds a Writer over pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// WriteCost batch-inserts cost metrics, returning the number of rows
// actually inserted (rows that collided with an existing key are silently
// skipped, not counted, since spec.md §4.2 treats re-delivery as a no-op).
func (w *Writer) WriteCost(ctx context.Context, rows []core.CostMetric) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
            INSERT INTO cost_metrics (timestamp, collected_at, customer_id, provider, instance_id, cost_type, amount, currency, resource_type)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
            ON CONFLICT (customer_id, provider, timestamp, cost_type, instance_id) DO NOTHING`,
			r.Timestamp, r.CollectedAt, r.CustomerID, r.Provider, r.InstanceID, r.CostType, r.Amount, r.Currency, r.ResourceType)
	}
	return w.sendBatch(ctx, batch, len(rows), "cost")
}

// WritePerformance batch-inserts performance metrics.
func (w *Writer) WritePerformance(ctx context.Context, rows []core.PerformanceMetric) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
            INSERT INTO performance_metrics (timestamp, collected_at, customer_id, provider, metric_name, metric_value, resource_id, tags)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (customer_id, provider, timestamp, metric_name, resource_id) DO NOTHING`,
			r.Timestamp, r.CollectedAt, r.CustomerID, r.Provider, r.MetricName, r.MetricValue, r.ResourceID, tagsJSON(r.Tags))
	}
	return w.sendBatch(ctx, batch, len(rows), "performance")
}

// WriteResource batch-inserts resource metrics.
func (w *Writer) WriteResource(ctx context.Context, rows []core.ResourceMetric) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
            INSERT INTO resource_metrics (timestamp, collected_at, customer_id, provider, resource_id, resource_type, metric_name, metric_value)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (customer_id, provider, timestamp, resource_id, metric_name) DO NOTHING`,
			r.Timestamp, r.CollectedAt, r.CustomerID, r.Provider, r.ResourceID, r.ResourceType, r.MetricName, r.MetricValue)
	}
	return w.sendBatch(ctx, batch, len(rows), "resource")
}

// WriteApplication batch-inserts application metrics.
func (w *Writer) WriteApplication(ctx context.Context, rows []core.ApplicationMetric) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
            INSERT INTO application_metrics (timestamp, collected_at, customer_id, provider, application_id, metric_type, score, model_name, prompt_text, response_text, metadata)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
            ON CONFLICT (customer_id, provider, timestamp, application_id, metric_type) DO NOTHING`,
			r.Timestamp, r.CollectedAt, r.CustomerID, r.Provider, r.ApplicationID, r.MetricType, r.Score, r.ModelName, r.PromptText, r.ResponseText, metadataJSON(r.Metadata))
	}
	return w.sendBatch(ctx, batch, len(rows), "application")
}

func (w *Writer) sendBatch(ctx context.Context, batch *pgx.Batch, n int, domain string) (int, error) {
	if n == 0 {
		return 0, nil
	}
	br := w.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			return inserted, core.New(core.KindUnavailable, "timeseries", "write "+domain+" metrics", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
