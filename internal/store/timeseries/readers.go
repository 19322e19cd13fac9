package timeseries

import (
	"context"
	"encoding/json"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reader serves ranged queries over one customer's metrics, sanitizing
// every float it returns per spec.md §4.5.
type Reader struct {
	pool *pgxpool.Pool
}

// NewReader builds a Reader over pool.
func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// Cost returns cost_metrics rows for customerID/provider within window,
// ordered oldest first.
func (r *Reader) Cost(ctx context.Context, customerID, provider string, window core.Window) ([]core.CostMetric, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT timestamp, collected_at, customer_id, provider, instance_id, cost_type, amount, currency, resource_type
        FROM cost_metrics
        WHERE customer_id = $1 AND provider = $2 AND timestamp >= $3 AND timestamp < $4
        ORDER BY timestamp`, customerID, provider, window.Since, window.Until)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "timeseries", "query cost metrics", err)
	}
	defer rows.Close()

	var out []core.CostMetric
	for rows.Next() {
		var m core.CostMetric
		var instanceID, resourceType *string
		if err := rows.Scan(&m.Timestamp, &m.CollectedAt, &m.CustomerID, &m.Provider, &instanceID, &m.CostType, &m.Amount, &m.Currency, &resourceType); err != nil {
			return nil, core.New(core.KindUnavailable, "timeseries", "scan cost metric row", err)
		}
		m.InstanceID = derefString(instanceID)
		m.ResourceType = derefString(resourceType)
		m.Amount = core.SanitizeFloat(m.Amount)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Performance returns performance_metrics rows for customerID/provider
// within window.
func (r *Reader) Performance(ctx context.Context, customerID, provider string, window core.Window) ([]core.PerformanceMetric, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT timestamp, collected_at, customer_id, provider, metric_name, metric_value, resource_id, tags
        FROM performance_metrics
        WHERE customer_id = $1 AND provider = $2 AND timestamp >= $3 AND timestamp < $4
        ORDER BY timestamp`, customerID, provider, window.Since, window.Until)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "timeseries", "query performance metrics", err)
	}
	defer rows.Close()

	var out []core.PerformanceMetric
	for rows.Next() {
		var m core.PerformanceMetric
		var resourceID *string
		var tagsJSON []byte
		if err := rows.Scan(&m.Timestamp, &m.CollectedAt, &m.CustomerID, &m.Provider, &m.MetricName, &m.MetricValue, &resourceID, &tagsJSON); err != nil {
			return nil, core.New(core.KindUnavailable, "timeseries", "scan performance metric row", err)
		}
		m.ResourceID = derefString(resourceID)
		m.MetricValue = core.SanitizeFloat(m.MetricValue)
		if len(tagsJSON) > 0 {
			_ = json.Unmarshal(tagsJSON, &m.Tags)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Resource returns resource_metrics rows for customerID/provider within
// window.
func (r *Reader) Resource(ctx context.Context, customerID, provider string, window core.Window) ([]core.ResourceMetric, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT timestamp, collected_at, customer_id, provider, resource_id, resource_type, metric_name, metric_value
        FROM resource_metrics
        WHERE customer_id = $1 AND provider = $2 AND timestamp >= $3 AND timestamp < $4
        ORDER BY timestamp`, customerID, provider, window.Since, window.Until)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "timeseries", "query resource metrics", err)
	}
	defer rows.Close()

	var out []core.ResourceMetric
	for rows.Next() {
		var m core.ResourceMetric
		var resourceType *string
		if err := rows.Scan(&m.Timestamp, &m.CollectedAt, &m.CustomerID, &m.Provider, &m.ResourceID, &resourceType, &m.MetricName, &m.MetricValue); err != nil {
			return nil, core.New(core.KindUnavailable, "timeseries", "scan resource metric row", err)
		}
		m.ResourceType = derefString(resourceType)
		m.MetricValue = core.SanitizeFloat(m.MetricValue)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Application returns application_metrics rows for customerID/provider
// within window.
func (r *Reader) Application(ctx context.Context, customerID, provider string, window core.Window) ([]core.ApplicationMetric, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT timestamp, collected_at, customer_id, provider, application_id, metric_type, score, model_name, prompt_text, response_text, metadata
        FROM application_metrics
        WHERE customer_id = $1 AND provider = $2 AND timestamp >= $3 AND timestamp < $4
        ORDER BY timestamp`, customerID, provider, window.Since, window.Until)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "timeseries", "query application metrics", err)
	}
	defer rows.Close()

	var out []core.ApplicationMetric
	for rows.Next() {
		var m core.ApplicationMetric
		var score *float64
		var modelName, promptText, responseText *string
		var metadataJSON []byte
		if err := rows.Scan(&m.Timestamp, &m.CollectedAt, &m.CustomerID, &m.Provider, &m.ApplicationID, &m.MetricType, &score, &modelName, &promptText, &responseText, &metadataJSON); err != nil {
			return nil, core.New(core.KindUnavailable, "timeseries", "scan application metric row", err)
		}
		if score != nil {
			m.Score = core.SanitizeFloat(*score)
		}
		m.ModelName = derefString(modelName)
		m.PromptText = derefString(promptText)
		m.ResponseText = derefString(responseText)
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
