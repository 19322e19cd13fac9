package timeseries

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
)

// TrendPoint is one hourly-bucketed aggregate value, the shape spec.md
// §4.5's "hourly-bucketed trend" query surface and the dashboard's
// cost_trend[] both require.
type TrendPoint struct {
	Bucket time.Time `json:"bucket"`
	Value  float64   `json:"value"`
}

// Summary is the scalar aggregate surface the dashboard's summary{} object
// needs (spec.md §6's dashboard aggregation contract).
type Summary struct {
	TotalCost         float64  `json:"total_cost"`
	TotalInstances    int      `json:"total_instances"`
	Providers         []string `json:"providers"`
	AvgCPUUtilization float64  `json:"avg_cpu_utilization"`
	MaxCPUUtilization float64  `json:"max_cpu_utilization"`
}

// providerFilter makes the provider predicate optional: an empty string
// matches every provider, non-empty restricts to it.
const providerFilter = `($2 = '' OR provider = $2)`

// CostTrend returns cost_metrics summed into hourly buckets for customerID,
// optionally restricted to provider ("" means every provider), the query
// behind the dashboard's cost_trend[].
func (r *Reader) CostTrend(ctx context.Context, customerID, provider string, window core.Window) ([]TrendPoint, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT date_trunc('hour', timestamp) AS bucket, SUM(amount)
        FROM cost_metrics
        WHERE customer_id = $1 AND `+providerFilter+` AND timestamp >= $3 AND timestamp < $4
        GROUP BY bucket
        ORDER BY bucket`, customerID, provider, window.Since, window.Until)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "timeseries", "query cost trend", err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Bucket, &p.Value); err != nil {
			return nil, core.New(core.KindUnavailable, "timeseries", "scan cost trend row", err)
		}
		p.Value = core.SanitizeFloat(p.Value)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PerformanceTrend returns the hourly average of metricName from
// performance_metrics, the same trend shape CostTrend exposes but for a
// named performance metric (e.g. "latency_ms").
func (r *Reader) PerformanceTrend(ctx context.Context, customerID, provider, metricName string, window core.Window) ([]TrendPoint, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT date_trunc('hour', timestamp) AS bucket, AVG(metric_value)
        FROM performance_metrics
        WHERE customer_id = $1 AND `+providerFilter+` AND metric_name = $5 AND timestamp >= $3 AND timestamp < $4
        GROUP BY bucket
        ORDER BY bucket`, customerID, provider, window.Since, window.Until, metricName)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "timeseries", "query performance trend", err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Bucket, &p.Value); err != nil {
			return nil, core.New(core.KindUnavailable, "timeseries", "scan performance trend row", err)
		}
		p.Value = core.SanitizeFloat(p.Value)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PerformanceSummary returns the average value of every distinct
// metric_name seen for customerID/provider within window, backing the
// dashboard's performance_metrics{} object (one scalar per named metric
// rather than a flat row list).
func (r *Reader) PerformanceSummary(ctx context.Context, customerID, provider string, window core.Window) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT metric_name, AVG(metric_value)
        FROM performance_metrics
        WHERE customer_id = $1 AND `+providerFilter+` AND timestamp >= $3 AND timestamp < $4
        GROUP BY metric_name`, customerID, provider, window.Since, window.Until)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "timeseries", "query performance summary", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, core.New(core.KindUnavailable, "timeseries", "scan performance summary row", err)
		}
		out[name] = core.SanitizeFloat(value)
	}
	return out, rows.Err()
}

// ApplicationQualityScore returns the average application_metrics score
// for customerID and provider ("" matches every provider) within window,
// the scalar signal the Workflow Engine's post-phase quality gate checks
// (spec.md §4.7).
func (r *Reader) ApplicationQualityScore(ctx context.Context, customerID, provider string, window core.Window) (float64, error) {
	var avg *float64
	err := r.pool.QueryRow(ctx, `
        SELECT AVG(score)
        FROM application_metrics
        WHERE customer_id = $1 AND `+providerFilter+` AND timestamp >= $3 AND timestamp < $4 AND score IS NOT NULL`,
		customerID, provider, window.Since, window.Until).Scan(&avg)
	if err != nil {
		return 0, core.New(core.KindUnavailable, "timeseries", "query application quality score", err)
	}
	if avg == nil {
		// No application_metrics rows yet for this window (e.g. a phase that
		// just started, or a customer that hasn't reported quality data at
		// all) is not evidence of a regression. Reporting a perfect score
		// here is a deliberate fail-open choice, the same one the Workflow
		// Engine applies when the check itself errors.
		return 1, nil
	}
	return core.SanitizeFloat(*avg), nil
}

// Summary computes the dashboard's scalar summary block: total cost,
// distinct instance/provider counts, and CPU utilization extremes, all
// sanitized per spec.md §4.5.
func (r *Reader) Summary(ctx context.Context, customerID, provider string, window core.Window) (Summary, error) {
	var s Summary

	err := r.pool.QueryRow(ctx, `
        SELECT COALESCE(SUM(amount), 0)
        FROM cost_metrics
        WHERE customer_id = $1 AND `+providerFilter+` AND timestamp >= $3 AND timestamp < $4`,
		customerID, provider, window.Since, window.Until).Scan(&s.TotalCost)
	if err != nil {
		return Summary{}, core.New(core.KindUnavailable, "timeseries", "query total cost", err)
	}
	s.TotalCost = core.SanitizeFloat(s.TotalCost)

	err = r.pool.QueryRow(ctx, `
        SELECT COUNT(DISTINCT resource_id), COALESCE(array_agg(DISTINCT provider), '{}')
        FROM resource_metrics
        WHERE customer_id = $1 AND `+providerFilter+` AND timestamp >= $3 AND timestamp < $4`,
		customerID, provider, window.Since, window.Until).Scan(&s.TotalInstances, &s.Providers)
	if err != nil {
		return Summary{}, core.New(core.KindUnavailable, "timeseries", "query instance/provider counts", err)
	}

	var avg, max *float64
	err = r.pool.QueryRow(ctx, `
        SELECT AVG(metric_value), MAX(metric_value)
        FROM resource_metrics
        WHERE customer_id = $1 AND `+providerFilter+` AND metric_name = 'cpu_utilization'
          AND timestamp >= $3 AND timestamp < $4`,
		customerID, provider, window.Since, window.Until).Scan(&avg, &max)
	if err != nil {
		return Summary{}, core.New(core.KindUnavailable, "timeseries", "query cpu utilization", err)
	}
	if avg != nil {
		s.AvgCPUUtilization = core.SanitizeFloat(*avg)
	}
	if max != nil {
		s.MaxCPUUtilization = core.SanitizeFloat(*max)
	}
	return s, nil
}
