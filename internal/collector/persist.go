package collector

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/relational"
)

func historyEntry(id string, job Job, startedAt time.Time) relational.CollectionHistoryEntry {
	return relational.CollectionHistoryEntry{
		ID:         id,
		CustomerID: job.Credential.CustomerID,
		Provider:   job.Credential.Provider,
		DataTypes:  []string{string(job.DataType)},
		StartedAt:  startedAt,
	}
}

func toCoreCredential(c relational.Credential) core.Credential {
	return core.Credential{
		ID:         c.ID,
		CustomerID: c.CustomerID,
		Provider:   c.Provider,
		Secret:     c.Secret,
		Metadata:   c.Metadata,
		Version:    c.Version,
		IsVerified: c.IsVerified,
	}
}

// persist writes result rows through the Metrics Writer for dataType,
// returning the count of rows actually inserted (duplicates are a no-op
// per spec.md §4.2).
func (s *Scheduler) persist(ctx context.Context, dataType core.DataType, customerID, provider string, rows any) (int, error) {
	switch dataType {
	case core.DataTypeCost:
		metrics, ok := rows.([]core.CostMetric)
		if !ok {
			return 0, nil
		}
		fillCommon(metrics, customerID, provider)
		return s.writer.WriteCost(ctx, metrics)
	case core.DataTypePerformance:
		metrics, ok := rows.([]core.PerformanceMetric)
		if !ok {
			return 0, nil
		}
		fillCommon(metrics, customerID, provider)
		return s.writer.WritePerformance(ctx, metrics)
	case core.DataTypeResource:
		metrics, ok := rows.([]core.ResourceMetric)
		if !ok {
			return 0, nil
		}
		fillCommon(metrics, customerID, provider)
		return s.writer.WriteResource(ctx, metrics)
	case core.DataTypeApplication:
		metrics, ok := rows.([]core.ApplicationMetric)
		if !ok {
			return 0, nil
		}
		fillCommon(metrics, customerID, provider)
		return s.writer.WriteApplication(ctx, metrics)
	default:
		return 0, core.New(core.KindValidation, "collector", "unknown data type "+string(dataType), nil)
	}
}

// fillCommon stamps collected_at/customer_id/provider on every row an
// adapter returns, so adapters themselves never need to know which
// customer they're collecting for.
func fillCommon[T any](rows []T, customerID, provider string) {
	now := time.Now()
	for i := range rows {
		switch v := any(&rows[i]).(type) {
		case *core.CostMetric:
			v.CollectedAt, v.CustomerID, v.Provider = now, customerID, provider
		case *core.PerformanceMetric:
			v.CollectedAt, v.CustomerID, v.Provider = now, customerID, provider
		case *core.ResourceMetric:
			v.CollectedAt, v.CustomerID, v.Provider = now, customerID, provider
		case *core.ApplicationMetric:
			v.CollectedAt, v.CustomerID, v.Provider = now, customerID, provider
		}
	}
}
