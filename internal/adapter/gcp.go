package adapter

import (
	"context"
	"fmt"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/archokshi/optiinfra/internal/core"
)

// gcpAdapter collects performance metrics via Cloud Monitoring's
// ListTimeSeries API, the same client family ops-agent's go.mod wires
// (cloud.google.com/go/monitoring) for exporting metrics the other
// direction; here it is used to read them back out for a customer project.
type gcpAdapter struct {
	unsupported
	projectID string
	resilient *resilientCaller
}

// NewGCPAdapter implements Constructor for the gcp provider.
func NewGCPAdapter(cfg Config) (Adapter, error) {
	if cfg.ProjectID == "" {
		return nil, core.New(core.KindValidation, "adapter.gcp", "project_id is required", nil)
	}
	return &gcpAdapter{
		unsupported: unsupported{provider: core.ProviderGCP},
		projectID:   cfg.ProjectID,
		resilient:   newResilientCaller("gcp"),
	}, nil
}

func (a *gcpAdapter) Provider() string { return core.ProviderGCP }

func (a *gcpAdapter) Capabilities() []Capability {
	return []Capability{CapabilityPerformance}
}

func (a *gcpAdapter) client(ctx context.Context, cred core.Credential) (*monitoring.MetricClient, error) {
	saJSON := cred.Secret["service_account_json"]
	if saJSON == "" {
		return nil, core.New(core.KindCredentialInvalid, "adapter.gcp", "missing service_account_json", nil)
	}
	client, err := monitoring.NewMetricClient(ctx, option.WithCredentialsJSON([]byte(saJSON)))
	if err != nil {
		return nil, core.New(core.KindFatal, "adapter.gcp", "create monitoring client", err)
	}
	return client, nil
}

func (a *gcpAdapter) CollectPerformance(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error) {
	client, err := a.client(ctx, cred)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	metricType := cred.Metadata["metric_type"]
	if metricType == "" {
		metricType = "compute.googleapis.com/instance/cpu/utilization"
	}

	req := &monitoringpb.ListTimeSeriesRequest{
		Name:   fmt.Sprintf("projects/%s", a.projectID),
		Filter: fmt.Sprintf(`metric.type = "%s"`, metricType),
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(window.Since),
			EndTime:   timestamppb.New(window.Until),
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}

	var rows []core.PerformanceMetric
	now := time.Now().UTC()
	err = a.resilient.call(ctx, func(ctx context.Context) error {
		// Collected into a fresh slice on every attempt: a transient
		// iterator error mid-stream must discard that attempt's partial
		// results rather than let the retried walk append duplicates.
		var attempt []core.PerformanceMetric
		it := client.ListTimeSeries(ctx, req)
		for {
			series, nextErr := it.Next()
			if nextErr == iterator.Done {
				rows = attempt
				return nil
			}
			if nextErr != nil {
				return nextErr
			}
			resourceID := series.GetResource().GetLabels()["instance_id"]
			for _, point := range series.GetPoints() {
				attempt = append(attempt, core.PerformanceMetric{
					Timestamp:   point.GetInterval().GetEndTime().AsTime(),
					CollectedAt: now,
					CustomerID:  cred.CustomerID,
					Provider:    core.ProviderGCP,
					MetricName:  metricType,
					MetricValue: point.GetValue().GetDoubleValue(),
					ResourceID:  resourceID,
				})
			}
		}
	})
	if err != nil {
		return Result{}, core.New(core.KindTransient, "adapter.gcp", "list time series", err)
	}

	return Result{Rows: rows}, nil
}
