package adapter

import (
	"fmt"
	"time"

	"context"

	"github.com/go-resty/resty/v2"

	"github.com/archokshi/optiinfra/internal/core"
)

// runpodAdapter collects GPU pod resource rows via RunPod's REST API using
// go-resty/resty/v2, since RunPod has no official Go SDK in the reference
// dependency graph (DESIGN.md).
type runpodAdapter struct {
	unsupported
	http      *resty.Client
	resilient *resilientCaller
}

// NewRunPodAdapter implements Constructor for the runpod provider.
func NewRunPodAdapter(cfg Config) (Adapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.runpod.io/v2"
	}
	return &runpodAdapter{
		unsupported: unsupported{provider: core.ProviderRunPod},
		http:        resty.New().SetBaseURL(baseURL).SetTimeout(cfg.HTTPTimeout),
		resilient:   newResilientCaller("runpod"),
	}, nil
}

func (a *runpodAdapter) Provider() string { return core.ProviderRunPod }

func (a *runpodAdapter) Capabilities() []Capability {
	return []Capability{CapabilityResource, CapabilityCost}
}

type runpodPod struct {
	ID        string  `json:"id"`
	GPUType   string  `json:"gpuTypeId"`
	CostPerHr float64 `json:"costPerHr"`
}

func (a *runpodAdapter) pods(ctx context.Context, cred core.Credential) ([]runpodPod, error) {
	apiKey := cred.Secret["api_key"]
	if apiKey == "" {
		return nil, core.New(core.KindCredentialInvalid, "adapter.runpod", "missing api_key", nil)
	}

	var pods []runpodPod
	err := a.resilient.call(ctx, func(ctx context.Context) error {
		resp, reqErr := a.http.R().
			SetContext(ctx).
			SetAuthToken(apiKey).
			SetResult(&pods).
			Get("/pods")
		if reqErr != nil {
			return reqErr
		}
		if resp.IsError() {
			return fmt.Errorf("runpod /pods returned %s", resp.Status())
		}
		return nil
	})
	return pods, err
}

func (a *runpodAdapter) CollectResource(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error) {
	pods, err := a.pods(ctx, cred)
	if err != nil {
		return Result{}, core.New(core.KindTransient, "adapter.runpod", "list pods", err)
	}

	now := time.Now().UTC()
	rows := make([]core.ResourceMetric, 0, len(pods))
	for _, p := range pods {
		rows = append(rows, core.ResourceMetric{
			Timestamp:    now,
			CollectedAt:  now,
			CustomerID:   cred.CustomerID,
			Provider:     core.ProviderRunPod,
			ResourceID:   p.ID,
			ResourceType: "gpu_pod",
			MetricName:   "gpu_type:" + p.GPUType,
			MetricValue:  1,
		})
	}
	return Result{Rows: rows}, nil
}

func (a *runpodAdapter) CollectCost(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error) {
	pods, err := a.pods(ctx, cred)
	if err != nil {
		return Result{}, core.New(core.KindTransient, "adapter.runpod", "list pods", err)
	}

	now := time.Now().UTC()
	rows := make([]core.CostMetric, 0, len(pods))
	for _, p := range pods {
		rows = append(rows, core.CostMetric{
			Timestamp:    now,
			CollectedAt:  now,
			CustomerID:   cred.CustomerID,
			Provider:     core.ProviderRunPod,
			InstanceID:   p.ID,
			CostType:     "gpu_hourly",
			Amount:       p.CostPerHr,
			Currency:     "USD",
			ResourceType: "gpu_pod",
		})
	}
	return Result{Rows: rows}, nil
}
