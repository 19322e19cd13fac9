package adapter

import (
	"context"
	"time"

	"github.com/vultr/govultr/v2"
	"golang.org/x/oauth2"

	"github.com/archokshi/optiinfra/internal/core"
)

// vultrAdapter collects resource inventory via govultr's Instance service,
// grounded on the vultr/govultr/v2 dependency ops-agent's go.mod already
// carries.
type vultrAdapter struct {
	unsupported
	resilient *resilientCaller
}

// NewVultrAdapter implements Constructor for the vultr provider.
func NewVultrAdapter(cfg Config) (Adapter, error) {
	return &vultrAdapter{
		unsupported: unsupported{provider: core.ProviderVultr},
		resilient:   newResilientCaller("vultr"),
	}, nil
}

func (a *vultrAdapter) Provider() string { return core.ProviderVultr }

func (a *vultrAdapter) Capabilities() []Capability {
	return []Capability{CapabilityResource}
}

func (a *vultrAdapter) client(cred core.Credential) (*govultr.Client, error) {
	apiKey := cred.Secret["api_key"]
	if apiKey == "" {
		return nil, core.New(core.KindCredentialInvalid, "adapter.vultr", "missing api_key", nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey})
	return govultr.NewClient(oauth2.NewClient(context.Background(), ts)), nil
}

func (a *vultrAdapter) CollectResource(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error) {
	client, err := a.client(cred)
	if err != nil {
		return Result{}, err
	}

	var rows []core.ResourceMetric
	now := time.Now().UTC()
	listOpts := &govultr.ListOptions{}
	if cursor != "" {
		listOpts.Cursor = cursor
	}

	err = a.resilient.call(ctx, func(ctx context.Context) error {
		instances, meta, callErr := client.Instance.List(ctx, listOpts)
		if callErr != nil {
			return callErr
		}
		for _, inst := range instances {
			rows = append(rows, core.ResourceMetric{
				Timestamp:    now,
				CollectedAt:  now,
				CustomerID:   cred.CustomerID,
				Provider:     core.ProviderVultr,
				ResourceID:   inst.ID,
				ResourceType: "vultr_instance",
				MetricName:   "plan:" + inst.Plan,
				MetricValue:  1,
			})
		}
		if meta != nil {
			cursor = meta.Links.Next
		}
		return nil
	})
	if err != nil {
		return Result{}, core.New(core.KindTransient, "adapter.vultr", "list instances", err)
	}

	return Result{Rows: rows, Cursor: cursor}, nil
}
