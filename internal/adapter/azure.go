package adapter

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/archokshi/optiinfra/internal/core"
)

// azureAdapter collects resource inventory via armcompute's VirtualMachines
// client, demonstrating the teacher's azcore.ClientOptions retry/telemetry
// policy configuration pattern (SPEC_FULL.md §4.1) even though no live
// Azure credential is exercised in tests.
type azureAdapter struct {
	unsupported
	subscriptionID string
	resilient      *resilientCaller
	clientOptions  arm.ClientOptions
}

// NewAzureAdapter implements Constructor for the azure provider.
func NewAzureAdapter(cfg Config) (Adapter, error) {
	if cfg.SubscriptionID == "" {
		return nil, core.New(core.KindValidation, "adapter.azure", "subscription_id is required", nil)
	}
	return &azureAdapter{
		unsupported:    unsupported{provider: core.ProviderAzure},
		subscriptionID: cfg.SubscriptionID,
		resilient:      newResilientCaller("azure"),
		clientOptions: arm.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{MaxRetries: 3},
			},
		},
	}, nil
}

func (a *azureAdapter) Provider() string { return core.ProviderAzure }

func (a *azureAdapter) Capabilities() []Capability {
	return []Capability{CapabilityResource}
}

func (a *azureAdapter) CollectResource(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error) {
	clientID := cred.Secret["client_id"]
	clientSecret := cred.Secret["client_secret"]
	tenantID := cred.Secret["tenant_id"]
	if clientID == "" || clientSecret == "" || tenantID == "" {
		return Result{}, core.New(core.KindCredentialInvalid, "adapter.azure", "missing client_id/client_secret/tenant_id", nil)
	}

	cred2, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return Result{}, core.New(core.KindCredentialInvalid, "adapter.azure", "build client secret credential", err)
	}

	client, err := armcompute.NewVirtualMachinesClient(a.subscriptionID, cred2, &a.clientOptions)
	if err != nil {
		return Result{}, core.New(core.KindFatal, "adapter.azure", "create virtual machines client", err)
	}

	resourceGroup := cred.Metadata["resource_group"]
	if resourceGroup == "" {
		return Result{}, core.New(core.KindValidation, "adapter.azure", "credential metadata missing resource_group", nil)
	}

	var rows []core.ResourceMetric
	now := time.Now().UTC()
	err = a.resilient.call(ctx, func(ctx context.Context) error {
		// Collected into a fresh slice on every attempt: a transient error
		// partway through pagination must discard that attempt's partial
		// pages rather than let the retried walk append duplicates on top.
		var attempt []core.ResourceMetric
		pager := client.NewListPager(resourceGroup, nil)
		for pager.More() {
			page, pageErr := pager.NextPage(ctx)
			if pageErr != nil {
				return pageErr
			}
			for _, vm := range page.Value {
				attempt = append(attempt, vmToResourceMetric(vm, cred.CustomerID, now))
			}
		}
		rows = attempt
		return nil
	})
	if err != nil {
		return Result{}, core.New(core.KindTransient, "adapter.azure", "list virtual machines", err)
	}

	return Result{Rows: rows}, nil
}

func vmToResourceMetric(vm *armcompute.VirtualMachine, customerID string, collectedAt time.Time) core.ResourceMetric {
	id := ""
	if vm.ID != nil {
		id = *vm.ID
	}
	vmSize := ""
	if vm.Properties != nil && vm.Properties.HardwareProfile != nil && vm.Properties.HardwareProfile.VMSize != nil {
		vmSize = string(*vm.Properties.HardwareProfile.VMSize)
	}
	return core.ResourceMetric{
		Timestamp:    collectedAt,
		CollectedAt:  collectedAt,
		CustomerID:   customerID,
		Provider:     core.ProviderAzure,
		ResourceID:   id,
		ResourceType: "virtual_machine",
		MetricName:   "vm_size:" + vmSize,
		MetricValue:  1,
	}
}
