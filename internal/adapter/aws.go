package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-resty/resty/v2"

	"github.com/archokshi/optiinfra/internal/core"
)

// awsAdapter collects resource inventory via aws-sdk-go-v2's EC2 client and
// cost rows via a resty-backed REST pull, since no Cost Explorer client is
// wired (see DESIGN.md). Region comes from Config; credentials come from
// core.Credential.Secret ("access_key_id"/"secret_access_key") rather than
// the default provider chain, matching spec.md §4.1's "credential record
// opaque to the scheduler" contract.
type awsAdapter struct {
	unsupported
	region    string
	http      *resty.Client
	resilient *resilientCaller
}

// NewAWSAdapter implements Constructor for the aws provider.
func NewAWSAdapter(cfg Config) (Adapter, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return &awsAdapter{
		unsupported: unsupported{provider: core.ProviderAWS},
		region:      region,
		http:        resty.New().SetTimeout(cfg.HTTPTimeout),
		resilient:   newResilientCaller("aws"),
	}, nil
}

func (a *awsAdapter) Provider() string { return core.ProviderAWS }

func (a *awsAdapter) Capabilities() []Capability {
	return []Capability{CapabilityResource, CapabilityCost}
}

func (a *awsAdapter) ec2Client(cred core.Credential) (*ec2.Client, error) {
	accessKey := cred.Secret["access_key_id"]
	secretKey := cred.Secret["secret_access_key"]
	if accessKey == "" || secretKey == "" {
		return nil, core.New(core.KindCredentialInvalid, "adapter.aws", "missing access_key_id/secret_access_key", nil)
	}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(a.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, core.New(core.KindFatal, "adapter.aws", "load aws config", err)
	}
	return ec2.NewFromConfig(cfg), nil
}

func (a *awsAdapter) CollectResource(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error) {
	client, err := a.ec2Client(cred)
	if err != nil {
		return Result{}, err
	}

	var rows []core.ResourceMetric
	var failures []error
	now := time.Now().UTC()

	err = a.resilient.call(ctx, func(ctx context.Context) error {
		input := &ec2.DescribeInstancesInput{}
		if cursor != "" {
			input.NextToken = aws.String(cursor)
		}
		out, callErr := client.DescribeInstances(ctx, input)
		if callErr != nil {
			return callErr
		}
		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				rows = append(rows, instanceToResourceMetric(inst, cred.CustomerID, now))
			}
		}
		if out.NextToken != nil {
			cursor = *out.NextToken
		} else {
			cursor = ""
		}
		return nil
	})
	if err != nil {
		return Result{}, core.New(core.KindTransient, "adapter.aws", "describe instances", err)
	}

	return Result{
		Rows:    rows,
		Partial: len(failures) > 0,
		Errors:  core.NewMultiError(failures),
		Cursor:  cursor,
	}, nil
}

func instanceToResourceMetric(inst types.Instance, customerID string, collectedAt time.Time) core.ResourceMetric {
	instanceType := ""
	if inst.InstanceType != "" {
		instanceType = string(inst.InstanceType)
	}
	instanceID := ""
	if inst.InstanceId != nil {
		instanceID = *inst.InstanceId
	}
	launchTime := collectedAt
	if inst.LaunchTime != nil {
		launchTime = *inst.LaunchTime
	}
	return core.ResourceMetric{
		Timestamp:    launchTime,
		CollectedAt:  collectedAt,
		CustomerID:   customerID,
		Provider:     core.ProviderAWS,
		ResourceID:   instanceID,
		ResourceType: "ec2_instance",
		MetricName:   "instance_type:" + instanceType,
		MetricValue:  1,
	}
}

// CollectCost pulls pre-aggregated cost rows from a customer-provided REST
// endpoint (cred.Metadata["cost_endpoint"]), since Cost Explorer requires a
// paid-tier API client not present in the reference dependency graph.
func (a *awsAdapter) CollectCost(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error) {
	endpoint := cred.Metadata["cost_endpoint"]
	if endpoint == "" {
		return Result{}, core.New(core.KindValidation, "adapter.aws", "credential metadata missing cost_endpoint", nil)
	}

	var rows []core.CostMetric
	err := a.resilient.call(ctx, func(ctx context.Context) error {
		resp, reqErr := a.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"since": window.Since.Format(time.RFC3339),
				"until": window.Until.Format(time.RFC3339),
			}).
			SetResult(&rows).
			Get(endpoint)
		if reqErr != nil {
			return reqErr
		}
		if resp.IsError() {
			return fmt.Errorf("cost endpoint returned %s", resp.Status())
		}
		return nil
	})
	if err != nil {
		return Result{}, core.New(core.KindTransient, "adapter.aws", "fetch cost rows", err)
	}

	now := time.Now().UTC()
	for i := range rows {
		rows[i].CustomerID = cred.CustomerID
		rows[i].Provider = core.ProviderAWS
		rows[i].CollectedAt = now
	}
	return Result{Rows: rows}, nil
}
