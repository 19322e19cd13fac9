package core

import (
	"math"
	"time"
)

// DataType is one of the four metric domains a provider adapter can collect,
// per spec.md GLOSSARY.
type DataType string

const (
	DataTypeCost        DataType = "cost"
	DataTypePerformance DataType = "performance"
	DataTypeResource    DataType = "resource"
	DataTypeApplication DataType = "application"
)

// Provider names registered adapters. New providers are added by registering
// an adapter constructor, not by extending this list, but the well-known
// names are kept here for config validation and test fixtures.
const (
	ProviderAWS    = "aws"
	ProviderGCP    = "gcp"
	ProviderAzure  = "azure"
	ProviderVultr  = "vultr"
	ProviderRunPod = "runpod"
)

// CostMetric is one row of the cost_metrics time-series table.
type CostMetric struct {
	Timestamp    time.Time `json:"timestamp" validate:"required"`
	CollectedAt  time.Time `json:"collected_at"`
	CustomerID   string    `json:"customer_id" validate:"required"`
	Provider     string    `json:"provider" validate:"required"`
	InstanceID   string    `json:"instance_id"`
	CostType     string    `json:"cost_type" validate:"required"`
	Amount       float64   `json:"amount" validate:"gte=0"`
	Currency     string    `json:"currency" validate:"required,len=3"`
	ResourceType string    `json:"resource_type"`
}

// PerformanceMetric is one row of the performance_metrics time-series table.
type PerformanceMetric struct {
	Timestamp   time.Time         `json:"timestamp" validate:"required"`
	CollectedAt time.Time         `json:"collected_at"`
	CustomerID  string            `json:"customer_id" validate:"required"`
	Provider    string            `json:"provider" validate:"required"`
	MetricName  string            `json:"metric_name" validate:"required"`
	MetricValue float64           `json:"metric_value"`
	ResourceID  string            `json:"resource_id"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// ResourceMetric is one row of the resource_metrics time-series table.
type ResourceMetric struct {
	Timestamp    time.Time `json:"timestamp" validate:"required"`
	CollectedAt  time.Time `json:"collected_at"`
	CustomerID   string    `json:"customer_id" validate:"required"`
	Provider     string    `json:"provider" validate:"required"`
	ResourceID   string    `json:"resource_id" validate:"required"`
	ResourceType string    `json:"resource_type"`
	MetricName   string    `json:"metric_name" validate:"required"`
	MetricValue  float64   `json:"metric_value"`
}

// ApplicationMetric is one row of the application_metrics time-series table.
type ApplicationMetric struct {
	Timestamp     time.Time      `json:"timestamp" validate:"required"`
	CollectedAt   time.Time      `json:"collected_at"`
	CustomerID    string         `json:"customer_id" validate:"required"`
	Provider      string         `json:"provider" validate:"required"`
	ApplicationID string         `json:"application_id" validate:"required"`
	MetricType    string         `json:"metric_type" validate:"required"`
	Score         float64        `json:"score"`
	ModelName     string         `json:"model_name"`
	PromptText    string         `json:"prompt_text,omitempty"`
	ResponseText  string         `json:"response_text,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Credential is the decrypted form of a stored credential record, opaque to
// the scheduler beyond its Metadata map (spec.md §4.1/§4.4): Metadata carries
// provider-specific canonical-metric-name mappings and any adapter-specific
// cursor or region hints.
type Credential struct {
	ID         string            `json:"id"`
	CustomerID string            `json:"customer_id"`
	Provider   string            `json:"provider"`
	Secret     map[string]string `json:"-"` // never logged or marshaled
	Metadata   map[string]string `json:"metadata,omitempty"`
	Version    int               `json:"version"`
	IsVerified bool              `json:"is_verified"`
}

// Window bounds a collection pull, per spec.md §4.1.
type Window struct {
	Since time.Time
	Until time.Time
}

// SanitizeFloat coerces a non-finite float (NaN, +Inf, -Inf) to zero before it
// crosses a reader/HTTP boundary, per spec.md §4.5 and the Testable Properties
// "Reader sanitization" invariant.
func SanitizeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
