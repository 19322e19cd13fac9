// Package adapter implements the Provider Adapter layer spec.md §4.1
// describes: a uniform pull interface over per-(provider, data_type)
// modules, registered in a build-time registry generalized from the
// teacher's internal/llm/factory.go ProviderType switch.
package adapter

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
)

// Capability names one of the four pullable data types an adapter can
// advertise at registration (spec.md §4.1).
type Capability string

const (
	CapabilityCost        Capability = "collect_cost"
	CapabilityPerformance Capability = "collect_performance"
	CapabilityResource    Capability = "collect_resource"
	CapabilityApplication Capability = "collect_application"
)

// Result is the structured outcome of a single collection pull. Rows holds
// one of []core.CostMetric, []core.PerformanceMetric, []core.ResourceMetric,
// or []core.ApplicationMetric depending on which Collect method produced it.
// Errors classifies never escape as a returned error unless the whole call
// failed outright (e.g. credential rejected) — partial sub-query failures
// are aggregated here instead, per spec.md §4.1.
type Result struct {
	Rows    any
	Partial bool
	Errors  error // *core.MultiError when Partial, nil otherwise
	Cursor  string
}

// Adapter is the uniform pull interface every provider module implements.
// A concrete adapter only implements the Collect methods for the data
// types it advertises via Capabilities(); the rest return a KindValidation
// error (spec.md §4.1: "individually optional, advertised at registration").
type Adapter interface {
	Provider() string
	Capabilities() []Capability

	CollectCost(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error)
	CollectPerformance(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error)
	CollectResource(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error)
	CollectApplication(ctx context.Context, cred core.Credential, window core.Window, cursor string) (Result, error)
}

// unsupported is embedded by adapters that don't implement every Collect
// method, so each concrete adapter only needs to override the ones it
// advertises in Capabilities().
type unsupported struct {
	provider string
}

func (u unsupported) CollectCost(context.Context, core.Credential, core.Window, string) (Result, error) {
	return Result{}, u.err(CapabilityCost)
}

func (u unsupported) CollectPerformance(context.Context, core.Credential, core.Window, string) (Result, error) {
	return Result{}, u.err(CapabilityPerformance)
}

func (u unsupported) CollectResource(context.Context, core.Credential, core.Window, string) (Result, error) {
	return Result{}, u.err(CapabilityResource)
}

func (u unsupported) CollectApplication(context.Context, core.Credential, core.Window, string) (Result, error) {
	return Result{}, u.err(CapabilityApplication)
}

func (u unsupported) err(cap Capability) error {
	return core.New(core.KindValidation, "adapter."+u.provider, string(cap)+" not supported by this adapter", nil)
}

// Probe exercises a round-trip call against a's provider using cred, per
// spec.md §4.4 ("is_verified flips to true only after a round-trip probe
// succeeds against the provider"). It invokes whichever Collect method
// matches the adapter's first advertised capability, over a short window,
// and discards any rows returned — only the call's error (if any) matters.
// This is a package-level helper rather than an Adapter method so no
// concrete adapter needs its own probe implementation.
func Probe(ctx context.Context, a Adapter, cred core.Credential) error {
	caps := a.Capabilities()
	if len(caps) == 0 {
		return core.New(core.KindValidation, "adapter", "adapter advertises no capabilities to probe", nil)
	}

	until := time.Now()
	window := core.Window{Since: until.Add(-5 * time.Minute), Until: until}
	var err error
	switch caps[0] {
	case CapabilityCost:
		_, err = a.CollectCost(ctx, cred, window, "")
	case CapabilityPerformance:
		_, err = a.CollectPerformance(ctx, cred, window, "")
	case CapabilityResource:
		_, err = a.CollectResource(ctx, cred, window, "")
	case CapabilityApplication:
		_, err = a.CollectApplication(ctx, cred, window, "")
	default:
		return core.New(core.KindValidation, "adapter", "unknown capability to probe", nil)
	}
	return err
}
