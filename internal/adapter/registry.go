package adapter

import (
	"fmt"
	"sync"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
)

// Config holds the per-adapter construction knobs, generalizing the
// teacher's ProviderConfig (internal/llm/factory.go) from LLM endpoints to
// cloud-provider regions/projects/credentials-hints.
type Config struct {
	Provider       string        `toml:"provider"`
	Region         string        `toml:"region"`          // aws
	ProjectID      string        `toml:"project_id"`      // gcp
	SubscriptionID string        `toml:"subscription_id"` // azure
	BaseURL        string        `toml:"base_url"`        // vultr/runpod REST base, override for tests
	HTTPTimeout    time.Duration `toml:"http_timeout"`
}

// Constructor builds an Adapter from Config.
type Constructor func(Config) (Adapter, error)

// Registry maps provider name to a Constructor, generalizing the teacher's
// ProviderFactory.CreateProvider switch into a registration table so new
// providers are added without modifying the registry itself.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a Registry pre-populated with the five built-in
// providers spec.md §4.1 names.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register(core.ProviderAWS, NewAWSAdapter)
	r.Register(core.ProviderGCP, NewGCPAdapter)
	r.Register(core.ProviderAzure, NewAzureAdapter)
	r.Register(core.ProviderVultr, NewVultrAdapter)
	r.Register(core.ProviderRunPod, NewRunPodAdapter)
	return r
}

// Register adds or replaces the constructor for provider.
func (r *Registry) Register(provider string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[provider] = ctor
}

// Build constructs the Adapter for cfg.Provider.
func (r *Registry) Build(cfg Config) (Adapter, error) {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	r.mu.RLock()
	ctor, ok := r.constructors[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, core.New(core.KindValidation, "adapter.registry", fmt.Sprintf("unsupported provider %q", cfg.Provider), nil)
	}
	return ctor(cfg)
}

// CapabilityFor maps a core.DataType to the Capability an adapter must
// advertise to collect it — the one place this mapping is defined, so
// ForCapability and the Collection Scheduler's discovery loop (which only
// has a provider's cached []Capability, not a live Adapter, to check
// against) can't drift from each other as data types are added.
func CapabilityFor(dataType core.DataType) (Capability, bool) {
	switch dataType {
	case core.DataTypeCost:
		return CapabilityCost, true
	case core.DataTypePerformance:
		return CapabilityPerformance, true
	case core.DataTypeResource:
		return CapabilityResource, true
	case core.DataTypeApplication:
		return CapabilityApplication, true
	default:
		return "", false
	}
}

// ForCapability reports the Capability dataType maps to and whether adapter
// a advertises it (false for an unknown data type or an unadvertised
// capability) — the scheduler consults this before invoking Collect*.
func ForCapability(a Adapter, dataType core.DataType) (Capability, bool) {
	want, ok := CapabilityFor(dataType)
	if !ok {
		return "", false
	}
	for _, c := range a.Capabilities() {
		if c == want {
			return want, true
		}
	}
	return want, false
}

// HasCapability reports whether caps (an adapter's advertised Capability
// list) includes the one dataType requires.
func HasCapability(caps []Capability, dataType core.DataType) bool {
	want, ok := CapabilityFor(dataType)
	if !ok {
		return false
	}
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}
