// Package config loads OptiInfra's process configuration from an optional
// TOML file plus OPTIINFRA_* environment variable overrides, following the
// teacher framework's struct-of-structs TOML layout (core/config.go) layered
// with a viper env reader for dotted-key overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the full process configuration. Every section has sane zero-value
// defaults so a bare environment still boots a usable (if unambitious)
// process; see Default().
type Config struct {
	Logging    LoggingConfig    `toml:"logging"`
	Database   DatabaseConfig   `toml:"database"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Workflow   WorkflowConfig   `toml:"workflow"`
	Agent      AgentConfig      `toml:"agent"`
	Memory     MemoryConfig     `toml:"memory"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Tracing    TracingConfig    `toml:"tracing"`
	Credential CredentialConfig `toml:"credential"`
	Cache      CacheConfig      `toml:"cache"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MigrationsDir   string        `toml:"migrations_dir"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// SchedulerConfig holds the Collection Scheduler's tunables (spec.md §4.3/§5).
type SchedulerConfig struct {
	DefaultIntervalSeconds int            `toml:"default_interval_s"`
	MaxLookback            time.Duration  `toml:"max_lookback"`
	GlobalWorkerPoolSize   int            `toml:"global_worker_pool_size"`
	PerProviderConcurrency map[string]int `toml:"per_provider_concurrency"`
	AdapterTimeout         time.Duration  `toml:"adapter_timeout"`
}

// WorkflowConfig holds the Workflow Engine's rollout/approval tunables
// (spec.md §4.7).
type WorkflowConfig struct {
	RolloutPhasePercents             []int              `toml:"rollout_phase_percents"`
	ApprovalConfidenceThreshold      float64            `toml:"approval_confidence_threshold"`
	QualityRegressionThreshold       float64            `toml:"quality_regression_threshold"`
	QualityRegressionThresholdByType map[string]float64 `toml:"quality_regression_threshold_by_type"`
	ApprovalTimeout                  time.Duration      `toml:"approval_timeout"`
	ReaderTimeout                    time.Duration      `toml:"reader_timeout"`
	QualityCheckWindow               time.Duration      `toml:"quality_check_window"`
}

// AgentConfig holds per-agent-process tunables (spec.md §4.6), including the
// per-domain signal threshold each DomainHandler.Evaluate proposes a
// recommendation at or above (below, for the application domain).
type AgentConfig struct {
	HeartbeatIntervalSeconds int                `toml:"heartbeat_interval_s"`
	HeartbeatGraceFactor     float64            `toml:"heartbeat_grace_factor"`
	Thresholds               map[string]float64 `toml:"thresholds"`
	PerformanceMetricName    string             `toml:"performance_metric_name"`
}

// ThresholdFor returns the configured signal threshold for a domain agent
// type, falling back to 0 if unconfigured (which proposes on every
// evaluation for cost/performance/resource and never for application).
func (a AgentConfig) ThresholdFor(agentType string) float64 {
	return a.Thresholds[agentType]
}

// MemoryConfig selects the semantic memory backend (spec.md §4.8).
type MemoryConfig struct {
	Backend           string `toml:"backend"` // pgvector | weaviate | memory
	EmbeddingProvider string `toml:"embedding_provider"`
	EmbeddingModel    string `toml:"embedding_model"`
	EmbeddingDims     int    `toml:"embedding_dims"`
	EmbeddingAPIKey   string `toml:"-"` // never persisted; env-only, see Load
	EmbeddingBaseURL  string `toml:"embedding_base_url"`
	WeaviateURL       string `toml:"weaviate_url"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type TracingConfig struct {
	Enabled bool `toml:"enabled"`
}

// CredentialConfig configures the process-level encryption key used by the
// Credential Store (spec.md §4.4).
type CredentialConfig struct {
	EncryptionKeyHex string `toml:"encryption_key_hex"`
}

// CacheConfig configures the read-through cache fronting credential and
// agent-registry listings (spec.md's non-functional read-latency goals).
// RedisURL empty means the process runs with the in-memory tier only.
type CacheConfig struct {
	RedisURL string        `toml:"redis_url"`
	TTL      time.Duration `toml:"ttl"`
}

// Default returns the configuration a bare dev environment boots with.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Database: DatabaseConfig{
			DSN:             "postgres://localhost:5432/optiinfra?sslmode=disable",
			MigrationsDir:   "migrations",
			MaxOpenConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Scheduler: SchedulerConfig{
			DefaultIntervalSeconds: 15 * 60,
			MaxLookback:            24 * time.Hour,
			GlobalWorkerPoolSize:   8,
			PerProviderConcurrency: map[string]int{},
			AdapterTimeout:         60 * time.Second,
		},
		Workflow: WorkflowConfig{
			RolloutPhasePercents:             []int{10, 50, 100},
			ApprovalConfidenceThreshold:      0.75,
			QualityRegressionThreshold:       0.05,
			QualityRegressionThresholdByType: map[string]float64{},
			ApprovalTimeout:                  15 * time.Second,
			ReaderTimeout:                    10 * time.Second,
			QualityCheckWindow:               15 * time.Minute,
		},
		Agent: AgentConfig{
			HeartbeatIntervalSeconds: 30,
			HeartbeatGraceFactor:     3.0,
			Thresholds: map[string]float64{
				"cost":        1000,
				"resource":    0.8,
				"performance": 300,
				"application": 0.7,
			},
			PerformanceMetricName: "latency_ms",
		},
		Memory: MemoryConfig{
			Backend:           "memory",
			EmbeddingProvider: "dummy",
			EmbeddingDims:     8,
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Tracing: TracingConfig{Enabled: false},
		Cache:   CacheConfig{TTL: 30 * time.Second},
	}
}

// Load reads the optional TOML file at path (skipped if empty or missing),
// then overlays OPTIINFRA_* environment variables via viper, matching the
// teacher's env-overrides-file layering.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("OPTIINFRA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overlayString(v, "logging.level", &cfg.Logging.Level)
	overlayString(v, "logging.format", &cfg.Logging.Format)
	overlayString(v, "database.dsn", &cfg.Database.DSN)
	overlayString(v, "memory.backend", &cfg.Memory.Backend)
	overlayString(v, "memory.embedding_api_key", &cfg.Memory.EmbeddingAPIKey)
	overlayString(v, "metrics.addr", &cfg.Metrics.Addr)
	overlayString(v, "credential.encryption_key_hex", &cfg.Credential.EncryptionKeyHex)
	overlayString(v, "cache.redis_url", &cfg.Cache.RedisURL)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overlayString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

// Validate enforces the invariants the rest of the module assumes hold:
// positive pool sizes, a monotonic rollout phase list, and a confidence
// threshold within [0,1].
func (c Config) Validate() error {
	if c.Scheduler.GlobalWorkerPoolSize <= 0 {
		return fmt.Errorf("config: scheduler.global_worker_pool_size must be positive")
	}
	if len(c.Workflow.RolloutPhasePercents) == 0 {
		return fmt.Errorf("config: workflow.rollout_phase_percents must not be empty")
	}
	prev := 0
	for _, p := range c.Workflow.RolloutPhasePercents {
		if p <= prev || p > 100 {
			return fmt.Errorf("config: workflow.rollout_phase_percents must be strictly increasing and <= 100, got %v", c.Workflow.RolloutPhasePercents)
		}
		prev = p
	}
	if c.Workflow.ApprovalConfidenceThreshold < 0 || c.Workflow.ApprovalConfidenceThreshold > 1 {
		return fmt.Errorf("config: workflow.approval_confidence_threshold must be within [0,1]")
	}
	switch c.Memory.Backend {
	case "pgvector", "weaviate", "memory":
	default:
		return fmt.Errorf("config: memory.backend must be one of pgvector|weaviate|memory, got %q", c.Memory.Backend)
	}
	return nil
}

// ThresholdFor returns the per-data-type quality-regression override if
// configured, otherwise the global threshold (spec.md §9 Open Question:
// thresholds are not uniformly defined across data types; resolved here by
// letting a per-type map override a single global default).
func (w WorkflowConfig) ThresholdFor(dataType string) float64 {
	if t, ok := w.QualityRegressionThresholdByType[dataType]; ok {
		return t
	}
	return w.QualityRegressionThreshold
}
