package agentruntime

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/logging"
	"github.com/archokshi/optiinfra/internal/store/relational"
)

// Lifecycle manages one agent process's registration, heartbeat, and the
// periodic reaping of peers that stopped heartbeating, per spec.md §4.6.
type Lifecycle struct {
	store *relational.Store
	cfg   config.AgentConfig
}

// NewLifecycle builds a Lifecycle bound to store.
func NewLifecycle(store *relational.Store, cfg config.AgentConfig) *Lifecycle {
	return &Lifecycle{store: store, cfg: cfg}
}

// Register records a new agent and returns its assigned ID.
func (l *Lifecycle) Register(ctx context.Context, agentType, endpoint string, capabilities []string) (string, error) {
	id := core.NewID()
	agent := relational.Agent{
		ID: id, Type: agentType, Endpoint: endpoint, Capabilities: capabilities,
		HeartbeatIntervalS: l.cfg.HeartbeatIntervalSeconds,
	}
	if err := l.store.RegisterAgent(ctx, agent); err != nil {
		return "", err
	}
	return id, nil
}

// RunHeartbeat beats every HeartbeatIntervalSeconds until ctx is cancelled.
// It is meant to run in its own goroutine for the lifetime of the agent
// process.
func (l *Lifecycle) RunHeartbeat(ctx context.Context, agentID string) {
	log := logging.Component("agentruntime")
	interval := time.Duration(l.cfg.HeartbeatIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = l.store.UnregisterAgent(context.Background(), agentID)
			return
		case <-ticker.C:
			if err := l.store.RecordHeartbeat(ctx, agentID, time.Now()); err != nil {
				log.Warn().Err(err).Str("agent_id", agentID).Msg("heartbeat failed")
			}
		}
	}
}

// RunReaper periodically flips stalled agents to unhealthy until ctx is
// cancelled. Run this once per process (typically the orchestrator), not
// once per agent.
func (l *Lifecycle) RunReaper(ctx context.Context, interval time.Duration) {
	log := logging.Component("agentruntime")
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.store.ReapUnhealthyAgents(ctx, time.Now(), l.cfg.HeartbeatGraceFactor)
			if err != nil {
				log.Warn().Err(err).Msg("reap unhealthy agents failed")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("reaped unhealthy agents")
			}
		}
	}
}
