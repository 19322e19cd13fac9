// Command optiinfra runs the central OptiInfra process: it applies
// migrations, opens the relational/timeseries stores, starts the
// Collection Scheduler and its discovery loop, and serves the HTTP API.
// Startup sequencing and the signal-driven graceful shutdown follow the
// teacher's examples/webui_chat_demo/main.go shape.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/agentruntime"
	"github.com/archokshi/optiinfra/internal/cache"
	"github.com/archokshi/optiinfra/internal/collector"
	"github.com/archokshi/optiinfra/internal/config"
	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/httpapi"
	"github.com/archokshi/optiinfra/internal/logging"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/archokshi/optiinfra/internal/store/timeseries"
	"github.com/archokshi/optiinfra/internal/workflow"
	"github.com/archokshi/optiinfra/migrations"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	addr := flag.String("addr", "", "HTTP listen address (default :8080)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	logging.Configure(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logging.Component("main")

	if cfg.Database.MigrationsDir != "" {
		if err := relational.Migrate(cfg.Database.DSN, migrations.FS, "."); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := relational.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open relational store")
	}
	defer store.Close()

	cipherKey, err := hex.DecodeString(cfg.Credential.EncryptionKeyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("credential.encryption_key_hex is not valid hex")
	}
	cipher, err := relational.NewCredentialCipher(cipherKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build credential cipher")
	}
	credentials := store.Credentials(cipher)

	writer := timeseries.NewWriter(store.Pool)
	reader := timeseries.NewReader(store.Pool)

	registry := adapter.NewRegistry()

	listingCache := buildCache(ctx, cfg.Cache, log)

	scheduler := collector.New(registry, store, credentials, writer, cfg.Scheduler)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go scheduler.RunDiscovery(ctx)

	agentsRegistry := buildAgents(reader, cfg.Agent)
	qualityChecker := &workflow.ReaderQualityChecker{Reader: reader, Window: cfg.Workflow.QualityCheckWindow}
	engine := workflow.New(store, agentsRegistry, qualityChecker, cfg.Workflow)

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Relational:  store,
		Credentials: credentials,
		Reader:      reader,
		Scheduler:   scheduler,
		Registry:    registry,
		Agents:      agentsRegistry,
		Workflow:    engine,
		Cache:       listingCache,
		CacheTTL:    cfg.Cache.TTL,
	})
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", listenAddr).Msg("optiinfra http api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down optiinfra")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}
	cancel()
	log.Info().Msg("optiinfra shut down gracefully")
}

// buildAgents registers the four domain agents this process runs in-process
// (see DESIGN.md for why this deployment consolidates them into one
// Registry instead of four separate agent processes). Each one's signal
// threshold comes from agent.thresholds in config; a deployment that wants
// real per-domain optimization logic registers a different
// agentruntime.Handler for that type instead of this generic threshold
// check.
func buildAgents(reader *timeseries.Reader, cfg config.AgentConfig) *agentruntime.Registry {
	agents := agentruntime.NewRegistry()
	for _, t := range []string{
		string(core.DataTypeCost),
		string(core.DataTypeResource),
		string(core.DataTypePerformance),
		string(core.DataTypeApplication),
	} {
		agents.Register(t, &agentruntime.DomainHandler{
			Type:       t,
			Reader:     reader,
			Threshold:  cfg.ThresholdFor(t),
			MetricName: cfg.PerformanceMetricName,
		})
	}
	return agents
}

// buildCache wires a redis-backed cache with an in-process TTL fallback
// when cfg.RedisURL is set, or the in-process tier alone otherwise.
func buildCache(ctx context.Context, cfg config.CacheConfig, log zerolog.Logger) cache.Cache {
	memoryTier := cache.NewMemoryCache()
	if cfg.RedisURL == "" {
		return memoryTier
	}
	redisTier, err := cache.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis cache unavailable, falling back to in-process cache only")
		return memoryTier
	}
	return cache.NewFallback(redisTier, memoryTier)
}
