package collector

import (
	"context"

	"github.com/archokshi/optiinfra/internal/adapter"
)

// demoModeKey is the credential metadata flag that bypasses the round-trip
// probe below. It exists for local/demo deployments without reachable
// cloud accounts; spec.md §4.4 calls out "or a demo-mode bypass" as an
// acceptable alternative to the probe.
const demoModeKey = "mode"
const demoModeValue = "demo"

// verifyOnce probes every unverified active credential once and flips
// is_verified on success, per spec.md §4.4: "is_verified flips to true only
// after a round-trip probe succeeds against the provider". A credential
// tagged metadata.mode=demo skips the probe entirely.
func (s *Scheduler) verifyOnce(ctx context.Context) {
	creds, err := s.credentials.ListAllUnverified(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list unverified credentials")
		return
	}

	for _, cred := range creds {
		logger := s.log.With().Str("customer_id", cred.CustomerID).Str("provider", cred.Provider).Logger()

		if cred.Metadata[demoModeKey] == demoModeValue {
			if err := s.credentials.MarkVerified(ctx, cred.ID, true); err != nil {
				logger.Error().Err(err).Msg("failed to mark demo credential verified")
				continue
			}
			logger.Info().Msg("credential verified via demo-mode bypass")
			continue
		}

		a, err := s.registry.Build(adapter.Config{Provider: cred.Provider, HTTPTimeout: s.cfg.AdapterTimeout})
		if err != nil {
			logger.Warn().Err(err).Msg("no adapter registered for provider, cannot verify credential")
			continue
		}

		if err := adapter.Probe(ctx, a, toCoreCredential(cred)); err != nil {
			logger.Warn().Err(err).Msg("credential probe failed, leaving unverified")
			continue
		}
		if err := s.credentials.MarkVerified(ctx, cred.ID, true); err != nil {
			logger.Error().Err(err).Msg("failed to mark credential verified after successful probe")
			continue
		}
		logger.Info().Msg("credential verified via round-trip probe")
	}
}
