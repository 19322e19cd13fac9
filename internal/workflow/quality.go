package workflow

import (
	"context"
	"time"

	"github.com/archokshi/optiinfra/internal/core"
)

// qualityReader is the narrow slice of timeseries.Reader a ReaderQualityChecker
// needs, following the same interface-extraction shape as Store and
// agentruntime's reader.
type qualityReader interface {
	ApplicationQualityScore(ctx context.Context, customerID, provider string, window core.Window) (float64, error)
}

// ReaderQualityChecker implements QualityChecker by averaging the
// application_metrics quality score recorded over the trailing window,
// per spec.md §4.7's post-phase validation gate ("a completed phase
// regressed the optimization's target metric"). metricType is accepted for
// interface compatibility but this checker only has one signal today;
// a deployment wanting per-metric-type regression checks supplies a
// different QualityChecker.
type ReaderQualityChecker struct {
	Reader qualityReader
	Window time.Duration
}

func (c *ReaderQualityChecker) Check(ctx context.Context, customerID, metricType string) (float64, error) {
	window := c.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	until := time.Now()
	return c.Reader.ApplicationQualityScore(ctx, customerID, "", core.Window{Since: until.Add(-window), Until: until})
}
