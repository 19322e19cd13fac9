package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/logging"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/archokshi/optiinfra/internal/store/timeseries"
)

var dashboardLog = logging.Component("httpapi.dashboard")

// dashboardResponse matches spec.md §6's aggregation contract exactly:
// {agents[], cost_trend[], performance_metrics{}, recommendations[],
// summary{total_cost, total_instances, providers[], avg_cpu_utilization,
// max_cpu_utilization}}.
type dashboardResponse struct {
	Agents             []relational.Agent                 `json:"agents"`
	CostTrend          []timeseries.TrendPoint             `json:"cost_trend"`
	PerformanceMetrics map[string]float64                  `json:"performance_metrics"`
	Recommendations    []relational.RecommendationSummary  `json:"recommendations"`
	Summary            timeseries.Summary                  `json:"summary"`
}

// dashboard fans out to the readers, the agent registry, and recent
// recommendations in parallel and merges the results, per spec.md §6/§9
// ("aggregates the /api/v1/dashboard response by fanning out to the four
// readers in parallel and merging"). Each goroutine writes only to its own
// local result, merged into resp after the fan-out completes, so a single
// component's failure degrades that field to its zero value rather than
// failing the whole response (spec.md §9's "routing failures degrade to
// partial responses" policy) or racing the others.
func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customerID := q.Get("customer_id")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id query parameter is required")
		return
	}
	provider := q.Get("provider")

	hours := 24
	if raw := q.Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	until := time.Now()
	window := core.Window{Since: until.Add(-time.Duration(hours) * time.Hour), Until: until}

	var costTrend []timeseries.TrendPoint
	var perfSummary map[string]float64
	var summary timeseries.Summary
	var agents []relational.Agent
	var recs []relational.RecommendationSummary

	eg, ctx := errgroup.WithContext(r.Context())

	eg.Go(func() error {
		trend, err := h.deps.Reader.CostTrend(ctx, customerID, provider, window)
		if err != nil {
			dashboardLog.Warn().Err(err).Msg("dashboard: cost trend unavailable")
			return nil
		}
		costTrend = trend
		return nil
	})
	eg.Go(func() error {
		perf, err := h.deps.Reader.PerformanceSummary(ctx, customerID, provider, window)
		if err != nil {
			dashboardLog.Warn().Err(err).Msg("dashboard: performance summary unavailable")
			return nil
		}
		perfSummary = perf
		return nil
	})
	eg.Go(func() error {
		s, err := h.deps.Reader.Summary(ctx, customerID, provider, window)
		if err != nil {
			dashboardLog.Warn().Err(err).Msg("dashboard: summary unavailable")
			return nil
		}
		summary = s
		return nil
	})
	eg.Go(func() error {
		var types []string
		if h.deps.Agents != nil {
			types = h.deps.Agents.Types()
		}
		var collected []relational.Agent
		for _, t := range types {
			byType, err := h.deps.Relational.ListAgentsByType(ctx, t)
			if err != nil {
				dashboardLog.Warn().Err(err).Str("agent_type", t).Msg("dashboard: agent listing unavailable")
				continue
			}
			collected = append(collected, byType...)
		}
		agents = collected
		return nil
	})
	eg.Go(func() error {
		r, err := h.deps.Relational.ListRecentRecommendations(ctx, customerID, 20)
		if err != nil {
			dashboardLog.Warn().Err(err).Msg("dashboard: recommendations unavailable")
			return nil
		}
		recs = r
		return nil
	})

	_ = eg.Wait()

	if perfSummary == nil {
		perfSummary = map[string]float64{}
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Agents:             agents,
		CostTrend:          costTrend,
		PerformanceMetrics: perfSummary,
		Recommendations:    recs,
		Summary:            summary,
	})
}
