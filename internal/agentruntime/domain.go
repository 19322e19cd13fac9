package agentruntime

import (
	"context"

	"github.com/archokshi/optiinfra/internal/core"
	"github.com/archokshi/optiinfra/internal/store/timeseries"
)

// reader is the subset of timeseries.Reader a DomainHandler's signal needs,
// narrowed to an interface the same way workflow.Store is, so tests can
// substitute a fake instead of a live pgxpool-backed Reader.
type reader interface {
	Cost(ctx context.Context, customerID, provider string, window core.Window) ([]core.CostMetric, error)
	Resource(ctx context.Context, customerID, provider string, window core.Window) ([]core.ResourceMetric, error)
	Performance(ctx context.Context, customerID, provider string, window core.Window) ([]core.PerformanceMetric, error)
	Application(ctx context.Context, customerID, provider string, window core.Window) ([]core.ApplicationMetric, error)
}

var _ reader = (*timeseries.Reader)(nil)

// DomainHandler is the Handler every one of the four domain agents runs
// today: Evaluate inspects its domain's Query Reader over the requested
// window and proposes one recommendation when a simple threshold is
// crossed; VoteOn approves with a confidence carried over from the signal
// that triggered the recommendation, clipped to [0,1]. It gives the Agent
// Framework a real, exercised implementation per domain without yet
// encoding domain-specific optimization logic beyond a threshold check —
// a deployment wanting richer per-domain judgment registers a different
// Handler for that agent type; the Registry doesn't care which it gets.
type DomainHandler struct {
	Type       string
	Reader     reader
	Threshold  float64
	MetricName string // read by the performance domain only; empty averages every performance row
}

func (d *DomainHandler) AgentType() string { return d.Type }

func (d *DomainHandler) Evaluate(ctx context.Context, req EvaluationRequest) (EvaluationResponse, error) {
	signal, subject, err := d.measure(ctx, req)
	if err != nil {
		return EvaluationResponse{}, err
	}
	// Every other domain's signal (total cost, CPU utilization, latency) is
	// a "bad" quantity that triggers a recommendation when it climbs past
	// the threshold. quality_score runs the opposite direction — it is a
	// "good" quantity, so application's threshold is a floor: a
	// recommendation is warranted when the score drops below it.
	crossed := signal >= d.Threshold
	if d.Type == string(core.DataTypeApplication) {
		crossed = signal < d.Threshold
	}
	if !crossed {
		return EvaluationResponse{}, nil
	}
	return EvaluationResponse{Recommendations: []RecommendationDraft{{
		Type: d.Type + "_optimization",
		Detail: map[string]any{
			"signal":      signal,
			"subject":     subject,
			"customer_id": req.CustomerID,
			"provider":    req.Provider,
		},
	}}}, nil
}

func (d *DomainHandler) VoteOn(ctx context.Context, recommendationType string, detail map[string]any) (Vote, error) {
	confidence := 0.8
	if v, ok := detail["signal"].(float64); ok {
		confidence = clip01(v)
	}
	return Vote{
		Approved:   true,
		Confidence: confidence,
		Rationale:  d.Type + " agent: signal " + recommendationType + " within expected bounds",
	}, nil
}

// measure returns the scalar driving this domain's evaluation and a label
// naming what it was measured over (an instance id, a metric name, ...).
func (d *DomainHandler) measure(ctx context.Context, req EvaluationRequest) (float64, string, error) {
	switch d.Type {
	case string(core.DataTypeCost):
		rows, err := d.Reader.Cost(ctx, req.CustomerID, req.Provider, req.Window)
		if err != nil {
			return 0, "", err
		}
		var total float64
		for _, r := range rows {
			total += r.Amount
		}
		return core.SanitizeFloat(total), "total_cost", nil
	case string(core.DataTypeResource):
		rows, err := d.Reader.Resource(ctx, req.CustomerID, req.Provider, req.Window)
		if err != nil {
			return 0, "", err
		}
		var sum float64
		var n int
		for _, r := range rows {
			if r.MetricName != "cpu_utilization" {
				continue
			}
			sum += r.MetricValue
			n++
		}
		if n == 0 {
			return 0, "cpu_utilization", nil
		}
		return core.SanitizeFloat(sum / float64(n)), "cpu_utilization", nil
	case string(core.DataTypePerformance):
		rows, err := d.Reader.Performance(ctx, req.CustomerID, req.Provider, req.Window)
		if err != nil {
			return 0, "", err
		}
		var sum float64
		var n int
		for _, r := range rows {
			if d.MetricName != "" && r.MetricName != d.MetricName {
				continue
			}
			sum += r.MetricValue
			n++
		}
		if n == 0 {
			return 0, d.MetricName, nil
		}
		return core.SanitizeFloat(sum / float64(n)), d.MetricName, nil
	case string(core.DataTypeApplication):
		rows, err := d.Reader.Application(ctx, req.CustomerID, req.Provider, req.Window)
		if err != nil {
			return 0, "", err
		}
		var sum float64
		var n int
		for _, r := range rows {
			sum += r.Score
			n++
		}
		if n == 0 {
			// No application_metrics rows yet is not evidence of a quality
			// regression. A perfect score here keeps this branch's fail-open
			// behavior consistent with timeseries.ApplicationQualityScore,
			// which makes the same no-data call for the same reason; without
			// it, Evaluate's floor check below would read the zero value as
			// "quality collapsed" and propose on every customer with no data.
			return 1, "quality_score", nil
		}
		return core.SanitizeFloat(sum / float64(n)), "quality_score", nil
	default:
		return 0, "", core.New(core.KindValidation, "agentruntime", "unknown domain type "+d.Type, nil)
	}
}

func clip01(v float64) float64 {
	v = core.SanitizeFloat(v)
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
