package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/slo"
)

// OutcomeSource supplies aggregated SLI outcome counts for a
// (service, metric) pair over a time range.
type OutcomeSource interface {
	CountOutcomes(ctx context.Context, service string, metric slo.MetricKind, from, to time.Time) (total, failed int, err error)
}

// DefinitionGetter resolves the SLO definition for a pair. Returns an
// error wrapping slo.ErrNotFound when the pair is not configured.
type DefinitionGetter interface {
	Get(service string, metric slo.MetricKind) (slo.SLODefinition, error)
}

// Evaluator runs the burn-rate calculation across every configured
// window for a pair and emits would-fire alert candidates. It is a
// deterministic function of the outcome data and the SLO definition.
type Evaluator struct {
	registry DefinitionGetter
	outcomes OutcomeSource
	windows  []BurnWindow
}

// NewEvaluator creates an evaluator. An empty windows slice selects
// DefaultWindows.
func NewEvaluator(registry DefinitionGetter, outcomes OutcomeSource, windows []BurnWindow) *Evaluator {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	return &Evaluator{
		registry: registry,
		outcomes: outcomes,
		windows:  windows,
	}
}

// Windows returns the configured burn windows.
func (e *Evaluator) Windows() []BurnWindow {
	return e.windows
}

// EvaluatePair evaluates all windows for one (service, metric) pair at
// the given instant. A missing SLO definition is returned as an error
// wrapping slo.ErrNotFound; the caller decides whether to skip the
// pair.
func (e *Evaluator) EvaluatePair(ctx context.Context, service string, metric slo.MetricKind, now time.Time) (*PairResult, error) {
	def, err := e.registry.Get(service, metric)
	if err != nil {
		return nil, err
	}

	// Budget consumption is authoritative over the long-term
	// measurement window, not the short burn windows.
	longFrom := now.Add(-time.Duration(def.WindowMinutes) * time.Minute)
	longTotal, longFailed, err := e.outcomes.CountOutcomes(ctx, service, metric, longFrom, now)
	if err != nil {
		return nil, fmt.Errorf("count long-window outcomes for %s/%s: %w", service, metric, err)
	}
	longRate, _ := ErrorRate(longFailed, longTotal)
	consumed := BudgetConsumedPercent(longRate, def.TargetPercent)
	remaining := BudgetRemainingPercent(consumed)

	result := &PairResult{
		Service:     service,
		Metric:      metric,
		Target:      def,
		States:      make([]BudgetState, 0, len(e.windows)),
		EvaluatedAt: now,
	}

	for _, w := range e.windows {
		from := now.Add(-time.Duration(w.Minutes) * time.Minute)
		total, failed, err := e.outcomes.CountOutcomes(ctx, service, metric, from, now)
		if err != nil {
			return nil, fmt.Errorf("count %s-window outcomes for %s/%s: %w", w.Name, service, metric, err)
		}

		rate, noData := ErrorRate(failed, total)
		normal := NormalBurnRate(def.TargetPercent, def.WindowMinutes, w.Minutes)
		multiple := BurnRateMultiple(rate, normal)

		state := BudgetState{
			Window:                 w,
			ErrorRate:              rate,
			NormalBurnRate:         normal,
			BurnRateMultiple:       multiple,
			BudgetConsumedPercent:  consumed,
			BudgetRemainingPercent: remaining,
			SampleCount:            total,
			NoData:                 noData,
			Breached:               multiple >= w.Threshold,
		}
		result.States = append(result.States, state)

		if state.Breached {
			result.Candidates = append(result.Candidates, alert.Candidate{
				Key: alert.Key{
					Service:       service,
					Metric:        string(metric),
					WindowMinutes: w.Minutes,
				},
				Severity:               w.Severity,
				BurnRateMultiple:       multiple,
				BudgetRemainingPercent: remaining,
				Description: fmt.Sprintf(
					"%s %s burning at %.1fx normal over the %s window (threshold %.1fx), %.1f%% error budget remaining",
					service, metric, multiple, w.Name, w.Threshold, remaining),
			})
		}
	}

	return result, nil
}
