package eval

import (
	"time"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/slo"
)

// BurnWindow is one evaluation window of the multi-window burn policy.
// Severity is a static property of the window, not derived from the
// observed multiple.
type BurnWindow struct {
	Name        string
	Minutes     int
	Threshold   float64 // multiple of the normal burn rate that trips this window
	Severity    alert.Severity
	Description string
}

// DefaultWindows returns the standard fast/medium/slow policy. The
// fast window catches budget exhaustion within hours; the slow window
// catches a leak that exhausts the budget over days.
func DefaultWindows() []BurnWindow {
	return []BurnWindow{
		{
			Name:        "fast",
			Minutes:     5,
			Threshold:   1000,
			Severity:    alert.SeverityCritical,
			Description: "acute spike, budget exhausts within hours",
		},
		{
			Name:        "medium",
			Minutes:     60,
			Threshold:   100,
			Severity:    alert.SeverityWarning,
			Description: "sustained elevated burn, budget exhausts within a day",
		},
		{
			Name:        "slow",
			Minutes:     360,
			Threshold:   10,
			Severity:    alert.SeverityWarning,
			Description: "slow leak, budget exhausts over days",
		},
	}
}

// BudgetState is the derived error-budget position for one window at
// evaluation time. Recomputed every tick, never authoritative state.
type BudgetState struct {
	Window                 BurnWindow
	ErrorRate              float64
	NormalBurnRate         float64
	BurnRateMultiple       float64
	BudgetConsumedPercent  float64
	BudgetRemainingPercent float64
	SampleCount            int
	NoData                 bool
	Breached               bool
}

// PairResult is the outcome of evaluating all windows for one
// (service, metric) pair.
type PairResult struct {
	Service     string
	Metric      slo.MetricKind
	Target      slo.SLODefinition
	States      []BudgetState
	Candidates  []alert.Candidate
	EvaluatedAt time.Time
}

// Healthy reports whether no window breached its threshold.
func (r *PairResult) Healthy() bool {
	for _, st := range r.States {
		if st.Breached {
			return false
		}
	}
	return true
}
