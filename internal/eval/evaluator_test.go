package eval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/slo"
)

type fakeRegistry map[string]slo.SLODefinition

func (f fakeRegistry) Get(service string, metric slo.MetricKind) (slo.SLODefinition, error) {
	def, ok := f[service+"/"+string(metric)]
	if !ok {
		return slo.SLODefinition{}, fmt.Errorf("%s/%s: %w", service, metric, slo.ErrNotFound)
	}
	return def, nil
}

// fakeOutcomes serves counts keyed by window length in minutes.
type fakeOutcomes struct {
	counts map[int][2]int // minutes -> {total, failed}
	err    error
}

func (f *fakeOutcomes) CountOutcomes(_ context.Context, _ string, _ slo.MetricKind, from, to time.Time) (int, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	minutes := int(to.Sub(from) / time.Minute)
	c := f.counts[minutes]
	return c[0], c[1], nil
}

func testDef() slo.SLODefinition {
	return slo.SLODefinition{
		Service:       "checkout",
		Metric:        slo.KindAvailability,
		TargetPercent: 99.9,
		WindowMinutes: 1440,
	}
}

func TestEvaluatePairUnknownPair(t *testing.T) {
	registry := fakeRegistry{}
	ev := NewEvaluator(registry, &fakeOutcomes{}, nil)

	_, err := ev.EvaluatePair(context.Background(), "nope", slo.KindAvailability, time.Now())
	if !errors.Is(err, slo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvaluatePairFastBurn(t *testing.T) {
	registry := fakeRegistry{"checkout/availability": testDef()}
	outcomes := &fakeOutcomes{counts: map[int][2]int{
		1440: {288000, 5760}, // 2% over the long window too
		5:    {1000, 20},     // 2% in the fast window
		60:   {12000, 240},
		360:  {72000, 1440},
	}}
	ev := NewEvaluator(registry, outcomes, nil)

	res, err := ev.EvaluatePair(context.Background(), "checkout", slo.KindAvailability, time.Now())
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if res.Healthy() {
		t.Error("expected unhealthy result")
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(res.Candidates))
	}

	fast := res.States[0]
	if !fast.Breached {
		t.Error("fast window should breach")
	}
	if !almostEqual(fast.BurnRateMultiple, 5760) {
		t.Errorf("fast multiple = %v, want 5760", fast.BurnRateMultiple)
	}
	if res.Candidates[0].Severity != alert.SeverityCritical {
		t.Errorf("fast candidate severity = %s, want critical", res.Candidates[0].Severity)
	}
	if res.Candidates[0].WindowMinutes != 5 {
		t.Errorf("fast candidate window = %d, want 5", res.Candidates[0].WindowMinutes)
	}
}

func TestEvaluatePairHealthy(t *testing.T) {
	registry := fakeRegistry{"checkout/availability": testDef()}
	// 0.05% everywhere: multiples of 144x, 12x and 2x, all under
	// their thresholds.
	outcomes := &fakeOutcomes{counts: map[int][2]int{
		1440: {2000000, 1000},
		5:    {10000, 5},
		60:   {120000, 60},
		360:  {720000, 360},
	}}
	ev := NewEvaluator(registry, outcomes, nil)

	res, err := ev.EvaluatePair(context.Background(), "checkout", slo.KindAvailability, time.Now())
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !res.Healthy() {
		t.Error("expected healthy result")
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(res.Candidates))
	}

	// Budget position comes from the long window: 0.05% of a 0.1%
	// budget is half spent.
	if !almostEqual(res.States[0].BudgetConsumedPercent, 50) {
		t.Errorf("budget consumed = %v, want 50", res.States[0].BudgetConsumedPercent)
	}
	if !almostEqual(res.States[0].BudgetRemainingPercent, 50) {
		t.Errorf("budget remaining = %v, want 50", res.States[0].BudgetRemainingPercent)
	}
}

func TestEvaluatePairNoData(t *testing.T) {
	registry := fakeRegistry{"checkout/availability": testDef()}
	ev := NewEvaluator(registry, &fakeOutcomes{counts: map[int][2]int{}}, nil)

	res, err := ev.EvaluatePair(context.Background(), "checkout", slo.KindAvailability, time.Now())
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if len(res.Candidates) != 0 {
		t.Fatal("idle pair must not produce candidates")
	}
	for _, st := range res.States {
		if !st.NoData {
			t.Errorf("window %s: expected NoData", st.Window.Name)
		}
		if st.Breached {
			t.Errorf("window %s: must not breach without data", st.Window.Name)
		}
	}
}

func TestEvaluatePairSourceError(t *testing.T) {
	registry := fakeRegistry{"checkout/availability": testDef()}
	ev := NewEvaluator(registry, &fakeOutcomes{err: errors.New("db gone")}, nil)

	if _, err := ev.EvaluatePair(context.Background(), "checkout", slo.KindAvailability, time.Now()); err == nil {
		t.Fatal("expected error when the outcome source fails")
	}
}

func TestEvaluatorDefaultWindows(t *testing.T) {
	ev := NewEvaluator(fakeRegistry{}, &fakeOutcomes{}, nil)
	if len(ev.Windows()) != 3 {
		t.Fatalf("expected 3 default windows, got %d", len(ev.Windows()))
	}
	names := []string{"fast", "medium", "slow"}
	for i, w := range ev.Windows() {
		if w.Name != names[i] {
			t.Errorf("window %d = %s, want %s", i, w.Name, names[i])
		}
	}
}
