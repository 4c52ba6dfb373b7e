package scheduler

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/dispatch"
	"github.com/burnwatch/burnwatch/internal/eval"
	"github.com/burnwatch/burnwatch/internal/noise"
	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
	"github.com/burnwatch/burnwatch/internal/storage/sqlite"
)

type fakeNotifier struct {
	requests []dispatch.Request
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, req dispatch.Request) error {
	f.requests = append(f.requests, req)
	return f.err
}

// testWindows use low thresholds so a handful of outcomes can trip
// them.
func testWindows() []eval.BurnWindow {
	return []eval.BurnWindow{
		{Name: "fast", Minutes: 5, Threshold: 2, Severity: alert.SeverityCritical},
		{Name: "slow", Minutes: 30, Threshold: 1.5, Severity: alert.SeverityWarning},
	}
}

type pipeline struct {
	store     *sqlite.Store
	scheduler *Scheduler
	notifier  *fakeNotifier
}

func setupPipeline(t *testing.T) *pipeline {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "sched-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	store, err := sqlite.NewStore(tmpfile.Name())
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.Remove(tmpfile.Name())
	})

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx := context.Background()
	def := slo.SLODefinition{
		Service:       "checkout",
		Metric:        slo.KindAvailability,
		TargetPercent: 90,
		WindowMinutes: 60,
	}
	if err := store.UpsertDefinition(ctx, def); err != nil {
		t.Fatalf("failed to seed definition: %v", err)
	}

	registry := slo.NewRegistry(store, logger)
	if err := registry.Load(ctx); err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	notifier := &fakeNotifier{}
	evaluator := eval.NewEvaluator(registry, store, testWindows())
	noiseEngine := noise.NewEngine(store, store, 0, 0, 0, logger)
	dispatcher := dispatch.NewDispatcher(notifier, logger)
	sched := NewScheduler(registry, evaluator, noiseEngine, store, dispatcher, logger, Options{})

	return &pipeline{store: store, scheduler: sched, notifier: notifier}
}

func appendOutcomes(t *testing.T, store *sqlite.Store, n int, met bool, ts time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := store.AppendOutcome(ctx, storage.Outcome{
			Service:   "checkout",
			Metric:    slo.KindAvailability,
			Value:     99,
			Timestamp: ts,
			MetSLO:    met,
		})
		if err != nil {
			t.Fatalf("failed to append outcome: %v", err)
		}
	}
}

func TestEvaluatePairFiresAndDispatches(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	// Every recent outcome failed: both windows burn far over their
	// thresholds.
	appendOutcomes(t, p.store, 1, false, time.Now().Add(-2*time.Minute))

	alerts, err := p.scheduler.EvaluatePair(ctx, "checkout", slo.KindAvailability)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	for _, a := range alerts {
		if a.Suppressed {
			t.Errorf("first firing suppressed: %+v", a)
		}
	}

	active, err := p.store.ListActiveAlerts(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active alerts, want 2", len(active))
	}

	// Only the critical fast-window alert escalates.
	if len(p.notifier.requests) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(p.notifier.requests))
	}
	if p.notifier.requests[0].Severity != dispatch.LevelHigh {
		t.Errorf("escalation level = %s, want high", p.notifier.requests[0].Severity)
	}

	// The cache holds the result for the ops API.
	if state, ok := p.scheduler.Cache().Get("checkout/availability"); !ok || state.Result == nil {
		t.Error("evaluation result not cached")
	}
}

func TestEvaluatePairCooldownDedup(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	appendOutcomes(t, p.store, 1, false, time.Now().Add(-2*time.Minute))

	if _, err := p.scheduler.EvaluatePair(ctx, "checkout", slo.KindAvailability); err != nil {
		t.Fatalf("first evaluation failed: %v", err)
	}

	// The same breach a tick later is identical pain, not new pain.
	alerts, err := p.scheduler.EvaluatePair(ctx, "checkout", slo.KindAvailability)
	if err != nil {
		t.Fatalf("second evaluation failed: %v", err)
	}
	for _, a := range alerts {
		if !a.Suppressed {
			t.Errorf("second firing not suppressed: %+v", a)
		}
	}

	active, err := p.store.ListActiveAlerts(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active alerts after second tick, want 2", len(active))
	}
	if len(p.notifier.requests) != 1 {
		t.Errorf("notifier called %d times, want 1", len(p.notifier.requests))
	}
}

func TestEvaluatePairAutoResolve(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	appendOutcomes(t, p.store, 1, false, time.Now().Add(-2*time.Minute))
	if _, err := p.scheduler.EvaluatePair(ctx, "checkout", slo.KindAvailability); err != nil {
		t.Fatalf("first evaluation failed: %v", err)
	}

	// Drown the one failure in successes: the burn rate multiple
	// drops below both thresholds.
	appendOutcomes(t, p.store, 100, true, time.Now())

	alerts, err := p.scheduler.EvaluatePair(ctx, "checkout", slo.KindAvailability)
	if err != nil {
		t.Fatalf("second evaluation failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("recovered pair produced %d alerts", len(alerts))
	}

	active, err := p.store.ListActiveAlerts(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("got %d active alerts after recovery, want 0", len(active))
	}

	// The resolution is recorded, not deleted.
	resolved, err := p.store.GetAlert(ctx, 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if resolved.ResolvedAt == nil || resolved.ResolutionNote != "burn rate recovered" {
		t.Errorf("resolved alert = %+v", resolved)
	}
}

func TestEvaluatePairUnknownPair(t *testing.T) {
	p := setupPipeline(t)

	if _, err := p.scheduler.EvaluatePair(context.Background(), "nope", slo.KindAvailability); err == nil {
		t.Fatal("expected error for unknown pair")
	}
}

func TestRunTickPersistsState(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	appendOutcomes(t, p.store, 10, true, time.Now().Add(-time.Minute))
	p.scheduler.RunTick(ctx)

	if !p.scheduler.Healthy() {
		t.Error("tick with healthy data reported unhealthy")
	}

	states, err := p.store.ListPairStates(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("got %d pair states, want 1", len(states))
	}
	st := states[0]
	if st.Service != "checkout" || st.NoData {
		t.Errorf("pair state = %+v", st)
	}
	if _, ok := st.BurnRates["fast"]; !ok {
		t.Errorf("burn rates missing fast window: %v", st.BurnRates)
	}

	if p.scheduler.Cache().Size() != 1 {
		t.Errorf("cache size = %d, want 1", p.scheduler.Cache().Size())
	}
}

func TestEscalationRetryAfterTransportRecovery(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	p.notifier.err = errors.New("on-call transport unreachable")
	appendOutcomes(t, p.store, 1, false, time.Now().Add(-2*time.Minute))
	p.scheduler.RunTick(ctx)

	// The critical alert is persisted and active, but delivery never
	// succeeded.
	fired, err := p.store.GetAlert(ctx, 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !fired.Active() || !fired.EscalationRequired {
		t.Fatalf("fired alert = %+v", fired)
	}
	if fired.EscalatedAt != nil {
		t.Fatal("failed dispatch recorded as delivered")
	}

	// Transport recovers: the next tick re-dispatches without a new
	// alert firing.
	p.notifier.err = nil
	p.scheduler.RunTick(ctx)

	delivered, err := p.store.GetAlert(ctx, 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if delivered.EscalatedAt == nil {
		t.Fatal("recovered transport never received the escalation")
	}

	last := p.notifier.requests[len(p.notifier.requests)-1]
	if last.IncidentID != dispatch.IncidentID(1) {
		t.Errorf("retry incident id = %s, want %s", last.IncidentID, dispatch.IncidentID(1))
	}

	// Once delivered, later ticks leave the transport alone.
	sent := len(p.notifier.requests)
	p.scheduler.RunTick(ctx)
	if len(p.notifier.requests) != sent {
		t.Errorf("delivered escalation re-dispatched: %d calls, want %d", len(p.notifier.requests), sent)
	}
}

// faultyStore fails alert creation on demand, passing everything else
// through to the real store.
type faultyStore struct {
	storage.Store
	failCreates bool
}

func (f *faultyStore) CreateActiveAlert(ctx context.Context, c alert.Candidate, now time.Time) (*alert.Alert, error) {
	if f.failCreates {
		return nil, errors.New("disk I/O error")
	}
	return f.Store.CreateActiveAlert(ctx, c, now)
}

func TestRunTickPersistenceFailureUnhealthy(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	registry := slo.NewRegistry(p.store, logger)
	if err := registry.Load(ctx); err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	faulty := &faultyStore{Store: p.store, failCreates: true}
	evaluator := eval.NewEvaluator(registry, p.store, testWindows())
	noiseEngine := noise.NewEngine(p.store, p.store, 0, 0, 0, logger)
	dispatcher := dispatch.NewDispatcher(&fakeNotifier{}, logger)
	sched := NewScheduler(registry, evaluator, noiseEngine, faulty, dispatcher, logger, Options{})

	appendOutcomes(t, p.store, 1, false, time.Now().Add(-2*time.Minute))
	sched.RunTick(ctx)

	if sched.Healthy() {
		t.Error("tick that failed to persist alerts reported healthy")
	}

	// The store recovers and the next tick clears the condition.
	faulty.failCreates = false
	sched.RunTick(ctx)
	if !sched.Healthy() {
		t.Error("recovered store still reported unhealthy")
	}
}

func TestStartStop(t *testing.T) {
	p := setupPipeline(t)

	if err := p.scheduler.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := p.scheduler.Start(); err == nil {
		t.Error("second start must fail")
	}
	p.scheduler.Stop()
	// Stop is idempotent.
	p.scheduler.Stop()
}
