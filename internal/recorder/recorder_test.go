package recorder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
)

type fakeRegistry map[string]slo.SLODefinition

func (f fakeRegistry) Get(service string, metric slo.MetricKind) (slo.SLODefinition, error) {
	def, ok := f[service+"/"+string(metric)]
	if !ok {
		return slo.SLODefinition{}, fmt.Errorf("%s/%s: %w", service, metric, slo.ErrNotFound)
	}
	return def, nil
}

type fakeOutcomeStore struct {
	appended []storage.Outcome
	pruned   time.Time
}

func (f *fakeOutcomeStore) AppendOutcome(_ context.Context, o storage.Outcome) error {
	f.appended = append(f.appended, o)
	return nil
}

func (f *fakeOutcomeStore) CountOutcomes(context.Context, string, slo.MetricKind, time.Time, time.Time) (int, int, error) {
	return 0, 0, nil
}

func (f *fakeOutcomeStore) PruneOutcomesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.pruned = cutoff
	return 3, nil
}

func testRecorder(defs fakeRegistry) (*Recorder, *fakeOutcomeStore) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	store := &fakeOutcomeStore{}
	return NewRecorder(defs, store, logger), store
}

func TestRecordClassification(t *testing.T) {
	defs := fakeRegistry{
		"checkout/availability": {Service: "checkout", Metric: slo.KindAvailability, TargetPercent: 99.9, WindowMinutes: 1440},
		"search/error-rate":     {Service: "search", Metric: slo.KindErrorRate, TargetPercent: 99.5, WindowMinutes: 1440},
		"ingest/throughput":     {Service: "ingest", Metric: slo.KindThroughput, TargetPercent: 95, WindowMinutes: 1440},
	}

	tests := []struct {
		name    string
		service string
		metric  slo.MetricKind
		value   float64
		wantMet bool
	}{
		{"availability above target", "checkout", slo.KindAvailability, 99.95, true},
		{"availability at target", "checkout", slo.KindAvailability, 99.9, true},
		{"availability below target", "checkout", slo.KindAvailability, 99.5, false},
		{"error rate within allowance", "search", slo.KindErrorRate, 0.3, true},
		{"error rate over allowance", "search", slo.KindErrorRate, 1.2, false},
		{"throughput above target", "ingest", slo.KindThroughput, 97, true},
		{"throughput below target", "ingest", slo.KindThroughput, 90, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, store := testRecorder(defs)

			err := rec.Record(context.Background(), Sample{Service: tt.service, Metric: tt.metric, Value: tt.value})
			if err != nil {
				t.Fatalf("Record failed: %v", err)
			}
			if len(store.appended) != 1 {
				t.Fatalf("appended %d outcomes, want 1", len(store.appended))
			}
			if store.appended[0].MetSLO != tt.wantMet {
				t.Errorf("MetSLO = %v, want %v", store.appended[0].MetSLO, tt.wantMet)
			}
		})
	}
}

func TestRecordLatencyNeedsClassification(t *testing.T) {
	defs := fakeRegistry{
		"checkout/latency": {Service: "checkout", Metric: slo.KindLatency, TargetPercent: 99, WindowMinutes: 1440},
	}
	rec, store := testRecorder(defs)

	err := rec.Record(context.Background(), Sample{Service: "checkout", Metric: slo.KindLatency, Value: 250})
	if !errors.Is(err, ErrNeedsClassification) {
		t.Fatalf("expected ErrNeedsClassification, got %v", err)
	}
	if len(store.appended) != 0 {
		t.Error("unclassifiable sample must not be persisted")
	}

	// The producer classifies latency samples itself.
	if err := rec.RecordOutcome(context.Background(), Sample{Service: "checkout", Metric: slo.KindLatency, Value: 250}, true); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if len(store.appended) != 1 || !store.appended[0].MetSLO {
		t.Error("pre-classified outcome not persisted")
	}
}

func TestRecordUnknownPair(t *testing.T) {
	rec, _ := testRecorder(fakeRegistry{})

	err := rec.Record(context.Background(), Sample{Service: "nope", Metric: slo.KindAvailability, Value: 99})
	if !errors.Is(err, slo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordStampsMissingTimestamp(t *testing.T) {
	defs := fakeRegistry{
		"checkout/availability": {Service: "checkout", Metric: slo.KindAvailability, TargetPercent: 99.9, WindowMinutes: 1440},
	}
	rec, store := testRecorder(defs)

	before := time.Now()
	if err := rec.Record(context.Background(), Sample{Service: "checkout", Metric: slo.KindAvailability, Value: 100}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	got := store.appended[0].Timestamp
	if got.Before(before) || got.After(time.Now()) {
		t.Errorf("timestamp %v not stamped on arrival", got)
	}
}

func TestRecordKeepsProvidedTimestamp(t *testing.T) {
	defs := fakeRegistry{
		"checkout/availability": {Service: "checkout", Metric: slo.KindAvailability, TargetPercent: 99.9, WindowMinutes: 1440},
	}
	rec, store := testRecorder(defs)

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := rec.Record(context.Background(), Sample{Service: "checkout", Metric: slo.KindAvailability, Value: 100, Timestamp: ts}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !store.appended[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", store.appended[0].Timestamp, ts)
	}
}

func TestPruneBefore(t *testing.T) {
	rec, store := testRecorder(fakeRegistry{})

	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	pruned, err := rec.PruneBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if pruned != 3 {
		t.Errorf("pruned = %d, want 3", pruned)
	}
	if !store.pruned.Equal(cutoff) {
		t.Errorf("cutoff = %v, want %v", store.pruned, cutoff)
	}
}
