package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
)

// ErrNeedsClassification is returned by Record for metric kinds whose
// raw sample value cannot be judged against the SLO target alone
// (latency samples are in milliseconds, the target is a percentage).
// Producers of such samples must classify and call RecordOutcome.
var ErrNeedsClassification = errors.New("sample requires producer-side classification")

// Sample is one raw SLI measurement handed in by a producer.
type Sample struct {
	Service   string
	Metric    slo.MetricKind
	Value     float64
	Timestamp time.Time
}

// DefinitionGetter resolves the SLO definition used to classify a
// sample.
type DefinitionGetter interface {
	Get(service string, metric slo.MetricKind) (slo.SLODefinition, error)
}

// Recorder appends SLI outcomes. It holds no state of its own, so it
// is safe for concurrent producers; ordering comes from the sample
// timestamps, not from arrival order.
type Recorder struct {
	registry DefinitionGetter
	outcomes storage.OutcomeStore
	logger   logrus.FieldLogger
}

// NewRecorder creates a recorder.
func NewRecorder(registry DefinitionGetter, outcomes storage.OutcomeStore, logger logrus.FieldLogger) *Recorder {
	return &Recorder{
		registry: registry,
		outcomes: outcomes,
		logger:   logger,
	}
}

// Record classifies a sample against its SLO target and persists the
// outcome. Samples without a timestamp are stamped on arrival.
func (r *Recorder) Record(ctx context.Context, s Sample) error {
	def, err := r.registry.Get(s.Service, s.Metric)
	if err != nil {
		return err
	}

	met, err := classify(def, s.Value)
	if err != nil {
		return err
	}

	return r.append(ctx, s, met)
}

// RecordOutcome persists a sample the producer has already classified.
func (r *Recorder) RecordOutcome(ctx context.Context, s Sample, met bool) error {
	return r.append(ctx, s, met)
}

// PruneBefore deletes outcomes older than the cutoff.
func (r *Recorder) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pruned, err := r.outcomes.PruneOutcomesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		r.logger.WithField("rows", pruned).Debug("pruned sli outcomes")
	}
	return pruned, nil
}

func (r *Recorder) append(ctx context.Context, s Sample, met bool) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	err := r.outcomes.AppendOutcome(ctx, storage.Outcome{
		Service:   s.Service,
		Metric:    s.Metric,
		Value:     s.Value,
		Timestamp: ts,
		MetSLO:    met,
	})
	if err != nil {
		return fmt.Errorf("append outcome for %s/%s: %w", s.Service, s.Metric, err)
	}
	return nil
}

// classify compares a sample value against the SLO target in the
// direction appropriate for the metric kind.
func classify(def slo.SLODefinition, value float64) (bool, error) {
	switch def.Metric {
	case slo.KindAvailability, slo.KindThroughput:
		return value >= def.TargetPercent, nil
	case slo.KindErrorRate:
		return value <= 100-def.TargetPercent, nil
	case slo.KindLatency:
		return false, fmt.Errorf("%s/%s: %w", def.Service, def.Metric, ErrNeedsClassification)
	default:
		return false, fmt.Errorf("unknown metric kind %q", def.Metric)
	}
}
