package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/dispatch"
	"github.com/burnwatch/burnwatch/internal/eval"
	"github.com/burnwatch/burnwatch/internal/noise"
	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
)

// Options tune the evaluation loop. Zero values select the defaults.
type Options struct {
	Interval         time.Duration // tick interval, default 60s
	PairTimeout      time.Duration // per-pair evaluation budget, default 10s
	Concurrency      int           // pairs evaluated in parallel, default 4
	OutcomeRetention time.Duration // 0 disables pruning
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.PairTimeout <= 0 {
		o.PairTimeout = 10 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
}

// Scheduler drives the evaluation pipeline on a periodic tick:
// evaluator -> noise control -> alert store -> dispatcher. Pairs are
// independent, so they run concurrently within a tick; a per-pair
// timeout keeps one slow service from starving the rest.
type Scheduler struct {
	registry   *slo.Registry
	evaluator  *eval.Evaluator
	noise      *noise.Engine
	store      storage.Store
	dispatcher *dispatch.Dispatcher
	cache      *StateCache
	logger     logrus.FieldLogger
	opts       Options

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	healthy atomic.Bool
}

// NewScheduler creates a scheduler.
func NewScheduler(registry *slo.Registry, evaluator *eval.Evaluator, noiseEngine *noise.Engine, store storage.Store, dispatcher *dispatch.Dispatcher, logger logrus.FieldLogger, opts Options) *Scheduler {
	opts.applyDefaults()
	s := &Scheduler{
		registry:   registry,
		evaluator:  evaluator,
		noise:      noiseEngine,
		store:      store,
		dispatcher: dispatcher,
		cache:      NewStateCache(),
		logger:     logger,
		opts:       opts,
	}
	s.healthy.Store(true)
	return s
}

// Cache returns the state cache.
func (s *Scheduler) Cache() *StateCache {
	return s.cache
}

// Healthy reports whether the last tick completed without persistence
// failures. False means suppression and dedup decisions cannot be made
// safely and an operator should look at the datastore.
func (s *Scheduler) Healthy() bool {
	return s.healthy.Load()
}

// Start begins the evaluation loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.registry.Size() == 0 {
		return fmt.Errorf("no slo definitions loaded")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.WithField("pairs", s.registry.Size()).Info("scheduler started")
	return nil
}

// Stop stops the loop and waits for the in-flight tick to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunTick(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunTick(ctx)
		}
	}
}

// RunTick evaluates every registered pair once. Per-pair failures are
// logged and never abort the tick for other pairs.
func (s *Scheduler) RunTick(ctx context.Context) {
	defs := s.registry.All()
	var failures atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, def := range defs {
		def := def
		g.Go(func() error {
			pairCtx, cancel := context.WithTimeout(ctx, s.opts.PairTimeout)
			defer cancel()

			if _, err := s.EvaluatePair(pairCtx, def.Service, def.Metric); err != nil {
				failures.Add(1)
				s.logger.WithFields(logrus.Fields{
					"service": def.Service,
					"metric":  def.Metric,
				}).WithError(err).Error("pair evaluation failed")
			}
			return nil
		})
	}
	g.Wait()

	if err := s.retryPendingEscalations(ctx); err != nil {
		failures.Add(1)
		s.logger.WithError(err).Error("escalation retry pass failed")
	}

	s.healthy.Store(failures.Load() == 0)

	if s.opts.OutcomeRetention > 0 {
		cutoff := time.Now().Add(-s.opts.OutcomeRetention)
		if pruned, err := s.store.PruneOutcomesBefore(ctx, cutoff); err != nil {
			s.logger.WithError(err).Warn("outcome retention prune failed")
		} else if pruned > 0 {
			s.logger.WithField("rows", pruned).Debug("pruned sli outcomes")
		}
	}
}

// EvaluatePair runs the full pipeline for one pair: evaluate windows,
// apply noise control to each candidate, persist accepted and
// suppressed alerts, dispatch escalations, and auto-resolve recovered
// windows. Returns the alerts persisted this pass.
func (s *Scheduler) EvaluatePair(ctx context.Context, service string, metric slo.MetricKind) ([]alert.Alert, error) {
	now := time.Now()
	key := pairKey(service, string(metric))

	res, err := s.evaluator.EvaluatePair(ctx, service, metric, now)
	if err != nil {
		if errors.Is(err, slo.ErrNotFound) {
			s.logger.WithFields(logrus.Fields{
				"service": service,
				"metric":  metric,
			}).Warn("no slo definition, skipping pair")
			return nil, err
		}
		s.cache.Set(key, &PairState{Err: err.Error(), UpdatedAt: now})
		return nil, err
	}

	var persisted []alert.Alert
	var persistErr error
	for _, cand := range res.Candidates {
		verdict, err := s.noise.Check(ctx, cand, now)
		if err != nil {
			// Without alert history the dedup decision is unsafe;
			// skip this candidate and let the next tick retry.
			s.logger.WithField("key", cand.Key.String()).WithError(err).Error("noise check failed, candidate dropped")
			persistErr = errors.Join(persistErr, fmt.Errorf("noise check for %s: %w", cand.Key, err))
			continue
		}

		if verdict.Suppress {
			a, err := s.store.RecordSuppressedAlert(ctx, cand, verdict.Reason, now)
			if err != nil {
				s.logger.WithField("key", cand.Key.String()).WithError(err).Error("failed to record suppressed alert")
				persistErr = errors.Join(persistErr, fmt.Errorf("record suppressed %s: %w", cand.Key, err))
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"key":    cand.Key.String(),
				"reason": verdict.Reason,
			}).Info("alert suppressed")
			persisted = append(persisted, *a)
			continue
		}

		a, err := s.store.CreateActiveAlert(ctx, cand, now)
		if err != nil {
			if errors.Is(err, storage.ErrActiveAlertExists) {
				s.logger.WithField("key", cand.Key.String()).Debug("active alert already exists")
				continue
			}
			s.logger.WithField("key", cand.Key.String()).WithError(err).Error("failed to persist alert")
			persistErr = errors.Join(persistErr, fmt.Errorf("create alert %s: %w", cand.Key, err))
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"key":       a.Key.String(),
			"severity":  a.Severity,
			"burn_rate": a.BurnRateMultiple,
		}).Warn("alert fired")
		persisted = append(persisted, *a)

		s.dispatchAlert(ctx, a)
	}

	s.resolveRecovered(ctx, res, now)

	s.updateState(ctx, res, now)
	s.cache.Set(key, &PairState{Result: res, UpdatedAt: now})

	return persisted, persistErr
}

// dispatchAlert forwards an alert to the dispatcher and records a
// confirmed delivery. Transport failures leave the alert pending so
// the next tick retries with the same incident id.
func (s *Scheduler) dispatchAlert(ctx context.Context, a *alert.Alert) {
	res := s.dispatcher.Dispatch(ctx, a)
	if !res.Delivered {
		return
	}
	if err := s.store.MarkAlertEscalated(ctx, a.ID, time.Now()); err != nil {
		s.logger.WithField("alert_id", a.ID).WithError(err).Warn("failed to record escalation delivery")
	}
}

// retryPendingEscalations re-dispatches active escalation-eligible
// alerts whose delivery was never confirmed. The incident id is
// derived from the alert id, so a retry cannot page twice.
func (s *Scheduler) retryPendingEscalations(ctx context.Context) error {
	pending, err := s.store.ListEscalationPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending escalations: %w", err)
	}
	for i := range pending {
		s.dispatchAlert(ctx, &pending[i])
	}
	return nil
}

// resolveRecovered closes active alerts for windows that are back
// below threshold with real data.
func (s *Scheduler) resolveRecovered(ctx context.Context, res *eval.PairResult, now time.Time) {
	for _, st := range res.States {
		if st.Breached || st.NoData {
			continue
		}
		k := alert.Key{
			Service:       res.Service,
			Metric:        string(res.Metric),
			WindowMinutes: st.Window.Minutes,
		}
		active, err := s.store.ActiveAlertForKey(ctx, k)
		if err != nil {
			s.logger.WithField("key", k.String()).WithError(err).Warn("failed to check for recovered alert")
			continue
		}
		if active == nil {
			continue
		}
		if err := s.store.ResolveAlert(ctx, active.ID, "burn rate recovered", now); err != nil {
			s.logger.WithField("alert_id", active.ID).WithError(err).Warn("failed to auto-resolve alert")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"key":      k.String(),
			"alert_id": active.ID,
		}).Info("alert auto-resolved, burn rate recovered")
	}
}

func (s *Scheduler) updateState(ctx context.Context, res *eval.PairResult, now time.Time) {
	burnRates := make(map[string]float64, len(res.States))
	noData := false
	remaining := float64(100)
	for _, st := range res.States {
		burnRates[st.Window.Name] = st.BurnRateMultiple
		remaining = st.BudgetRemainingPercent
		if st.NoData {
			noData = true
		}
	}

	err := s.store.UpsertPairState(ctx, storage.PairState{
		Service:                res.Service,
		Metric:                 res.Metric,
		BudgetRemainingPercent: remaining,
		BurnRates:              burnRates,
		NoData:                 noData,
		EvaluatedAt:            now,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service": res.Service,
			"metric":  res.Metric,
		}).WithError(err).Warn("failed to persist pair state")
	}
}

func pairKey(service, metric string) string {
	return service + "/" + metric
}
