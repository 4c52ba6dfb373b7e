package storage

import (
	"context"
	"errors"
	"time"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/noise"
	"github.com/burnwatch/burnwatch/internal/slo"
)

// ErrActiveAlertExists is returned by CreateActiveAlert when an
// unsuppressed, unresolved alert already holds the key.
var ErrActiveAlertExists = errors.New("an active alert already exists for this key")

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// Outcome is one persisted SLI outcome row. Append-only.
type Outcome struct {
	Service   string
	Metric    slo.MetricKind
	Value     float64
	Timestamp time.Time
	MetSLO    bool
}

// PairState is the last successful evaluation summary for a
// (service, metric) pair, persisted so dashboards can show staleness.
type PairState struct {
	Service                string
	Metric                 slo.MetricKind
	BudgetRemainingPercent float64
	BurnRates              map[string]float64 // keyed by window name
	NoData                 bool
	EvaluatedAt            time.Time
}

// SLOStore persists SLO definitions.
type SLOStore interface {
	UpsertDefinition(ctx context.Context, def slo.SLODefinition) error
	GetDefinition(ctx context.Context, service string, metric slo.MetricKind) (slo.SLODefinition, error)
	ListDefinitions(ctx context.Context) ([]slo.SLODefinition, error)
}

// OutcomeStore persists SLI outcomes. AppendOutcome must be safe for
// concurrent producers.
type OutcomeStore interface {
	AppendOutcome(ctx context.Context, o Outcome) error
	CountOutcomes(ctx context.Context, service string, metric slo.MetricKind, from, to time.Time) (total, failed int, err error)
	PruneOutcomesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertStore is the authoritative record of alerts. CreateActiveAlert
// is a conditional insert: it fails with ErrActiveAlertExists rather
// than creating a second active alert for a key, so concurrent
// evaluators cannot race past the at-most-one-active invariant.
// Escalation delivery is tracked per alert: MarkAlertEscalated records
// a confirmed delivery and ListEscalationPending returns active
// eligible alerts still awaiting one, so failed dispatches can be
// retried.
type AlertStore interface {
	CreateActiveAlert(ctx context.Context, c alert.Candidate, now time.Time) (*alert.Alert, error)
	RecordSuppressedAlert(ctx context.Context, c alert.Candidate, reason string, now time.Time) (*alert.Alert, error)
	GetAlert(ctx context.Context, id int64) (*alert.Alert, error)
	ListActiveAlerts(ctx context.Context, service string) ([]alert.Alert, error)
	ActiveAlertForKey(ctx context.Context, key alert.Key) (*alert.Alert, error)
	ResolveAlert(ctx context.Context, id int64, note string, now time.Time) error
	MarkAlertEscalated(ctx context.Context, id int64, now time.Time) error
	ListEscalationPending(ctx context.Context) ([]alert.Alert, error)
	LastAcceptedAt(ctx context.Context, key alert.Key) (*time.Time, error)
	CountAcceptedSince(ctx context.Context, since time.Time) (int, error)
}

// RuleStore persists suppression rules.
type RuleStore interface {
	UpsertRule(ctx context.Context, r noise.Rule) error
	ListRules(ctx context.Context) ([]noise.Rule, error)
}

// StateStore persists per-pair evaluation summaries.
type StateStore interface {
	UpsertPairState(ctx context.Context, st PairState) error
	ListPairStates(ctx context.Context, service string) ([]PairState, error)
}

// Store is the full persistence surface.
type Store interface {
	SLOStore
	OutcomeStore
	AlertStore
	RuleStore
	StateStore
	Ping(ctx context.Context) error
	Close() error
}
