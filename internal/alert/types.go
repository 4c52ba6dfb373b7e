package alert

import (
	"fmt"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityWarning, SeverityCritical, SeverityEmergency:
		return true
	}
	return false
}

// EscalationRequired reports whether alerts of this severity are
// forwarded to the on-call transport.
func (s Severity) EscalationRequired() bool {
	return s == SeverityCritical || s == SeverityEmergency
}

// Key is the deduplication scope for alerts: at most one unsuppressed,
// unresolved alert may exist per key.
type Key struct {
	Service       string
	Metric        string
	WindowMinutes int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%dm", k.Service, k.Metric, k.WindowMinutes)
}

// Candidate is a would-fire alert produced by window evaluation,
// before noise control has decided its fate.
type Candidate struct {
	Key
	Severity               Severity
	BurnRateMultiple       float64
	BudgetRemainingPercent float64
	Description            string
}

// Alert is a persisted alert row. EscalatedAt is nil until the
// dispatcher has confirmed delivery to the on-call transport.
type Alert struct {
	ID int64
	Key
	Severity               Severity
	BurnRateMultiple       float64
	BudgetRemainingPercent float64
	EscalationRequired     bool
	Suppressed             bool
	SuppressionReason      string
	CreatedAt              time.Time
	ResolvedAt             *time.Time
	ResolutionNote         string
	EscalatedAt            *time.Time
}

// Active reports whether the alert is unsuppressed and unresolved.
func (a *Alert) Active() bool {
	return !a.Suppressed && a.ResolvedAt == nil
}
