package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/burnwatch/burnwatch/internal/alert"
)

// IncidentLevel is the severity grading understood by the external
// on-call transport.
type IncidentLevel string

const (
	LevelHigh IncidentLevel = "high"
	LevelPage IncidentLevel = "page"
)

// Request is the structured escalation handed to the transport.
type Request struct {
	IncidentID       string        `json:"incident_id"`
	Severity         IncidentLevel `json:"severity"`
	Description      string        `json:"description"`
	BypassQuietHours bool          `json:"bypass_quiet_hours"`
}

// NotifierPort delivers escalation requests. The concrete transport
// (email/SMS/voice/chat) is supplied by the surrounding system; unit
// tests supply a double.
type NotifierPort interface {
	Notify(ctx context.Context, req Request) error
}

// Result reports what Dispatch did with an alert.
type Result struct {
	Eligible   bool
	Delivered  bool
	IncidentID string
}

// Dispatcher forwards escalation-eligible alerts to the on-call
// transport. Delivery failures never block alert persistence: the
// alert stays active and the incident id is derived from the alert id,
// so a retry cannot create a duplicate incident.
type Dispatcher struct {
	notifier NotifierPort
	breaker  *gobreaker.CircuitBreaker
	logger   logrus.FieldLogger
}

// NewDispatcher creates a dispatcher around the given transport.
func NewDispatcher(notifier NotifierPort, logger logrus.FieldLogger) *Dispatcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "escalation-transport",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Dispatcher{
		notifier: notifier,
		breaker:  breaker,
		logger:   logger,
	}
}

// IncidentID derives the deterministic incident identifier for an
// alert, making dispatch retries idempotent.
func IncidentID(alertID int64) string {
	name := fmt.Sprintf("burnwatch-alert-%d", alertID)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Dispatch forwards an alert if its severity requires escalation.
func (d *Dispatcher) Dispatch(ctx context.Context, a *alert.Alert) Result {
	if !a.Severity.EscalationRequired() {
		return Result{}
	}

	req := Request{
		IncidentID:       IncidentID(a.ID),
		Severity:         incidentLevel(a.Severity),
		Description:      describe(a),
		BypassQuietHours: a.Severity == alert.SeverityEmergency,
	}

	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.notifier.Notify(ctx, req)
	})
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"alert_id":    a.ID,
			"incident_id": req.IncidentID,
			"key":         a.Key.String(),
		}).WithError(err).Warn("escalation dispatch failed, alert remains active")
		return Result{Eligible: true, IncidentID: req.IncidentID}
	}

	d.logger.WithFields(logrus.Fields{
		"alert_id":    a.ID,
		"incident_id": req.IncidentID,
		"severity":    req.Severity,
	}).Info("escalation dispatched")

	return Result{Eligible: true, Delivered: true, IncidentID: req.IncidentID}
}

func incidentLevel(s alert.Severity) IncidentLevel {
	if s == alert.SeverityEmergency {
		return LevelPage
	}
	return LevelHigh
}

func describe(a *alert.Alert) string {
	return fmt.Sprintf("[%s] %s %s: burn rate %.1fx, %.1f%% error budget remaining",
		a.Severity, a.Service, a.Metric, a.BurnRateMultiple, a.BudgetRemainingPercent)
}
