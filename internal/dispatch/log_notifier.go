package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes escalation requests to the log instead of a real
// on-call transport. Default when no webhook is configured.
type LogNotifier struct {
	logger logrus.FieldLogger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements NotifierPort.
func (n *LogNotifier) Notify(_ context.Context, req Request) error {
	n.logger.WithFields(logrus.Fields{
		"incident_id":        req.IncidentID,
		"severity":           req.Severity,
		"bypass_quiet_hours": req.BypassQuietHours,
	}).Warnf("ESCALATION %s", req.Description)
	return nil
}
