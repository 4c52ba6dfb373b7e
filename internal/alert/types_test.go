package alert

import (
	"testing"
	"time"
)

func TestSeverity(t *testing.T) {
	for _, s := range []Severity{SeverityWarning, SeverityCritical, SeverityEmergency} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Severity("panic").Valid() {
		t.Error("unknown severity accepted")
	}

	if SeverityWarning.EscalationRequired() {
		t.Error("warnings must not escalate")
	}
	if !SeverityCritical.EscalationRequired() || !SeverityEmergency.EscalationRequired() {
		t.Error("critical and emergency must escalate")
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Service: "checkout", Metric: "availability", WindowMinutes: 5}
	if got := k.String(); got != "checkout/availability/5m" {
		t.Errorf("String() = %q", got)
	}
}

func TestAlertActive(t *testing.T) {
	a := Alert{}
	if !a.Active() {
		t.Error("fresh alert should be active")
	}

	a.Suppressed = true
	if a.Active() {
		t.Error("suppressed alert is not active")
	}

	now := time.Now()
	b := Alert{ResolvedAt: &now}
	if b.Active() {
		t.Error("resolved alert is not active")
	}
}
