package noise

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burnwatch/burnwatch/internal/alert"
)

// Defaults for the noise-control checks.
const (
	DefaultCooldown      = 15 * time.Minute
	DefaultRateCap       = 10
	DefaultRateCapWindow = time.Hour
)

// AlertHistory exposes the alert-store reads noise control needs.
// Only accepted (non-suppressed) alerts count: a suppressed instance
// must not extend its own cooldown.
type AlertHistory interface {
	LastAcceptedAt(ctx context.Context, key alert.Key) (*time.Time, error)
	CountAcceptedSince(ctx context.Context, since time.Time) (int, error)
}

// RuleSource lists suppression rules in registration order.
type RuleSource interface {
	ListRules(ctx context.Context) ([]Rule, error)
}

// Verdict is the engine's decision for one candidate.
type Verdict struct {
	Suppress bool
	Reason   string
}

// Engine decides whether a would-fire alert candidate is suppressed.
// Checks run in a fixed order and short-circuit on the first match:
// cooldown, global rate cap, then user rules.
type Engine struct {
	history    AlertHistory
	rules      RuleSource
	cooldown   time.Duration
	rateCap    int
	rateWindow time.Duration
	logger     logrus.FieldLogger
}

// NewEngine creates a noise-control engine. Zero values for cooldown,
// rateCap and rateWindow select the defaults.
func NewEngine(history AlertHistory, rules RuleSource, cooldown time.Duration, rateCap int, rateWindow time.Duration, logger logrus.FieldLogger) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if rateCap <= 0 {
		rateCap = DefaultRateCap
	}
	if rateWindow <= 0 {
		rateWindow = DefaultRateCapWindow
	}
	return &Engine{
		history:    history,
		rules:      rules,
		cooldown:   cooldown,
		rateCap:    rateCap,
		rateWindow: rateWindow,
		logger:     logger,
	}
}

// Check applies the suppression checks to a candidate at the given
// wall-clock time. An error means the decision could not be made
// safely (history unavailable); the caller must not fire the alert.
func (e *Engine) Check(ctx context.Context, c alert.Candidate, now time.Time) (Verdict, error) {
	last, err := e.history.LastAcceptedAt(ctx, c.Key)
	if err != nil {
		return Verdict{}, fmt.Errorf("read last alert for %s: %w", c.Key, err)
	}
	if last != nil && now.Sub(*last) < e.cooldown {
		return Verdict{
			Suppress: true,
			Reason:   fmt.Sprintf("cooldown active: previous alert for %s fired %s ago", c.Key, now.Sub(*last).Round(time.Second)),
		}, nil
	}

	count, err := e.history.CountAcceptedSince(ctx, now.Add(-e.rateWindow))
	if err != nil {
		return Verdict{}, fmt.Errorf("count recent alerts: %w", err)
	}
	if count >= e.rateCap {
		return Verdict{
			Suppress: true,
			Reason:   fmt.Sprintf("rate limit exceeded: %d alerts in the trailing %s (cap %d)", count, e.rateWindow, e.rateCap),
		}, nil
	}

	rules, err := e.rules.ListRules(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("list suppression rules: %w", err)
	}
	for _, rule := range rules {
		if rule.Matches(c, now) {
			return Verdict{Suppress: true, Reason: rule.Name}, nil
		}
	}

	return Verdict{}, nil
}
