package noise

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/slo"
)

// Rule is a user-defined suppression rule. A rule matches a candidate
// only if every specified filter is satisfied; empty fields match
// anything. The time-of-day range may cross midnight.
type Rule struct {
	ID          int64
	Name        string
	Description string
	Service     string
	Severity    alert.Severity
	StartTime   string // "HH:MM", inclusive
	EndTime     string // "HH:MM", exclusive
	DaysOfWeek  []time.Weekday
}

// Validate checks the rule's filter fields.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if (r.StartTime == "") != (r.EndTime == "") {
		return fmt.Errorf("rule %q: startTime and endTime must both be set or both be empty", r.Name)
	}
	if r.StartTime != "" {
		if _, err := parseClock(r.StartTime); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if _, err := parseClock(r.EndTime); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return fmt.Errorf("rule %q: unknown severity %q", r.Name, r.Severity)
	}
	for _, d := range r.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("rule %q: day %d out of range", r.Name, d)
		}
	}
	return nil
}

// Matches reports whether the rule suppresses the candidate at the
// given wall-clock time.
func (r Rule) Matches(c alert.Candidate, now time.Time) bool {
	if r.Service != "" && r.Service != c.Service {
		return false
	}
	if r.Severity != "" && r.Severity != c.Severity {
		return false
	}
	if len(r.DaysOfWeek) > 0 {
		found := false
		for _, d := range r.DaysOfWeek {
			if now.Weekday() == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.StartTime != "" {
		start, err := parseClock(r.StartTime)
		if err != nil {
			return false
		}
		end, err := parseClock(r.EndTime)
		if err != nil {
			return false
		}
		minute := now.Hour()*60 + now.Minute()
		if start <= end {
			if minute < start || minute >= end {
				return false
			}
		} else {
			// Range crosses midnight, e.g. 22:00-06:00.
			if minute < start && minute >= end {
				return false
			}
		}
	}
	return true
}

// RuleFromSeed converts a seed-file rule to a Rule and validates it.
func RuleFromSeed(seed slo.SeedRule) (Rule, error) {
	days := make([]time.Weekday, 0, len(seed.DaysOfWeek))
	for _, d := range seed.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}
	r := Rule{
		Name:        seed.Name,
		Description: seed.Description,
		Service:     seed.Service,
		Severity:    alert.Severity(seed.Severity),
		StartTime:   seed.StartTime,
		EndTime:     seed.EndTime,
		DaysOfWeek:  days,
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// parseClock converts "HH:MM" to the minute of the day.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in clock time %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in clock time %q", s)
	}
	return hour*60 + minute, nil
}

// EncodeDays renders a day set in persisted form ("0,6").
func EncodeDays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

// DecodeDays parses the persisted day set form.
func DecodeDays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid day %q", p)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}
