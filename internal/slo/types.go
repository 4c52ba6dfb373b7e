package slo

import "errors"

// ErrNotFound is returned when no SLO definition exists for a
// requested (service, metric) pair.
var ErrNotFound = errors.New("slo definition not found")

// MetricKind is the closed set of SLI metric types.
type MetricKind string

const (
	KindAvailability MetricKind = "availability"
	KindLatency      MetricKind = "latency"
	KindErrorRate    MetricKind = "error-rate"
	KindThroughput   MetricKind = "throughput"
)

// Valid reports whether k is one of the known metric kinds.
func (k MetricKind) Valid() bool {
	switch k {
	case KindAvailability, KindLatency, KindErrorRate, KindThroughput:
		return true
	}
	return false
}

// HigherIsBetter reports whether larger sample values are the
// compliant direction for this kind.
func (k MetricKind) HigherIsBetter() bool {
	return k == KindAvailability || k == KindThroughput
}

// SLODefinition is the target for one (service, metric) pair. It is
// configuration: created and updated by seeding, never by the
// evaluation loop.
type SLODefinition struct {
	Service       string
	Metric        MetricKind
	TargetPercent float64
	WindowMinutes int
	Description   string
}

// TargetErrorRate is the allowed long-term failure fraction,
// (100 - target) / 100.
func (d SLODefinition) TargetErrorRate() float64 {
	return (100 - d.TargetPercent) / 100
}

// ValidationError represents a validation error for a specific file.
type ValidationError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}
