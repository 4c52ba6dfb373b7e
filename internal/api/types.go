package api

import (
	"time"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Ready       bool     `json:"ready"`
	PairsLoaded int      `json:"pairsLoaded"`
	Reasons     []string `json:"reasons,omitempty"`
}

// AlertResponse is one alert in API form.
type AlertResponse struct {
	ID                     int64      `json:"id"`
	Service                string     `json:"service"`
	Metric                 string     `json:"metric"`
	WindowMinutes          int        `json:"windowMinutes"`
	Severity               string     `json:"severity"`
	BurnRateMultiple       float64    `json:"burnRateMultiple"`
	BudgetRemainingPercent float64    `json:"budgetRemainingPercent"`
	EscalationRequired     bool       `json:"escalationRequired"`
	Suppressed             bool       `json:"suppressed"`
	SuppressionReason      string     `json:"suppressionReason,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	ResolvedAt             *time.Time `json:"resolvedAt,omitempty"`
	ResolutionNote         string     `json:"resolutionNote,omitempty"`
	EscalatedAt            *time.Time `json:"escalatedAt,omitempty"`
}

// AlertsResponse lists active alerts.
type AlertsResponse struct {
	Alerts []AlertResponse `json:"alerts"`
	Total  int             `json:"total"`
}

// PairStateResponse is the latest evaluation summary for one pair.
type PairStateResponse struct {
	Service                string             `json:"service"`
	Metric                 string             `json:"metric"`
	BudgetRemainingPercent float64            `json:"budgetRemainingPercent"`
	BurnRates              map[string]float64 `json:"burnRates"`
	NoData                 bool               `json:"noData"`
	EvaluatedAt            time.Time          `json:"evaluatedAt"`
}

// StateResponse lists pair states.
type StateResponse struct {
	States []PairStateResponse `json:"states"`
}

// SampleRequest is one SLI sample submitted by a producer.
type SampleRequest struct {
	Service   string     `json:"service"`
	Metric    string     `json:"metric"`
	Value     float64    `json:"value"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	MetSLO    *bool      `json:"metSlo,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
