package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/noise"
	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
)

// Store implements storage.Store using SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store with the given database path
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys and wait out writer contention instead of
	// failing immediately; the recorder has concurrent producers.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Run migrations
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- SLO definitions ---

// UpsertDefinition persists an SLO definition, replacing any existing
// definition for the same (service, metric) pair.
func (s *Store) UpsertDefinition(ctx context.Context, def slo.SLODefinition) error {
	query := `
		INSERT INTO slo_definitions (service, metric, target_percent, window_minutes, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(service, metric) DO UPDATE SET
			target_percent = excluded.target_percent,
			window_minutes = excluded.window_minutes,
			description = excluded.description,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query,
		def.Service,
		string(def.Metric),
		def.TargetPercent,
		def.WindowMinutes,
		def.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert slo definition: %w", err)
	}

	return nil
}

// GetDefinition retrieves the definition for a (service, metric) pair.
func (s *Store) GetDefinition(ctx context.Context, service string, metric slo.MetricKind) (slo.SLODefinition, error) {
	query := `
		SELECT service, metric, target_percent, window_minutes, description
		FROM slo_definitions
		WHERE service = ? AND metric = ?
	`

	var def slo.SLODefinition
	var kind string
	err := s.db.QueryRowContext(ctx, query, service, string(metric)).Scan(
		&def.Service,
		&kind,
		&def.TargetPercent,
		&def.WindowMinutes,
		&def.Description,
	)
	if err == sql.ErrNoRows {
		return slo.SLODefinition{}, fmt.Errorf("%s/%s: %w", service, metric, slo.ErrNotFound)
	}
	if err != nil {
		return slo.SLODefinition{}, fmt.Errorf("failed to get slo definition: %w", err)
	}

	def.Metric = slo.MetricKind(kind)
	return def, nil
}

// ListDefinitions returns all SLO definitions.
func (s *Store) ListDefinitions(ctx context.Context) ([]slo.SLODefinition, error) {
	query := `
		SELECT service, metric, target_percent, window_minutes, description
		FROM slo_definitions
		ORDER BY service, metric
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list slo definitions: %w", err)
	}
	defer rows.Close()

	var defs []slo.SLODefinition
	for rows.Next() {
		var def slo.SLODefinition
		var kind string
		if err := rows.Scan(&def.Service, &kind, &def.TargetPercent, &def.WindowMinutes, &def.Description); err != nil {
			return nil, fmt.Errorf("failed to scan slo definition: %w", err)
		}
		def.Metric = slo.MetricKind(kind)
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return defs, nil
}

// --- SLI outcomes ---

// AppendOutcome persists one SLI outcome row.
func (s *Store) AppendOutcome(ctx context.Context, o storage.Outcome) error {
	query := `
		INSERT INTO sli_outcomes (service, metric, value, timestamp, met_slo)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		o.Service,
		string(o.Metric),
		o.Value,
		o.Timestamp.UTC(),
		o.MetSLO,
	)
	if err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}

	return nil
}

// CountOutcomes aggregates outcomes for a pair whose timestamp falls
// within (from, to].
func (s *Store) CountOutcomes(ctx context.Context, service string, metric slo.MetricKind, from, to time.Time) (int, int, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN met_slo = 0 THEN 1 ELSE 0 END), 0)
		FROM sli_outcomes
		WHERE service = ? AND metric = ? AND timestamp > ? AND timestamp <= ?
	`

	var total, failed int
	err := s.db.QueryRowContext(ctx, query, service, string(metric), from.UTC(), to.UTC()).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count outcomes: %w", err)
	}

	return total, failed, nil
}

// PruneOutcomesBefore deletes outcomes older than the cutoff and
// returns the number of rows removed.
func (s *Store) PruneOutcomesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sli_outcomes WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", err)
	}
	return res.RowsAffected()
}

// --- Alerts ---

const alertColumns = `
	id, service, metric, window_minutes, severity, burn_rate_multiple,
	budget_remaining_percent, escalation_required, suppressed,
	suppression_reason, created_at, resolved_at, resolution_note,
	escalated_at
`

// CreateActiveAlert inserts a new active alert unless one already
// exists for the key. The insert is conditional rather than
// read-then-write so concurrent evaluators cannot both succeed; the
// partial unique index is the backstop.
func (s *Store) CreateActiveAlert(ctx context.Context, c alert.Candidate, now time.Time) (*alert.Alert, error) {
	query := `
		INSERT INTO alerts (
			service, metric, window_minutes, severity, burn_rate_multiple,
			budget_remaining_percent, escalation_required, suppressed, created_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, 0, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE service = ? AND metric = ? AND window_minutes = ?
			  AND suppressed = 0 AND resolved_at IS NULL
		)
	`

	createdAt := now.UTC()
	res, err := s.db.ExecContext(ctx, query,
		c.Service,
		c.Metric,
		c.WindowMinutes,
		string(c.Severity),
		c.BurnRateMultiple,
		c.BudgetRemainingPercent,
		c.Severity.EscalationRequired(),
		createdAt,
		c.Service,
		c.Metric,
		c.WindowMinutes,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, storage.ErrActiveAlertExists
		}
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrActiveAlertExists
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read insert id: %w", err)
	}

	return &alert.Alert{
		ID:                     id,
		Key:                    c.Key,
		Severity:               c.Severity,
		BurnRateMultiple:       c.BurnRateMultiple,
		BudgetRemainingPercent: c.BudgetRemainingPercent,
		EscalationRequired:     c.Severity.EscalationRequired(),
		CreatedAt:              createdAt,
	}, nil
}

// RecordSuppressedAlert persists a suppressed alert instance for the
// audit trail. Suppressed is terminal for the instance.
func (s *Store) RecordSuppressedAlert(ctx context.Context, c alert.Candidate, reason string, now time.Time) (*alert.Alert, error) {
	query := `
		INSERT INTO alerts (
			service, metric, window_minutes, severity, burn_rate_multiple,
			budget_remaining_percent, escalation_required, suppressed,
			suppression_reason, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	createdAt := now.UTC()
	res, err := s.db.ExecContext(ctx, query,
		c.Service,
		c.Metric,
		c.WindowMinutes,
		string(c.Severity),
		c.BurnRateMultiple,
		c.BudgetRemainingPercent,
		c.Severity.EscalationRequired(),
		reason,
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record suppressed alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read insert id: %w", err)
	}

	return &alert.Alert{
		ID:                     id,
		Key:                    c.Key,
		Severity:               c.Severity,
		BurnRateMultiple:       c.BurnRateMultiple,
		BudgetRemainingPercent: c.BudgetRemainingPercent,
		EscalationRequired:     c.Severity.EscalationRequired(),
		Suppressed:             true,
		SuppressionReason:      reason,
		CreatedAt:              createdAt,
	}, nil
}

// GetAlert retrieves an alert by id.
func (s *Store) GetAlert(ctx context.Context, id int64) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	a, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListActiveAlerts returns unsuppressed, unresolved alerts, newest
// first. An empty service matches all services.
func (s *Store) ListActiveAlerts(ctx context.Context, service string) ([]alert.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE suppressed = 0 AND resolved_at IS NULL
	`
	args := []interface{}{}
	if service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return alerts, nil
}

// ActiveAlertForKey returns the active alert for a key, or nil.
func (s *Store) ActiveAlertForKey(ctx context.Context, key alert.Key) (*alert.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE service = ? AND metric = ? AND window_minutes = ?
		  AND suppressed = 0 AND resolved_at IS NULL
	`

	a, err := scanAlert(s.db.QueryRowContext(ctx, query, key.Service, key.Metric, key.WindowMinutes))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active alert for %s: %w", key, err)
	}
	return a, nil
}

// ResolveAlert marks an alert resolved with a timestamp and optional
// note. Resolving an already-resolved or missing alert returns
// ErrAlertNotFound.
func (s *Store) ResolveAlert(ctx context.Context, id int64, note string, now time.Time) error {
	query := `
		UPDATE alerts
		SET resolved_at = ?, resolution_note = ?
		WHERE id = ? AND resolved_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, now.UTC(), note, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrAlertNotFound
	}

	return nil
}

// MarkAlertEscalated records a confirmed escalation delivery. Marking
// an already-marked or missing alert returns ErrAlertNotFound.
func (s *Store) MarkAlertEscalated(ctx context.Context, id int64, now time.Time) error {
	query := `
		UPDATE alerts
		SET escalated_at = ?
		WHERE id = ? AND escalated_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark alert escalated: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrAlertNotFound
	}

	return nil
}

// ListEscalationPending returns active escalation-eligible alerts whose
// delivery has not been confirmed, oldest first.
func (s *Store) ListEscalationPending(ctx context.Context) ([]alert.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE suppressed = 0 AND resolved_at IS NULL
		  AND escalation_required = 1 AND escalated_at IS NULL
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending escalations: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return alerts, nil
}

// LastAcceptedAt returns the creation time of the most recent
// non-suppressed alert for a key, or nil when none exists.
func (s *Store) LastAcceptedAt(ctx context.Context, key alert.Key) (*time.Time, error) {
	query := `
		SELECT created_at
		FROM alerts
		WHERE service = ? AND metric = ? AND window_minutes = ? AND suppressed = 0
		ORDER BY created_at DESC
		LIMIT 1
	`

	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, query, key.Service, key.Metric, key.WindowMinutes).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last alert time for %s: %w", key, err)
	}

	return &createdAt, nil
}

// CountAcceptedSince counts non-suppressed alerts created since the
// given instant, across all services.
func (s *Store) CountAcceptedSince(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM alerts WHERE suppressed = 0 AND created_at >= ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent alerts: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*alert.Alert, error) {
	var a alert.Alert
	var severity string
	var reason, note sql.NullString
	var resolvedAt, escalatedAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.Service,
		&a.Metric,
		&a.WindowMinutes,
		&severity,
		&a.BurnRateMultiple,
		&a.BudgetRemainingPercent,
		&a.EscalationRequired,
		&a.Suppressed,
		&reason,
		&a.CreatedAt,
		&resolvedAt,
		&note,
		&escalatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Severity = alert.Severity(severity)
	a.SuppressionReason = reason.String
	a.ResolutionNote = note.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if escalatedAt.Valid {
		t := escalatedAt.Time
		a.EscalatedAt = &t
	}

	return &a, nil
}

// --- Suppression rules ---

// UpsertRule persists a suppression rule, keyed by name.
func (s *Store) UpsertRule(ctx context.Context, r noise.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO suppression_rules (name, description, service, severity, start_time, end_time, days_of_week)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			service = excluded.service,
			severity = excluded.severity,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			days_of_week = excluded.days_of_week
	`

	_, err := s.db.ExecContext(ctx, query,
		r.Name,
		r.Description,
		nullString(r.Service),
		nullString(string(r.Severity)),
		nullString(r.StartTime),
		nullString(r.EndTime),
		nullString(noise.EncodeDays(r.DaysOfWeek)),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert suppression rule: %w", err)
	}

	return nil
}

// ListRules returns all suppression rules in registration order.
func (s *Store) ListRules(ctx context.Context) ([]noise.Rule, error) {
	query := `
		SELECT id, name, description, service, severity, start_time, end_time, days_of_week
		FROM suppression_rules
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppression rules: %w", err)
	}
	defer rows.Close()

	var rules []noise.Rule
	for rows.Next() {
		var r noise.Rule
		var service, severity, start, end, days sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &service, &severity, &start, &end, &days); err != nil {
			return nil, fmt.Errorf("failed to scan suppression rule: %w", err)
		}
		r.Service = service.String
		r.Severity = alert.Severity(severity.String)
		r.StartTime = start.String
		r.EndTime = end.String
		r.DaysOfWeek, err = noise.DecodeDays(days.String)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return rules, nil
}

// --- Pair state ---

// UpsertPairState updates the latest evaluation summary for a pair.
func (s *Store) UpsertPairState(ctx context.Context, st storage.PairState) error {
	burnRatesJSON, err := json.Marshal(st.BurnRates)
	if err != nil {
		return fmt.Errorf("failed to marshal burn rates: %w", err)
	}

	query := `
		INSERT INTO pair_state (service, metric, budget_remaining_percent, burn_rates_json, no_data, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, metric) DO UPDATE SET
			budget_remaining_percent = excluded.budget_remaining_percent,
			burn_rates_json = excluded.burn_rates_json,
			no_data = excluded.no_data,
			evaluated_at = excluded.evaluated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		st.Service,
		string(st.Metric),
		st.BudgetRemainingPercent,
		string(burnRatesJSON),
		st.NoData,
		st.EvaluatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pair state: %w", err)
	}

	return nil
}

// ListPairStates returns the latest evaluation summaries. An empty
// service matches all services.
func (s *Store) ListPairStates(ctx context.Context, service string) ([]storage.PairState, error) {
	query := `
		SELECT service, metric, budget_remaining_percent, burn_rates_json, no_data, evaluated_at
		FROM pair_state
	`
	args := []interface{}{}
	if service != "" {
		query += " WHERE service = ?"
		args = append(args, service)
	}
	query += " ORDER BY service, metric"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pair states: %w", err)
	}
	defer rows.Close()

	var states []storage.PairState
	for rows.Next() {
		var st storage.PairState
		var kind, burnRatesJSON string
		if err := rows.Scan(&st.Service, &kind, &st.BudgetRemainingPercent, &burnRatesJSON, &st.NoData, &st.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pair state: %w", err)
		}
		st.Metric = slo.MetricKind(kind)
		if err := json.Unmarshal([]byte(burnRatesJSON), &st.BurnRates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal burn rates: %w", err)
		}
		states = append(states, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return states, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
