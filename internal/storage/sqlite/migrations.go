package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- SLO definitions table
CREATE TABLE IF NOT EXISTS slo_definitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	metric TEXT NOT NULL,
	target_percent REAL NOT NULL,
	window_minutes INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (service, metric)
);

-- SLI outcomes table (append-only, pruned by retention)
CREATE TABLE IF NOT EXISTS sli_outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	metric TEXT NOT NULL,
	value REAL NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	met_slo BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_pair_ts ON sli_outcomes(service, metric, timestamp);

-- Alerts table
CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	metric TEXT NOT NULL,
	window_minutes INTEGER NOT NULL,
	severity TEXT NOT NULL,
	burn_rate_multiple REAL NOT NULL,
	budget_remaining_percent REAL NOT NULL,
	escalation_required BOOLEAN NOT NULL DEFAULT 0,
	suppressed BOOLEAN NOT NULL DEFAULT 0,
	suppression_reason TEXT,
	created_at TIMESTAMP NOT NULL,
	resolved_at TIMESTAMP,
	resolution_note TEXT,
	escalated_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(service, metric, window_minutes);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC);

-- At most one unsuppressed, unresolved alert per key.
CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_active
	ON alerts(service, metric, window_minutes)
	WHERE suppressed = 0 AND resolved_at IS NULL;

-- Suppression rules table
CREATE TABLE IF NOT EXISTS suppression_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	service TEXT,
	severity TEXT,
	start_time TEXT,
	end_time TEXT,
	days_of_week TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Latest evaluation summary per pair (one row per pair)
CREATE TABLE IF NOT EXISTS pair_state (
	service TEXT NOT NULL,
	metric TEXT NOT NULL,
	budget_remaining_percent REAL NOT NULL,
	burn_rates_json TEXT NOT NULL,
	no_data BOOLEAN NOT NULL DEFAULT 0,
	evaluated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (service, metric)
);
`
