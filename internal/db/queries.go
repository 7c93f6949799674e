package db

import (
	"database/sql"
	"fmt"
)

// Event represents a row in the orchestration_events table.
type Event struct {
	ID              int
	OrchestrationID string
	Event           string
	Phase           string
	Detail          string
	Timestamp       string
}

// CheckRun represents a row in the check_runs table.
type CheckRun struct {
	ID              int
	OrchestrationID string
	Round           int
	CheckName       string
	Passed          bool
	AutoFixed       bool
	ExitCode        int
	DurationMs      int
	Summary         string
	Findings        string
	Timestamp       string
}

// FixAction represents a row in the fix_actions table.
type FixAction struct {
	ID              int
	OrchestrationID string
	Scope           string // local or remote
	Category        string
	Kind            string // auto_command or delegate
	Target          string
	Success         bool
	Detail          string
	Timestamp       string
}

// LogEvent inserts an orchestration event.
func (d *DB) LogEvent(orchID string, event string, phase string, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO orchestration_events (orchestration_id, event, phase, detail) VALUES (?, ?, ?, ?)`,
		orchID, event, phase, detail,
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// GetHistory returns all events for an orchestration, newest first.
func (d *DB) GetHistory(orchID string) ([]Event, error) {
	rows, err := d.conn.Query(
		`SELECT id, orchestration_id, event, phase, detail, timestamp
		 FROM orchestration_events WHERE orchestration_id = ? ORDER BY timestamp DESC, id DESC`,
		orchID,
	)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var phase, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.OrchestrationID, &e.Event, &phase, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if phase.Valid {
			e.Phase = phase.String
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogCheckRun inserts a check run record.
func (d *DB) LogCheckRun(orchID string, round int, checkName string, passed bool, autoFixed bool, exitCode int, durationMs int, summary string, findings string) error {
	_, err := d.conn.Exec(
		`INSERT INTO check_runs (orchestration_id, round, check_name, passed, auto_fixed, exit_code, duration_ms, summary, findings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orchID, round, checkName, passed, autoFixed, exitCode, durationMs, summary, findings,
	)
	if err != nil {
		return fmt.Errorf("log check run: %w", err)
	}
	return nil
}

// GetCheckRuns returns check runs for an orchestration and gate round.
func (d *DB) GetCheckRuns(orchID string, round int) ([]CheckRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, orchestration_id, round, check_name, passed, auto_fixed, exit_code, duration_ms, summary, findings, timestamp
		 FROM check_runs WHERE orchestration_id = ? AND round = ? ORDER BY id`,
		orchID, round,
	)
	if err != nil {
		return nil, fmt.Errorf("get check runs: %w", err)
	}
	defer rows.Close()
	return scanCheckRuns(rows)
}

// GetCheckHistory returns all check runs for an orchestration, newest first.
func (d *DB) GetCheckHistory(orchID string) ([]CheckRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, orchestration_id, round, check_name, passed, auto_fixed, exit_code, duration_ms, summary, findings, timestamp
		 FROM check_runs WHERE orchestration_id = ? ORDER BY id DESC`,
		orchID,
	)
	if err != nil {
		return nil, fmt.Errorf("get check history: %w", err)
	}
	defer rows.Close()
	return scanCheckRuns(rows)
}

// GetLatestFailedChecks returns the most recent run of each check that is
// still failing for an orchestration.
func (d *DB) GetLatestFailedChecks(orchID string) ([]CheckRun, error) {
	rows, err := d.conn.Query(`
		SELECT cr.id, cr.orchestration_id, cr.round, cr.check_name,
		       cr.passed, cr.auto_fixed, cr.exit_code, cr.duration_ms, cr.summary, cr.findings, cr.timestamp
		FROM check_runs cr
		INNER JOIN (
			SELECT check_name, MAX(id) as max_id
			FROM check_runs
			WHERE orchestration_id = ?
			GROUP BY check_name
		) latest ON cr.id = latest.max_id
		WHERE cr.passed = 0
		ORDER BY cr.check_name`,
		orchID,
	)
	if err != nil {
		return nil, fmt.Errorf("get latest failed checks: %w", err)
	}
	defer rows.Close()
	return scanCheckRuns(rows)
}

func scanCheckRuns(rows *sql.Rows) ([]CheckRun, error) {
	var runs []CheckRun
	for rows.Next() {
		var r CheckRun
		var exitCode, durationMs sql.NullInt64
		var summary, findings sql.NullString
		if err := rows.Scan(&r.ID, &r.OrchestrationID, &r.Round, &r.CheckName, &r.Passed, &r.AutoFixed, &exitCode, &durationMs, &summary, &findings, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan check run: %w", err)
		}
		if exitCode.Valid {
			r.ExitCode = int(exitCode.Int64)
		}
		if durationMs.Valid {
			r.DurationMs = int(durationMs.Int64)
		}
		if summary.Valid {
			r.Summary = summary.String
		}
		if findings.Valid {
			r.Findings = findings.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LogFixAction inserts a fix action record.
func (d *DB) LogFixAction(orchID string, scope string, category string, kind string, target string, success bool, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO fix_actions (orchestration_id, scope, category, kind, target, success, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		orchID, scope, category, kind, target, success, detail,
	)
	if err != nil {
		return fmt.Errorf("log fix action: %w", err)
	}
	return nil
}

// GetFixActions returns all fix actions for an orchestration, oldest first.
func (d *DB) GetFixActions(orchID string) ([]FixAction, error) {
	rows, err := d.conn.Query(
		`SELECT id, orchestration_id, scope, category, kind, target, success, detail, timestamp
		 FROM fix_actions WHERE orchestration_id = ? ORDER BY id`,
		orchID,
	)
	if err != nil {
		return nil, fmt.Errorf("get fix actions: %w", err)
	}
	defer rows.Close()

	var actions []FixAction
	for rows.Next() {
		var a FixAction
		var detail sql.NullString
		if err := rows.Scan(&a.ID, &a.OrchestrationID, &a.Scope, &a.Category, &a.Kind, &a.Target, &a.Success, &detail, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan fix action: %w", err)
		}
		if detail.Valid {
			a.Detail = detail.String
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
