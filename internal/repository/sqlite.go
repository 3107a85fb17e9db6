// Package repository persists runs, stages, and the sequenced event log
// in SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hliang02/skyops/internal/domain"
)

// ErrStatusTransition is returned when a run status update would move
// backwards or out of a terminal state.
var ErrStatusTransition = errors.New("illegal run status transition")

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the run, stage, event, decision, and evidence
// stores over a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			problem TEXT NOT NULL,
			scenario TEXT NOT NULL,
			workflow_type TEXT NOT NULL,
			orchestration_mode TEXT NOT NULL,
			status TEXT NOT NULL,
			progress_pct REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			completed_at DATETIME,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at)`,
		`CREATE TABLE IF NOT EXISTS run_stages (
			run_id TEXT NOT NULL,
			stage_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME,
			ended_at DATETIME,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			PRIMARY KEY (run_id, stage_id),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			ts DATETIME NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_event_id ON events(run_id, event_id)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			decision_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			decision_type TEXT NOT NULL,
			reasoning TEXT NOT NULL,
			payload TEXT,
			ts DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id, ts)`,
		`CREATE TABLE IF NOT EXISTS evidence (
			evidence_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			source TEXT NOT NULL,
			summary TEXT NOT NULL,
			confidence REAL NOT NULL,
			ts DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_run ON evidence(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("runs", "progress_pct", "ALTER TABLE runs ADD COLUMN progress_pct REAL NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run together with its pending stage rows.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, problem, scenario, workflow_type, orchestration_mode, status, progress_pct, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Problem, run.Scenario, run.WorkflowType, run.OrchestrationMode, run.Status, run.ProgressPct, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, stageID := range domain.StageOrder {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, stage_id, name, status) VALUES (?, ?, ?, ?)`,
			run.RunID, stageID, stageID, domain.StageStatusPending); err != nil {
			return fmt.Errorf("insert stage %s: %w", stageID, err)
		}
	}
	return nil
}

// GetRun returns the run snapshot with stages and audit counts.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	var startedAt, completedAt sql.NullTime
	var errData sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, problem, scenario, workflow_type, orchestration_mode, status, progress_pct, created_at, started_at, completed_at, error
		 FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.Problem, &run.Scenario, &run.WorkflowType, &run.OrchestrationMode,
		&run.Status, &run.ProgressPct, &run.CreatedAt, &startedAt, &completedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}

	stages, err := s.runStages(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Stages = stages

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE run_id = ?`, runID).Scan(&run.DecisionCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evidence WHERE run_id = ?`, runID).Scan(&run.EvidenceCount); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) runStages(ctx context.Context, runID string) ([]domain.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage_id, name, status, started_at, ended_at, duration_ms, error FROM run_stages WHERE run_id = ?`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]domain.Stage)
	for rows.Next() {
		var st domain.Stage
		var startedAt, endedAt sql.NullTime
		var stageErr sql.NullString
		if err := rows.Scan(&st.StageID, &st.Name, &st.Status, &startedAt, &endedAt, &st.DurationMs, &stageErr); err != nil {
			return nil, err
		}
		if startedAt.Valid {
			st.StartedAt = &startedAt.Time
		}
		if endedAt.Valid {
			st.EndedAt = &endedAt.Time
		}
		if stageErr.Valid {
			st.Error = stageErr.String
		}
		byID[st.StageID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Present stages in engine order regardless of row order.
	var stages []domain.Stage
	for _, stageID := range domain.StageOrder {
		if st, ok := byID[stageID]; ok {
			stages = append(stages, st)
		}
	}
	return stages, nil
}

// ListRuns lists runs newest first, optionally filtered by status.
func (s *SQLiteStore) ListRuns(ctx context.Context, status domain.RunStatus, limit, offset int) ([]domain.Run, error) {
	query := `SELECT run_id, problem, scenario, workflow_type, orchestration_mode, status, progress_pct, created_at, started_at, completed_at, error FROM runs`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, run_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var run domain.Run
		var startedAt, completedAt sql.NullTime
		var errData sql.NullString
		if err := rows.Scan(&run.RunID, &run.Problem, &run.Scenario, &run.WorkflowType, &run.OrchestrationMode,
			&run.Status, &run.ProgressPct, &run.CreatedAt, &startedAt, &completedAt, &errData); err != nil {
			return nil, err
		}
		if startedAt.Valid {
			run.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		if errData.Valid {
			run.Error = json.RawMessage(errData.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus moves the run forward through its lifecycle.
// Regressive transitions and transitions out of a terminal state are
// rejected with ErrStatusTransition.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error {
	var current domain.RunStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusTransition, current, status)
	}

	now := time.Now().UTC()
	var errStr sql.NullString
	if errData != nil {
		errStr = sql.NullString{String: string(errData), Valid: true}
	}
	var res sql.Result
	switch {
	case status == domain.RunStatusRunning:
		res, err = s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, started_at = ? WHERE run_id = ? AND status = ?`,
			status, now, runID, current)
	case status.Terminal():
		res, err = s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE run_id = ? AND status = ?`,
			status, now, errStr, runID, current)
	default:
		res, err = s.db.ExecContext(ctx,
			`UPDATE runs SET status = ? WHERE run_id = ? AND status = ?`,
			status, runID, current)
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// A concurrent writer moved the run first; re-check against its state.
	if affected == 0 {
		return s.UpdateRunStatus(ctx, runID, status, errData)
	}
	return nil
}

// UpdateRunProgress stores the latest run progress percentage.
func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, runID string, pct float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET progress_pct = ? WHERE run_id = ?`, pct, runID)
	return err
}

// UpdateStage overwrites one stage row of a run.
func (s *SQLiteStore) UpdateStage(ctx context.Context, runID string, stage domain.Stage) error {
	var startedAt, endedAt interface{}
	if stage.StartedAt != nil {
		startedAt = *stage.StartedAt
	}
	if stage.EndedAt != nil {
		endedAt = *stage.EndedAt
	}
	var stageErr sql.NullString
	if stage.Error != "" {
		stageErr = sql.NullString{String: stage.Error, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, started_at = ?, ended_at = ?, duration_ms = ?, error = ? WHERE run_id = ? AND stage_id = ?`,
		stage.Status, startedAt, endedAt, stage.DurationMs, stageErr, runID, stage.StageID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent persists a sequenced event. The full event is stored as
// JSON so replays are byte-faithful.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *domain.WorkflowEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, event_id, kind, ts, data) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Sequence, ev.EventID, ev.Kind, ev.Ts, string(data))
	return err
}

// EventsSince returns the run's events with sequence greater than
// afterSeq, in order.
func (s *SQLiteStore) EventsSince(ctx context.Context, runID string, afterSeq int64) ([]*domain.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM events WHERE run_id = ? AND seq > ? ORDER BY seq ASC`,
		runID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.WorkflowEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev domain.WorkflowEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// SequenceForEventID resolves a stored event id to its sequence.
func (s *SQLiteStore) SequenceForEventID(ctx context.Context, runID, eventID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM events WHERE run_id = ? AND event_id = ?`,
		runID, eventID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// SaveDecision appends one decision to the run's audit trail.
func (s *SQLiteStore) SaveDecision(ctx context.Context, dec domain.Decision) error {
	var payload sql.NullString
	if len(dec.Payload) > 0 {
		payload = sql.NullString{String: string(dec.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (decision_id, run_id, decision_type, reasoning, payload, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		dec.DecisionID, dec.RunID, dec.Type, dec.Reasoning, payload, dec.Ts)
	return err
}

// ListDecisions returns the run's decisions in chronological order.
func (s *SQLiteStore) ListDecisions(ctx context.Context, runID string) ([]domain.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_id, run_id, decision_type, reasoning, payload, ts FROM decisions WHERE run_id = ? ORDER BY ts ASC, decision_id ASC`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var dec domain.Decision
		var payload sql.NullString
		if err := rows.Scan(&dec.DecisionID, &dec.RunID, &dec.Type, &dec.Reasoning, &payload, &dec.Ts); err != nil {
			return nil, err
		}
		if payload.Valid {
			dec.Payload = json.RawMessage(payload.String)
		}
		decisions = append(decisions, dec)
	}
	return decisions, rows.Err()
}

// SaveEvidence appends one evidence record for the run.
func (s *SQLiteStore) SaveEvidence(ctx context.Context, ev domain.Evidence) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence (evidence_id, run_id, agent_id, source, summary, confidence, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.EvidenceID, ev.RunID, ev.AgentID, ev.Source, ev.Summary, ev.Confidence, ev.Ts)
	return err
}

// ListEvidence returns the run's evidence in chronological order.
func (s *SQLiteStore) ListEvidence(ctx context.Context, runID string) ([]domain.Evidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT evidence_id, run_id, agent_id, source, summary, confidence, ts FROM evidence WHERE run_id = ? ORDER BY ts ASC, evidence_id ASC`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evidence []domain.Evidence
	for rows.Next() {
		var ev domain.Evidence
		if err := rows.Scan(&ev.EvidenceID, &ev.RunID, &ev.AgentID, &ev.Source, &ev.Summary, &ev.Confidence, &ev.Ts); err != nil {
			return nil, err
		}
		evidence = append(evidence, ev)
	}
	return evidence, rows.Err()
}
