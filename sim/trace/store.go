package trace

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time // zero while the run is in progress
	Seed            int64
	NumGangs        int
	Mode            string // "processes" or "in-process"
	EndReason       string
	SuccessfulPlans int
	ThwartedPlans   int
	ExecutedAgents  int
	ElapsedTicks    int
}

// Store persists runs and their events in a SQLite database. Every process of a
// run may open the same file; writes are serialized by SQLite's own locking.
//
// Thread-safety: safe for concurrent use.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the results database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty results db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			seed INTEGER NOT NULL,
			num_gangs INTEGER NOT NULL,
			mode TEXT NOT NULL,
			end_reason TEXT NOT NULL DEFAULT '',
			successful_plans INTEGER NOT NULL DEFAULT 0,
			thwarted_plans INTEGER NOT NULL DEFAULT 0,
			executed_agents INTEGER NOT NULL DEFAULT 0,
			elapsed_ticks INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS plans (
			run_id TEXT NOT NULL,
			gang INTEGER NOT NULL,
			cycle INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			target TEXT NOT NULL,
			success_rate REAL NOT NULL,
			participants INTEGER NOT NULL,
			outcome TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS plans_run ON plans(run_id);`,
		`CREATE TABLE IF NOT EXISTS deaths (
			run_id TEXT NOT NULL,
			gang INTEGER NOT NULL,
			member INTEGER NOT NULL,
			agent INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			cause TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS plants (
			run_id TEXT NOT NULL,
			officer INTEGER NOT NULL,
			gang INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			accepted INTEGER NOT NULL,
			agent INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reports (
			run_id TEXT NOT NULL,
			officer INTEGER NOT NULL,
			agent INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			knowledge REAL NOT NULL,
			above_threshold INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS arrests (
			run_id TEXT NOT NULL,
			officer INTEGER NOT NULL,
			gang INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			countdown INTEGER NOT NULL,
			probability REAL NOT NULL,
			knowledge REAL NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts the row for a new run.
func (s *Store) BeginRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, seed, num_gangs, mode) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.Seed, r.NumGangs, r.Mode)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun stores a run's final counters and end reason.
func (s *Store) FinishRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, end_reason = ?, successful_plans = ?, thwarted_plans = ?,
			executed_agents = ?, elapsed_ticks = ? WHERE id = ?`,
		r.FinishedAt.UTC().Format(time.RFC3339Nano), r.EndReason, r.SuccessfulPlans, r.ThwartedPlans,
		r.ExecutedAgents, r.ElapsedTicks, r.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns every stored run, most recent first.
func (s *Store) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, seed, num_gangs, mode, end_reason,
			successful_plans, thwarted_plans, executed_agents, elapsed_ticks
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Seed, &r.NumGangs, &r.Mode, &r.EndReason,
			&r.SuccessfulPlans, &r.ThwartedPlans, &r.ExecutedAgents, &r.ElapsedTicks); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutcomeCounts returns the number of plans per outcome for a run.
func (s *Store) OutcomeCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM plans WHERE run_id = ? GROUP BY outcome`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// EventCounts returns the number of deaths, plant attempts, reports and arrests of a run.
func (s *Store) EventCounts(ctx context.Context, runID string) (map[string]int, error) {
	out := make(map[string]int)
	for _, table := range []string{"deaths", "plants", "reports", "arrests"} {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE run_id = ?`, runID).Scan(&n); err != nil {
			return nil, err
		}
		out[table] = n
	}
	return out, nil
}

// SaveTrace writes every record of an in-memory trace under runID.
func (s *Store) SaveTrace(ctx context.Context, runID string, st *SimulationTrace) error {
	st = st.Snapshot()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	rec := &storeRecorder{exec: tx.ExecContext, ctx: ctx, runID: runID}
	for _, r := range st.Plans {
		rec.RecordPlan(r)
	}
	for _, r := range st.Deaths {
		rec.RecordDeath(r)
	}
	for _, r := range st.Plants {
		rec.RecordPlant(r)
	}
	for _, r := range st.Reports {
		rec.RecordReport(r)
	}
	for _, r := range st.Arrests {
		rec.RecordArrest(r)
	}
	if rec.err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("save trace: %w", rec.err)
	}
	return tx.Commit()
}

// Recorder returns a Recorder that inserts events of runID as they happen.
// Insert failures are logged, never returned: tracing must not stop a run.
func (s *Store) Recorder(runID string) Recorder {
	return &storeRecorder{exec: s.db.ExecContext, ctx: context.Background(), runID: runID, logErrors: true}
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

type storeRecorder struct {
	exec      execFunc
	ctx       context.Context
	runID     string
	logErrors bool
	err       error
}

func (r *storeRecorder) insert(query string, args ...any) {
	if r.err != nil && !r.logErrors {
		return
	}
	if _, err := r.exec(r.ctx, query, append([]any{r.runID}, args...)...); err != nil {
		if r.logErrors {
			logrus.Warnf("trace store: %v", err)
			return
		}
		r.err = err
	}
}

func (r *storeRecorder) RecordPlan(p PlanRecord) {
	r.insert(`INSERT INTO plans VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Gang, p.Cycle, p.Tick, p.Target, p.SuccessRate, p.Participants, p.Outcome)
}

func (r *storeRecorder) RecordDeath(d DeathRecord) {
	r.insert(`INSERT INTO deaths VALUES (?, ?, ?, ?, ?, ?)`, d.Gang, d.Member, d.Agent, d.Tick, d.Cause)
}

func (r *storeRecorder) RecordPlant(p PlantRecord) {
	r.insert(`INSERT INTO plants VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Officer, p.Gang, p.Attempt, p.Tick, p.Accepted, p.Agent)
}

func (r *storeRecorder) RecordReport(p ReportRecord) {
	r.insert(`INSERT INTO reports VALUES (?, ?, ?, ?, ?, ?)`,
		p.Officer, p.Agent, p.Tick, p.Knowledge, p.AboveThreshold)
}

func (r *storeRecorder) RecordArrest(a ArrestRecord) {
	r.insert(`INSERT INTO arrests VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Officer, a.Gang, a.Tick, a.Countdown, a.Probability, a.Knowledge)
}
