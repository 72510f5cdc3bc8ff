// Package store persists per-tick telemetry to sqlite so runs can be
// inspected and plotted after the fact. Schema changes go through
// embedded golang-migrate files, never ad hoc DDL.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/skyfleet-robotics/formation.control/internal/swarm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store wraps the telemetry database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the telemetry database at path and brings the
// schema up to the latest migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateUp applies all pending embedded migrations. No-op when the
// schema is already current.
func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Note: not closing m here because it would close the underlying DB
	// connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RunSummary describes one stored run.
type RunSummary struct {
	ID         string
	Started    time.Time
	Finished   time.Time // zero if the run never finished cleanly
	FinalState swarm.RunState
	Ticks      int
}

// BeginRun registers a new run and returns its id. configJSON is stored
// verbatim for later reproduction of the run's tuning.
func (s *Store) BeginRun(configJSON []byte, started time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_unix_nanos, config_json) VALUES (?, ?, ?)`,
		id, started.UnixNano(), string(configJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun records the run's final lifecycle state and end time.
func (s *Store) FinishRun(runID string, finalState swarm.RunState, finished time.Time) error {
	res, err := s.db.Exec(
		`UPDATE runs SET final_state = ?, finished_unix_nanos = ? WHERE id = ?`,
		string(finalState), finished.UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run id %q", runID)
	}
	return nil
}

// RunRecorder adapts the store to the swarm.Recorder interface for one
// run.
type RunRecorder struct {
	s     *Store
	runID string
}

// Recorder returns a swarm.Recorder that writes ticks under runID.
func (s *Store) Recorder(runID string) *RunRecorder {
	return &RunRecorder{s: s, runID: runID}
}

// RecordTick inserts one telemetry row.
func (r *RunRecorder) RecordTick(rec swarm.TickRecord) error {
	_, err := r.s.db.Exec(`
		INSERT INTO ticks (
			run_id, tick, sim_time, state,
			min_agent_distance, min_obstacle_distance,
			mean_formation_error, max_formation_error,
			cbf_activations, infeasible_agents, near_collisions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, rec.Tick, rec.Time, string(rec.State),
		nullIfNonFinite(rec.MinAgentDistance),
		nullIfNonFinite(rec.MinObstacleDistance),
		rec.MeanFormationError, rec.MaxFormationError,
		rec.CBFActivations, rec.InfeasibleAgents, rec.NearCollisions,
	)
	if err != nil {
		return fmt.Errorf("insert tick %d: %w", rec.Tick, err)
	}
	return nil
}

// TicksForRun returns all telemetry rows for a run in tick order.
func (s *Store) TicksForRun(runID string) ([]swarm.TickRecord, error) {
	rows, err := s.db.Query(`
		SELECT tick, sim_time, state,
			min_agent_distance, min_obstacle_distance,
			mean_formation_error, max_formation_error,
			cbf_activations, infeasible_agents, near_collisions
		FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []swarm.TickRecord
	for rows.Next() {
		var rec swarm.TickRecord
		var state string
		var minAgent, minObstacle sql.NullFloat64
		if err := rows.Scan(
			&rec.Tick, &rec.Time, &state,
			&minAgent, &minObstacle,
			&rec.MeanFormationError, &rec.MaxFormationError,
			&rec.CBFActivations, &rec.InfeasibleAgents, &rec.NearCollisions,
		); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec.State = swarm.RunState(state)
		rec.MinAgentDistance = floatOrInf(minAgent)
		rec.MinObstacleDistance = floatOrInf(minObstacle)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Runs lists all stored runs, newest first.
func (s *Store) Runs() ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.started_unix_nanos, r.finished_unix_nanos, r.final_state,
			(SELECT COUNT(*) FROM ticks t WHERE t.run_id = r.id)
		FROM runs r ORDER BY r.started_unix_nanos DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var started int64
		var finished sql.NullInt64
		var state sql.NullString // NULL until FinishRun
		if err := rows.Scan(&rs.ID, &started, &finished, &state, &rs.Ticks); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rs.Started = time.Unix(0, started)
		if finished.Valid {
			rs.Finished = time.Unix(0, finished.Int64)
		}
		rs.FinalState = swarm.RunState(state.String)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// ConfigForRun returns the config JSON stored with a run.
func (s *Store) ConfigForRun(runID string) ([]byte, error) {
	var cfg sql.NullString
	err := s.db.QueryRow(`SELECT config_json FROM runs WHERE id = ?`, runID).Scan(&cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unknown run id %q", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run config: %w", err)
	}
	return []byte(cfg.String), nil
}

// nullIfNonFinite maps ±Inf/NaN distances (single-agent fleet, no
// obstacles) to NULL so sqlite stays portable.
func nullIfNonFinite(v float64) interface{} {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrInf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}
