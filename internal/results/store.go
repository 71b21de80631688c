// Package results persists run outcomes for offline evaluation: per-run JSON
// files under a job directory, and an append-only SQLite store shared across
// jobs so controllers recorded in separate invocations stay comparable.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"greenwave/internal/models"
)

const defaultDBName = "greenwave.db"

// DBPath returns the store location under a results directory.
func DBPath(resultsDir string) string {
	if resultsDir == "" {
		resultsDir = "."
	}
	return filepath.Join(resultsDir, defaultDBName)
}

// Store is an append-only sink for run summaries and their metric records.
// A single connection plus a write lock keeps appends from parallel runs
// serialized; rows are never updated or deleted.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens the store at path, creating the file and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating results directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening results store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating results store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun appends one run's summary and records in a single transaction.
func (s *Store) SaveRun(ctx context.Context, summary models.RunSummary, records []models.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var errType, errMsg any
	if summary.Error != nil {
		errType = string(summary.Error.Type)
		errMsg = summary.Error.Message
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO runs(
			run_id, job, controller, run_index, seed, ticks,
			vehicles_passed, total_throughput, dropped_vehicles,
			total_wait, mean_wait, max_queue, mean_queue,
			learning_faults, partial, started_at, ended_at,
			error_type, error_message)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		summary.RunID, summary.Job, string(summary.Controller), summary.RunIndex,
		int64(summary.Seed), summary.Ticks,
		summary.VehiclesPassed, summary.TotalThroughput, summary.DroppedVehicles,
		summary.TotalWait, summary.MeanWait, summary.MaxQueue, summary.MeanQueue,
		summary.LearningFaults, boolToInt(summary.Partial),
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.EndedAt.UTC().Format(time.RFC3339Nano),
		errType, errMsg)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", summary.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metric_records(
			run_id, controller, tick, intersection_id,
			queue_len, cumulative_wait, cumulative_throughput)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		_, err := stmt.ExecContext(ctx, rec.RunID, string(rec.Controller), rec.Tick,
			rec.IntersectionID, rec.QueueLen, rec.CumulativeWait, rec.CumulativeThroughput)
		if err != nil {
			return fmt.Errorf("inserting record for run %s tick %d: %w", rec.RunID, rec.Tick, err)
		}
	}
	return tx.Commit()
}

// Summaries returns stored run summaries ordered by job, controller and run
// index. An empty job returns runs from every job.
func (s *Store) Summaries(ctx context.Context, job string) ([]models.RunSummary, error) {
	query := `SELECT run_id, job, controller, run_index, seed, ticks,
			vehicles_passed, total_throughput, dropped_vehicles,
			total_wait, mean_wait, max_queue, mean_queue,
			learning_faults, partial, started_at, ended_at,
			error_type, error_message
		FROM runs`
	var args []any
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY job, controller, run_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		var (
			sum             models.RunSummary
			controller      string
			seed            int64
			partial         int
			started, ended  string
			errType, errMsg sql.NullString
		)
		err := rows.Scan(&sum.RunID, &sum.Job, &controller, &sum.RunIndex, &seed, &sum.Ticks,
			&sum.VehiclesPassed, &sum.TotalThroughput, &sum.DroppedVehicles,
			&sum.TotalWait, &sum.MeanWait, &sum.MaxQueue, &sum.MeanQueue,
			&sum.LearningFaults, &partial, &started, &ended, &errType, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		sum.Controller = models.ControllerKind(controller)
		sum.Seed = uint64(seed)
		sum.Partial = partial != 0
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing started_at for run %s: %w", sum.RunID, err)
		}
		if sum.EndedAt, err = time.Parse(time.RFC3339Nano, ended); err != nil {
			return nil, fmt.Errorf("parsing ended_at for run %s: %w", sum.RunID, err)
		}
		if errType.Valid {
			sum.Error = &models.RunError{
				Type:    models.ErrorType(errType.String),
				Message: errMsg.String,
			}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Records returns one run's metric records in the order they were recorded.
func (s *Store) Records(ctx context.Context, runID string) ([]models.MetricRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, controller, tick,
			intersection_id, queue_len, cumulative_wait, cumulative_throughput
		FROM metric_records WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []models.MetricRecord
	for rows.Next() {
		var (
			rec        models.MetricRecord
			controller string
		)
		err := rows.Scan(&rec.RunID, &controller, &rec.Tick, &rec.IntersectionID,
			&rec.QueueLen, &rec.CumulativeWait, &rec.CumulativeThroughput)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		rec.Controller = models.ControllerKind(controller)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
