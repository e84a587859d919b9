// Package jobqueue implements the background job store and worker (4.H):
// a SQLite-backed job table with a dead-letter table for permanently failed
// jobs, the sequential-barrier batch-retrieval rule, a bounded worker pool
// for parallel jobs, and exponential-backoff retry. Mirrors pkg/llmqueue's
// sqlite idiom (same driver, same WAL-mode DSN, same short-lived-statement
// concurrency model) since both are durable FIFO-ish queues over
// modernc.org/sqlite.
package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Job is a persisted unit of background work.
type Job struct {
	ID        string
	Type      string
	Payload   json.RawMessage
	Parallel  bool
	Attempts  int
	CreatedAt time.Time
}

// DeadLetterJob is a job that exhausted its retries.
type DeadLetterJob struct {
	ID         string
	Type       string
	Payload    json.RawMessage
	FinalError string
	FailedAt   time.Time
}

// Store is the SQLite-backed job table plus dead-letter table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the job queue database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open job queue db: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	seq INTEGER,
	job_type TEXT NOT NULL,
	payload BLOB NOT NULL,
	parallel INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS dead_letter_jobs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	payload BLOB NOT NULL,
	final_error TEXT NOT NULL,
	failed_at REAL NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("migrate job queue schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue accepts a job unconditionally, returning its ID and the pending
// count immediately after insertion (callers use this to decide whether to
// log a soft-cap warning; the store itself never rejects).
func (s *Store) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, parallel bool) (string, int, error) {
	id := uuid.NewString()
	now := time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, seq, job_type, payload, parallel, attempts, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		id, now.UnixNano(), jobType, []byte(payload), boolToInt(parallel), float64(now.Unix()))
	if err != nil {
		return "", 0, fmt.Errorf("enqueue job: %w", err)
	}

	count, err := s.PendingCount(ctx)
	if err != nil {
		return id, 0, err
	}

	return id, count, nil
}

// PendingCount returns the number of jobs currently queued.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}

	return n, nil
}

// GetBatch implements 4.H's core scheduling rule. It is a pure peek — no
// row is mutated or removed — so a sequential job encountered mid-scan
// stays exactly where it was for the next call, which is the "nack it back
// to the head" behavior the spec describes: nothing needed to move because
// nothing was dequeued from storage in the first place.
func (s *Store) GetBatch(ctx context.Context, maxItems int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_type, payload, parallel, attempts, created_at FROM jobs ORDER BY seq ASC LIMIT ?`,
		maxItems+1)
	if err != nil {
		return nil, fmt.Errorf("query job batch: %w", err)
	}
	defer rows.Close()

	var all []Job

	for rows.Next() {
		var (
			j         Job
			parallel  int
			createdAt float64
		)

		if err := rows.Scan(&j.ID, &j.Type, &j.Payload, &parallel, &j.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}

		j.Parallel = parallel != 0
		j.CreatedAt = time.Unix(int64(createdAt), 0)
		all = append(all, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job batch: %w", err)
	}

	if len(all) == 0 {
		return nil, nil
	}

	if !all[0].Parallel {
		return all[:1], nil
	}

	batch := []Job{all[0]}

	for _, j := range all[1:] {
		if len(batch) >= maxItems {
			break
		}

		if !j.Parallel {
			break
		}

		batch = append(batch, j)
	}

	return batch, nil
}

// Ack removes a successfully processed job.
func (s *Store) Ack(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}

	return nil
}

// Nack increments a failed job's attempt count and moves it to the tail of
// the queue (its seq is refreshed), returning the new attempt count.
func (s *Store) Nack(ctx context.Context, id string) (int, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET attempts = attempts + 1, seq = ? WHERE id = ?`, time.Now().UnixNano(), id)
	if err != nil {
		return 0, fmt.Errorf("nack job: %w", err)
	}

	var attempts int

	err = s.db.QueryRowContext(ctx, `SELECT attempts FROM jobs WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("read job attempts: %w", err)
	}

	return attempts, nil
}

// MoveToDeadLetter atomically deletes job from the main table and inserts
// it into dead_letter_jobs with the final error and failure timestamp.
func (s *Store) MoveToDeadLetter(ctx context.Context, job Job, finalError string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dead-letter tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed.

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO dead_letter_jobs (id, job_type, payload, final_error, failed_at) VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.Type, []byte(job.Payload), finalError, float64(time.Now().Unix()))
	if err != nil {
		return fmt.Errorf("insert dead-letter job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dead-letter tx: %w", err)
	}

	return nil
}

// ListDeadLetter returns every dead-lettered job, most recently failed
// first.
func (s *Store) ListDeadLetter(ctx context.Context) ([]DeadLetterJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_type, payload, final_error, failed_at FROM dead_letter_jobs ORDER BY failed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query dead-letter jobs: %w", err)
	}
	defer rows.Close()

	var out []DeadLetterJob

	for rows.Next() {
		var (
			d        DeadLetterJob
			failedAt float64
		)

		if err := rows.Scan(&d.ID, &d.Type, &d.Payload, &d.FinalError, &failedAt); err != nil {
			return nil, fmt.Errorf("scan dead-letter row: %w", err)
		}

		d.FailedAt = time.Unix(int64(failedAt), 0)
		out = append(out, d)
	}

	return out, rows.Err()
}

// RequeueDeadLetter moves a dead-lettered job back into the main table with
// attempts reset to 0 — the explicit retry command, never automatic.
func (s *Store) RequeueDeadLetter(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin requeue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed.

	var (
		jobType string
		payload []byte
	)

	err = tx.QueryRowContext(ctx, `SELECT job_type, payload FROM dead_letter_jobs WHERE id = ?`, id).Scan(&jobType, &payload)
	if err != nil {
		return fmt.Errorf("read dead-letter job: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dead_letter_jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete dead-letter job: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, seq, job_type, payload, parallel, attempts, created_at) VALUES (?, ?, ?, ?, 0, 0, ?)`,
		id, time.Now().UnixNano(), jobType, payload, float64(time.Now().Unix()))
	if err != nil {
		return fmt.Errorf("reinsert job: %w", err)
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
