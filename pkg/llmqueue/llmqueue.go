// Package llmqueue implements the persistent bounded FIFO of LLM requests
// that both the cloud and local endpoints rejected (4.C). Entries are
// drained on demand; TTL-expired entries are dropped silently when seen.
package llmqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Operation is the kind of LLM call that failed.
type Operation string

const (
	OperationChat     Operation = "chat"
	OperationGenerate Operation = "generate"
	OperationEmbed    Operation = "embed"
)

// Item is a persistent record of one failed LLM request.
type Item struct {
	ID            string
	Operation     Operation
	Params        json.RawMessage
	Timestamp     float64
	OriginalError string
}

// Processor replays a queued item; a non-nil error re-queues the item.
type Processor func(ctx context.Context, op Operation, params json.RawMessage) error

// Queue is a SQLite-backed bounded FIFO. Safe for concurrent use: SQLite
// itself serializes writers, and every public method opens its own
// short-lived statement against the shared *sql.DB connection pool.
type Queue struct {
	db       *sql.DB
	maxSize  int
	ttl      time.Duration
}

// Open opens (creating if absent) the queue database at path.
func Open(path string, maxSize int, ttl time.Duration) (*Queue, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open llm queue db: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS llm_queue (
	id TEXT PRIMARY KEY,
	seq INTEGER,
	operation TEXT NOT NULL,
	params BLOB NOT NULL,
	ts REAL NOT NULL,
	original_error TEXT NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("migrate llm queue schema: %w", err)
	}

	return &Queue{db: db, maxSize: maxSize, ttl: ttl}, nil
}

// Close closes the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends a failed request. If the queue is at maxSize, the oldest
// entry is evicted first (overflow is the caller's responsibility to log).
func (q *Queue) Enqueue(ctx context.Context, op Operation, params json.RawMessage, originalErr string) (string, bool, error) {
	evicted := false

	count, err := q.count(ctx)
	if err != nil {
		return "", false, err
	}

	if count >= q.maxSize {
		if err := q.evictOldest(ctx); err != nil {
			return "", false, err
		}

		evicted = true
	}

	id := uuid.NewString()
	seq := time.Now().UnixNano()

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO llm_queue (id, seq, operation, params, ts, original_error) VALUES (?, ?, ?, ?, ?, ?)`,
		id, seq, string(op), []byte(params), float64(time.Now().Unix()), originalErr)
	if err != nil {
		return "", false, fmt.Errorf("enqueue llm item: %w", err)
	}

	return id, evicted, nil
}

func (q *Queue) count(ctx context.Context) (int, error) {
	var n int

	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM llm_queue`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count llm queue: %w", err)
	}

	return n, nil
}

func (q *Queue) evictOldest(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM llm_queue WHERE id = (SELECT id FROM llm_queue ORDER BY seq ASC LIMIT 1)`)
	if err != nil {
		return fmt.Errorf("evict oldest llm item: %w", err)
	}

	return nil
}

// Drain dequeues items in insertion order and calls processor on each.
// TTL-expired items are dropped without calling processor. On success the
// item is removed; on failure it is re-queued at the tail (its seq is
// refreshed) so siblings keep draining. Returns the count processed
// successfully.
func (q *Queue) Drain(ctx context.Context, processor Processor) (int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, seq, operation, params, ts, original_error FROM llm_queue ORDER BY seq ASC`)
	if err != nil {
		return 0, fmt.Errorf("query llm queue: %w", err)
	}

	var items []Item

	for rows.Next() {
		var (
			it  Item
			seq int64
		)

		if err := rows.Scan(&it.ID, &seq, &it.Operation, &it.Params, &it.Timestamp, &it.OriginalError); err != nil {
			rows.Close()

			return 0, fmt.Errorf("scan llm queue row: %w", err)
		}

		items = append(items, it)
	}

	rows.Close()

	succeeded := 0
	now := time.Now()

	for _, it := range items {
		age := now.Sub(time.Unix(int64(it.Timestamp), 0))
		if age > q.ttl {
			if _, err := q.db.ExecContext(ctx, `DELETE FROM llm_queue WHERE id = ?`, it.ID); err != nil {
				return succeeded, err
			}

			continue
		}

		procErr := processor(ctx, it.Operation, it.Params)
		if procErr == nil {
			if _, err := q.db.ExecContext(ctx, `DELETE FROM llm_queue WHERE id = ?`, it.ID); err != nil {
				return succeeded, err
			}

			succeeded++

			continue
		}

		if _, err := q.db.ExecContext(ctx, `UPDATE llm_queue SET seq = ?, original_error = ? WHERE id = ?`,
			time.Now().UnixNano(), procErr.Error(), it.ID); err != nil {
			return succeeded, err
		}
	}

	return succeeded, nil
}

// Len returns the current number of queued items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.count(ctx)
}
