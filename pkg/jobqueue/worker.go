package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Handler is an in-process structured job handler.
type Handler func(ctx context.Context, payload json.RawMessage) error

// ReplayPayload is the payload shape for generic CLI-replay jobs:
// reconstructs `<self-binary> <command> <args...> --<k>=<v>...` and runs it
// as a subprocess. A non-zero exit is a failure.
type ReplayPayload struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Kwargs  map[string]string `json:"kwargs"`
}

// Enqueuer wraps a Store with the soft-cap warning behavior 4.H describes:
// enqueue always succeeds, but logs at 80% and 100% of capacity.
type Enqueuer struct {
	store   *Store
	softCap int
	logger  *slog.Logger
}

// NewEnqueuer builds an Enqueuer.
func NewEnqueuer(store *Store, softCap int, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{store: store, softCap: softCap, logger: logger}
}

// Enqueue implements 4.H's enqueue(job_type, payload, parallel).
func (e *Enqueuer) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, parallel bool) (string, error) {
	id, pending, err := e.store.Enqueue(ctx, jobType, payload, parallel)
	if err != nil {
		return "", err
	}

	if e.softCap > 0 && e.logger != nil {
		switch {
		case pending >= e.softCap:
			e.logger.Warn("job queue at soft cap", "pending", pending, "soft_cap", e.softCap)
		case pending >= (e.softCap*80)/100:
			e.logger.Warn("job queue nearing soft cap", "pending", pending, "soft_cap", e.softCap)
		}
	}

	return id, nil
}

// Worker drives the job store: one goroutine retrieving batches, a bounded
// pool for parallel batches, exponential-backoff retry, and dead-lettering
// on exhausted retries.
type Worker struct {
	Store       *Store
	Handlers    map[string]Handler
	PoolSize    int
	MaxRetries  int
	BaseBackoff time.Duration
	Logger      *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Start launches the worker loop in a background goroutine. It returns
// immediately; call Stop to shut down cooperatively.
func (w *Worker) Start(ctx context.Context) {
	if w.PoolSize <= 0 {
		w.PoolSize = 4
	}

	if w.MaxRetries <= 0 {
		w.MaxRetries = 3
	}

	if w.BaseBackoff <= 0 {
		w.BaseBackoff = 10 * time.Second
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run(ctx)
}

// Stop signals the worker to shut down: the job in progress completes, the
// parallel pool drains, then the worker exits. Blocks until that happens.
func (w *Worker) Stop() {
	if w.stopCh == nil {
		return
	}

	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	const idlePoll = 200 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		batch, err := w.Store.GetBatch(ctx, w.PoolSize)
		if err != nil {
			if w.Logger != nil {
				w.Logger.Error("get job batch failed", "error", err)
			}

			if !w.sleepInterruptible(ctx, idlePoll) {
				return
			}

			continue
		}

		if len(batch) == 0 {
			if !w.sleepInterruptible(ctx, idlePoll) {
				return
			}

			continue
		}

		if len(batch) == 1 && !batch[0].Parallel {
			w.execute(ctx, batch[0])

			continue
		}

		w.executeParallel(ctx, batch)
	}
}

// sleepInterruptible sleeps for d, returning false if the worker was
// stopped or the context was cancelled during the sleep.
func (w *Worker) sleepInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) executeParallel(ctx context.Context, batch []Job) {
	var wg sync.WaitGroup

	for _, job := range batch {
		wg.Add(1)

		go func(j Job) {
			defer wg.Done()

			w.execute(ctx, j)
		}(job)
	}

	wg.Wait()
}

func (w *Worker) execute(ctx context.Context, job Job) {
	err := w.dispatch(ctx, job)
	if err == nil {
		if ackErr := w.Store.Ack(ctx, job.ID); ackErr != nil && w.Logger != nil {
			w.Logger.Error("ack job failed", "job_id", job.ID, "error", ackErr)
		}

		return
	}

	if w.Logger != nil {
		w.Logger.Warn("job failed", "job_id", job.ID, "job_type", job.Type, "error", err)
	}

	attempts, nackErr := w.Store.Nack(ctx, job.ID)
	if nackErr != nil {
		if w.Logger != nil {
			w.Logger.Error("nack job failed", "job_id", job.ID, "error", nackErr)
		}

		return
	}

	if attempts >= w.MaxRetries {
		job.Attempts = attempts

		if dlErr := w.Store.MoveToDeadLetter(ctx, job, err.Error()); dlErr != nil && w.Logger != nil {
			w.Logger.Error("move to dead letter failed", "job_id", job.ID, "error", dlErr)
		}

		return
	}

	backoff := w.BaseBackoff * time.Duration(1<<uint(attempts-1)) //nolint:gosec // attempts is bounded by MaxRetries.
	w.sleepInterruptible(ctx, backoff)
}

// dispatch routes job to its structured handler, if registered, else
// reconstructs and runs a CLI-replay subprocess.
func (w *Worker) dispatch(ctx context.Context, job Job) error {
	if handler, ok := w.Handlers[job.Type]; ok {
		return handler(ctx, job.Payload)
	}

	return w.dispatchReplay(ctx, job.Payload)
}

func (w *Worker) dispatchReplay(ctx context.Context, payload json.RawMessage) error {
	var rp ReplayPayload
	if err := json.Unmarshal(payload, &rp); err != nil {
		return fmt.Errorf("decode replay payload: %w", err)
	}

	if rp.Command == "" {
		return fmt.Errorf("replay payload missing command")
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve self binary: %w", err)
	}

	argv := append([]string{rp.Command}, rp.Args...)
	for k, v := range rp.Kwargs {
		argv = append(argv, fmt.Sprintf("--%s=%s", k, v))
	}

	cmd := exec.CommandContext(ctx, self, argv...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cli replay %q failed: %w: %s", rp.Command, err, out)
	}

	return nil
}
