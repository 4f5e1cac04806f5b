// Package worker runs the report queue consumer pool.
//
// A small fixed number of goroutines poll the durable queue, claim one
// message each, and dispatch it to the registered handler. Failed messages
// are marked terminally failed on their queue row; retries are not a concern
// of this layer. Redelivery only happens through stale-row recovery after a
// worker crash, which is safe because report processing fully regenerates
// its output.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/campushq/reportworks/internal/metrics"
	"github.com/campushq/reportworks/internal/repository"
)

// Worker manages queue consumption with a bounded pool.
type Worker struct {
	store    *repository.Store
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg      sync.WaitGroup
	stopCh  chan struct{}
	started bool
}

// New creates a Worker. Start it with Start() and stop it with Stop().
func New(store *repository.Store, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		store:    store,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler. Registration is idempotent: a second handler
// for the same type is ignored with a warning, so repeated startup wiring
// cannot double-consume the queue.
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("handler already registered, ignoring duplicate", "job_type", jobType)
		return
	}
	w.handlers[jobType] = handler
	w.logger.Debug("registered job handler", "job_type", jobType)
}

// Start recovers stale queue rows and launches the worker goroutines. If the
// queue backend is unreachable the worker logs the problem and stays idle
// instead of crashing the host process; polling begins anyway and succeeds
// once the backend returns.
func (w *Worker) Start(ctx context.Context) {
	if w.started {
		w.logger.Warn("worker already started, ignoring duplicate start")
		return
	}
	w.started = true

	if err := w.store.Ping(ctx); err != nil {
		w.logger.Error("queue backend unreachable at startup, workers will keep polling", "error", err)
	} else if err := w.recoverStale(ctx); err != nil {
		w.logger.Error("failed to recover stale queue rows", "error", err)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency)
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// recoverStale requeues rows stuck in running state from a crashed worker.
func (w *Worker) recoverStale(ctx context.Context) error {
	count, err := w.store.RecoverStale(ctx, w.config.StaleThreshold)
	if err != nil {
		return err
	}
	if count > 0 {
		metrics.QueueRecoveredTotal.Add(float64(count))
		w.logger.Warn("recovered stale queue rows", "count", count, "threshold", w.config.StaleThreshold)
	}
	return nil
}

// runWorker is the poll loop for one goroutine.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker loop started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("worker loop stopping")
			return
		case <-ticker.C:
			if err := w.processNext(ctx, logger); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					// Empty queue, nothing to do.
					continue
				}
				logger.Error("failed to process queue message", "error", err)
			}
		}
	}
}

// processNext claims and executes a single queue message. Returns
// sql.ErrNoRows when the queue is empty.
func (w *Worker) processNext(ctx context.Context, logger *slog.Logger) error {
	job, err := w.store.Dequeue(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		// Lost the claim race to another worker.
		return nil
	}

	logger = logger.With("queue_id", job.ID, "job_type", job.JobType)
	logger.Info("processing queue message")

	if err := w.execute(ctx, job.JobType, job.Payload); err != nil {
		if IsPermanent(err) {
			logger.Warn("queue message failed permanently", "error", err)
		} else {
			logger.Error("queue message failed", "error", err)
		}
		if markErr := w.store.MarkQueueFailed(ctx, job.ID, err.Error()); markErr != nil {
			logger.Error("failed to mark queue message failed", "error", markErr)
		}
		return nil
	}

	logger.Info("queue message handled")
	if err := w.store.MarkQueueDone(ctx, job.ID); err != nil {
		return fmt.Errorf("mark queue message done: %w", err)
	}
	return nil
}

// execute dispatches to the registered handler under the job timeout.
func (w *Worker) execute(ctx context.Context, jobType string, payload []byte) error {
	handler, ok := w.handlers[jobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", jobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, payload)
}
