package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueJob is one durable message in the report queue.
type QueueJob struct {
	ID           uuid.UUID
	JobType      string
	Payload      []byte
	Priority     int
	Status       string
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Queue row statuses. Unlike report jobs, queue rows exist only to hand work
// to a worker exactly once; "queued" rows are claimable, everything else is
// bookkeeping.
const (
	QueueStatusQueued  = "queued"
	QueueStatusRunning = "running"
	QueueStatusDone    = "done"
	QueueStatusFailed  = "failed"
)

// Enqueue inserts a message into the report queue. Higher priority values
// are dequeued first.
func (s *Store) Enqueue(ctx context.Context, jobType string, payload []byte, priority int) (*QueueJob, error) {
	job := &QueueJob{
		ID:        uuid.New(),
		JobType:   jobType,
		Payload:   payload,
		Priority:  priority,
		Status:    QueueStatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO report_queue
		(id, job_type, payload, priority, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		job.ID.String(), job.JobType, string(job.Payload), job.Priority,
		job.Status, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return job, nil
}

// Dequeue claims the next queued message, highest priority first, oldest
// first within a priority tier. The claim happens inside a transaction: the
// candidate is selected, then conditionally flipped to running. If another
// worker won the race, (nil, nil) is returned and the caller simply polls
// again. Returns sql.ErrNoRows when the queue is empty.
func (s *Store) Dequeue(ctx context.Context) (*QueueJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue: %w", err)
	}
	defer tx.Rollback()

	var (
		job     QueueJob
		id      string
		payload string
	)
	err = tx.QueryRowContext(ctx, `SELECT id, job_type, payload, priority, attempts
		FROM report_queue WHERE status = $1
		ORDER BY priority DESC, created_at ASC LIMIT 1`,
		QueueStatusQueued,
	).Scan(&id, &job.JobType, &payload, &job.Priority, &job.Attempts)
	if err != nil {
		return nil, err // sql.ErrNoRows when empty
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse queue id: %w", err)
	}
	job.Payload = []byte(payload)

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE report_queue
		SET status = $1, attempts = attempts + 1, started_at = $2
		WHERE id = $3 AND status = $4`,
		QueueStatusRunning, now, id, QueueStatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("claim queue row: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Lost the claim to another worker.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}

	job.Status = QueueStatusRunning
	job.Attempts++
	job.StartedAt = &now
	return &job, nil
}

// MarkQueueDone records that a claimed message was handled.
func (s *Store) MarkQueueDone(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE report_queue
		SET status = $1, finished_at = $2 WHERE id = $3`,
		QueueStatusDone, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("mark queue done: %w", err)
	}
	return nil
}

// MarkQueueFailed records that a claimed message could not be handled. The
// row is terminal; report-level failures are recorded on the report job, not
// here.
func (s *Store) MarkQueueFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE report_queue
		SET status = $1, error_message = $2, finished_at = $3 WHERE id = $4`,
		QueueStatusFailed, message, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("mark queue failed: %w", err)
	}
	return nil
}

// RecoverStale requeues messages stuck in running longer than the threshold,
// which happens when a worker dies mid-job. Safe because report processing
// fully regenerates its output on re-run.
func (s *Store) RecoverStale(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	res, err := s.db.ExecContext(ctx, `UPDATE report_queue
		SET status = $1, started_at = NULL
		WHERE status = $2 AND started_at < $3`,
		QueueStatusQueued, QueueStatusRunning, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("recover stale queue rows: %w", err)
	}
	return res.RowsAffected()
}
