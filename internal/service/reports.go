// Package service contains the business logic layer.
//
// This file implements the report service: job submission, ownership-checked
// status and download reads, history pagination, the worker-side processing
// entry point, and the expired-artifact sweep.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campushq/reportworks/internal/domain"
	"github.com/campushq/reportworks/internal/generator"
	"github.com/campushq/reportworks/internal/metrics"
	"github.com/campushq/reportworks/internal/report"
	"github.com/campushq/reportworks/internal/repository"
	"github.com/campushq/reportworks/internal/storage"
)

// JobTypeGenerateReport is the queue message type for report processing.
const JobTypeGenerateReport = "generate_report"

// ProcessPayload is the queue message body: everything the worker needs to
// locate the job again from a cold start.
type ProcessPayload struct {
	JobID         uuid.UUID `json:"job_id"`
	Schema        string    `json:"schema"`
	InstitutionID uuid.UUID `json:"institution_id"`
}

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// JobStore is the repository surface the service needs for report jobs.
type JobStore interface {
	CreateJob(ctx context.Context, schema string, job *domain.ReportJob) error
	GetJob(ctx context.Context, schema string, id uuid.UUID) (*domain.ReportJob, error)
	UpdateJob(ctx context.Context, schema string, id uuid.UUID, patch repository.JobPatch) error
	DeleteJob(ctx context.Context, schema string, id uuid.UUID) error
	ListHistory(ctx context.Context, schema string, q repository.HistoryQuery) ([]domain.ReportJob, int64, error)
	ListExpiredCompleted(ctx context.Context, schema string, now time.Time, limit int) ([]domain.ReportJob, error)
}

// Queue is the durable queue surface for submitting processing messages.
type Queue interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, jobType string, payload []byte, priority int) (*repository.QueueJob, error)
}

// BlobStore persists generated documents and resolves them for download.
type BlobStore interface {
	Store(ctx context.Context, schema string, job *domain.ReportJob, data []byte) (string, error)
	Load(ctx context.Context, locator string) ([]byte, error)
	Remove(ctx context.Context, locator string) error
}

// =============================================================================
// Service
// =============================================================================

// ReportServiceConfig bounds report generation.
type ReportServiceConfig struct {
	ChunkSize   int
	MaxRows     int
	DownloadTTL time.Duration
}

// ReportService orchestrates the report pipeline.
type ReportService struct {
	store      JobStore
	queue      Queue
	blobs      BlobStore
	db         *sql.DB
	generators map[domain.ReportType]generator.Func
	cfg        ReportServiceConfig
	logger     *slog.Logger
}

// NewReportService creates a ReportService. The db handle is passed to
// generators for tenant-data reads; job rows go through the store.
func NewReportService(
	store JobStore,
	queue Queue,
	blobs BlobStore,
	db *sql.DB,
	generators map[domain.ReportType]generator.Func,
	cfg ReportServiceConfig,
	logger *slog.Logger,
) *ReportService {
	if cfg.DownloadTTL <= 0 {
		cfg.DownloadTTL = domain.DownloadTTL
	}
	return &ReportService{
		store:      store,
		queue:      queue,
		blobs:      blobs,
		db:         db,
		generators: generators,
		cfg:        cfg,
		logger:     logger,
	}
}

// =============================================================================
// Request
// =============================================================================

// RequestReportInput is the submission payload for a new report job.
type RequestReportInput struct {
	InstitutionID  uuid.UUID
	AcademicYearID *uuid.UUID
	ReportType     domain.ReportType
	Format         domain.ReportFormat
	Filters        domain.Filters
	RequestedBy    uuid.UUID
}

// RequestReport validates the queue is reachable, creates a queued job row,
// and enqueues a processing message. Returns immediately; generation happens
// in the worker.
func (s *ReportService) RequestReport(ctx context.Context, schema string, in RequestReportInput) (*domain.ReportJob, error) {
	const op = "reports.request"

	if !in.ReportType.IsValid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown report type: %q", in.ReportType))
	}
	if !in.Format.IsValid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown report format: %q", in.Format))
	}

	// Fail fast rather than accept a job that can never run.
	if err := s.queue.Ping(ctx); err != nil {
		return nil, domain.Internal(err, op, "report queue unavailable")
	}

	job := &domain.ReportJob{
		ID:             uuid.New(),
		InstitutionID:  in.InstitutionID,
		AcademicYearID: in.AcademicYearID,
		ReportType:     in.ReportType,
		Format:         in.Format,
		Filters:        in.Filters.Coerce(),
		Status:         domain.StatusQueued,
		Progress:       0,
		RequestedBy:    in.RequestedBy,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.CreateJob(ctx, schema, job); err != nil {
		return nil, domain.Internal(err, op, "failed to create report job")
	}

	payload, err := json.Marshal(ProcessPayload{
		JobID:         job.ID,
		Schema:        schema,
		InstitutionID: in.InstitutionID,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode queue payload")
	}

	if _, err := s.queue.Enqueue(ctx, JobTypeGenerateReport, payload, in.ReportType.Priority()); err != nil {
		// Don't leave a queued row nothing will ever pick up.
		if delErr := s.store.DeleteJob(ctx, schema, job.ID); delErr != nil {
			s.logger.Error("failed to delete orphaned report job",
				"job_id", job.ID,
				"error", delErr,
			)
		}
		return nil, domain.Internal(err, op, "failed to enqueue report job")
	}

	s.logger.Info("report job queued",
		"job_id", job.ID,
		"report_type", job.ReportType,
		"format", job.Format,
		"institution_id", job.InstitutionID,
	)
	return job, nil
}

// =============================================================================
// Status & Download
// =============================================================================

// GetJobStatus returns the job if it exists and belongs to the requester.
func (s *ReportService) GetJobStatus(ctx context.Context, schema string, jobID, institutionID, userID uuid.UUID) (*domain.ReportJob, error) {
	const op = "reports.status"
	return s.getOwnedJob(ctx, op, schema, jobID, institutionID, userID)
}

// DownloadResult carries a resolved report document.
type DownloadResult struct {
	Data        []byte
	FileName    string
	ContentType string
}

// DownloadReport resolves the stored document for a completed, unexpired job
// owned by the requester.
func (s *ReportService) DownloadReport(ctx context.Context, schema string, jobID, institutionID, userID uuid.UUID) (*DownloadResult, error) {
	const op = "reports.download"

	job, err := s.getOwnedJob(ctx, op, schema, jobID, institutionID, userID)
	if err != nil {
		return nil, err
	}

	if job.Status != domain.StatusCompleted {
		return nil, domain.Invalid(op, fmt.Sprintf("report is not ready for download (status: %s)", job.Status))
	}
	if job.IsExpired(time.Now().UTC()) {
		return nil, domain.Gone(op, "report download link has expired")
	}

	data, err := s.blobs.Load(ctx, job.FileURL)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, domain.NotFound(op, "report file", jobID.String())
		}
		return nil, domain.Internal(err, op, "failed to load report file")
	}

	return &DownloadResult{
		Data:        data,
		FileName:    job.FileName,
		ContentType: job.Format.ContentType(),
	}, nil
}

// getOwnedJob fetches a job and enforces the ownership invariant: both the
// institution and the original requester must match.
func (s *ReportService) getOwnedJob(ctx context.Context, op, schema string, jobID, institutionID, userID uuid.UUID) (*domain.ReportJob, error) {
	job, err := s.store.GetJob(ctx, schema, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, domain.NotFound(op, "report job", jobID.String())
		}
		return nil, domain.Internal(err, op, "failed to load report job")
	}
	if !job.OwnedBy(institutionID, userID) {
		return nil, domain.Forbidden(op, "access denied")
	}
	return job, nil
}

// =============================================================================
// History
// =============================================================================

// HistoryInput selects a page of the requester's past report jobs.
type HistoryInput struct {
	RequestedBy   uuid.UUID
	InstitutionID uuid.UUID
	ReportType    *domain.ReportType
	Status        *domain.ReportStatus
	Page          int
	Limit         int
}

// HistoryResult is one page of report history.
type HistoryResult struct {
	Jobs  []domain.ReportJob
	Total int64
	Page  int
	Limit int
}

// GetReportHistory returns the requester's jobs, newest first.
func (s *ReportService) GetReportHistory(ctx context.Context, schema string, in HistoryInput) (*HistoryResult, error) {
	const op = "reports.history"

	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 {
		in.Limit = 20
	}
	if in.Limit > 100 {
		in.Limit = 100
	}

	jobs, total, err := s.store.ListHistory(ctx, schema, repository.HistoryQuery{
		RequestedBy:   in.RequestedBy,
		InstitutionID: &in.InstitutionID,
		ReportType:    in.ReportType,
		Status:        in.Status,
		Page:          in.Page,
		Limit:         in.Limit,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list report history")
	}

	return &HistoryResult{
		Jobs:  jobs,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// =============================================================================
// Processing
// =============================================================================

// Progress milestones written to the job row during processing.
const (
	progressStarted     = 10
	progressGenerated   = 70
	progressCompleted   = 100
	progressFailedReset = 0
)

// ProcessReportJob is the worker entry point. It is idempotent per job id: a
// redelivered message fully regenerates the document and overwrites the same
// pointers. Returns an error only when the job was found but could not be
// brought to a terminal state recorded on its row.
func (s *ReportService) ProcessReportJob(ctx context.Context, payload ProcessPayload) error {
	started := time.Now().UTC()

	job, err := s.store.GetJob(ctx, payload.Schema, payload.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			// Deleted or bogus id; nothing to process and nothing to record.
			s.logger.Warn("report job missing, skipping", "job_id", payload.JobID, "schema", payload.Schema)
			return nil
		}
		return fmt.Errorf("load report job: %w", err)
	}

	status := domain.StatusProcessing
	if err := s.store.UpdateJob(ctx, payload.Schema, job.ID, repository.JobPatch{
		Status:     &status,
		Progress:   intPtr(progressStarted),
		ClearError: true,
		StartedAt:  &started,
	}); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	gen, ok := s.generators[job.ReportType]
	if !ok {
		return s.failJob(ctx, payload.Schema, job, fmt.Errorf("no generator registered for %q", job.ReportType))
	}

	ds, err := gen(ctx, s.db, job, generator.Context{
		Schema:    payload.Schema,
		ChunkSize: s.cfg.ChunkSize,
		MaxRows:   s.cfg.MaxRows,
	})
	if err != nil {
		return s.failJob(ctx, payload.Schema, job, fmt.Errorf("generate dataset: %w", err))
	}

	if ds.Truncated {
		s.logger.Warn("report dataset truncated at row cap",
			"job_id", job.ID,
			"report_type", job.ReportType,
			"max_rows", s.cfg.MaxRows,
		)
		metrics.ReportsTruncated.WithLabelValues(job.ReportType.String()).Inc()
	}

	if err := s.store.UpdateJob(ctx, payload.Schema, job.ID, repository.JobPatch{
		Progress: intPtr(progressGenerated),
	}); err != nil {
		return fmt.Errorf("mark job generated: %w", err)
	}

	data, err := report.Build(ctx, job, ds)
	if err != nil {
		return s.failJob(ctx, payload.Schema, job, fmt.Errorf("materialize %s: %w", job.Format, err))
	}

	locator, err := s.blobs.Store(ctx, payload.Schema, job, data)
	if err != nil {
		return s.failJob(ctx, payload.Schema, job, fmt.Errorf("store report file: %w", err))
	}

	completed := time.Now().UTC()
	expires := completed.Add(s.cfg.DownloadTTL)
	fileName := storage.ArtifactName(job)
	status = domain.StatusCompleted

	if err := s.store.UpdateJob(ctx, payload.Schema, job.ID, repository.JobPatch{
		Status:      &status,
		Progress:    intPtr(progressCompleted),
		FileURL:     &locator,
		FileName:    &fileName,
		ClearError:  true,
		CompletedAt: &completed,
		ExpiresAt:   &expires,
	}); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	metrics.JobCompleted(job.ReportType.String(), completed.Sub(started))
	metrics.ReportGenerated(job.ReportType.String(), job.Format.String(), len(ds.Rows), len(data))

	s.logger.Info("report job completed",
		"job_id", job.ID,
		"report_type", job.ReportType,
		"format", job.Format,
		"rows", len(ds.Rows),
		"size_bytes", len(data),
		"duration", completed.Sub(started),
	)
	return nil
}

// failJob records a terminal failure on the job row and returns the cause so
// the queue layer can mark its own row failed. The job itself is never
// retried automatically; a retry is a new job.
func (s *ReportService) failJob(ctx context.Context, schema string, job *domain.ReportJob, cause error) error {
	completed := time.Now().UTC()
	status := domain.StatusFailed
	message := cause.Error()
	empty := ""

	// File pointers are populated only on completed rows. A redelivered job
	// that completed once and fails now must not keep the stale pointer.
	if err := s.store.UpdateJob(ctx, schema, job.ID, repository.JobPatch{
		Status:       &status,
		Progress:     intPtr(progressFailedReset),
		ErrorMessage: &message,
		FileURL:      &empty,
		FileName:     &empty,
		CompletedAt:  &completed,
	}); err != nil {
		s.logger.Error("failed to record report job failure",
			"job_id", job.ID,
			"cause", cause,
			"error", err,
		)
	}

	metrics.JobFailed(job.ReportType.String())
	s.logger.Error("report job failed",
		"job_id", job.ID,
		"report_type", job.ReportType,
		"error", cause,
	)
	return cause
}

// =============================================================================
// Maintenance
// =============================================================================

// sweepBatchSize bounds how many expired jobs one sweep pass handles per
// schema.
const sweepBatchSize = 200

// SweepExpired removes stored artifacts for completed jobs past their
// download TTL, clearing the file pointer so the row is not revisited. Rows
// themselves are kept for history. Returns the number of artifacts removed.
func (s *ReportService) SweepExpired(ctx context.Context, schemas []string) (int, error) {
	now := time.Now().UTC()
	swept := 0

	for _, schema := range schemas {
		jobs, err := s.store.ListExpiredCompleted(ctx, schema, now, sweepBatchSize)
		if err != nil {
			return swept, fmt.Errorf("list expired jobs in %s: %w", schema, err)
		}

		for _, job := range jobs {
			if err := s.blobs.Remove(ctx, job.FileURL); err != nil {
				s.logger.Error("failed to remove expired report artifact",
					"job_id", job.ID,
					"schema", schema,
					"error", err,
				)
				continue
			}

			empty := ""
			if err := s.store.UpdateJob(ctx, schema, job.ID, repository.JobPatch{
				FileURL: &empty,
			}); err != nil {
				s.logger.Error("failed to clear swept file pointer",
					"job_id", job.ID,
					"schema", schema,
					"error", err,
				)
				continue
			}

			swept++
			metrics.ArtifactsSweptTotal.Inc()
		}
	}

	if swept > 0 {
		s.logger.Info("expired report artifacts swept", "count", swept)
	}
	return swept, nil
}

func intPtr(v int) *int {
	return &v
}
