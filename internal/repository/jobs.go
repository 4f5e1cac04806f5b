package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campushq/reportworks/internal/domain"
	"github.com/google/uuid"
)

const jobColumns = `id, institution_id, academic_year_id, report_type, format, filters,
	status, progress, file_url, file_name, error_message, requested_by,
	started_at, completed_at, expires_at, created_at`

// CreateJob inserts a new report job into the tenant schema.
func (s *Store) CreateJob(ctx context.Context, schema string, job *domain.ReportJob) error {
	table, err := jobsTable(schema)
	if err != nil {
		return err
	}

	var academicYearID any
	if job.AcademicYearID != nil {
		academicYearID = job.AcademicYearID.String()
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		table, jobColumns)

	_, err = s.db.ExecContext(ctx, query,
		job.ID.String(),
		job.InstitutionID.String(),
		academicYearID,
		job.ReportType.String(),
		job.Format.String(),
		job.Filters.Coerce(),
		job.Status.String(),
		job.Progress,
		nullableString(job.FileURL),
		nullableString(job.FileName),
		nullableString(job.ErrorMessage),
		job.RequestedBy.String(),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.ExpiresAt),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetJob fetches a report job by id from the tenant schema.
// Returns ErrJobNotFound if no row exists.
func (s *Store) GetJob(ctx context.Context, schema string, id uuid.UUID) (*domain.ReportJob, error) {
	table, err := jobsTable(schema)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, jobColumns, table)
	row := s.db.QueryRowContext(ctx, query, id.String())

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return job, nil
}

// JobPatch is a partial update of a report job. Nil fields are left
// untouched; ClearError resets error_message to NULL.
type JobPatch struct {
	Status       *domain.ReportStatus
	Progress     *int
	FileURL      *string
	FileName     *string
	ErrorMessage *string
	ClearError   bool
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExpiresAt    *time.Time
}

// UpdateJob applies a partial field patch to a report job.
func (s *Store) UpdateJob(ctx context.Context, schema string, id uuid.UUID, patch JobPatch) error {
	table, err := jobsTable(schema)
	if err != nil {
		return err
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", patch.Status.String())
	}
	if patch.Progress != nil {
		add("progress", *patch.Progress)
	}
	if patch.FileURL != nil {
		add("file_url", *patch.FileURL)
	}
	if patch.FileName != nil {
		add("file_name", *patch.FileName)
	}
	if patch.ClearError {
		sets = append(sets, "error_message = NULL")
	} else if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}
	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.ExpiresAt != nil {
		add("expires_at", *patch.ExpiresAt)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id.String())
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		table, strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a report job row. Used only to avoid orphaned rows when
// enqueueing fails after creation.
func (s *Store) DeleteJob(ctx context.Context, schema string, id uuid.UUID) error {
	table, err := jobsTable(schema)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
	if _, err := s.db.ExecContext(ctx, query, id.String()); err != nil {
		return fmt.Errorf("delete report job: %w", err)
	}
	return nil
}

// HistoryQuery selects a page of a requester's report jobs.
type HistoryQuery struct {
	RequestedBy   uuid.UUID
	InstitutionID *uuid.UUID
	ReportType    *domain.ReportType
	Status        *domain.ReportStatus
	Page          int // 1-based
	Limit         int
}

// ListHistory returns a page of report jobs, newest first, with the total
// count of matching rows.
func (s *Store) ListHistory(ctx context.Context, schema string, q HistoryQuery) ([]domain.ReportJob, int64, error) {
	table, err := jobsTable(schema)
	if err != nil {
		return nil, 0, err
	}

	where := []string{"requested_by = $1"}
	args := []any{q.RequestedBy.String()}
	addFilter := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if q.InstitutionID != nil {
		addFilter("institution_id", q.InstitutionID.String())
	}
	if q.ReportType != nil {
		addFilter("report_type", q.ReportType.String())
	}
	if q.Status != nil {
		addFilter("status", q.Status.String())
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count report history: %w", err)
	}

	offset := (q.Page - 1) * q.Limit
	args = append(args, q.Limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, table, whereClause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list report history: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ReportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan report job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, total, rows.Err()
}

// ListExpiredCompleted returns completed jobs whose download TTL has passed
// and which still point at a stored artifact. Used by the cleanup sweep.
func (s *Store) ListExpiredCompleted(ctx context.Context, schema string, now time.Time, limit int) ([]domain.ReportJob, error) {
	table, err := jobsTable(schema)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		  AND file_url IS NOT NULL AND file_url != ''
		ORDER BY expires_at ASC LIMIT $3`, jobColumns, table)

	rows, err := s.db.QueryContext(ctx, query, domain.StatusCompleted.String(), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ReportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*domain.ReportJob, error) {
	var (
		job            domain.ReportJob
		id             string
		institutionID  string
		academicYearID sql.NullString
		reportType     string
		format         string
		status         string
		fileURL        sql.NullString
		fileName       sql.NullString
		errorMessage   sql.NullString
		requestedBy    string
		startedAt      sql.NullTime
		completedAt    sql.NullTime
		expiresAt      sql.NullTime
	)

	err := sc.Scan(
		&id, &institutionID, &academicYearID, &reportType, &format,
		&job.Filters, &status, &job.Progress, &fileURL, &fileName,
		&errorMessage, &requestedBy, &startedAt, &completedAt, &expiresAt,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	if job.InstitutionID, err = uuid.Parse(institutionID); err != nil {
		return nil, fmt.Errorf("parse institution id: %w", err)
	}
	if job.RequestedBy, err = uuid.Parse(requestedBy); err != nil {
		return nil, fmt.Errorf("parse requester id: %w", err)
	}
	if academicYearID.Valid {
		yearID, err := uuid.Parse(academicYearID.String)
		if err != nil {
			return nil, fmt.Errorf("parse academic year id: %w", err)
		}
		job.AcademicYearID = &yearID
	}

	job.ReportType = domain.ReportType(reportType)
	job.Format = domain.ReportFormat(format)
	job.Status = domain.ReportStatus(status)
	job.FileURL = fileURL.String
	job.FileName = fileName.String
	job.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		job.ExpiresAt = &t
	}
	return &job, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
