// Package handler contains the HTTP endpoints for the report pipeline.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/campushq/reportworks/internal/domain"
	"github.com/campushq/reportworks/internal/middleware"
	"github.com/campushq/reportworks/internal/service"
)

// ReportHandler serves the report request, status, download, and history
// endpoints.
type ReportHandler struct {
	reports *service.ReportService
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports *service.ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger,
	}
}

// =============================================================================
// Request
// =============================================================================

type requestReportBody struct {
	ReportType     string         `json:"report_type"`
	Format         string         `json:"format"`
	Filters        domain.Filters `json:"filters"`
	AcademicYearID string         `json:"academic_year_id,omitempty"`
}

type requestReportResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// Request handles POST /reports/requests: validates the submission and
// queues a new report job, responding 202 immediately.
func (h *ReportHandler) Request(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("reports.request", "missing identity"))
		return
	}

	var body requestReportBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("reports.request", "invalid JSON body"))
		return
	}

	reportType := domain.ReportType(body.ReportType)
	format := domain.ReportFormat(body.Format)
	if err := validateRequest(reportType, format, body.Filters); err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	var academicYearID *uuid.UUID
	if body.AcademicYearID != "" {
		parsed, err := uuid.Parse(body.AcademicYearID)
		if err != nil {
			ValidationErrorResponse(w, r, h.logger,
				domain.NewValidationError("reports.request", "academic_year_id", "must be a valid UUID"))
			return
		}
		academicYearID = &parsed
	}

	job, err := h.reports.RequestReport(r.Context(), id.Schema, service.RequestReportInput{
		InstitutionID:  id.InstitutionID,
		AcademicYearID: academicYearID,
		ReportType:     reportType,
		Format:         format,
		Filters:        body.Filters,
		RequestedBy:    id.UserID,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusAccepted, requestReportResponse{
		JobID:  job.ID,
		Status: job.Status.String(),
	})
}

// =============================================================================
// Status
// =============================================================================

type jobStatusResponse struct {
	JobID        uuid.UUID  `json:"job_id"`
	ReportType   string     `json:"report_type"`
	Format       string     `json:"format"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	FileName     string     `json:"file_name,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Status handles GET /reports/requests/{jobID}/status.
func (h *ReportHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("reports.status", "missing identity"))
		return
	}

	jobID, err := uuid.Parse(r.PathValue("jobID"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("reports.status", "invalid job id"))
		return
	}

	job, err := h.reports.GetJobStatus(r.Context(), id.Schema, jobID, id.InstitutionID, id.UserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, toStatusResponse(job))
}

func toStatusResponse(job *domain.ReportJob) jobStatusResponse {
	return jobStatusResponse{
		JobID:        job.ID,
		ReportType:   job.ReportType.String(),
		Format:       job.Format.String(),
		Status:       job.Status.String(),
		Progress:     job.Progress,
		FileName:     job.FileName,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ExpiresAt:    job.ExpiresAt,
	}
}

// =============================================================================
// Download
// =============================================================================

// Download handles GET /reports/requests/{jobID}/download, streaming the
// stored document with its content type and attachment name.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("reports.download", "missing identity"))
		return
	}

	jobID, err := uuid.Parse(r.PathValue("jobID"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("reports.download", "invalid job id"))
		return
	}

	result, err := h.reports.DownloadReport(r.Context(), id.Schema, jobID, id.InstitutionID, id.UserID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		h.logger.Error("failed to write report download", "job_id", jobID, "error", err)
	}
}

// =============================================================================
// History
// =============================================================================

type historyResponse struct {
	Jobs  []jobStatusResponse `json:"jobs"`
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

// History handles GET /reports/history with optional report_type, status,
// page, and limit query parameters.
func (h *ReportHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("reports.history", "missing identity"))
		return
	}

	in := service.HistoryInput{
		RequestedBy:   id.UserID,
		InstitutionID: id.InstitutionID,
	}

	q := r.URL.Query()
	if v := q.Get("report_type"); v != "" {
		rt := domain.ReportType(v)
		if !rt.IsValid() {
			ErrorResponse(w, r, h.logger, domain.Invalid("reports.history", "unknown report_type filter"))
			return
		}
		in.ReportType = &rt
	}
	if v := q.Get("status"); v != "" {
		st := domain.ReportStatus(v)
		if !st.IsValid() {
			ErrorResponse(w, r, h.logger, domain.Invalid("reports.history", "unknown status filter"))
			return
		}
		in.Status = &st
	}
	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			in.Page = page
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			in.Limit = limit
		}
	}

	result, err := h.reports.GetReportHistory(r.Context(), id.Schema, in)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := historyResponse{
		Jobs:  make([]jobStatusResponse, 0, len(result.Jobs)),
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	}
	for i := range result.Jobs {
		out.Jobs = append(out.Jobs, toStatusResponse(&result.Jobs[i]))
	}
	respondJSON(w, h.logger, http.StatusOK, out)
}

// =============================================================================
// Types
// =============================================================================

type reportTypeInfo struct {
	ReportType string `json:"report_type"`
	Priority   int    `json:"priority"`
}

// Types handles GET /reports/types, listing the supported report types.
func (h *ReportHandler) Types(w http.ResponseWriter, r *http.Request) {
	types := make([]reportTypeInfo, 0, len(domain.AllReportTypes()))
	for _, t := range domain.AllReportTypes() {
		types = append(types, reportTypeInfo{
			ReportType: t.String(),
			Priority:   t.Priority(),
		})
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"report_types": types,
		"formats":      []string{domain.ReportFormatExcel.String(), domain.ReportFormatPDF.String()},
	})
}
