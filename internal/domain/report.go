// Package domain contains core business types and interfaces.
//
// This file defines the report job entity, the closed set of report types,
// output formats, and the job status state machine used by the asynchronous
// report generation pipeline.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Report Type
// =============================================================================

// ReportType identifies one of the supported report generators.
type ReportType string

const (
	ReportTypeStudentList        ReportType = "student_list"
	ReportTypeAttendanceRegister ReportType = "attendance_register"
	ReportTypeFeeCollection      ReportType = "fee_collection"
	ReportTypeFeeDues            ReportType = "fee_dues"
	ReportTypeExamResults        ReportType = "exam_results"
	ReportTypeExamToppers        ReportType = "exam_toppers"
	ReportTypeStudentStrength    ReportType = "student_strength"
)

// AllReportTypes returns the closed set of report types in a stable order.
func AllReportTypes() []ReportType {
	return []ReportType{
		ReportTypeStudentList,
		ReportTypeAttendanceRegister,
		ReportTypeFeeCollection,
		ReportTypeFeeDues,
		ReportTypeExamResults,
		ReportTypeExamToppers,
		ReportTypeStudentStrength,
	}
}

// String returns the string representation of the report type.
func (t ReportType) String() string {
	return string(t)
}

// IsValid returns true if the type is a recognized value.
func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeStudentList, ReportTypeAttendanceRegister,
		ReportTypeFeeCollection, ReportTypeFeeDues,
		ReportTypeExamResults, ReportTypeExamToppers,
		ReportTypeStudentStrength:
		return true
	}
	return false
}

// Queue priority constants. Higher values are dequeued first.
const (
	PriorityNormal = 10
	PriorityMedium = 15
	PriorityHigh   = 20
)

// Priority returns the queue priority for the report type. Heavy aggregation
// reports (exam results, toppers) get equal-or-higher urgency than cheap
// full-dump reports so neither class starves the other.
func (t ReportType) Priority() int {
	switch t {
	case ReportTypeExamResults, ReportTypeExamToppers:
		return PriorityHigh
	case ReportTypeAttendanceRegister, ReportTypeFeeCollection, ReportTypeFeeDues:
		return PriorityMedium
	default:
		return PriorityNormal
	}
}

// =============================================================================
// Report Format
// =============================================================================

// ReportFormat represents the output format of a generated report.
type ReportFormat string

const (
	// ReportFormatExcel generates an .xlsx spreadsheet.
	ReportFormatExcel ReportFormat = "excel"

	// ReportFormatPDF generates a PDF document.
	ReportFormatPDF ReportFormat = "pdf"
)

// String returns the string representation of the format.
func (f ReportFormat) String() string {
	return string(f)
}

// IsValid returns true if the format is a recognized value.
func (f ReportFormat) IsValid() bool {
	switch f {
	case ReportFormatExcel, ReportFormatPDF:
		return true
	}
	return false
}

// ContentType returns the MIME content type for the format.
func (f ReportFormat) ContentType() string {
	switch f {
	case ReportFormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ReportFormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the file extension for the format, without the dot.
func (f ReportFormat) FileExtension() string {
	switch f {
	case ReportFormatExcel:
		return "xlsx"
	case ReportFormatPDF:
		return "pdf"
	default:
		return "bin"
	}
}

// =============================================================================
// Report Status
// =============================================================================

// ReportStatus tracks a report job through its lifecycle.
type ReportStatus string

const (
	StatusQueued     ReportStatus = "queued"
	StatusProcessing ReportStatus = "processing"
	StatusCompleted  ReportStatus = "completed"
	StatusFailed     ReportStatus = "failed"
)

// String returns the string representation of the status.
func (s ReportStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s ReportStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed.
func (s ReportStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo returns true if the transition is allowed by the job state
// machine: queued -> processing -> {completed, failed}. A retry is a new job,
// never a transition back out of a terminal state.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// =============================================================================
// Report Job
// =============================================================================

// DownloadTTL is how long a completed report remains downloadable.
const DownloadTTL = 24 * time.Hour

// ReportJob is one request to produce a report, tracked through the status
// lifecycle. Rows live in the tenant schema's report_jobs table and are only
// mutated by the background processor after creation.
type ReportJob struct {
	ID             uuid.UUID
	InstitutionID  uuid.UUID
	AcademicYearID *uuid.UUID
	ReportType     ReportType
	Format         ReportFormat
	Filters        Filters
	Status         ReportStatus
	Progress       int    // 0-100
	FileURL        string // opaque storage locator, set only on completion
	FileName       string // client-facing download name
	ErrorMessage   string
	RequestedBy    uuid.UUID
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// IsExpired returns true if the completed result is past its download TTL.
func (j *ReportJob) IsExpired(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// OwnedBy returns true if the job belongs to the given tenant and requester.
// Both must match; a correct job id alone grants nothing.
func (j *ReportJob) OwnedBy(institutionID, userID uuid.UUID) bool {
	return j.InstitutionID == institutionID && j.RequestedBy == userID
}

// =============================================================================
// Dataset
// =============================================================================

// Dataset is the generator-to-materializer contract: a titled table whose
// cells are fully rendered strings. Materializers must not reformat values.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string

	// Truncated is set when the generator stopped at the configured row cap.
	Truncated bool
}
