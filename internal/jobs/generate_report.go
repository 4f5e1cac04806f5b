// Package jobs contains the queue message handlers.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/campushq/reportworks/internal/service"
	"github.com/campushq/reportworks/internal/worker"
)

// GenerateReportHandler bridges the queue to the report service's processing
// entry point.
type GenerateReportHandler struct {
	reports *service.ReportService
	logger  *slog.Logger
}

// NewGenerateReportHandler creates the handler for report generation
// messages.
func NewGenerateReportHandler(reports *service.ReportService, logger *slog.Logger) *GenerateReportHandler {
	return &GenerateReportHandler{
		reports: reports,
		logger:  logger,
	}
}

// Type returns the queue message type this handler processes.
func (h *GenerateReportHandler) Type() string {
	return service.JobTypeGenerateReport
}

// Handle unmarshals the payload and runs report processing. A payload that
// cannot be decoded is permanent: redelivering it can never succeed.
// Processing errors are already recorded on the job row by the service, so
// they come back permanent too; the queue row just mirrors the outcome.
func (h *GenerateReportHandler) Handle(ctx context.Context, payload []byte) error {
	var p service.ProcessPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("decode payload: %w", err))
	}
	if p.JobID == uuid.Nil || p.Schema == "" {
		return worker.NewPermanentError(fmt.Errorf("payload missing job id or schema"))
	}

	if err := h.reports.ProcessReportJob(ctx, p); err != nil {
		return worker.NewPermanentError(err)
	}
	return nil
}
