package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/reportworks/internal/domain"
	"github.com/campushq/reportworks/internal/repository"
	"github.com/campushq/reportworks/internal/service"
	"github.com/campushq/reportworks/internal/worker"
)

// emptyJobStore satisfies the service's store interface with no jobs in it,
// which is all the payload-validation paths need.
type emptyJobStore struct{}

func (emptyJobStore) CreateJob(context.Context, string, *domain.ReportJob) error { return nil }

func (emptyJobStore) GetJob(context.Context, string, uuid.UUID) (*domain.ReportJob, error) {
	return nil, repository.ErrJobNotFound
}

func (emptyJobStore) UpdateJob(context.Context, string, uuid.UUID, repository.JobPatch) error {
	return nil
}

func (emptyJobStore) DeleteJob(context.Context, string, uuid.UUID) error { return nil }

func (emptyJobStore) ListHistory(context.Context, string, repository.HistoryQuery) ([]domain.ReportJob, int64, error) {
	return nil, 0, nil
}

func (emptyJobStore) ListExpiredCompleted(context.Context, string, time.Time, int) ([]domain.ReportJob, error) {
	return nil, nil
}

func newHandler(t *testing.T) *GenerateReportHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reports := service.NewReportService(emptyJobStore{}, nil, nil, nil, nil, service.ReportServiceConfig{}, logger)
	return NewGenerateReportHandler(reports, logger)
}

func TestGenerateReportHandler_Type(t *testing.T) {
	h := newHandler(t)
	assert.Equal(t, service.JobTypeGenerateReport, h.Type())
}

func TestGenerateReportHandler_BadPayloadIsPermanent(t *testing.T) {
	h := newHandler(t)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("not json at all")},
		{"empty object", []byte(`{}`)},
		{"missing schema", mustPayload(t, service.ProcessPayload{JobID: uuid.New()})},
		{"missing job id", mustPayload(t, service.ProcessPayload{Schema: "tenant_a"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), tt.payload)
			require.Error(t, err)
			assert.True(t, worker.IsPermanent(err))
		})
	}
}

func TestGenerateReportHandler_VanishedJobSucceeds(t *testing.T) {
	h := newHandler(t)

	payload := mustPayload(t, service.ProcessPayload{
		JobID:  uuid.New(),
		Schema: "tenant_a",
	})
	assert.NoError(t, h.Handle(context.Background(), payload),
		"a deleted job drains quietly instead of failing the queue row")
}

func mustPayload(t *testing.T, p service.ProcessPayload) []byte {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return b
}
