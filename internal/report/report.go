// Package report materializes tabular report datasets into downloadable
// documents.
//
// This package defines a Materializer interface implemented by
// ExcelMaterializer and PDFMaterializer. A dataset is an ordered grid of
// pre-formatted strings; materializers lay it out but never reinterpret
// cell values.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/campushq/reportworks/internal/domain"
)

// Materializer renders a dataset into one output format.
type Materializer interface {
	// Generate renders the dataset and writes the document to w.
	// Returns the number of bytes written and any error.
	Generate(ctx context.Context, job *domain.ReportJob, ds *domain.Dataset, w io.Writer) (int64, error)

	// Format returns the output format of this materializer.
	Format() domain.ReportFormat
}

// Build renders a dataset in the format requested on the job and returns the
// document bytes.
func Build(ctx context.Context, job *domain.ReportJob, ds *domain.Dataset) ([]byte, error) {
	var m Materializer
	switch job.Format {
	case domain.ReportFormatExcel:
		m = NewExcelMaterializer()
	case domain.ReportFormatPDF:
		m = NewPDFMaterializer()
	default:
		return nil, fmt.Errorf("unsupported report format: %q", job.Format)
	}

	var buf bytes.Buffer
	if _, err := m.Generate(ctx, job, ds, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncationNote is appended below the data when the row cap cut the
// dataset short.
func truncationNote(ds *domain.Dataset) string {
	if !ds.Truncated {
		return ""
	}
	return fmt.Sprintf("Showing first %d rows. Narrow the filters to see the rest.", len(ds.Rows))
}

// TruncateText shortens text to a maximum length, adding ellipsis if needed.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}

// FormatDateTime formats a generation timestamp for display in documents.
func FormatDateTime(t time.Time) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}
