package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/campushq/reportworks/internal/domain"
)

// =============================================================================
// PDF Materializer
// =============================================================================

// PDFMaterializer renders datasets as tabular PDF documents.
type PDFMaterializer struct {
	// Page dimensions (A4 landscape in mm)
	pageWidth  float64
	pageHeight float64
	margin     float64

	// Content area
	contentWidth float64
}

// NewPDFMaterializer creates a PDF materializer. Reports are laid out in
// landscape because most datasets are wider than they are tall.
func NewPDFMaterializer() *PDFMaterializer {
	margin := 12.0
	pageWidth := 297.0 // A4 landscape width in mm
	return &PDFMaterializer{
		pageWidth:    pageWidth,
		pageHeight:   210.0, // A4 landscape height in mm
		margin:       margin,
		contentWidth: pageWidth - (2 * margin),
	}
}

// Format returns the output format of this materializer.
func (m *PDFMaterializer) Format() domain.ReportFormat {
	return domain.ReportFormatPDF
}

// Generate renders the dataset as a PDF table: a title block, a repeated
// header row, then the data rows in dataset order.
func (m *PDFMaterializer) Generate(ctx context.Context, job *domain.ReportJob, ds *domain.Dataset, w io.Writer) (int64, error) {
	pdf := fpdf.New("L", "mm", "A4", "")

	pdf.SetTitle(ds.Title, true)
	pdf.SetCreator("CampusHQ Reports", true)
	pdf.SetAutoPageBreak(true, 18)

	generatedAt := time.Now()
	pdf.SetFooterFunc(func() {
		m.addFooter(pdf, generatedAt)
	})

	pdf.AddPage()
	m.addTitle(pdf, ds)

	colWidths := m.columnWidths(ds)
	m.addHeaderRow(pdf, ds, colWidths)

	for i, row := range ds.Rows {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		// Repeat the header after a page break so rows stay readable.
		if pdf.GetY() > m.pageHeight-30 {
			pdf.AddPage()
			m.addHeaderRow(pdf, ds, colWidths)
		}
		m.addDataRow(pdf, row, colWidths, i%2 == 1)
	}

	if note := truncationNote(ds); note != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(107, 114, 128)
		pdf.Cell(0, 6, note)
	}

	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("pdf generation error: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("pdf output error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func (m *PDFMaterializer) addTitle(pdf *fpdf.Fpdf, ds *domain.Dataset) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(30, 58, 95)
	pdf.Cell(0, 10, ds.Title)
	pdf.Ln(12)

	pdf.SetDrawColor(30, 58, 95)
	pdf.SetLineWidth(0.5)
	pdf.Line(m.margin, pdf.GetY(), m.pageWidth-m.margin, pdf.GetY())
	pdf.Ln(6)

	pdf.SetTextColor(31, 41, 55)
}

// columnWidths distributes the content width across columns, weighted by
// header length so narrow columns like "Roll No" don't waste space.
func (m *PDFMaterializer) columnWidths(ds *domain.Dataset) []float64 {
	n := len(ds.Headers)
	if n == 0 {
		return nil
	}

	weights := make([]float64, n)
	var total float64
	for i, h := range ds.Headers {
		w := float64(len(h))
		if w < 8 {
			w = 8
		}
		weights[i] = w
		total += w
	}

	widths := make([]float64, n)
	for i, w := range weights {
		widths[i] = m.contentWidth * w / total
	}
	return widths
}

func (m *PDFMaterializer) addHeaderRow(pdf *fpdf.Fpdf, ds *domain.Dataset, widths []float64) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(48, 84, 150)
	pdf.SetTextColor(255, 255, 255)

	for i, header := range ds.Headers {
		pdf.CellFormat(widths[i], 8, m.fitCell(header, widths[i]), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(31, 41, 55)
}

func (m *PDFMaterializer) addDataRow(pdf *fpdf.Fpdf, row []string, widths []float64, shaded bool) {
	pdf.SetFont("Helvetica", "", 9)
	if shaded {
		pdf.SetFillColor(243, 244, 246)
	} else {
		pdf.SetFillColor(255, 255, 255)
	}

	for i := range widths {
		var value string
		if i < len(row) {
			value = row[i]
		}
		pdf.CellFormat(widths[i], 7, m.fitCell(value, widths[i]), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

// fitCell truncates a value to roughly fit its column width. Helvetica at
// 9pt averages just under 2mm per character.
func (m *PDFMaterializer) fitCell(value string, width float64) string {
	maxChars := int(width / 1.9)
	if maxChars < 4 {
		maxChars = 4
	}
	return TruncateText(value, maxChars)
}

func (m *PDFMaterializer) addFooter(pdf *fpdf.Fpdf, generatedAt time.Time) {
	pdf.SetY(-14)

	pdf.SetDrawColor(229, 231, 235)
	pdf.Line(m.margin, pdf.GetY()-2, m.pageWidth-m.margin, pdf.GetY()-2)

	pdf.SetTextColor(107, 114, 128)
	pdf.SetFont("Helvetica", "", 8)

	pdf.Cell(0, 10, "Generated: "+FormatDateTime(generatedAt))

	pdf.SetX(-m.margin - 30)
	pdf.CellFormat(30, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
}
