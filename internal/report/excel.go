package report

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/campushq/reportworks/internal/domain"
)

// =============================================================================
// Excel Materializer
// =============================================================================

const (
	excelSheetName = "Report"

	// Column widths in Excel character units.
	excelMinColWidth = 12.0
	excelMaxColWidth = 45.0
)

// ExcelMaterializer renders datasets as .xlsx workbooks.
type ExcelMaterializer struct{}

// NewExcelMaterializer creates an Excel materializer.
func NewExcelMaterializer() *ExcelMaterializer {
	return &ExcelMaterializer{}
}

// Format returns the output format of this materializer.
func (m *ExcelMaterializer) Format() domain.ReportFormat {
	return domain.ReportFormatExcel
}

// Generate renders the dataset as a single-sheet workbook: a merged title
// row, a styled header row, then the data rows in dataset order.
func (m *ExcelMaterializer) Generate(ctx context.Context, job *domain.ReportJob, ds *domain.Dataset, w io.Writer) (int64, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", excelSheetName)

	if err := m.writeTitle(f, ds); err != nil {
		return 0, err
	}
	if err := m.writeHeaders(f, ds); err != nil {
		return 0, err
	}
	if err := m.writeRows(ctx, f, ds); err != nil {
		return 0, err
	}
	if err := m.sizeColumns(f, ds); err != nil {
		return 0, err
	}

	// Keep title and headers visible while scrolling.
	if err := f.SetPanes(excelSheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      2,
		TopLeftCell: "A3",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return 0, fmt.Errorf("freeze header rows: %w", err)
	}

	return f.WriteTo(w)
}

func (m *ExcelMaterializer) writeTitle(f *excelize.File, ds *domain.Dataset) error {
	if err := f.SetCellValue(excelSheetName, "A1", ds.Title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	if len(ds.Headers) > 1 {
		end, err := excelize.CoordinatesToCellName(len(ds.Headers), 1)
		if err != nil {
			return fmt.Errorf("title span: %w", err)
		}
		if err := f.MergeCell(excelSheetName, "A1", end); err != nil {
			return fmt.Errorf("merge title: %w", err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("title style: %w", err)
	}
	if err := f.SetCellStyle(excelSheetName, "A1", "A1", style); err != nil {
		return fmt.Errorf("apply title style: %w", err)
	}
	return f.SetRowHeight(excelSheetName, 1, 24)
}

func (m *ExcelMaterializer) writeHeaders(f *excelize.File, ds *domain.Dataset) error {
	for i, header := range ds.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(excelSheetName, cell, header); err != nil {
			return fmt.Errorf("write header %q: %w", header, err)
		}
	}

	if len(ds.Headers) == 0 {
		return nil
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"305496"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
			WrapText:   true,
		},
		Border: []excelize.Border{
			{Type: "bottom", Style: 2, Color: "1F3864"},
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	end, err := excelize.CoordinatesToCellName(len(ds.Headers), 2)
	if err != nil {
		return fmt.Errorf("header span: %w", err)
	}
	return f.SetCellStyle(excelSheetName, "A2", end, style)
}

func (m *ExcelMaterializer) writeRows(ctx context.Context, f *excelize.File, ds *domain.Dataset) error {
	for rowIdx, row := range ds.Rows {
		// Large datasets take a while; honor cancellation between batches.
		if rowIdx%500 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+3)
			if err != nil {
				return fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(excelSheetName, cell, value); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	if note := truncationNote(ds); note != "" {
		cell, err := excelize.CoordinatesToCellName(1, len(ds.Rows)+4)
		if err != nil {
			return fmt.Errorf("note cell: %w", err)
		}
		if err := f.SetCellValue(excelSheetName, cell, note); err != nil {
			return fmt.Errorf("write truncation note: %w", err)
		}
	}
	return nil
}

// sizeColumns widens each column to fit its header, clamped to a sane range.
func (m *ExcelMaterializer) sizeColumns(f *excelize.File, ds *domain.Dataset) error {
	for i, header := range ds.Headers {
		width := float64(len(header)) + 4
		if width < excelMinColWidth {
			width = excelMinColWidth
		}
		if width > excelMaxColWidth {
			width = excelMaxColWidth
		}

		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(excelSheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return nil
}
