// Package generator produces tabular report datasets from tenant data.
//
// One generator function exists per report type. Generators read source rows
// in fixed-size pages so a large tenant never forces the full result set
// into memory at once, respect the configured row cap, and emit
// fully-rendered string cells. Row formatting (currency, percentages,
// ranks) happens here; materializers only lay the grid out.
package generator

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/campushq/reportworks/internal/domain"
)

// Context carries the per-run generation parameters.
type Context struct {
	Schema    string // tenant schema name
	ChunkSize int    // page size for source queries
	MaxRows   int    // hard cap on dataset rows
}

// Func is the contract every report generator implements. The database
// handle is shared; tenant isolation comes from schema-qualified queries.
type Func func(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error)

// Registry maps every supported report type to its generator.
func Registry() map[domain.ReportType]Func {
	return map[domain.ReportType]Func{
		domain.ReportTypeStudentList:        StudentList,
		domain.ReportTypeAttendanceRegister: AttendanceRegister,
		domain.ReportTypeFeeCollection:      FeeCollection,
		domain.ReportTypeFeeDues:            FeeDues,
		domain.ReportTypeExamResults:        ExamResults,
		domain.ReportTypeExamToppers:        ExamToppers,
		domain.ReportTypeStudentStrength:    StudentStrength,
	}
}

var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// tableRef schema-qualifies a tenant table name. The schema arrives from a
// trusted header but is validated anyway before interpolation.
func tableRef(schema, table string) (string, error) {
	if !schemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("invalid tenant schema name: %q", schema)
	}
	return fmt.Sprintf("%q.%s", schema, table), nil
}

// forEachPage runs fn with successive limit/offset windows until a page
// comes back short or fn reports it is done. fn returns the number of source
// rows the page produced and whether to keep going.
func forEachPage(ctx context.Context, chunkSize int, fn func(limit, offset int) (int, bool, error)) error {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	for offset := 0; ; offset += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, more, err := fn(chunkSize, offset)
		if err != nil {
			return err
		}
		if !more || n < chunkSize {
			return nil
		}
	}
}

// appendRow adds a row unless the cap is already hit, flipping the
// truncation flag instead. Returns false once the dataset is full.
func appendRow(ds *domain.Dataset, gc Context, row []string) bool {
	if gc.MaxRows > 0 && len(ds.Rows) >= gc.MaxRows {
		ds.Truncated = true
		return false
	}
	ds.Rows = append(ds.Rows, row)
	return true
}

// money renders a currency amount with fixed two decimal places.
func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// percent renders obtained/max as a two-decimal percentage.
func percent(obtained, max float64) string {
	if max <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", obtained/max*100)
}
