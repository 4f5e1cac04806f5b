package generator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/campushq/reportworks/internal/domain"
)

// AttendanceRegister produces the day-by-day attendance log, optionally
// narrowed by class, section, calendar month, date range, or attendance
// status.
func AttendanceRegister(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error) {
	attendance, err := tableRef(gc.Schema, "attendance_records")
	if err != nil {
		return nil, err
	}
	students, err := tableRef(gc.Schema, "students")
	if err != nil {
		return nil, err
	}
	classes, err := tableRef(gc.Schema, "classes")
	if err != nil {
		return nil, err
	}
	sections, err := tableRef(gc.Schema, "sections")
	if err != nil {
		return nil, err
	}

	where := []string{"s.institution_id = $1"}
	args := []any{job.InstitutionID.String()}
	addClause := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	filters := job.Filters.Coerce()
	if id, ok := filters.UUID(domain.FilterClassID); ok {
		addClause("a.class_id = $%d", id.String())
	}
	if id, ok := filters.UUID(domain.FilterSectionID); ok {
		addClause("a.section_id = $%d", id.String())
	}
	if from, to, ok := monthWindow(filters); ok {
		addClause("a.attendance_date >= $%d", from)
		addClause("a.attendance_date <= $%d", to)
	}
	if v := filters.String(domain.FilterDateFrom); v != "" {
		addClause("a.attendance_date >= $%d", v)
	}
	if v := filters.String(domain.FilterDateTo); v != "" {
		addClause("a.attendance_date <= $%d", v)
	}
	if v := filters.String(domain.FilterStatus); v != "" {
		addClause("a.status = $%d", v)
	}

	query := fmt.Sprintf(`SELECT a.attendance_date, s.admission_no, s.first_name, s.last_name,
			c.name, sec.name, a.status, a.remarks
		FROM %s a
		JOIN %s s ON s.id = a.student_id
		JOIN %s c ON c.id = a.class_id
		JOIN %s sec ON sec.id = a.section_id
		WHERE %s
		ORDER BY a.attendance_date ASC, c.name ASC, sec.name ASC, a.id ASC
		LIMIT $%d OFFSET $%d`,
		attendance, students, classes, sections, strings.Join(where, " AND "), len(args)+1, len(args)+2)

	ds := &domain.Dataset{
		Title:   "Attendance Register",
		Headers: []string{"Date", "Admission No", "Student Name", "Class", "Section", "Status", "Remarks"},
	}

	err = forEachPage(ctx, gc.ChunkSize, func(limit, offset int) (int, bool, error) {
		rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return 0, false, fmt.Errorf("query attendance: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			var date, admissionNo, firstName, lastName, class, section, status string
			var remarks sql.NullString
			if err := rows.Scan(&date, &admissionNo, &firstName, &lastName,
				&class, &section, &status, &remarks); err != nil {
				return 0, false, fmt.Errorf("scan attendance record: %w", err)
			}
			count++
			if !appendRow(ds, gc, []string{
				date, admissionNo,
				strings.TrimSpace(firstName + " " + lastName),
				class, section, status, remarks.String,
			}) {
				return count, false, nil
			}
		}
		return count, true, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// monthWindow translates the month/year filters into an inclusive calendar
// date range. A month on its own means the current year; a year on its own
// spans January through December. Explicit date bounds, when also present,
// narrow the window further.
func monthWindow(filters domain.Filters) (from, to string, ok bool) {
	month, hasMonth := filters.Int(domain.FilterMonth)
	year, hasYear := filters.Int(domain.FilterYear)
	if !hasMonth && !hasYear {
		return "", "", false
	}
	if !hasYear {
		year = time.Now().UTC().Year()
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, -1)
	if hasMonth {
		start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, -1)
	}
	return start.Format("2006-01-02"), end.Format("2006-01-02"), true
}
