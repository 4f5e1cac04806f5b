package generator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/campushq/reportworks/internal/domain"
)

// StudentList produces the full roster of students, optionally narrowed by
// class, section, gender, category, or enrollment status.
func StudentList(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error) {
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
	addFilter := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	filters := job.Filters.Coerce()
	if id, ok := filters.UUID(domain.FilterClassID); ok {
		addFilter("s.class_id", id.String())
	}
	if id, ok := filters.UUID(domain.FilterSectionID); ok {
		addFilter("s.section_id", id.String())
	}
	if v := filters.String(domain.FilterGender); v != "" {
		addFilter("s.gender", v)
	}
	if v := filters.String(domain.FilterCategory); v != "" {
		addFilter("s.category", v)
	}
	if v := filters.String(domain.FilterStatus); v != "" {
		addFilter("s.status", v)
	}

	// Inner joins drop students with dangling class or section links.
	query := fmt.Sprintf(`SELECT s.admission_no, s.roll_no, s.first_name, s.last_name,
			c.name, sec.name, s.gender, s.category, s.status, s.phone
		FROM %s s
		JOIN %s c ON c.id = s.class_id
		JOIN %s sec ON sec.id = s.section_id
		WHERE %s
		ORDER BY c.name ASC, sec.name ASC, s.roll_no ASC, s.id ASC
		LIMIT $%d OFFSET $%d`,
		students, classes, sections, strings.Join(where, " AND "), len(args)+1, len(args)+2)

	ds := &domain.Dataset{
		Title:   "Student List",
		Headers: []string{"Admission No", "Roll No", "Student Name", "Class", "Section", "Gender", "Category", "Status", "Phone"},
	}

	err = forEachPage(ctx, gc.ChunkSize, func(limit, offset int) (int, bool, error) {
		rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return 0, false, fmt.Errorf("query students: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			var admissionNo, rollNo, firstName, lastName, class, section, gender, category, status, phone string
			if err := rows.Scan(&admissionNo, &rollNo, &firstName, &lastName,
				&class, &section, &gender, &category, &status, &phone); err != nil {
				return 0, false, fmt.Errorf("scan student: %w", err)
			}
			count++
			if !appendRow(ds, gc, []string{
				admissionNo, rollNo,
				strings.TrimSpace(firstName + " " + lastName),
				class, section, gender, category, status, phone,
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
