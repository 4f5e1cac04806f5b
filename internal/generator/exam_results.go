package generator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/campushq/reportworks/internal/domain"
)

// ExamResults produces the subject-level mark sheet for one exam, optionally
// narrowed by class.
func ExamResults(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error) {
	marks, err := tableRef(gc.Schema, "exam_marks")
	if err != nil {
		return nil, err
	}
	exams, err := tableRef(gc.Schema, "exams")
	if err != nil {
		return nil, err
	}
	students, err := tableRef(gc.Schema, "students")
	if err != nil {
		return nil, err
	}
	subjects, err := tableRef(gc.Schema, "subjects")
	if err != nil {
		return nil, err
	}
	classes, err := tableRef(gc.Schema, "classes")
	if err != nil {
		return nil, err
	}

	filters := job.Filters.Coerce()
	examID, ok := filters.UUID(domain.FilterExamID)
	if !ok {
		return nil, fmt.Errorf("exam_results requires an exam_id filter")
	}

	where := []string{"s.institution_id = $1", "m.exam_id = $2"}
	args := []any{job.InstitutionID.String(), examID.String()}
	if id, ok := filters.UUID(domain.FilterClassID); ok {
		args = append(args, id.String())
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)))
	}

	// Inner joins skip marks whose exam, student, or subject link is broken.
	query := fmt.Sprintf(`SELECT e.name, s.admission_no, s.first_name, s.last_name,
			c.name, sub.name, m.marks_obtained, m.max_marks
		FROM %s m
		JOIN %s e ON e.id = m.exam_id
		JOIN %s s ON s.id = m.student_id
		JOIN %s sub ON sub.id = m.subject_id
		JOIN %s c ON c.id = s.class_id
		WHERE %s
		ORDER BY c.name ASC, s.admission_no ASC, sub.name ASC, m.id ASC
		LIMIT $%d OFFSET $%d`,
		marks, exams, students, subjects, classes, strings.Join(where, " AND "), len(args)+1, len(args)+2)

	ds := &domain.Dataset{
		Headers: []string{"Admission No", "Student Name", "Class", "Subject", "Marks Obtained", "Max Marks", "Percentage"},
	}

	err = forEachPage(ctx, gc.ChunkSize, func(limit, offset int) (int, bool, error) {
		rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return 0, false, fmt.Errorf("query exam marks: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			var examName, admissionNo, firstName, lastName, class, subject string
			var obtained, max float64
			if err := rows.Scan(&examName, &admissionNo, &firstName, &lastName,
				&class, &subject, &obtained, &max); err != nil {
				return 0, false, fmt.Errorf("scan exam mark: %w", err)
			}
			if ds.Title == "" {
				ds.Title = "Exam Results: " + examName
			}
			count++
			if !appendRow(ds, gc, []string{
				admissionNo,
				strings.TrimSpace(firstName + " " + lastName),
				class, subject,
				money(obtained), money(max), percent(obtained, max),
			}) {
				return count, false, nil
			}
		}
		return count, true, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if ds.Title == "" {
		ds.Title = "Exam Results"
	}
	return ds, nil
}
