package generator

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/campushq/reportworks/internal/domain"
)

// topperCount fixes how many ranked students the toppers report lists,
// independent of the global row cap.
const topperCount = 50

// topperTotal is the per-student running aggregate. One entry exists per
// distinct student seen in the mark pages, so aggregation state is bounded
// by roster size, not by mark volume.
type topperTotal struct {
	admissionNo string
	name        string
	class       string
	obtained    float64
	max         float64
}

// ExamToppers ranks students by total marks across all subjects of one exam
// and reports the top fifty, optionally narrowed by class.
func ExamToppers(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error) {
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
	classes, err := tableRef(gc.Schema, "classes")
	if err != nil {
		return nil, err
	}

	filters := job.Filters.Coerce()
	examID, ok := filters.UUID(domain.FilterExamID)
	if !ok {
		return nil, fmt.Errorf("exam_toppers requires an exam_id filter")
	}

	where := []string{"s.institution_id = $1", "m.exam_id = $2"}
	args := []any{job.InstitutionID.String(), examID.String()}
	if id, ok := filters.UUID(domain.FilterClassID); ok {
		args = append(args, id.String())
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT e.name, m.student_id, s.admission_no, s.first_name, s.last_name,
			c.name, m.marks_obtained, m.max_marks
		FROM %s m
		JOIN %s e ON e.id = m.exam_id
		JOIN %s s ON s.id = m.student_id
		JOIN %s c ON c.id = s.class_id
		WHERE %s
		ORDER BY m.id ASC
		LIMIT $%d OFFSET $%d`,
		marks, exams, students, classes, strings.Join(where, " AND "), len(args)+1, len(args)+2)

	totals := make(map[string]*topperTotal)
	var examName string

	err = forEachPage(ctx, gc.ChunkSize, func(limit, offset int) (int, bool, error) {
		rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return 0, false, fmt.Errorf("query exam marks: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			var studentID, admissionNo, firstName, lastName, class string
			var obtained, max float64
			if err := rows.Scan(&examName, &studentID, &admissionNo, &firstName, &lastName,
				&class, &obtained, &max); err != nil {
				return 0, false, fmt.Errorf("scan exam mark: %w", err)
			}
			count++

			t, ok := totals[studentID]
			if !ok {
				t = &topperTotal{
					admissionNo: admissionNo,
					name:        strings.TrimSpace(firstName + " " + lastName),
					class:       class,
				}
				totals[studentID] = t
			}
			t.obtained += obtained
			t.max += max
		}
		return count, true, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]*topperTotal, 0, len(totals))
	for _, t := range totals {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].obtained != ranked[j].obtained {
			return ranked[i].obtained > ranked[j].obtained
		}
		return ranked[i].admissionNo < ranked[j].admissionNo
	})
	if len(ranked) > topperCount {
		ranked = ranked[:topperCount]
	}

	title := "Exam Toppers"
	if examName != "" {
		title = "Exam Toppers: " + examName
	}
	ds := &domain.Dataset{
		Title:   title,
		Headers: []string{"Rank", "Admission No", "Student Name", "Class", "Total Marks", "Max Marks", "Percentage"},
	}
	for i, t := range ranked {
		ds.Rows = append(ds.Rows, []string{
			strconv.Itoa(i + 1),
			t.admissionNo, t.name, t.class,
			money(t.obtained), money(t.max), percent(t.obtained, t.max),
		})
	}
	return ds, nil
}
