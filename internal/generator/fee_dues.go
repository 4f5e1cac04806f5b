package generator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/campushq/reportworks/internal/domain"
)

// FeeDues produces outstanding invoice balances per student, optionally
// narrowed by class, section, or a minimum balance threshold.
func FeeDues(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error) {
	invoices, err := tableRef(gc.Schema, "fee_invoices")
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

	where := []string{"s.institution_id = $1", "(i.amount - i.paid_amount) > 0"}
	args := []any{job.InstitutionID.String()}
	addClause := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	filters := job.Filters.Coerce()
	if id, ok := filters.UUID(domain.FilterClassID); ok {
		addClause("s.class_id = $%d", id.String())
	}
	if id, ok := filters.UUID(domain.FilterSectionID); ok {
		addClause("s.section_id = $%d", id.String())
	}
	if v, ok := filters.Float64(domain.FilterMinDueAmount); ok && v > 0 {
		addClause("(i.amount - i.paid_amount) >= $%d", v)
	}

	query := fmt.Sprintf(`SELECT s.admission_no, s.first_name, s.last_name, c.name, sec.name,
			i.fee_head, i.due_date, i.amount, i.paid_amount
		FROM %s i
		JOIN %s s ON s.id = i.student_id
		JOIN %s c ON c.id = s.class_id
		JOIN %s sec ON sec.id = s.section_id
		WHERE %s
		ORDER BY i.due_date ASC, s.admission_no ASC, i.id ASC
		LIMIT $%d OFFSET $%d`,
		invoices, students, classes, sections, strings.Join(where, " AND "), len(args)+1, len(args)+2)

	ds := &domain.Dataset{
		Title:   "Fee Dues Report",
		Headers: []string{"Admission No", "Student Name", "Class", "Section", "Fee Head", "Due Date", "Amount", "Paid", "Balance"},
	}

	var totalDue float64
	err = forEachPage(ctx, gc.ChunkSize, func(limit, offset int) (int, bool, error) {
		rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return 0, false, fmt.Errorf("query fee dues: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			var admissionNo, firstName, lastName, class, section, feeHead, dueDate string
			var amount, paid float64
			if err := rows.Scan(&admissionNo, &firstName, &lastName, &class, &section,
				&feeHead, &dueDate, &amount, &paid); err != nil {
				return 0, false, fmt.Errorf("scan fee invoice: %w", err)
			}
			count++
			balance := amount - paid
			if !appendRow(ds, gc, []string{
				admissionNo,
				strings.TrimSpace(firstName + " " + lastName),
				class, section, feeHead, dueDate,
				money(amount), money(paid), money(balance),
			}) {
				return count, false, nil
			}
			totalDue += balance
		}
		return count, true, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// A truncated dump carries no total row: a partial sum would be
	// misleading, and the row cap is exact.
	if !ds.Truncated {
		ds.Rows = append(ds.Rows, []string{"", "", "", "", "", "", "", "Total Due", money(totalDue)})
	}
	return ds, nil
}
