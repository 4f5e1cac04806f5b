package generator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/campushq/reportworks/internal/domain"
)

// FeeCollection produces the receipt-level payment log, optionally narrowed
// by date range, payment mode, or class. A grand total row follows the data
// unless the dataset was truncated at the row cap.
func FeeCollection(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error) {
	payments, err := tableRef(gc.Schema, "fee_payments")
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

	where := []string{"s.institution_id = $1"}
	args := []any{job.InstitutionID.String()}
	addClause := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	filters := job.Filters.Coerce()
	if v := filters.String(domain.FilterDateFrom); v != "" {
		addClause("p.payment_date >= $%d", v)
	}
	if v := filters.String(domain.FilterDateTo); v != "" {
		addClause("p.payment_date <= $%d", v)
	}
	if v := filters.String(domain.FilterPaymentMode); v != "" {
		addClause("p.payment_mode = $%d", v)
	}
	if id, ok := filters.UUID(domain.FilterClassID); ok {
		addClause("s.class_id = $%d", id.String())
	}

	query := fmt.Sprintf(`SELECT p.receipt_no, p.payment_date, s.admission_no,
			s.first_name, s.last_name, c.name, p.payment_mode, p.amount
		FROM %s p
		JOIN %s s ON s.id = p.student_id
		JOIN %s c ON c.id = s.class_id
		WHERE %s
		ORDER BY p.payment_date ASC, p.receipt_no ASC, p.id ASC
		LIMIT $%d OFFSET $%d`,
		payments, students, classes, strings.Join(where, " AND "), len(args)+1, len(args)+2)

	ds := &domain.Dataset{
		Title:   "Fee Collection Report",
		Headers: []string{"Receipt No", "Payment Date", "Admission No", "Student Name", "Class", "Payment Mode", "Amount"},
	}

	var total float64
	err = forEachPage(ctx, gc.ChunkSize, func(limit, offset int) (int, bool, error) {
		rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return 0, false, fmt.Errorf("query fee payments: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			var receiptNo, date, admissionNo, firstName, lastName, class, mode string
			var amount float64
			if err := rows.Scan(&receiptNo, &date, &admissionNo,
				&firstName, &lastName, &class, &mode, &amount); err != nil {
				return 0, false, fmt.Errorf("scan fee payment: %w", err)
			}
			count++
			if !appendRow(ds, gc, []string{
				receiptNo, date, admissionNo,
				strings.TrimSpace(firstName + " " + lastName),
				class, mode, money(amount),
			}) {
				return count, false, nil
			}
			total += amount
		}
		return count, true, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// A truncated dump carries no total row: a partial sum would be
	// misleading, and the row cap is exact.
	if !ds.Truncated {
		ds.Rows = append(ds.Rows, []string{"", "", "", "", "", "Total", money(total)})
	}
	return ds, nil
}
