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

type strengthCount struct {
	class   string
	section string
	boys    int
	girls   int
	other   int
}

func (c *strengthCount) total() int {
	return c.boys + c.girls + c.other
}

// StudentStrength produces enrollment counts per class and section, split by
// gender, with a grand total row. Counting happens in-process over chunked
// roster pages; aggregation state is one entry per class-section pair.
func StudentStrength(ctx context.Context, db *sql.DB, job *domain.ReportJob, gc Context) (*domain.Dataset, error) {
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

	where := []string{"s.institution_id = $1", "s.status = $2"}
	args := []any{job.InstitutionID.String(), "active"}
	if id, ok := job.Filters.Coerce().UUID(domain.FilterClassID); ok {
		args = append(args, id.String())
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT c.name, sec.name, s.gender
		FROM %s s
		JOIN %s c ON c.id = s.class_id
		JOIN %s sec ON sec.id = s.section_id
		WHERE %s
		ORDER BY s.id ASC
		LIMIT $%d OFFSET $%d`,
		students, classes, sections, strings.Join(where, " AND "), len(args)+1, len(args)+2)

	counts := make(map[string]*strengthCount)

	err = forEachPage(ctx, gc.ChunkSize, func(limit, offset int) (int, bool, error) {
		rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return 0, false, fmt.Errorf("query students: %w", err)
		}
		defer rows.Close()

		count := 0
		for rows.Next() {
			var class, section, gender string
			if err := rows.Scan(&class, &section, &gender); err != nil {
				return 0, false, fmt.Errorf("scan student: %w", err)
			}
			count++

			key := class + "\x00" + section
			c, ok := counts[key]
			if !ok {
				c = &strengthCount{class: class, section: section}
				counts[key] = c
			}
			switch strings.ToLower(gender) {
			case "male", "m":
				c.boys++
			case "female", "f":
				c.girls++
			default:
				c.other++
			}
		}
		return count, true, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	ordered := make([]*strengthCount, 0, len(counts))
	for _, c := range counts {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].class != ordered[j].class {
			return ordered[i].class < ordered[j].class
		}
		return ordered[i].section < ordered[j].section
	})

	ds := &domain.Dataset{
		Title:   "Student Strength Report",
		Headers: []string{"Class", "Section", "Boys", "Girls", "Other", "Total"},
	}

	var totalBoys, totalGirls, totalOther int
	for _, c := range ordered {
		ds.Rows = append(ds.Rows, []string{
			c.class, c.section,
			strconv.Itoa(c.boys), strconv.Itoa(c.girls), strconv.Itoa(c.other),
			strconv.Itoa(c.total()),
		})
		totalBoys += c.boys
		totalGirls += c.girls
		totalOther += c.other
	}
	ds.Rows = append(ds.Rows, []string{
		"Total", "",
		strconv.Itoa(totalBoys), strconv.Itoa(totalGirls), strconv.Itoa(totalOther),
		strconv.Itoa(totalBoys + totalGirls + totalOther),
	})
	return ds, nil
}
