package handler

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/campushq/reportworks/internal/domain"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// uuidFilterKeys are filter values that must parse as UUIDs when present.
var uuidFilterKeys = []string{
	domain.FilterClassID,
	domain.FilterSectionID,
	domain.FilterExamID,
}

// stringFilterKeys are filter values that must be plain strings when present.
var stringFilterKeys = []string{
	domain.FilterStatus,
	domain.FilterGender,
	domain.FilterCategory,
	domain.FilterPaymentMode,
}

// validateRequest checks a report submission. Unknown filter keys pass
// through untouched; recognized keys are strictly typed and range-checked,
// so a wrong-typed value is rejected here rather than silently ignored by
// the generator.
func validateRequest(reportType domain.ReportType, format domain.ReportFormat, filters domain.Filters) error {
	const op = "reports.validate"
	var err error

	if !reportType.IsValid() {
		err = domain.AddFieldError(err, op, "report_type", "must be one of the supported report types")
	}
	if !format.IsValid() {
		err = domain.AddFieldError(err, op, "format", "must be 'excel' or 'pdf'")
	}

	filters = filters.Coerce()

	for _, key := range uuidFilterKeys {
		if raw, present := filters[key]; present {
			s, ok := raw.(string)
			if !ok {
				err = domain.AddFieldError(err, op, key, "must be a UUID string")
				continue
			}
			if _, parseErr := uuid.Parse(s); parseErr != nil {
				err = domain.AddFieldError(err, op, key, "must be a valid UUID")
			}
		}
	}

	// Exam reports are meaningless without a target exam.
	if reportType == domain.ReportTypeExamResults || reportType == domain.ReportTypeExamToppers {
		if filters.String(domain.FilterExamID) == "" {
			err = domain.AddFieldError(err, op, domain.FilterExamID, "is required for exam reports")
		}
	}

	dateFrom := filters.String(domain.FilterDateFrom)
	dateTo := filters.String(domain.FilterDateTo)
	if _, present := filters[domain.FilterDateFrom]; present && !datePattern.MatchString(dateFrom) {
		err = domain.AddFieldError(err, op, domain.FilterDateFrom, "must be formatted YYYY-MM-DD")
	}
	if _, present := filters[domain.FilterDateTo]; present && !datePattern.MatchString(dateTo) {
		err = domain.AddFieldError(err, op, domain.FilterDateTo, "must be formatted YYYY-MM-DD")
	}
	if datePattern.MatchString(dateFrom) && datePattern.MatchString(dateTo) && dateTo < dateFrom {
		err = domain.AddFieldError(err, op, domain.FilterDateTo, "must not be before date_from")
	}

	for _, key := range stringFilterKeys {
		if raw, present := filters[key]; present {
			if _, ok := raw.(string); !ok {
				err = domain.AddFieldError(err, op, key, "must be a string")
			}
		}
	}

	if _, present := filters[domain.FilterMonth]; present {
		if month, ok := filters.Int(domain.FilterMonth); !ok {
			err = domain.AddFieldError(err, op, domain.FilterMonth, "must be a number")
		} else if month < 1 || month > 12 {
			err = domain.AddFieldError(err, op, domain.FilterMonth, "must be between 1 and 12")
		}
	}
	if _, present := filters[domain.FilterYear]; present {
		if year, ok := filters.Int(domain.FilterYear); !ok {
			err = domain.AddFieldError(err, op, domain.FilterYear, "must be a number")
		} else if year < 2000 || year > 2100 {
			err = domain.AddFieldError(err, op, domain.FilterYear, "must be between 2000 and 2100")
		}
	}
	if _, present := filters[domain.FilterMinDueAmount]; present {
		if amount, ok := filters.Float64(domain.FilterMinDueAmount); !ok {
			err = domain.AddFieldError(err, op, domain.FilterMinDueAmount, "must be a number")
		} else if amount < 0 {
			err = domain.AddFieldError(err, op, domain.FilterMinDueAmount, "must not be negative")
		}
	}

	if err != nil {
		return err
	}
	return nil
}
