package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Recognized filter keys. The bag is open: generators extract the keys they
// understand and ignore the rest, so new report types can add keys without a
// schema change.
const (
	FilterClassID      = "class_id"
	FilterSectionID    = "section_id"
	FilterExamID       = "exam_id"
	FilterMonth        = "month"
	FilterYear         = "year"
	FilterDateFrom     = "date_from"
	FilterDateTo       = "date_to"
	FilterStatus       = "status"
	FilterGender       = "gender"
	FilterCategory     = "category"
	FilterPaymentMode  = "payment_mode"
	FilterMinDueAmount = "min_due_amount"
)

// Filters is the loosely-typed filter bag attached to a report job.
// It is always coerced to a concrete map before reaching generators.
type Filters map[string]any

// Coerce returns the receiver, or an empty bag if it is nil.
func (f Filters) Coerce() Filters {
	if f == nil {
		return Filters{}
	}
	return f
}

// String returns the value under key as a string, or "" if absent or not a
// string.
func (f Filters) String(key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}

// UUID returns the value under key parsed as a UUID. The second return is
// false if the key is absent or not a valid UUID string.
func (f Filters) UUID(key string) (uuid.UUID, bool) {
	s := f.String(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Int returns the value under key as an int. JSON decoding produces float64
// for numbers, so both numeric representations are accepted.
func (f Filters) Int(key string) (int, bool) {
	switch v := f[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Float64 returns the value under key as a float64.
func (f Filters) Float64(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Value implements driver.Valuer so the bag persists as a JSON column.
func (f Filters) Value() (driver.Value, error) {
	b, err := json.Marshal(f.Coerce())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for reading the JSON column back.
func (f *Filters) Scan(value any) error {
	if value == nil {
		*f = Filters{}
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Filters", value)
	}

	if len(b) == 0 {
		*f = Filters{}
		return nil
	}
	return json.Unmarshal(b, f)
}
