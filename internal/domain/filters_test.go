package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters_Coerce(t *testing.T) {
	var nilFilters Filters
	coerced := nilFilters.Coerce()
	assert.NotNil(t, coerced)
	assert.Empty(t, coerced)

	f := Filters{"class_id": "abc"}
	assert.Equal(t, f, f.Coerce())
}

func TestFilters_Accessors(t *testing.T) {
	classID := uuid.New()
	f := Filters{
		FilterClassID:      classID.String(),
		FilterStatus:       "active",
		FilterMonth:        float64(7), // JSON numbers decode as float64
		FilterYear:         2026,
		FilterMinDueAmount: 150.5,
		"bad_uuid":         "not-a-uuid",
		"not_a_string":     42,
	}

	assert.Equal(t, "active", f.String(FilterStatus))
	assert.Equal(t, "", f.String("missing"))
	assert.Equal(t, "", f.String("not_a_string"))

	got, ok := f.UUID(FilterClassID)
	assert.True(t, ok)
	assert.Equal(t, classID, got)

	_, ok = f.UUID("bad_uuid")
	assert.False(t, ok)
	_, ok = f.UUID("missing")
	assert.False(t, ok)

	month, ok := f.Int(FilterMonth)
	assert.True(t, ok)
	assert.Equal(t, 7, month)

	year, ok := f.Int(FilterYear)
	assert.True(t, ok)
	assert.Equal(t, 2026, year)

	_, ok = f.Int(FilterStatus)
	assert.False(t, ok)

	amount, ok := f.Float64(FilterMinDueAmount)
	assert.True(t, ok)
	assert.Equal(t, 150.5, amount)

	fromInt, ok := f.Float64(FilterYear)
	assert.True(t, ok)
	assert.Equal(t, 2026.0, fromInt)
}

func TestFilters_ValueScan(t *testing.T) {
	f := Filters{FilterClassID: "c1", FilterMonth: float64(3)}

	v, err := f.Value()
	require.NoError(t, err)

	var scanned Filters
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, f, scanned)
}

func TestFilters_ScanEdgeCases(t *testing.T) {
	var f Filters
	require.NoError(t, f.Scan(nil))
	assert.NotNil(t, f)
	assert.Empty(t, f)

	require.NoError(t, f.Scan([]byte(`{"status":"active"}`)))
	assert.Equal(t, "active", f.String(FilterStatus))

	require.NoError(t, f.Scan(""))
	assert.Empty(t, f)

	assert.Error(t, f.Scan(12345))
}

func TestFilters_NilValue(t *testing.T) {
	var f Filters
	v, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}
