// Package repository provides database access for report jobs and the
// durable report queue.
//
// All report-job queries are qualified with a tenant schema name: one call
// never touches more than one schema. The queue table is shared process-wide
// infrastructure and lives in the default schema.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrJobNotFound is returned when a report job does not exist in the
	// given schema.
	ErrJobNotFound = errors.New("report job not found")

	// ErrInvalidSchema is returned when a tenant schema name fails
	// validation. Schema names are the only identifier that reaches SQL as
	// text, so they are strictly checked instead of parameterized.
	ErrInvalidSchema = errors.New("invalid tenant schema name")
)

// schemaNamePattern matches the schema names the ERP provisions. Anything
// else is rejected before it can reach a query.
var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store provides access to report job rows and the report queue.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping reports whether the backing database (and therefore the queue) is
// reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// jobsTable returns the schema-qualified report_jobs table name, or an error
// if the schema name is not safe to interpolate.
func jobsTable(schema string) (string, error) {
	if !schemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSchema, schema)
	}
	return fmt.Sprintf("%q.report_jobs", schema), nil
}
