// Package repository defines the persistence-facing error vocabulary shared
// by every Catalog repository implementation (internal/sqlite).
package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic concurrency check fails.
	ErrConflict = errors.New("conflict: entity was modified concurrently")

	// ErrForeignKeyViolation is returned when a foreign key constraint fails.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrUniqueViolation is returned when a uniqueness constraint fails.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy is returned when a transient lock could not be acquired after
	// the retry wrapper's bounded attempts were exhausted.
	ErrBusy = errors.New("resource busy")

	// ErrCircuitOpen is returned when the catalog circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
)
