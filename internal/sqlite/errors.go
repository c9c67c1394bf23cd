package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/agentcoord/coordbus/internal/repository"
)

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapWriteError translates a raw driver error into the repository package's
// error vocabulary for the common insert/update failure modes.
func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return repository.ErrUniqueViolation
	case isForeignKeyViolation(err):
		return repository.ErrForeignKeyViolation
	default:
		return err
	}
}

func mapReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}
