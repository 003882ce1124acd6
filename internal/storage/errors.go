package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"weeklytotals/internal/core"
)

// classify maps a driver error onto the ledger's error kinds and adds the
// operation name.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrConstraintViolation),
		errors.Is(err, core.ErrStorage),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case isConstraint(err):
		return fmt.Errorf("%s: %w: %w", op, core.ErrConstraintViolation, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, core.ErrStorage, err)
	}
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// Extended codes keep the primary code in the low byte.
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
