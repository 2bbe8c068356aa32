package sqlite

import (
	"errors"
	"strings"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/graduation-photo/internal/apperror"
)

// translate turns driver errors that callers can act on into AppErrors and
// passes everything else through unchanged.
//
// BUSY/LOCKED only happen when another process holds the database file; they
// become Conflict so the service layer retries them.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var sqErr *sqlitedriver.Error
	if !errors.As(err, &sqErr) {
		return err
	}

	switch sqErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "the database is busy, please retry",
		}
	case sqlite3.SQLITE_CONSTRAINT:
		msg := sqErr.Error()
		switch {
		case strings.Contains(msg, "FOREIGN KEY"):
			return apperror.ValidationFailed("", "referenced record does not exist")
		case strings.Contains(msg, "UNIQUE"):
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "a record with the same unique key already exists",
			}
		case strings.Contains(msg, "CHECK"):
			return apperror.ValidationFailed("capacity", "capacity must not be negative")
		}
	}
	return err
}
