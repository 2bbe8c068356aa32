package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/graduation-photo/internal/apperror"
)

// SQLSTATE codes we act on.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNumericOutOfRange    = "22003"
)

// translate maps Postgres errors callers can act on to AppErrors.
// Transaction aborts become Conflict so the service layer retries them.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "concurrent update, please retry",
		}
	case codeUniqueViolation:
		return &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "a record with the same unique key already exists",
		}
	case codeForeignKeyViolation:
		return apperror.ValidationFailed("", "referenced record does not exist")
	case codeCheckViolation:
		return apperror.ValidationFailed("capacity", "capacity must not be negative")
	case codeNumericOutOfRange:
		return apperror.ValidationFailed("capacity", "capacity is out of range")
	}
	return err
}
