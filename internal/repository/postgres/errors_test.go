package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/graduation-photo/internal/apperror"
)

func TestTranslate(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, apperror.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, apperror.ErrConflict},
		{"unique", &pgconn.PgError{Code: codeUniqueViolation}, apperror.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: codeForeignKeyViolation}, apperror.ErrValidation},
		{"negative capacity", &pgconn.PgError{Code: codeCheckViolation}, apperror.ErrValidation},
		{"capacity overflow", &pgconn.PgError{Code: codeNumericOutOfRange}, apperror.ErrValidation},
		{"wrapped", fmt.Errorf("postgres: adjusting: %w", &pgconn.PgError{Code: codeNumericOutOfRange}), apperror.ErrValidation},
		{"not a pg error", plain, plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err), tt.want)
		})
	}

	assert.NoError(t, translate(nil))
}
