package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, sdu_id, name, signed_up, phone_number, qq, gender, multi_person, time_id`

// scanUser reads one users row. Nullable columns scan straight into the
// pointer fields: database/sql leaves them nil for NULL.
func scanUser(row scanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.SDUID,
		&u.Name,
		&u.SignedUp,
		&u.PhoneNumber,
		&u.QQ,
		&u.Gender,
		&u.MultiPerson,
		&u.TimeID,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a fully specified user. Admin registration uses it; the
// login flow goes through UpsertUserBySDUID instead.
//
// A user created already occupying a slot would bypass the booking engine, so
// that combination is refused here.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if _, occupied := user.Occupies(); occupied {
		return apperror.ValidationFailed("signed_up", "new users cannot start out holding a seat")
	}

	user.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.SDUID,
		user.Name,
		user.SignedUp,
		user.PhoneNumber,
		user.QQ,
		user.Gender,
		user.MultiPerson,
		user.TimeID,
	)
	if err != nil {
		return translate(fmt.Errorf("sqlite: inserting user (sdu_id=%s): %w", user.SDUID, err))
	}
	return nil
}

// UpsertUserBySDUID inserts a user on first login, or refreshes the name of an
// existing one, and reads the canonical row back into user.
//
// WHY ON CONFLICT ... DO UPDATE AND NOT INSERT OR REPLACE?
// REPLACE deletes the old row first. That would reset signed_up and time_id
// and silently drop a held seat without giving it back to the slot.
// ON CONFLICT only touches the columns we name.
func (db *DB) UpsertUserBySDUID(ctx context.Context, user *model.User) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, sdu_id, name) VALUES (?, ?, ?)
		 ON CONFLICT(sdu_id) DO UPDATE SET
		   name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END`,
		xid.New().String(), user.SDUID, user.Name,
	)
	if err != nil {
		return translate(fmt.Errorf("sqlite: upserting user (sdu_id=%s): %w", user.SDUID, err))
	}

	stored, err := db.GetUserBySDUID(ctx, user.SDUID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByID retrieves a user by internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, db.conn, `id`, id)
}

// GetUserBySDUID retrieves a user by student number.
func (db *DB) GetUserBySDUID(ctx context.Context, sduID string) (*model.User, error) {
	return getUser(ctx, db.conn, `sdu_id`, sduID)
}

// getUser is shared by the two lookups above and by the booking transaction.
// column is always a literal from this package, never user input.
func getUser(ctx context.Context, q querier, column, value string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %s: %w", column, value, err)
	}
	return u, nil
}

// ListUsers returns one page of users ordered by student number.
func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	opts = opts.Normalize()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY sdu_id LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}
