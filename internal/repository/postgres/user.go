package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

const userColumns = `id, sdu_id, name, signed_up, phone_number, qq, gender, multi_person, time_id`

func scanUser(row pgx.Row) (*model.User, error) {
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

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if _, occupied := user.Occupies(); occupied {
		return apperror.ValidationFailed("signed_up", "new users cannot start out holding a seat")
	}

	user.ID = xid.New().String()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
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
		return translate(fmt.Errorf("postgres: inserting user (sdu_id=%s): %w", user.SDUID, err))
	}
	return nil
}

// UpsertUserBySDUID keeps every booking column of an existing row; only a
// non-empty name is refreshed. RETURNING hands back the canonical row.
func (db *DB) UpsertUserBySDUID(ctx context.Context, user *model.User) error {
	stored, err := scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (id, sdu_id, name) VALUES ($1, $2, $3)
		 ON CONFLICT (sdu_id) DO UPDATE SET
		   name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END
		 RETURNING `+userColumns,
		xid.New().String(), user.SDUID, user.Name,
	))
	if err != nil {
		return translate(fmt.Errorf("postgres: upserting user (sdu_id=%s): %w", user.SDUID, err))
	}
	*user = *stored
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, db.pool, `id`, id, "")
}

func (db *DB) GetUserBySDUID(ctx context.Context, sduID string) (*model.User, error) {
	return getUser(ctx, db.pool, `sdu_id`, sduID, "")
}

// getUser: column and lock are literals from this package, never user input.
func getUser(ctx context.Context, q querier, column, value, lock string) (*model.User, error) {
	u, err := scanUser(q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1 `+lock, value,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, translate(fmt.Errorf("postgres: getting user by %s %s: %w", column, value, err))
	}
	return u, nil
}

func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	opts = opts.Normalize()

	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY sdu_id LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		u, err := scanUser(row)
		if err != nil {
			return model.User{}, err
		}
		return *u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning users: %w", err)
	}
	return users, nil
}
