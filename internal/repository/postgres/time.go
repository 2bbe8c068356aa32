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

const timeColumns = `id, start_at, end_at, capacity, campus_id`

func scanTime(row pgx.Row) (*model.Time, error) {
	var t model.Time
	if err := row.Scan(&t.ID, &t.Start, &t.End, &t.Capacity, &t.CampusID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) CreateTime(ctx context.Context, t *model.Time) error {
	t.ID = xid.New().String()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO times (`+timeColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Start, t.End, t.Capacity, t.CampusID,
	)
	if err != nil {
		return translate(fmt.Errorf("postgres: creating time: %w", err))
	}
	return nil
}

func (db *DB) GetTime(ctx context.Context, id string) (*model.Time, error) {
	return getTime(ctx, db.pool, id, "")
}

func getTime(ctx context.Context, q querier, id, lock string) (*model.Time, error) {
	t, err := scanTime(q.QueryRow(ctx,
		`SELECT `+timeColumns+` FROM times WHERE id = $1 `+lock, id,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("time", id)
		}
		return nil, translate(fmt.Errorf("postgres: getting time %s: %w", id, err))
	}
	return t, nil
}

func (db *DB) ListTimes(ctx context.Context, filter repository.TimeFilter, opts repository.ListOptions) ([]model.Time, error) {
	opts = opts.Normalize()

	query := `SELECT ` + timeColumns + ` FROM times`
	args := make([]any, 0, 3)
	if filter.CampusID != "" {
		args = append(args, filter.CampusID)
		query += ` WHERE campus_id = $1`
	}
	args = append(args, opts.Limit, opts.Offset)
	query += fmt.Sprintf(` ORDER BY start_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing times: %w", err)
	}

	times, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Time, error) {
		t, err := scanTime(row)
		if err != nil {
			return model.Time{}, err
		}
		return *t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning times: %w", err)
	}
	return times, nil
}

func (db *DB) UpdateTimeSchedule(ctx context.Context, id string, patch model.TimePatch) (*model.Time, error) {
	var updated *model.Time
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		t, err := getTime(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := patch.Apply(t); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE times SET start_at = $1, end_at = $2 WHERE id = $3`,
			t.Start, t.End, t.ID,
		); err != nil {
			return translate(fmt.Errorf("postgres: updating time %s: %w", id, err))
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (db *DB) DeleteTime(ctx context.Context, id string) (*model.Time, error) {
	var removed *model.Time
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		t, err := getTime(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}

		var users int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM users WHERE time_id = $1`, id,
		).Scan(&users); err != nil {
			return fmt.Errorf("postgres: counting users of time %s: %w", id, err)
		}
		if users > 0 {
			return apperror.Conflictf("time %s is still referenced by %d users", id, users)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM times WHERE id = $1`, id); err != nil {
			return translate(fmt.Errorf("postgres: deleting time %s: %w", id, err))
		}
		removed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
