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

var _ repository.TimeRepository = (*DB)(nil)

const timeColumns = `id, start_at, end_at, capacity, campus_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanTime(row scanner) (*model.Time, error) {
	var t model.Time
	if err := row.Scan(&t.ID, &t.Start, &t.End, &t.Capacity, &t.CampusID); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTime inserts a slot and fills in its generated ID. The campus must
// exist; a dangling campus_id is rejected by the foreign key.
func (db *DB) CreateTime(ctx context.Context, t *model.Time) error {
	t.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO times (`+timeColumns+`) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Start.UTC(), t.End.UTC(), t.Capacity, t.CampusID,
	)
	if err != nil {
		return translate(fmt.Errorf("sqlite: creating time: %w", err))
	}
	return nil
}

func (db *DB) GetTime(ctx context.Context, id string) (*model.Time, error) {
	return getTime(ctx, db.conn, id)
}

func getTime(ctx context.Context, q querier, id string) (*model.Time, error) {
	t, err := scanTime(q.QueryRowContext(ctx,
		`SELECT `+timeColumns+` FROM times WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("time", id)
		}
		return nil, fmt.Errorf("sqlite: getting time %s: %w", id, err)
	}
	return t, nil
}

// ListTimes returns one page of slots in chronological order, optionally
// restricted to one campus.
func (db *DB) ListTimes(ctx context.Context, filter repository.TimeFilter, opts repository.ListOptions) ([]model.Time, error) {
	opts = opts.Normalize()

	query := `SELECT ` + timeColumns + ` FROM times`
	args := make([]any, 0, 3)
	if filter.CampusID != "" {
		query += ` WHERE campus_id = ?`
		args = append(args, filter.CampusID)
	}
	query += ` ORDER BY start_at, id LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing times: %w", err)
	}
	defer rows.Close()

	times := make([]model.Time, 0, opts.Limit)
	for rows.Next() {
		t, err := scanTime(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning time row: %w", err)
		}
		times = append(times, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating times: %w", err)
	}
	return times, nil
}

// UpdateTimeSchedule changes start/end. The UPDATE names only those columns,
// so a concurrent booking's capacity write can never be overwritten here.
func (db *DB) UpdateTimeSchedule(ctx context.Context, id string, patch model.TimePatch) (*model.Time, error) {
	var updated *model.Time
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTime(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := patch.Apply(t); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE times SET start_at = ?, end_at = ? WHERE id = ?`,
			t.Start.UTC(), t.End.UTC(), t.ID,
		); err != nil {
			return translate(fmt.Errorf("sqlite: updating time %s: %w", id, err))
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTime removes a slot nobody references any more.
func (db *DB) DeleteTime(ctx context.Context, id string) (*model.Time, error) {
	var removed *model.Time
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTime(ctx, tx, id)
		if err != nil {
			return err
		}

		var users int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE time_id = ?`, id,
		).Scan(&users); err != nil {
			return fmt.Errorf("sqlite: counting users of time %s: %w", id, err)
		}
		if users > 0 {
			return apperror.Conflictf("time %s is still referenced by %d users", id, users)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM times WHERE id = ?`, id); err != nil {
			return translate(fmt.Errorf("sqlite: deleting time %s: %w", id, err))
		}
		removed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
