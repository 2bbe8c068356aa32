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

var _ repository.CampusRepository = (*DB)(nil)

// CreateCampus inserts a campus and fills in its generated ID.
func (db *DB) CreateCampus(ctx context.Context, campus *model.Campus) error {
	campus.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO campuses (id, name) VALUES (?, ?)`,
		campus.ID, campus.Name,
	)
	if err != nil {
		return translate(fmt.Errorf("sqlite: creating campus: %w", err))
	}
	return nil
}

func (db *DB) GetCampus(ctx context.Context, id string) (*model.Campus, error) {
	return getCampus(ctx, db.conn, id)
}

func getCampus(ctx context.Context, q querier, id string) (*model.Campus, error) {
	var c model.Campus
	err := q.QueryRowContext(ctx,
		`SELECT id, name FROM campuses WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("campus", id)
		}
		return nil, fmt.Errorf("sqlite: getting campus %s: %w", id, err)
	}
	return &c, nil
}

// ListCampuses returns one page of campuses ordered by name.
func (db *DB) ListCampuses(ctx context.Context, opts repository.ListOptions) ([]model.Campus, error) {
	opts = opts.Normalize()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name FROM campuses ORDER BY name, id LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing campuses: %w", err)
	}
	defer rows.Close()

	campuses := make([]model.Campus, 0, opts.Limit)
	for rows.Next() {
		var c model.Campus
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning campus row: %w", err)
		}
		campuses = append(campuses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating campuses: %w", err)
	}
	return campuses, nil
}

// UpdateCampus applies a merge-patch to the stored campus.
func (db *DB) UpdateCampus(ctx context.Context, id string, patch model.CampusPatch) (*model.Campus, error) {
	var updated *model.Campus
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		c, err := getCampus(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := patch.Apply(c); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE campuses SET name = ? WHERE id = ?`, c.Name, c.ID,
		); err != nil {
			return translate(fmt.Errorf("sqlite: updating campus %s: %w", id, err))
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCampus removes a campus that no longer owns any time slots.
func (db *DB) DeleteCampus(ctx context.Context, id string) (*model.Campus, error) {
	var removed *model.Campus
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		c, err := getCampus(ctx, tx, id)
		if err != nil {
			return err
		}

		var times int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM times WHERE campus_id = ?`, id,
		).Scan(&times); err != nil {
			return fmt.Errorf("sqlite: counting times of campus %s: %w", id, err)
		}
		if times > 0 {
			return apperror.Conflictf("campus %s still has %d time slots", id, times)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM campuses WHERE id = ?`, id); err != nil {
			return translate(fmt.Errorf("sqlite: deleting campus %s: %w", id, err))
		}
		removed = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
