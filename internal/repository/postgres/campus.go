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

func (db *DB) CreateCampus(ctx context.Context, campus *model.Campus) error {
	campus.ID = xid.New().String()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO campuses (id, name) VALUES ($1, $2)`,
		campus.ID, campus.Name,
	)
	if err != nil {
		return translate(fmt.Errorf("postgres: creating campus: %w", err))
	}
	return nil
}

func (db *DB) GetCampus(ctx context.Context, id string) (*model.Campus, error) {
	return getCampus(ctx, db.pool, id, "")
}

// getCampus reads one campus. lock is appended verbatim ("" or "FOR UPDATE").
func getCampus(ctx context.Context, q querier, id, lock string) (*model.Campus, error) {
	var c model.Campus
	err := q.QueryRow(ctx,
		`SELECT id, name FROM campuses WHERE id = $1 `+lock, id,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("campus", id)
		}
		return nil, translate(fmt.Errorf("postgres: getting campus %s: %w", id, err))
	}
	return &c, nil
}

func (db *DB) ListCampuses(ctx context.Context, opts repository.ListOptions) ([]model.Campus, error) {
	opts = opts.Normalize()

	rows, err := db.pool.Query(ctx,
		`SELECT id, name FROM campuses ORDER BY name, id LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing campuses: %w", err)
	}

	campuses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Campus, error) {
		var c model.Campus
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning campuses: %w", err)
	}
	return campuses, nil
}

func (db *DB) UpdateCampus(ctx context.Context, id string, patch model.CampusPatch) (*model.Campus, error) {
	var updated *model.Campus
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		c, err := getCampus(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := patch.Apply(c); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE campuses SET name = $1 WHERE id = $2`, c.Name, c.ID,
		); err != nil {
			return translate(fmt.Errorf("postgres: updating campus %s: %w", id, err))
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCampus locks the campus row first; inserting a time for it needs a
// key-share lock on the same row, so no slot can appear between the count
// and the delete.
func (db *DB) DeleteCampus(ctx context.Context, id string) (*model.Campus, error) {
	var removed *model.Campus
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		c, err := getCampus(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}

		var times int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM times WHERE campus_id = $1`, id,
		).Scan(&times); err != nil {
			return fmt.Errorf("postgres: counting times of campus %s: %w", id, err)
		}
		if times > 0 {
			return apperror.Conflictf("campus %s still has %d time slots", id, times)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM campuses WHERE id = $1`, id); err != nil {
			return translate(fmt.Errorf("postgres: deleting campus %s: %w", id, err))
		}
		removed = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
