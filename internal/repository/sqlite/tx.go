package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

var _ repository.BookingTx = (*bookingTx)(nil)

// bookingTx runs every statement on the transaction WithinTx opened.
// SQLite has no row locks; the single pooled connection already keeps other
// transactions out until this one ends.
type bookingTx struct {
	q querier
}

func (b *bookingTx) LoadUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, b.q, `id`, id)
}

// SaveUser writes every mutable column of user. sdu_id and id never change.
func (b *bookingTx) SaveUser(ctx context.Context, user *model.User) error {
	res, err := b.q.ExecContext(ctx,
		`UPDATE users SET name = ?, signed_up = ?, phone_number = ?, qq = ?,
		   gender = ?, multi_person = ?, time_id = ?
		 WHERE id = ?`,
		user.Name,
		user.SignedUp,
		user.PhoneNumber,
		user.QQ,
		user.Gender,
		user.MultiPerson,
		user.TimeID,
		user.ID,
	)
	if err != nil {
		return translate(fmt.Errorf("sqlite: saving user %s: %w", user.ID, err))
	}
	return expectOneRow(res, "user", user.ID)
}

func (b *bookingTx) DeleteUser(ctx context.Context, id string) error {
	res, err := b.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return translate(fmt.Errorf("sqlite: deleting user %s: %w", id, err))
	}
	return expectOneRow(res, "user", id)
}

func (b *bookingTx) LoadTime(ctx context.Context, id string) (*model.Time, error) {
	return getTime(ctx, b.q, id)
}

// SaveTime persists the capacity counter only. Schedule edits go through
// UpdateTimeSchedule.
func (b *bookingTx) SaveTime(ctx context.Context, t *model.Time) error {
	res, err := b.q.ExecContext(ctx,
		`UPDATE times SET capacity = ? WHERE id = ?`, t.Capacity, t.ID,
	)
	if err != nil {
		return translate(fmt.Errorf("sqlite: saving time %s: %w", t.ID, err))
	}
	return expectOneRow(res, "time", t.ID)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOneRow(res rowsAffecter, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected for %s %s: %w", resource, id, err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
