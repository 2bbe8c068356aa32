package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

var _ repository.BookingTx = (*bookingTx)(nil)

// bookingTx reads with FOR UPDATE so the rows it loads stay locked until the
// surrounding transaction ends.
type bookingTx struct {
	q querier
}

func (b *bookingTx) LoadUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, b.q, `id`, id, "FOR UPDATE")
}

func (b *bookingTx) SaveUser(ctx context.Context, user *model.User) error {
	tag, err := b.q.Exec(ctx,
		`UPDATE users SET name = $1, signed_up = $2, phone_number = $3, qq = $4,
		   gender = $5, multi_person = $6, time_id = $7
		 WHERE id = $8`,
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
		return translate(fmt.Errorf("postgres: saving user %s: %w", user.ID, err))
	}
	return expectOneRow(tag, "user", user.ID)
}

func (b *bookingTx) DeleteUser(ctx context.Context, id string) error {
	tag, err := b.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translate(fmt.Errorf("postgres: deleting user %s: %w", id, err))
	}
	return expectOneRow(tag, "user", id)
}

func (b *bookingTx) LoadTime(ctx context.Context, id string) (*model.Time, error) {
	return getTime(ctx, b.q, id, "FOR UPDATE")
}

// SaveTime persists the capacity counter only.
func (b *bookingTx) SaveTime(ctx context.Context, t *model.Time) error {
	tag, err := b.q.Exec(ctx,
		`UPDATE times SET capacity = $1 WHERE id = $2`, t.Capacity, t.ID,
	)
	if err != nil {
		return translate(fmt.Errorf("postgres: saving time %s: %w", t.ID, err))
	}
	return expectOneRow(tag, "time", t.ID)
}

func expectOneRow(tag pgconn.CommandTag, resource, id string) error {
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
