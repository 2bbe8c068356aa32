// Package repository declares the storage capabilities the rest of the
// application depends on. Concrete backends live in the sqlite and postgres
// subpackages; services only ever see these interfaces.
package repository

import (
	"context"

	"github.com/sakif/graduation-photo/internal/model"
)

// Page size policy shared by every backend.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options to the page size policy.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// TimeFilter narrows ListTimes. An empty CampusID lists every campus.
type TimeFilter struct {
	CampusID string
}

type CampusRepository interface {
	CreateCampus(ctx context.Context, campus *model.Campus) error
	GetCampus(ctx context.Context, id string) (*model.Campus, error)
	ListCampuses(ctx context.Context, opts ListOptions) ([]model.Campus, error)
	UpdateCampus(ctx context.Context, id string, patch model.CampusPatch) (*model.Campus, error)
	// DeleteCampus returns the removed campus. It fails with a conflict while
	// the campus still has time slots.
	DeleteCampus(ctx context.Context, id string) (*model.Campus, error)
}

type TimeRepository interface {
	CreateTime(ctx context.Context, t *model.Time) error
	GetTime(ctx context.Context, id string) (*model.Time, error)
	ListTimes(ctx context.Context, filter TimeFilter, opts ListOptions) ([]model.Time, error)
	// UpdateTimeSchedule changes start/end only. Capacity is owned by the
	// booking engine.
	UpdateTimeSchedule(ctx context.Context, id string, patch model.TimePatch) (*model.Time, error)
	// DeleteTime returns the removed slot. It fails with a conflict while any
	// user still references the slot.
	DeleteTime(ctx context.Context, id string) (*model.Time, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	// UpsertUserBySDUID creates the user on first login, or refreshes the
	// display name of the existing one. user is filled with the stored row.
	UpsertUserBySDUID(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserBySDUID(ctx context.Context, sduID string) (*model.User, error)
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, error)
}

// BookingTx is the view of the store the booking engine works through. Every
// method runs inside the same transaction; nothing is visible to other
// requests until WithinTx commits.
//
// LoadUser and LoadTime lock the row they read until the transaction ends on
// backends that support row locks, so two bookings against the same slot
// serialise instead of both reading a stale capacity.
type BookingTx interface {
	LoadUser(ctx context.Context, id string) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
	LoadTime(ctx context.Context, id string) (*model.Time, error)
	SaveTime(ctx context.Context, t *model.Time) error
}

// TxRunner runs fn inside one transaction: commit when fn returns nil,
// rollback on any error or panic.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx BookingTx) error) error
}

// Store is everything a backend provides.
type Store interface {
	CampusRepository
	TimeRepository
	UserRepository
	TxRunner
	Ping(ctx context.Context) error
	Close() error
}
