// Package booking keeps Time.capacity consistent with the users that hold
// seats of each slot.
//
// THE COUNTER:
// Time.capacity is the number of seats still free. A user holds a seat when
// signed_up is true and time_id is set (model.User.Occupies). Every change
// of that pair releases the old seat and claims the new one inside ONE store
// transaction, so for every slot:
//
//	capacity == initial capacity - users occupying it
//
// holds after every commit, and a rolled back call leaves no trace.
//
// The engine itself never locks or waits. Concurrent bookings of the same
// slot are serialised by the store (see repository.BookingTx).
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/metrics"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// Notifier hears about every committed capacity change.
type Notifier interface {
	TimeChanged(t model.Time)
}

type Engine struct {
	store    repository.TxRunner
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine wires the engine to a store. notifier and m may be nil.
func NewEngine(store repository.TxRunner, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// UpdateUserBooking applies patch to the user and moves their seat to match.
//
// The old seat is released BEFORE the patch is applied and the new one is
// checked AFTER, against the slot state that includes the release. Picking
// the slot you already hold therefore always succeeds, even at capacity 0,
// and nets out to no change.
func (e *Engine) UpdateUserBooking(ctx context.Context, userID string, patch model.UserPatch) (*model.User, error) {
	if err := patch.Validate(); err != nil {
		e.metrics.Booking("update", metrics.OutcomeInvalid)
		return nil, err
	}

	var (
		updated *model.User
		changed []model.Time
	)
	err := e.store.WithinTx(ctx, func(tx repository.BookingTx) error {
		u, err := tx.LoadUser(ctx, userID)
		if err != nil {
			return err
		}

		slots := newSlotSet(tx)

		if oldID, ok := u.Occupies(); ok {
			if err := slots.release(ctx, oldID); err != nil {
				return err
			}
		}

		if err := patch.Apply(u); err != nil {
			return err
		}

		if newID, ok := u.Occupies(); ok {
			if err := slots.claim(ctx, newID); err != nil {
				return err
			}
		}

		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		if changed, err = slots.flush(ctx); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		e.metrics.Booking("update", outcomeOf(err))
		return nil, err
	}

	e.metrics.Booking("update", metrics.OutcomeSuccess)
	e.publish(changed)

	timeID, _ := updated.Occupies()
	e.logger.Info("booking updated",
		"user_id", updated.ID,
		"signed_up", updated.SignedUp,
		"time_id", timeID,
		"slots_changed", len(changed),
	)
	return updated, nil
}

// DeleteUser removes the user and gives their seat back in the same
// transaction.
func (e *Engine) DeleteUser(ctx context.Context, userID string) (*model.User, error) {
	var (
		removed *model.User
		changed []model.Time
	)
	err := e.store.WithinTx(ctx, func(tx repository.BookingTx) error {
		u, err := tx.LoadUser(ctx, userID)
		if err != nil {
			return err
		}

		slots := newSlotSet(tx)
		if oldID, ok := u.Occupies(); ok {
			if err := slots.release(ctx, oldID); err != nil {
				return err
			}
		}

		if err := tx.DeleteUser(ctx, u.ID); err != nil {
			return err
		}
		if changed, err = slots.flush(ctx); err != nil {
			return err
		}
		removed = u
		return nil
	})
	if err != nil {
		e.metrics.Booking("delete", outcomeOf(err))
		return nil, err
	}

	e.metrics.Booking("delete", metrics.OutcomeSuccess)
	e.publish(changed)
	e.logger.Info("user deleted", "user_id", removed.ID, "seats_released", len(changed))
	return removed, nil
}

// AdjustCapacityDirect adds delta to a slot's free seats. It is an
// administrative override and ignores who occupies the slot.
func (e *Engine) AdjustCapacityDirect(ctx context.Context, timeID string, delta int) (*model.Time, error) {
	var adjusted *model.Time
	err := e.store.WithinTx(ctx, func(tx repository.BookingTx) error {
		t, err := tx.LoadTime(ctx, timeID)
		if err != nil {
			return err
		}
		if delta > model.MaxCapacity-t.Capacity {
			return apperror.ValidationFailed("delta",
				fmt.Sprintf("capacity must not exceed %d", model.MaxCapacity))
		}
		if t.Capacity+delta < 0 {
			return apperror.InsufficientCapacity(timeID)
		}
		if delta == 0 {
			adjusted = t
			return nil
		}
		t.Capacity += delta
		if err := tx.SaveTime(ctx, t); err != nil {
			return err
		}
		adjusted = t
		return nil
	})
	if err != nil {
		e.metrics.CapacityAdjusted(outcomeOf(err))
		return nil, err
	}

	e.metrics.CapacityAdjusted(metrics.OutcomeSuccess)
	if delta != 0 {
		e.publish([]model.Time{*adjusted})
	}
	e.logger.Info("capacity adjusted", "time_id", timeID, "delta", delta, "capacity", adjusted.Capacity)
	return adjusted, nil
}

func (e *Engine) publish(changed []model.Time) {
	if e.notifier == nil {
		return
	}
	for _, t := range changed {
		e.notifier.TimeChanged(t)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, apperror.ErrInsufficientCapacity):
		return metrics.OutcomeInsufficientCapacity
	case errors.Is(err, apperror.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, apperror.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, apperror.ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
