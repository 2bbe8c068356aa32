package booking

import (
	"context"
	"errors"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// slotSet caches the Times one transaction has loaded. Releasing and
// claiming the same slot then operate on the same in-memory record, and
// flush writes each slot once with its net change.
type slotSet struct {
	tx       repository.BookingTx
	loaded   map[string]*model.Time
	original map[string]int
	order    []string
}

func newSlotSet(tx repository.BookingTx) *slotSet {
	return &slotSet{
		tx:       tx,
		loaded:   make(map[string]*model.Time, 2),
		original: make(map[string]int, 2),
	}
}

func (s *slotSet) get(ctx context.Context, id string) (*model.Time, error) {
	if t, ok := s.loaded[id]; ok {
		return t, nil
	}
	t, err := s.tx.LoadTime(ctx, id)
	if err != nil {
		return nil, err
	}
	s.loaded[id] = t
	s.original[id] = t.Capacity
	s.order = append(s.order, id)
	return t, nil
}

// release gives one seat back. A slot that no longer exists has no seat to
// return, so that case is not an error.
func (s *slotSet) release(ctx context.Context, id string) error {
	t, err := s.get(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	t.Capacity++
	return nil
}

// claim takes one seat, or fails with InsufficientCapacity when none is free.
func (s *slotSet) claim(ctx context.Context, id string) error {
	t, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if t.Capacity <= 0 {
		return apperror.InsufficientCapacity(id)
	}
	t.Capacity--
	return nil
}

// flush saves every slot whose capacity moved and returns them in load order.
func (s *slotSet) flush(ctx context.Context) ([]model.Time, error) {
	var changed []model.Time
	for _, id := range s.order {
		t := s.loaded[id]
		if t.Capacity == s.original[id] {
			continue
		}
		if err := s.tx.SaveTime(ctx, t); err != nil {
			return nil, err
		}
		changed = append(changed, *t)
	}
	return changed, nil
}
