package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/metrics"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// CatalogService manages campuses and their time slots.
//
// Reads are public. Writes are administrative and the handler only mounts
// them behind admin authentication. Capacity is never written directly:
// CreateTime sets the initial value and AdjustCapacity goes through the
// booking engine like every other seat movement.
type CatalogService struct {
	campuses repository.CampusRepository
	times    repository.TimeRepository
	engine   BookingEngine
	retry    RetryPolicy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewCatalogService(
	campuses repository.CampusRepository,
	times repository.TimeRepository,
	engine BookingEngine,
	retry RetryPolicy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		campuses: campuses,
		times:    times,
		engine:   engine,
		retry:    retry,
		metrics:  m,
		logger:   logger,
	}
}

func (s *CatalogService) ListCampuses(ctx context.Context, opts repository.ListOptions) ([]model.Campus, error) {
	campuses, err := s.campuses.ListCampuses(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing campuses: %w", err)
	}
	return campuses, nil
}

func (s *CatalogService) GetCampus(ctx context.Context, id string) (*model.Campus, error) {
	campus, err := s.campuses.GetCampus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: fetching campus %s: %w", id, err)
	}
	return campus, nil
}

// CreateCampus validates the name with the same rules as a campus edit.
func (s *CatalogService) CreateCampus(ctx context.Context, name string) (*model.Campus, error) {
	campus := &model.Campus{}
	if err := (model.CampusPatch{Name: model.Some(name)}).Apply(campus); err != nil {
		return nil, err
	}
	if err := s.campuses.CreateCampus(ctx, campus); err != nil {
		return nil, fmt.Errorf("service/catalog: creating campus: %w", err)
	}
	s.logger.Info("campus created", slog.String("id", campus.ID), slog.String("name", campus.Name))
	return campus, nil
}

func (s *CatalogService) UpdateCampus(ctx context.Context, id string, patch model.CampusPatch) (*model.Campus, error) {
	campus, err := s.campuses.UpdateCampus(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: updating campus %s: %w", id, err)
	}
	s.logger.Info("campus updated", slog.String("id", id))
	return campus, nil
}

// DeleteCampus fails with Conflict while the campus still has time slots.
func (s *CatalogService) DeleteCampus(ctx context.Context, id string) (*model.Campus, error) {
	campus, err := s.campuses.DeleteCampus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: deleting campus %s: %w", id, err)
	}
	s.logger.Info("campus deleted", slog.String("id", id))
	return campus, nil
}

func (s *CatalogService) ListTimes(ctx context.Context, filter repository.TimeFilter, opts repository.ListOptions) ([]model.Time, error) {
	times, err := s.times.ListTimes(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing times: %w", err)
	}
	return times, nil
}

func (s *CatalogService) GetTime(ctx context.Context, id string) (*model.Time, error) {
	t, err := s.times.GetTime(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: fetching time %s: %w", id, err)
	}
	return t, nil
}

// NewTime is the body of an administrative slot creation.
type NewTime struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Capacity int       `json:"capacity"`
	CampusID string    `json:"campus_id"`
}

// CreateTime adds a slot to an existing campus. Capacity is the number of
// seats the slot opens with.
func (s *CatalogService) CreateTime(ctx context.Context, in NewTime) (*model.Time, error) {
	if in.Start.IsZero() {
		return nil, apperror.ValidationFailed("start", "start is required")
	}
	if !in.End.After(in.Start) {
		return nil, apperror.ValidationFailed("end", "end must be after start")
	}
	if in.Capacity < 0 {
		return nil, apperror.ValidationFailed("capacity", "capacity must not be negative")
	}
	if in.Capacity > model.MaxCapacity {
		return nil, apperror.ValidationFailed("capacity",
			fmt.Sprintf("capacity must not exceed %d", model.MaxCapacity))
	}
	if in.CampusID == "" {
		return nil, apperror.ValidationFailed("campus_id", "campus_id is required")
	}
	if _, err := s.campuses.GetCampus(ctx, in.CampusID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("campus_id",
				fmt.Sprintf("campus %s does not exist", in.CampusID))
		}
		return nil, fmt.Errorf("service/catalog: fetching campus %s: %w", in.CampusID, err)
	}

	t := &model.Time{
		Start:    in.Start,
		End:      in.End,
		Capacity: in.Capacity,
		CampusID: in.CampusID,
	}
	if err := s.times.CreateTime(ctx, t); err != nil {
		return nil, fmt.Errorf("service/catalog: creating time: %w", err)
	}
	s.logger.Info("time created",
		slog.String("id", t.ID),
		slog.String("campusID", t.CampusID),
		slog.Int("capacity", t.Capacity),
	)
	return t, nil
}

// UpdateTime edits a slot's schedule. Capacity is not part of TimePatch.
func (s *CatalogService) UpdateTime(ctx context.Context, id string, patch model.TimePatch) (*model.Time, error) {
	t, err := s.times.UpdateTimeSchedule(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: updating time %s: %w", id, err)
	}
	s.logger.Info("time rescheduled", slog.String("id", id))
	return t, nil
}

// DeleteTime fails with Conflict while any user references the slot.
func (s *CatalogService) DeleteTime(ctx context.Context, id string) (*model.Time, error) {
	t, err := s.times.DeleteTime(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/catalog: deleting time %s: %w", id, err)
	}
	s.logger.Info("time deleted", slog.String("id", id))
	return t, nil
}

// AdjustCapacity opens (delta > 0) or withdraws (delta < 0) free seats.
func (s *CatalogService) AdjustCapacity(ctx context.Context, id string, delta int) (*model.Time, error) {
	t, err := withRetry(ctx, s.retry, s.metrics, s.logger, "adjust", func() (*model.Time, error) {
		return s.engine.AdjustCapacityDirect(ctx, id, delta)
	})
	if err != nil {
		return nil, fmt.Errorf("service/catalog: adjusting capacity of time %s: %w", id, err)
	}
	return t, nil
}
