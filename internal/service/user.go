package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/metrics"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// BookingEngine is the part of booking.Engine the services call. Every seat
// movement goes through it; services never write capacity themselves.
type BookingEngine interface {
	UpdateUserBooking(ctx context.Context, userID string, patch model.UserPatch) (*model.User, error)
	DeleteUser(ctx context.Context, userID string) (*model.User, error)
	AdjustCapacityDirect(ctx context.Context, timeID string, delta int) (*model.Time, error)
}

// TicketSize is the edge length of the check-in QR code in pixels.
const TicketSize = 256

// UserService serves the signed-in user's own record and the user listing.
//
// Booking changes are handed to the engine and retried on Conflict (a
// transaction that lost a race with another booking) according to retry.
type UserService struct {
	users   repository.UserRepository
	times   repository.TimeRepository
	engine  BookingEngine
	retry   RetryPolicy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	times repository.TimeRepository,
	engine BookingEngine,
	retry RetryPolicy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:   users,
		times:   times,
		engine:  engine,
		retry:   retry,
		metrics: m,
		logger:  logger,
	}
}

// Get returns the user with the Time they reference embedded.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %s: %w", id, err)
	}
	if err := s.embedTime(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) embedTime(ctx context.Context, user *model.User) error {
	if user.TimeID == nil {
		return nil
	}
	t, err := s.times.GetTime(ctx, *user.TimeID)
	if err != nil {
		// The foreign key keeps this from happening; a missing slot is shown
		// as no slot rather than failing the whole request.
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("user references a missing time",
				slog.String("userID", user.ID),
				slog.String("timeID", *user.TimeID),
			)
			return nil
		}
		return fmt.Errorf("service/user: fetching time %s: %w", *user.TimeID, err)
	}
	user.Time = t
	return nil
}

func (s *UserService) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}
	return users, nil
}

// UpdateBooking applies a merge-patch to the user through the booking engine.
// The returned user has its Time embedded, like Get.
func (s *UserService) UpdateBooking(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	user, err := withRetry(ctx, s.retry, s.metrics, s.logger, "update", func() (*model.User, error) {
		return s.engine.UpdateUserBooking(ctx, id, patch)
	})
	if err != nil {
		return nil, fmt.Errorf("service/user: updating user %s: %w", id, err)
	}
	if err := s.embedTime(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes the user and gives their seat back.
func (s *UserService) Delete(ctx context.Context, id string) (*model.User, error) {
	user, err := withRetry(ctx, s.retry, s.metrics, s.logger, "delete", func() (*model.User, error) {
		return s.engine.DeleteUser(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("service/user: deleting user %s: %w", id, err)
	}
	return user, nil
}

// Register creates a user ahead of their first login. The SSO display name
// replaces name when they do log in.
func (s *UserService) Register(ctx context.Context, sduID, name string) (*model.User, error) {
	sduID = strings.TrimSpace(sduID)
	name = strings.TrimSpace(name)
	if sduID == "" {
		return nil, apperror.ValidationFailed("sdu_id", "sdu_id is required")
	}
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > model.MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", model.MaxNameLength))
	}

	user := &model.User{SDUID: sduID, Name: name}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: registering %s: %w", sduID, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("sduID", user.SDUID),
	)
	return user, nil
}

// Ticket renders the user's booking as a QR code PNG for check-in at the
// photo session. A user without a seat has no ticket.
func (s *UserService) Ticket(ctx context.Context, id string) ([]byte, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	timeID, ok := user.Occupies()
	if !ok || user.Time == nil {
		return nil, apperror.NotFound("booking", id)
	}

	png, err := qrcode.Encode(ticketPayload(user, timeID), qrcode.Medium, TicketSize)
	if err != nil {
		return nil, fmt.Errorf("service/user: encoding ticket for user %s: %w", id, err)
	}
	return png, nil
}

// ticketPayload is "gradphoto|<user id>|<sdu id>|<time id>|<start RFC3339>".
func ticketPayload(user *model.User, timeID string) string {
	return strings.Join([]string{
		"gradphoto",
		user.ID,
		user.SDUID,
		timeID,
		user.Time.Start.UTC().Format(time.RFC3339),
	}, "|")
}
