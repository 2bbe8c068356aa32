package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/metrics"
)

// RetryPolicy controls how often a booking that lost a transaction race is
// attempted again. Only Conflict errors are retried: InsufficientCapacity,
// NotFound and Validation are answers, not races.
type RetryPolicy struct {
	Retries int           // extra attempts after the first one
	Backoff time.Duration // wait before retry n is n*Backoff
}

// DefaultRetryPolicy matches the BOOKING_RETRIES default.
var DefaultRetryPolicy = RetryPolicy{Retries: 3, Backoff: 25 * time.Millisecond}

func withRetry[T any](ctx context.Context, p RetryPolicy, m *metrics.Metrics, logger *slog.Logger, op string, fn func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil || !errors.Is(err, apperror.ErrConflict) || attempt >= p.Retries {
			return result, err
		}

		m.Retry()
		logger.Warn("booking conflict, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
		)

		timer := time.NewTimer(time.Duration(attempt+1) * p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
