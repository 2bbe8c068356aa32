// Package service holds the business logic between the HTTP handlers and the store.
//
// AuthService turns a student number and password into a pair of tokens:
//
//	AuthHandler (HTTP) → AuthService → IdentityValidator (campus SSO)
//	                                 ↘ UserRepository (DB)
//	                                 ↘ TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Check credentials with the campus SSO; we never store student passwords
//   - Create the user on first login, refresh their display name afterwards
//   - Issue and refresh access/refresh token pairs
//
// Nothing here knows about HTTP. Errors come back as apperror kinds and the
// handler decides the status code.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/auth"
	"github.com/sakif/graduation-photo/internal/metrics"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// Login results used as the metrics label.
const (
	loginSuccess = "success"
	loginFailure = "failure"
	loginError   = "error"
)

// AuthService handles login and token refresh.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users     repository.UserRepository → upsert/lookup user records
//   - identity  auth.IdentityValidator    → the campus SSO
//   - tokens    *auth.TokenService        → issue/validate JWTs
//   - metrics   *metrics.Metrics          → login counters (may be nil)
//   - logger    *slog.Logger              → structured logging
type AuthService struct {
	users    repository.UserRepository
	identity auth.IdentityValidator
	tokens   *auth.TokenService
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	identity auth.IdentityValidator,
	tokens *auth.TokenService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		identity: identity,
		tokens:   tokens,
		metrics:  m,
		logger:   logger,
	}
}

// AuthResult bundles the user record and the issued tokens so the handler
// can respond in one step.
type AuthResult struct {
	User   *model.User
	Tokens auth.TokenPair
}

// Login validates the credentials with the campus SSO and issues tokens.
//
// FLOW:
//  1. Reject empty credentials without calling the SSO
//  2. ValidateIdentity → display name (any SSO failure is Unauthorized)
//  3. Upsert on sdu_id: first login creates the user, later logins only
//     refresh the name. Booking state is never touched here.
//  4. Issue an access/refresh pair whose subject is our internal user ID
func (s *AuthService) Login(ctx context.Context, sduID, password string) (*AuthResult, error) {
	sduID = strings.TrimSpace(sduID)
	if sduID == "" {
		return nil, apperror.ValidationFailed("sdu_id", "sdu_id is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	identity, err := s.identity.ValidateIdentity(ctx, sduID, password)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			s.metrics.Login(loginFailure)
			s.logger.Info("login rejected by SSO", slog.String("sduID", sduID))
		} else {
			s.metrics.Login(loginError)
		}
		return nil, fmt.Errorf("service/auth: validating identity: %w", err)
	}

	user := &model.User{SDUID: sduID, Name: identity.Name}
	if err := s.users.UpsertUserBySDUID(ctx, user); err != nil {
		s.metrics.Login(loginError)
		return nil, fmt.Errorf("service/auth: upserting user (sduID=%s): %w", sduID, err)
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		s.metrics.Login(loginError)
		return nil, fmt.Errorf("service/auth: issuing tokens for user %s: %w", user.ID, err)
	}

	s.metrics.Login(loginSuccess)
	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("sduID", user.SDUID),
	)
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Refresh exchanges a valid refresh token for a new pair. Access tokens are
// rejected, and so is a token whose user has since been deleted.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	userID, err := s.tokens.Validate(refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("user no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}
