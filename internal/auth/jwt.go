// Package auth issues and checks the credentials of the service: JWT bearer
// tokens for graduates, HTTP basic auth for the administrator, and the
// campus SSO (CAS) check behind POST /login.
//
// AUTHENTICATION FLOW:
//  1. Client POSTs sdu_id + password to /login
//  2. The CAS client validates them against the campus SSO and returns the
//     display name
//  3. The user is created or refreshed by sdu_id
//  4. An access token and a refresh token are issued, both carrying the
//     internal user ID as "sub"
//  5. Protected routes read "Authorization: Bearer <access token>"; the
//     refresh token is only accepted by POST /refresh
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"iss":"graduation-photo","sub":"<user id>","typ":"access","jti":"<uuid>","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sakif/graduation-photo/internal/apperror"
)

const Issuer = "graduation-photo"

// TokenType separates access tokens from refresh tokens. Without it a
// long-lived refresh token would also open every protected route.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// TokenPair is what /login and /refresh return.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}

// TokenService handles JWT creation and validation with one HMAC secret.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService. The secret should be at least 32
// bytes of random data in production:
//
//	JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// claims is the JWT payload. "typ" marks access vs refresh.
type claims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"typ"`
}

// IssuePair signs a fresh access and refresh token for userID.
func (s *TokenService) IssuePair(userID string) (TokenPair, error) {
	access, err := s.issue(userID, TokenAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.issue(userID, TokenRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func (s *TokenService) issue(userID string, typ TokenType, ttl time.Duration) (string, error) {
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    Issuer,
		},
		Type: typ,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, issuer, expiry and token type, and returns
// the user ID from "sub". Every failure is an Unauthorized AppError.
//
// jwt.WithValidMethods pins HS256, so a token claiming "alg":"none" or an
// RSA algorithm is rejected before the secret is ever used.
func (s *TokenService) Validate(tokenStr string, want TokenType) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.Unauthorized("token expired")
		}
		return "", apperror.Unauthorized("invalid token")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", apperror.Unauthorized("invalid token claims")
	}
	if c.Type != want {
		return "", apperror.Unauthorized(fmt.Sprintf("expected a %s token", want))
	}
	if c.Subject == "" {
		return "", apperror.Unauthorized("token has no subject")
	}
	return c.Subject, nil
}
