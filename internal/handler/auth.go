package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/graduation-photo/internal/auth"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/service"
)

// Authenticator is the part of service.AuthService the handler calls.
type Authenticator interface {
	Login(ctx context.Context, sduID, password string) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
}

// AuthHandler exchanges campus credentials for tokens.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin   → POST /login   {sdu_id, password}
//   - HandleRefresh → POST /refresh {refresh_token}
//
// Both answer with the same body: the token pair plus the user.
type AuthHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

func NewAuthHandler(authenticator Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authenticator, logger: logger}
}

type loginRequest struct {
	SDUID    string `json:"sdu_id"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is the body of /login and /refresh.
type TokenResponse struct {
	auth.TokenPair
	User *model.User `json:"user"`
}

// HandleLogin checks the credentials with the campus SSO. A wrong password
// and an unreachable SSO both answer 401; the detail is only logged.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.SDUID, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{TokenPair: result.Tokens, User: result.User})
}

func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{TokenPair: result.Tokens, User: result.User})
}
