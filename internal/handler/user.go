package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/graduation-photo/internal/apperror"
	"github.com/sakif/graduation-photo/internal/auth"
	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
)

// UserService is the part of service.UserService the handler calls.
type UserService interface {
	Get(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context, opts repository.ListOptions) ([]model.User, error)
	UpdateBooking(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	Delete(ctx context.Context, id string) (*model.User, error)
	Register(ctx context.Context, sduID, name string) (*model.User, error)
	Ticket(ctx context.Context, id string) ([]byte, error)
}

// UserHandler serves the signed-in user's own record ("/user") and the
// public user listing.
//
// Every /user route sits behind auth.RequireAuth, which puts the user ID
// from the access token into the request context. The ID is never taken
// from the URL, so a user can only ever read or change themselves.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// currentUserID fails closed when a route was mounted without RequireAuth.
func currentUserID(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("valid authentication required")
	}
	return id, nil
}

// HandleMe returns the current user with the booked Time embedded.
//
// HTTP: GET /user
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, err := currentUserID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate applies a merge-patch to the current user.
//
// HTTP: PUT /user
// REQUEST BODY (every key optional, null clears):
//
//	{"signed_up": true, "time_id": "ct4q...", "phone_number": null}
//
// A full slot answers 409 insufficient_capacity and nothing is changed.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := currentUserID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch model.UserPatch
	if err := model.DecodePatch(body, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.UpdateBooking(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleDelete removes the current user, giving their seat back.
//
// HTTP: DELETE /user
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := currentUserID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.users.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleTicket returns the check-in QR code of the current booking.
//
// HTTP: GET /user/ticket → image/png
func (h *UserHandler) HandleTicket(w http.ResponseWriter, r *http.Request) {
	id, err := currentUserID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	png, err := h.users.Ticket(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.logger.Warn("failed to write ticket", slog.String("error", err.Error()))
	}
}

// HandleList returns one page of users.
//
// HTTP: GET /users?skip=0&limit=20
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	users, err := h.users.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type registerRequest struct {
	SDUID string `json:"sdu_id"`
	Name  string `json:"name"`
}

// HandleRegister creates a user ahead of their first login.
//
// HTTP: POST /admin/users {"sdu_id": "...", "name": "..."} → 201
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.users.Register(r.Context(), req.SDUID, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
