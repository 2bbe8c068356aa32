package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/graduation-photo/internal/model"
	"github.com/sakif/graduation-photo/internal/repository"
	"github.com/sakif/graduation-photo/internal/service"
)

// CatalogService is the part of service.CatalogService the handler calls.
type CatalogService interface {
	ListCampuses(ctx context.Context, opts repository.ListOptions) ([]model.Campus, error)
	GetCampus(ctx context.Context, id string) (*model.Campus, error)
	CreateCampus(ctx context.Context, name string) (*model.Campus, error)
	UpdateCampus(ctx context.Context, id string, patch model.CampusPatch) (*model.Campus, error)
	DeleteCampus(ctx context.Context, id string) (*model.Campus, error)

	ListTimes(ctx context.Context, filter repository.TimeFilter, opts repository.ListOptions) ([]model.Time, error)
	GetTime(ctx context.Context, id string) (*model.Time, error)
	CreateTime(ctx context.Context, in service.NewTime) (*model.Time, error)
	UpdateTime(ctx context.Context, id string, patch model.TimePatch) (*model.Time, error)
	DeleteTime(ctx context.Context, id string) (*model.Time, error)
	AdjustCapacity(ctx context.Context, id string, delta int) (*model.Time, error)
}

// CatalogHandler serves campuses and time slots.
//
// Reads are public (GET /campuses, GET /times, ...). The write handlers are
// mounted under /admin behind auth.RequireAdmin.
type CatalogHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

func NewCatalogHandler(catalog CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// HTTP: GET /campuses?skip=0&limit=20
func (h *CatalogHandler) HandleListCampuses(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	campuses, err := h.catalog.ListCampuses(r.Context(), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campuses)
}

// HTTP: GET /campuses/{id}
func (h *CatalogHandler) HandleGetCampus(w http.ResponseWriter, r *http.Request) {
	campus, err := h.catalog.GetCampus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campus)
}

type campusRequest struct {
	Name string `json:"name"`
}

// HTTP: POST /admin/campuses {"name": "..."} → 201
func (h *CatalogHandler) HandleCreateCampus(w http.ResponseWriter, r *http.Request) {
	var req campusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	campus, err := h.catalog.CreateCampus(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, campus)
}

// HTTP: PATCH /admin/campuses/{id} (merge-patch)
func (h *CatalogHandler) HandleUpdateCampus(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch model.CampusPatch
	if err := model.DecodePatch(body, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	campus, err := h.catalog.UpdateCampus(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campus)
}

// HTTP: DELETE /admin/campuses/{id} → the removed campus, or 409 while it
// still has time slots.
func (h *CatalogHandler) HandleDeleteCampus(w http.ResponseWriter, r *http.Request) {
	campus, err := h.catalog.DeleteCampus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campus)
}

// HTTP: GET /times?skip=0&limit=20&campus_id=...
func (h *CatalogHandler) HandleListTimes(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter := repository.TimeFilter{CampusID: r.URL.Query().Get("campus_id")}
	times, err := h.catalog.ListTimes(r.Context(), filter, opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, times)
}

// HTTP: GET /times/{id}
func (h *CatalogHandler) HandleGetTime(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.GetTime(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HTTP: POST /admin/times {"start", "end", "capacity", "campus_id"} → 201
func (h *CatalogHandler) HandleCreateTime(w http.ResponseWriter, r *http.Request) {
	var req service.NewTime
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.catalog.CreateTime(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HTTP: PATCH /admin/times/{id} {"start"?, "end"?}. Capacity is rejected
// here; use the capacity endpoint.
func (h *CatalogHandler) HandleUpdateTime(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch model.TimePatch
	if err := model.DecodePatch(body, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.catalog.UpdateTime(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HTTP: DELETE /admin/times/{id} → the removed slot, or 409 while users
// reference it.
func (h *CatalogHandler) HandleDeleteTime(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.DeleteTime(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type capacityRequest struct {
	Delta int `json:"delta"`
}

// HandleAdjustCapacity opens or withdraws free seats of a slot.
//
// HTTP: POST /admin/times/{id}/capacity {"delta": -2}
// A delta that would leave fewer than zero free seats answers 409
// insufficient_capacity.
func (h *CatalogHandler) HandleAdjustCapacity(w http.ResponseWriter, r *http.Request) {
	var req capacityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.catalog.AdjustCapacity(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
