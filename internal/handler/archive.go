// Package handler contains the HTTP handlers.
//
// A handler parses the request (path params, query, JSON body), calls one
// service method and writes the response. Business rules stay in
// internal/service; errors go through writeError so every failure has the
// same JSON shape.
package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ritual-archive/internal/apperror"
	"github.com/sakif/ritual-archive/internal/auth"
	"github.com/sakif/ritual-archive/internal/model"
	"github.com/sakif/ritual-archive/internal/service"
)

// ArchiveHandler serves /api/archives and the ritual summary. Every route
// sits behind auth.RequireAuth, so the user ID is always in the context.
type ArchiveHandler struct {
	archives *service.ArchiveService
	logger   *slog.Logger
}

func NewArchiveHandler(archives *service.ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archives: archives, logger: logger}
}

// HandleList: GET /api/archives?page=&size=&sort=&search=&year=&month=
func (h *ArchiveHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.archives.List(r.Context(), userID, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleDates: GET /api/archives/dates → {"2024": [1, 1, 3], "2023": [12]}
func (h *ArchiveHandler) HandleDates(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	dates, err := h.archives.CreationDates(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

// HandleRandom: GET /api/archives/random. 204 when the user has nothing.
func (h *ArchiveHandler) HandleRandom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	archive, found, err := h.archives.Random(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, archive)
}

// HandleGet: GET /api/archives/{id}. Someone else's archive is a 404 too.
func (h *ArchiveHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	archive, found, err := h.archives.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, apperror.NotFound("archive", id))
		return
	}
	writeJSON(w, http.StatusOK, archive)
}

// HandleCreate: POST /api/archives → 201 {"id": "..."}
func (h *ArchiveHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var fields model.ArchiveFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.archives.Create(r.Context(), userID, fields)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/archives/"+id)
	writeJSON(w, http.StatusCreated, IDResponse{ID: id})
}

// HandleReplace: PUT /api/archives/{id}. The body is the complete field set.
func (h *ArchiveHandler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var fields model.ArchiveFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.archives.Replace(r.Context(), userID, chi.URLParam(r, "id"), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// HandleDelete: DELETE /api/archives/{id}. Always 204, even when nothing
// was there to delete.
func (h *ArchiveHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.archives.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRitual: GET /api/users/me/ritual
func (h *ArchiveHandler) HandleRitual(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	summary, err := h.archives.Ritual(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// requireUser writes a 401 and returns false when the request carries no
// user. RequireAuth normally guarantees one.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	return userID, true
}

func parseListQuery(v url.Values) (service.ListQuery, error) {
	q := service.ListQuery{
		Sort:   v.Get("sort"),
		Search: v.Get("search"),
	}

	var err error
	if q.Page, err = intParam(v, "page", 0); err != nil {
		return q, err
	}
	if q.Size, err = intParam(v, "size", 0); err != nil {
		return q, err
	}
	if q.Year, err = optionalIntParam(v, "year"); err != nil {
		return q, err
	}
	if q.Month, err = optionalIntParam(v, "month"); err != nil {
		return q, err
	}
	if q.Page < 0 {
		return q, apperror.ValidationFailed("page", "page must not be negative")
	}
	if q.Size < 0 {
		return q, apperror.ValidationFailed("size", "size must not be negative")
	}
	return q, nil
}

func intParam(v url.Values, name string, def int) (int, error) {
	p, err := optionalIntParam(v, name)
	if err != nil || p == nil {
		return def, err
	}
	return *p, nil
}

// optionalIntParam returns nil when the parameter is absent or blank.
func optionalIntParam(v url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return &n, nil
}
