package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"crisishub/core/dispatch"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDispatchError maps the engine's error taxonomy onto HTTP codes.
func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, dispatch.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, dispatch.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, dispatch.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func pageParams(r *http.Request, defaultSize int) (limit, offset int) {
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit = parseIntDefault(r.URL.Query().Get("per_page"), defaultSize)
	if limit < 1 || limit > 100 {
		limit = defaultSize
	}
	return limit, (page - 1) * limit
}
