// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"repodex/internal/store"
)

// maxBodyBytes caps JSON request bodies. The largest legitimate payload is
// a settings batch; nothing the API accepts approaches a megabyte.
const maxBodyBytes = 1 << 20

// respondJSON writes v as the JSON response body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("response encode failed", "error", err)
		}
	}
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error string `json:"error"`
}

// respondError maps a store-layer error onto an HTTP status. Validation
// problems are 400, missing ids 404, state conflicts (duplicates, cycles,
// non-empty deletes, concurrent enrichment) 409. Anything unrecognized is
// a 500 whose detail is logged, never echoed.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *store.ValidationError
		conflict   *store.ConflictError
		cycle      *store.CycleError
		notEmpty   *store.NotEmptyError
	)
	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: validation.Reason})
	case errors.Is(err, store.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.As(err, &conflict):
		respondJSON(w, http.StatusConflict, errorBody{Error: conflict.Reason})
	case errors.As(err, &cycle):
		respondJSON(w, http.StatusConflict, errorBody{Error: cycle.Reason})
	case errors.As(err, &notEmpty):
		respondJSON(w, http.StatusConflict, errorBody{Error: notEmpty.Reason})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

// decodeJSON parses the request body into dst, rejecting unknown fields
// and trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &store.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)}
	}
	if dec.More() {
		return &store.ValidationError{Reason: "invalid request body: trailing data"}
	}
	return nil
}

// idParam parses the {id} route parameter.
func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, &store.ValidationError{Reason: "invalid id"}
	}
	return id, nil
}

// queryInt parses an optional integer query parameter, returning 0 when
// absent or malformed.
func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// queryInt64Ptr parses an optional int64 query parameter, nil when absent
// or malformed.
func queryInt64Ptr(r *http.Request, key string) *int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
