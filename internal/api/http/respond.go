package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-participation/internal/classroom"
	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/participation"
	"github.com/mind-engage/mindengage-participation/internal/validate"
)

type errorBody struct {
	Error      string                `json:"error"`
	Fields     []validate.FieldError `json:"fields,omitempty"`
	Unresolved []string              `json:"unresolved,omitempty"`
}

// respondJSON encodes v before writing the status, so an unencodable value
// becomes a 500 instead of a truncated success.
func respondJSON(w http.ResponseWriter, status int, v any) {
	var body []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		body = append(b, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// respondError maps service errors onto status codes. Anything unrecognised
// is logged and reported as 500 without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *validate.ValidationError
		unres *participation.UnresolvedError
	)
	switch {
	case errors.As(err, &unres):
		respondJSON(w, http.StatusConflict, errorBody{Error: "unresolved speakers", Unresolved: unres.Labels})
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, classroom.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, grading.ErrNotConfigured):
		respondJSON(w, http.StatusConflict, errorBody{Error: "grading settings not configured"})
	case errors.Is(err, classroom.ErrInvalid), errors.Is(err, participation.ErrInvalidInput):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		LoggerFrom(r).WithError(err).Error("request failed")
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func classParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "classID")), 10, 64)
	return id, err == nil && id > 0
}

func weekParam(r *http.Request) (int, bool) {
	w, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "week")))
	return w, err == nil
}

// pathIDs extracts the class and week URL params, writing 400 on failure.
func pathIDs(w http.ResponseWriter, r *http.Request, withWeek bool) (int64, int, bool) {
	classID, ok := classParam(r)
	if !ok {
		badRequest(w, "invalid class id")
		return 0, 0, false
	}
	if !withWeek {
		return classID, 0, true
	}
	week, ok := weekParam(r)
	if !ok {
		badRequest(w, "invalid week")
		return 0, 0, false
	}
	return classID, week, true
}
