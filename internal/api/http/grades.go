package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-participation/internal/classroom"
	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/validate"
)

// GET /classes/{classID}/grades
func GetGradesHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, _, ok := pathIDs(w, r, false)
		if !ok {
			return
		}
		g, err := svc.Grades(r.Context(), classID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, g)
	}
}

const adjustmentPrefix = "manual_adjustment_"

// POST /classes/{classID}/grades
// form: any settings field by name, manual_adjustment_<studentID>
func UpdateGradesHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, _, ok := pathIDs(w, r, false)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			badRequest(w, "bad form")
			return
		}
		adj, err := manualAdjustments(r.PostForm)
		if err != nil {
			respondError(w, r, err)
			return
		}
		g, err := svc.UpdateGrading(r.Context(), classID, r.PostForm, adj)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, g)
	}
}

// manualAdjustments collects manual_adjustment_<id> fields. Empty values are
// skipped; anything else must be a finite number.
func manualAdjustments(form map[string][]string) (map[int64]float64, error) {
	out := map[int64]float64{}
	var flds []validate.FieldError
	for k, vals := range form {
		if !strings.HasPrefix(k, adjustmentPrefix) || len(vals) == 0 {
			continue
		}
		raw := strings.TrimSpace(vals[0])
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(k, adjustmentPrefix), 10, 64)
		if err != nil {
			flds = append(flds, validate.FieldError{Field: k, Error: "unknown student"})
			continue
		}
		v, ok := grading.ParseFinite(raw)
		if !ok {
			flds = append(flds, validate.FieldError{Field: k, Error: k + " must be a finite number"})
			continue
		}
		out[id] = v
	}
	if len(flds) > 0 {
		return nil, validate.NewValidationError(errors.Wrap(validate.ErrInvalid, "manual adjustments"), flds...)
	}
	return out, nil
}

// GET /classes/{classID}/summary
func SummaryHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, _, ok := pathIDs(w, r, false)
		if !ok {
			return
		}
		sum, err := svc.Summary(r.Context(), classID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sum)
	}
}
