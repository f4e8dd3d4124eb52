package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-participation/internal/classroom"
)

// GET /classes
func ListClassesHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classes, err := svc.ListClasses(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, classes)
	}
}

// POST /classes  { "name": "...", "semester": "..." }
func CreateClassHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Semester string `json:"semester"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		c, err := svc.CreateClass(r.Context(), classroom.Class{Name: req.Name, Semester: req.Semester})
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, c)
	}
}

// POST /classes/{classID}/roster  form or JSON num_students
func CreateRosterHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, _, ok := pathIDs(w, r, false)
		if !ok {
			return
		}
		n, ok := numStudents(r)
		if !ok {
			badRequest(w, "num_students must be an integer")
			return
		}
		students, err := svc.CreateRoster(r.Context(), classID, n)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, students)
	}
}

func numStudents(r *http.Request) (int, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			NumStudents int `json:"num_students"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return 0, false
		}
		return req.NumStudents, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("num_students")))
	return n, err == nil
}
