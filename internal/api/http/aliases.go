package http

import (
	"encoding/json"
	"net/http"

	"github.com/mind-engage/mindengage-participation/internal/classroom"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
)

// GET /classes/{classID}/aliases
func ListAliasesHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, _, ok := pathIDs(w, r, false)
		if !ok {
			return
		}
		rules, err := svc.Aliases(r.Context(), classID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"aliases": rules})
	}
}

// PUT /classes/{classID}/aliases  { "aliases": [ {"alias": "...", "resolution": "..."} ] }
func PutAliasesHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, _, ok := pathIDs(w, r, false)
		if !ok {
			return
		}
		var req struct {
			Aliases []speaker.AliasRule `json:"aliases"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := svc.PutAliases(r.Context(), classID, req.Aliases); err != nil {
			respondError(w, r, err)
			return
		}
		rules, err := svc.Aliases(r.Context(), classID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"aliases": rules})
	}
}
