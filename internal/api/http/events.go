package http

import (
	"net/http"
	"strconv"
	"time"

	syncx "github.com/mind-engage/mindengage-participation/internal/sync"
)

// GET /events?after=<seq>&limit=<n>
// Audit feed of analysis passes and saves, oldest first.
func ListEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		evs, err := events.Since(r.Context(), after, limit)
		if err != nil {
			respondError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(evs))
		for _, e := range evs {
			out = append(out, map[string]any{
				"seq":        e.Seq,
				"id":         e.ID,
				"typ":        e.Type,
				"key":        e.Key,
				"data":       e.DataJSON,
				"created_at": time.Unix(e.CreatedAt, 0).UTC(),
			})
		}
		respondJSON(w, http.StatusOK, out)
	}
}
