package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/mind-engage/mindengage-participation/internal/classroom"
	"github.com/mind-engage/mindengage-participation/internal/participation"
)

// MaxTranscriptBytes bounds uploads.
const MaxTranscriptBytes = 10 << 20

// GET /classes/{classID}/weeks/{week}
func GetWeekHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, week, ok := pathIDs(w, r, true)
		if !ok {
			return
		}
		v, err := svc.WeekView(r.Context(), classID, week)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

// POST /classes/{classID}/weeks/{week}
// form: sync_status_<studentID>, async_status_<studentID>
//
// Students with neither field in the form are left alone; a missing field
// keeps its stored value and an empty one clears it.
func SaveWeekHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, week, ok := pathIDs(w, r, true)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			badRequest(w, "bad form")
			return
		}
		view, err := svc.WeekView(r.Context(), classID, week)
		if err != nil {
			respondError(w, r, err)
			return
		}
		var updates []classroom.StatusUpdate
		for _, row := range view.Rows {
			syncVals, hasSync := r.PostForm[fmt.Sprintf("sync_status_%d", row.Student.ID)]
			asyncVals, hasAsync := r.PostForm[fmt.Sprintf("async_status_%d", row.Student.ID)]
			if !hasSync && !hasAsync {
				continue
			}
			u := classroom.StatusUpdate{
				StudentID:   row.Student.ID,
				SyncStatus:  row.Fact.SyncStatus,
				AsyncStatus: row.Fact.AsyncStatus,
			}
			if hasSync && len(syncVals) > 0 {
				u.SyncStatus = syncVals[0]
			}
			if hasAsync && len(asyncVals) > 0 {
				u.AsyncStatus = asyncVals[0]
			}
			updates = append(updates, u)
		}
		if err := svc.SaveWeek(r.Context(), classID, week, updates); err != nil {
			respondError(w, r, err)
			return
		}
		view, err = svc.WeekView(r.Context(), classID, week)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, view)
	}
}

type analysisResponse struct {
	Week    int                    `json:"week"`
	Cues    int                    `json:"cues"`
	Skipped int                    `json:"skipped_lines"`
	Upserts []participation.Upsert `json:"upserts"`
}

func analysisBody(out participation.Outcome) analysisResponse {
	ups := out.Upserts
	if ups == nil {
		ups = []participation.Upsert{}
	}
	return analysisResponse{Week: out.Week, Cues: out.Cues, Skipped: out.Skipped, Upserts: ups}
}

// POST /classes/{classID}/weeks/{week}/transcript
// multipart file field "transcript", or the raw transcript as the body.
func AnalyzeTranscriptHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, week, ok := pathIDs(w, r, true)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, MaxTranscriptBytes)
		text, err := readTranscript(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		out, err := svc.AnalyzeTranscript(r.Context(), classID, week, text)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, analysisBody(out))
	}
}

// POST /classes/{classID}/weeks/{week}/transcript/reanalyze
func ReanalyzeHandler(svc *classroom.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, week, ok := pathIDs(w, r, true)
		if !ok {
			return
		}
		out, err := svc.Reanalyze(r.Context(), classID, week)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, analysisBody(out))
	}
}

func readTranscript(r *http.Request) (string, error) {
	if err := r.ParseMultipartForm(MaxTranscriptBytes); err == nil {
		f, _, err := r.FormFile("transcript")
		if err != nil {
			return "", fmt.Errorf("transcript file required")
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("read transcript: %w", err)
		}
		return string(b), nil
	} else if err != http.ErrNotMultipart {
		return "", fmt.Errorf("bad multipart form: %w", err)
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("transcript file required")
	}
	return string(b), nil
}
