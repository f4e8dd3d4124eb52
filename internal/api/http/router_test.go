package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/mind-engage/mindengage-participation/internal/auth/middleware"
	"github.com/mind-engage/mindengage-participation/internal/classroom"
	"github.com/mind-engage/mindengage-participation/internal/db"
	"github.com/mind-engage/mindengage-participation/internal/rbac"
	"github.com/mind-engage/mindengage-participation/internal/storage"
	syncx "github.com/mind-engage/mindengage-participation/internal/sync"
)

const transcript = `WEBVTT

00:00:01.000 --> 00:00:06.000
Student-1: First point.

00:00:07.000 --> 00:00:09.000
Student-2: Agreed.

00:00:20.000 --> 00:00:24.000
Dr. Lee: Thanks both.
`

type testServer struct {
	srv        *httptest.Server
	instructor string
	assistant  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	svc := classroom.NewService(classroom.NewInMemoryStore(), classroom.WithArchive(blobs))
	a := auth.NewAuthService("test-secret")

	r := NewRouter(Deps{Service: svc, Auth: a, Credentials: auth.NewStaticChecker()})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	inst, err := a.IssueJWT("prof", rbac.RoleInstructor)
	require.NoError(t, err)
	asst, err := a.IssueJWT("ta", rbac.RoleAssistant)
	require.NoError(t, err)
	return &testServer{srv: srv, instructor: inst, assistant: asst}
}

func (s *testServer) do(t *testing.T, method, path, token, contentType string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func (s *testServer) json(t *testing.T, method, path, token string, v any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return s.do(t, method, path, token, "application/json", bytes.NewReader(b))
}

func (s *testServer) form(t *testing.T, path, token string, v url.Values) (*http.Response, []byte) {
	t.Helper()
	return s.do(t, http.MethodPost, path, token, "application/x-www-form-urlencoded", strings.NewReader(v.Encode()))
}

func (s *testServer) setupClass(t *testing.T, n int) (classroom.Class, []classroom.Student) {
	t.Helper()
	resp, body := s.json(t, http.MethodPost, "/classes", s.instructor, map[string]string{"name": "Ethics", "semester": "Fall"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var c classroom.Class
	require.NoError(t, json.Unmarshal(body, &c))

	resp, body = s.form(t, fmt.Sprintf("/classes/%d/roster", c.ID), s.instructor, url.Values{"num_students": {fmt.Sprint(n)}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var students []classroom.Student
	require.NoError(t, json.Unmarshal(body, &students))
	return c, students
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/readyz", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthAndPermissions(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, http.MethodGet, "/classes", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.json(t, http.MethodPost, "/classes", s.assistant, map[string]string{"name": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	c, _ := s.setupClass(t, 2)
	resp, _ = s.do(t, http.MethodGet, fmt.Sprintf("/classes/%d/grades", c.ID), s.assistant, "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, fmt.Sprintf("/classes/%d/summary", c.ID), s.assistant, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRosterBounds(t *testing.T) {
	s := newTestServer(t)
	c, students := s.setupClass(t, 3)
	assert.Equal(t, "Student-3", students[2].Name)

	for _, n := range []string{"0", "201", "abc"} {
		resp, _ := s.form(t, fmt.Sprintf("/classes/%d/roster", c.ID), s.instructor, url.Values{"num_students": {n}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, n)
	}
	resp, _ := s.form(t, "/classes/999/roster", s.instructor, url.Values{"num_students": {"2"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTranscriptFlow(t *testing.T) {
	s := newTestServer(t)
	c, students := s.setupClass(t, 2)
	base := fmt.Sprintf("/classes/%d", c.ID)

	// multipart upload with an unknown speaker
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("transcript", "week1.vtt")
	require.NoError(t, err)
	_, err = fw.Write([]byte(transcript))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, body := s.do(t, http.MethodPost, base+"/weeks/1/transcript", s.assistant, mw.FormDataContentType(), &buf)
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	var conflict struct {
		Unresolved []string `json:"unresolved"`
	}
	require.NoError(t, json.Unmarshal(body, &conflict))
	assert.Equal(t, []string{"Dr. Lee"}, conflict.Unresolved)

	// bad alias target is rejected as a whole
	resp, _ = s.json(t, http.MethodPut, base+"/aliases", s.assistant, map[string]any{
		"aliases": []map[string]string{{"alias": "Dr. Lee", "resolution": "Student-7"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.json(t, http.MethodPut, base+"/aliases", s.assistant, map[string]any{
		"aliases": []map[string]string{{"alias": "Dr. Lee", "resolution": "PROFESSOR"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = s.do(t, http.MethodPost, base+"/weeks/1/transcript/reanalyze", s.assistant, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out analysisResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 3, out.Cues)
	require.Len(t, out.Upserts, 2)
	assert.Equal(t, students[0].ID, out.Upserts[0].StudentID)
	assert.InDelta(t, 5.0, out.Upserts[0].SpeakingSeconds, 1e-9)

	// raw body upload works too
	resp, body = s.do(t, http.MethodPost, base+"/weeks/2/transcript", s.assistant, "text/vtt", strings.NewReader(transcript))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = s.do(t, http.MethodPost, base+"/weeks/2/transcript", s.assistant, "text/vtt", strings.NewReader(""))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, base+"/weeks/0/transcript", s.assistant, "text/vtt", strings.NewReader(transcript))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWeekFormAndGrades(t *testing.T) {
	s := newTestServer(t)
	c, students := s.setupClass(t, 2)
	base := fmt.Sprintf("/classes/%d", c.ID)
	a, b := students[0].ID, students[1].ID

	resp, body := s.form(t, base+"/weeks/1", s.assistant, url.Values{
		fmt.Sprintf("sync_status_%d", a):  {"Absent"},
		fmt.Sprintf("async_status_%d", a): {"Missed"},
		fmt.Sprintf("sync_status_%d", b):  {"Video Off"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var view classroom.WeekView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "Absent", view.Rows[0].Fact.SyncStatus)
	assert.Equal(t, "Video Off", view.Rows[1].Fact.SyncStatus)

	// only async for b: sync keeps its value
	resp, body = s.form(t, base+"/weeks/1", s.assistant, url.Values{fmt.Sprintf("async_status_%d", b): {"Completed"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "Video Off", view.Rows[1].Fact.SyncStatus)
	assert.Equal(t, "Completed", view.Rows[1].Fact.AsyncStatus)

	resp, _ = s.form(t, base+"/weeks/1", s.assistant, url.Values{fmt.Sprintf("sync_status_%d", a): {"Late"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.form(t, base+"/grades", s.instructor, url.Values{
		"free_sync_absences":                 {"0"},
		fmt.Sprintf("manual_adjustment_%d", b): {"2"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var g classroom.GradesView
	require.NoError(t, json.Unmarshal(body, &g))
	require.Len(t, g.Report.Results, 2)
	// 85 - 1 absence * 2 - 0 async (one free)
	assert.Equal(t, 83.0, g.Report.Results[0].FinalGrade)
	assert.Equal(t, 87.0, g.Report.Results[1].FinalGrade)
	require.NotNil(t, g.Report.Averages)
	assert.Equal(t, 85.0, g.Report.Averages.FinalGrade)

	resp, body = s.form(t, base+"/grades", s.instructor, url.Values{"base_score": {"lots"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "base_score")

	resp, _ = s.form(t, base+"/grades", s.instructor, url.Values{"manual_adjustment_x": {"1"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGradesRejectNonFiniteValues(t *testing.T) {
	s := newTestServer(t)
	c, students := s.setupClass(t, 1)
	base := fmt.Sprintf("/classes/%d", c.ID)

	for _, form := range []url.Values{
		{"sync_penalty": {"inf"}},
		{"instance_weight": {"NaN"}},
		{fmt.Sprintf("manual_adjustment_%d", students[0].ID): {"NaN"}},
		{fmt.Sprintf("manual_adjustment_%d", students[0].ID): {"-Inf"}},
	} {
		resp, body := s.form(t, base+"/grades", s.instructor, form)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, form.Encode())
		assert.Contains(t, string(body), "finite", form.Encode())
	}

	// nothing was stored: defaults still grade at 85
	resp, body := s.do(t, http.MethodGet, base+"/grades", s.instructor, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var g classroom.GradesView
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Equal(t, 2.0, g.Settings.SyncPenalty)
	assert.Equal(t, 85.0, g.Report.Results[0].FinalGrade)
}

func TestRespondJSONUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]float64{"grade": math.NaN()})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEventsFeed(t *testing.T) {
	d, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	events := syncx.NewEventRepo(d)
	svc := classroom.NewService(classroom.NewSQLStore(d), classroom.WithEvents(events))
	a := auth.NewAuthService("test-secret")
	srv := httptest.NewServer(NewRouter(Deps{Service: svc, Auth: a, Credentials: auth.NewStaticChecker(), Events: events}))
	t.Cleanup(srv.Close)

	admin, err := a.IssueJWT("root", rbac.RoleAdmin)
	require.NoError(t, err)
	inst, err := a.IssueJWT("prof", rbac.RoleInstructor)
	require.NoError(t, err)
	s := &testServer{srv: srv, instructor: inst}
	c, _ := s.setupClass(t, 2)

	resp, _ := s.do(t, http.MethodGet, "/events", inst, "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/events?after=0&limit=10", admin, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var feed []struct {
		Seq  int64  `json:"seq"`
		Typ  string `json:"typ"`
		Key  string `json:"key"`
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &feed))
	require.Len(t, feed, 1)
	assert.Equal(t, syncx.TypeRosterReplaced, feed[0].Typ)
	assert.Equal(t, fmt.Sprint(c.ID), feed[0].Key)
	assert.JSONEq(t, `{"num_students":2}`, feed[0].Data)

	resp, body = s.do(t, http.MethodGet, fmt.Sprintf("/events?after=%d", feed[0].Seq), admin, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}
