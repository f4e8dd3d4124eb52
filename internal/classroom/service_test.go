package classroom

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/participation"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
	"github.com/mind-engage/mindengage-participation/internal/storage"
	syncx "github.com/mind-engage/mindengage-participation/internal/sync"
	"github.com/mind-engage/mindengage-participation/internal/validate"
)

const lecture = `WEBVTT

00:00:00.000 --> 00:00:04.000
Student-1: Opening thought.

00:00:05.000 --> 00:00:08.000
Student-2: A reply.

00:00:10.000 --> 00:00:12.000
Student-1: Back to me.

00:00:13.000 --> 00:00:20.000
PROFESSOR: Good, continue.

00:00:21.000 --> 00:00:25.000
Student-1: Continuing.

00:02:00.000 --> 00:02:10.000
Jamie: I joined from my phone.
`

type fixture struct {
	svc      *Service
	events   *syncx.EventRepo
	class    Class
	students []Student
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	d := openTestDB(t)
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	events := syncx.NewEventRepo(d)
	svc := NewService(NewSQLStore(d), WithEvents(events), WithArchive(blobs))

	ctx := context.Background()
	c, err := svc.CreateClass(ctx, Class{Name: " Ethics ", Semester: "Fall"})
	require.NoError(t, err)
	students, err := svc.CreateRoster(ctx, c.ID, 3)
	require.NoError(t, err)
	return fixture{svc: svc, events: events, class: c, students: students}
}

func TestCreateClassValidates(t *testing.T) {
	svc := NewService(NewInMemoryStore())
	_, err := svc.CreateClass(context.Background(), Class{Name: "   "})
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Fields[0].Field)

	c, err := svc.CreateClass(context.Background(), Class{Name: " Ethics "})
	require.NoError(t, err)
	assert.Equal(t, "Ethics", c.Name)
}

func TestAnalyzeTranscriptUnresolvedThenAliased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.AnalyzeTranscript(ctx, f.class.ID, 3, lecture)
	var unresolved *participation.UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []string{"Jamie"}, unresolved.Labels)
	assert.Equal(t, []string{"Jamie"}, out.Unresolved)

	facts, err := f.svc.store.ListFacts(ctx, f.class.ID)
	require.NoError(t, err)
	assert.Empty(t, facts)

	require.NoError(t, f.svc.PutAliases(ctx, f.class.ID, []speaker.AliasRule{{Alias: "jamie", Resolution: "Student-2"}}))

	out, err = f.svc.Reanalyze(ctx, f.class.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []participation.Upsert{
		{StudentID: f.students[0].ID, SpeakingSeconds: 10, SpeakingInstances: 2},
		{StudentID: f.students[1].ID, SpeakingSeconds: 13, SpeakingInstances: 2},
	}, out.Upserts)

	facts, err = f.svc.store.WeekFacts(ctx, f.class.ID, 3)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, 2, facts[1].SpeakingInstances)

	// a second pass overwrites rather than accumulates
	_, err = f.svc.AnalyzeTranscript(ctx, f.class.ID, 3, lecture)
	require.NoError(t, err)
	facts, err = f.svc.store.WeekFacts(ctx, f.class.ID, 3)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, facts[0].SpeakingSeconds, 1e-9)

	evs, err := f.events.Since(ctx, 0, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		syncx.TypeRosterReplaced,
		syncx.TypeAliasesUpdated,
		syncx.TypeTranscriptAnalyzed,
		syncx.TypeTranscriptAnalyzed,
	}, types)
	assert.Equal(t, "1:3", evs[2].Key)
	assert.NotEmpty(t, evs[2].ID)
}

func TestAnalyzeTranscriptRejectsBadWeekAndClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AnalyzeTranscript(ctx, f.class.ID, 0, lecture)
	assert.True(t, errors.Is(err, ErrInvalid))
	_, err = f.svc.AnalyzeTranscript(ctx, f.class.ID, grading.DefaultWeeks+1, lecture)
	assert.True(t, errors.Is(err, ErrInvalid))
	_, err = f.svc.AnalyzeTranscript(ctx, f.class.ID+50, 1, lecture)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = f.svc.Reanalyze(ctx, f.class.ID, 9)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPutAliasesValidatesResolution(t *testing.T) {
	f := newFixture(t)
	err := f.svc.PutAliases(context.Background(), f.class.ID, []speaker.AliasRule{
		{Alias: "Jamie", Resolution: "Student-9"},
		{Alias: "", Resolution: speaker.Ignore},
		{Alias: "Dr. Lee", Resolution: "professor"},
	})
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "aliases[0].resolution", verr.Fields[0].Field)
	assert.Equal(t, "aliases[1].alias", verr.Fields[1].Field)

	rules, err := f.svc.Aliases(context.Background(), f.class.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSaveWeekAndWeekView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SaveWeek(ctx, f.class.ID, 2, []StatusUpdate{{StudentID: f.students[0].ID, SyncStatus: "Asleep"}})
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))

	require.NoError(t, f.svc.SaveWeek(ctx, f.class.ID, 2, []StatusUpdate{
		{StudentID: f.students[0].ID, SyncStatus: grading.SyncAbsent, AsyncStatus: grading.AsyncMissed},
	}))
	v, err := f.svc.WeekView(ctx, f.class.ID, 2)
	require.NoError(t, err)
	require.Len(t, v.Rows, 3)
	assert.Equal(t, grading.SyncAbsent, v.Rows[0].Fact.SyncStatus)
	assert.Equal(t, f.students[1].ID, v.Rows[1].Fact.StudentID)
	assert.Equal(t, 2, v.Rows[1].Fact.Week)
	assert.Equal(t, "", v.Rows[1].Fact.SyncStatus)
}

func TestGradesAndUpdateGrading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SaveWeek(ctx, f.class.ID, 1, []StatusUpdate{
		{StudentID: f.students[0].ID, SyncStatus: grading.SyncAbsent},
	}))

	g, err := f.svc.Grades(ctx, f.class.ID)
	require.NoError(t, err)
	require.Len(t, g.Report.Results, 3)
	// one absence is free by default
	assert.Equal(t, 85.0, g.Report.Results[0].FinalGrade)

	g, err = f.svc.UpdateGrading(ctx, f.class.ID,
		url.Values{"free_sync_absences": {"0"}, "sync_penalty": {"4"}},
		map[int64]float64{f.students[2].ID: 1.5})
	require.NoError(t, err)
	assert.Equal(t, 81.0, g.Report.Results[0].FinalGrade)
	assert.Equal(t, 86.5, g.Report.Results[2].FinalGrade)
	assert.Equal(t, 4.0, g.Settings.SyncPenalty)

	_, err = f.svc.UpdateGrading(ctx, f.class.ID, url.Values{"base_score": {"x"}}, nil)
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestUpdateGradingRejectsNonFiniteAdjustment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpdateGrading(ctx, f.class.ID,
		url.Values{"sync_penalty": {"5"}},
		map[int64]float64{f.students[1].ID: math.NaN()})
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, fmt.Sprintf("manual_adjustment_%d", f.students[1].ID), verr.Fields[0].Field)

	g, err := f.svc.Grades(ctx, f.class.ID)
	require.NoError(t, err)
	assert.Equal(t, grading.DefaultSettings(), g.Settings)
	assert.Equal(t, 0.0, g.Report.Results[1].ManualAdjustment)
}

func TestGradesNotConfigured(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.store.(*SQLStore).db.Exec(`DELETE FROM settings`)
	require.NoError(t, err)

	_, err = f.svc.Grades(context.Background(), f.class.ID)
	assert.True(t, errors.Is(err, grading.ErrNotConfigured))

	// visiting a week creates the row again
	_, err = f.svc.WeekView(context.Background(), f.class.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Grades(context.Background(), f.class.ID)
	require.NoError(t, err)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SaveWeek(ctx, f.class.ID, 13, []StatusUpdate{
		{StudentID: f.students[2].ID, SyncStatus: grading.SyncPresent},
	}))
	sum, err := f.svc.Summary(ctx, f.class.ID)
	require.NoError(t, err)
	assert.Len(t, sum.Weeks, 13)
	require.Len(t, sum.Rows, 3)
	assert.Equal(t, grading.SyncPresent, sum.Rows[2].Weeks[13].SyncStatus)
}
