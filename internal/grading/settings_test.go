package grading

import (
	"math"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-participation/internal/validate"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
}

func TestEveryFieldNameIsAddressable(t *testing.T) {
	var s Settings
	for _, name := range SettingsFields {
		p, ok := s.Field(name)
		require.True(t, ok, name)
		*p = 1
	}
	assert.Equal(t, Settings{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, s)
	_, ok := s.Field("nope")
	assert.False(t, ok)
}

func TestApplyFormUpdatesOnlyPresentFields(t *testing.T) {
	s := DefaultSettings()
	err := s.ApplyForm(url.Values{
		"base_score":             {"70"},
		"max_instances_per_week": {" 3 "},
		"time_weight":            {""},
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, s.BaseScore)
	assert.Equal(t, 3.0, s.MaxInstancesPerWeek)
	assert.Equal(t, DefaultSettings().TimeWeight, s.TimeWeight)
}

func TestApplyFormRejectsBadValues(t *testing.T) {
	s := DefaultSettings()
	err := s.ApplyForm(url.Values{"base_score": {"abc"}, "sync_penalty": {"2"}})
	require.Error(t, err)

	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "base_score", verr.Fields[0].Field)
	assert.Equal(t, DefaultSettings(), s)

	err = s.ApplyForm(url.Values{"spread_points": {"-4"}})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "spread_points", verr.Fields[0].Field)
	assert.Equal(t, DefaultSettings(), s)
}

func TestApplyFormRejectsNonFinite(t *testing.T) {
	s := DefaultSettings()
	err := s.ApplyForm(url.Values{"sync_penalty": {"inf"}, "instance_weight": {"NaN"}, "time_weight": {"-Inf"}})
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 3)
	assert.Equal(t, "instance_weight", verr.Fields[0].Field)
	assert.Equal(t, "time_weight", verr.Fields[1].Field)
	assert.Equal(t, "sync_penalty", verr.Fields[2].Field)
	assert.Equal(t, DefaultSettings(), s)
}

func TestValidateRejectsNonFinite(t *testing.T) {
	s := DefaultSettings()
	s.SyncPenalty = math.Inf(1)
	err := s.Validate()
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "sync_penalty", verr.Fields[0].Field)
	assert.Equal(t, "sync_penalty must be a finite number", verr.Fields[0].Error)

	f := WeeklyFact{StudentID: 1, Week: 1, SpeakingSeconds: math.NaN()}
	assert.Error(t, validate.Struct(f))
}

func TestParseFinite(t *testing.T) {
	v, ok := ParseFinite(" -2.5 ")
	assert.True(t, ok)
	assert.Equal(t, -2.5, v)
	for _, raw := range []string{"inf", "+Inf", "-infinity", "NaN", "", "x"} {
		_, ok := ParseFinite(raw)
		assert.False(t, ok, raw)
	}
}

func TestWeeklyFactValidation(t *testing.T) {
	ok := WeeklyFact{StudentID: 1, Week: 2, SyncStatus: SyncVideoOff, AsyncStatus: AsyncMissed}
	require.NoError(t, validate.Struct(ok))

	bad := WeeklyFact{StudentID: 1, Week: 2, SyncStatus: "Sleeping", AsyncStatus: "Done"}
	err := validate.Struct(bad)
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "sync_status", verr.Fields[0].Field)
	assert.Equal(t, "sync_status must be one of Present, Absent, Video Off", verr.Fields[0].Error)
	assert.Equal(t, "async_status", verr.Fields[1].Field)
}

func TestBuildSummary(t *testing.T) {
	students := []Student{{ID: 2, SortKey: 2}, {ID: 1, SortKey: 1}}
	facts := []WeeklyFact{
		{StudentID: 1, Week: 1, SyncStatus: SyncPresent},
		{StudentID: 1, Week: 14, SyncStatus: SyncPresent},
		{StudentID: 2, Week: 3, SyncStatus: SyncAbsent},
		{StudentID: 7, Week: 3, SyncStatus: SyncAbsent},
	}
	sum := BuildSummary(students, facts, 0)
	assert.Len(t, sum.Weeks, DefaultWeeks)
	require.Len(t, sum.Rows, 2)
	assert.Equal(t, int64(1), sum.Rows[0].Student.ID)
	assert.Len(t, sum.Rows[0].Weeks, 1)
	assert.Equal(t, SyncAbsent, sum.Rows[1].Weeks[3].SyncStatus)
}
