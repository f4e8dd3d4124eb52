package participation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-participation/internal/speaker"
	"github.com/mind-engage/mindengage-participation/internal/transcript"
)

const (
	alice = int64(1)
	bob   = int64(2)
)

func student(id int64) speaker.Resolution {
	return speaker.Resolution{Kind: speaker.Roster, StudentID: id}
}

var (
	prof    = speaker.Resolution{Kind: speaker.NonGraded, Label: "PROFESSOR"}
	ignored = speaker.Resolution{Kind: speaker.Ignored, Label: "iPhone"}
)

type step struct {
	start, end float64
	who        speaker.Resolution
}

func run(steps ...step) *Segmenter {
	s := NewSegmenter()
	for _, st := range steps {
		s.Observe(transcript.Cue{Start: st.start, End: st.end}, st.who)
	}
	return s
}

func TestGapOverThresholdStartsNewInstance(t *testing.T) {
	s := run(
		step{0, 5, student(alice)},
		step{10, 15, student(alice)},
		step{100, 104, student(alice)},
	)
	st := s.Stats(alice)
	assert.Equal(t, 2, st.Instances)
	assert.InDelta(t, 14.0, st.TotalSeconds, 1e-9)
	assert.InDelta(t, 100.0, st.LastStart, 1e-9)
}

func TestGapEqualToThresholdContinues(t *testing.T) {
	s := run(
		step{10, 11, student(alice)},
		step{55, 56, student(alice)},
	)
	assert.Equal(t, 1, s.Stats(alice).Instances)
}

func TestGradedInterruptionSplits(t *testing.T) {
	s := run(
		step{0, 4, student(alice)},
		step{5, 9, student(bob)},
		step{10, 12, student(alice)},
	)
	assert.Equal(t, 2, s.Stats(alice).Instances)
	assert.Equal(t, 1, s.Stats(bob).Instances)
}

func TestNonGradedInterruptionDoesNotSplit(t *testing.T) {
	s := run(
		step{0, 4, student(alice)},
		step{5, 9, prof},
		step{10, 12, student(alice)},
	)
	assert.Equal(t, 1, s.Stats(alice).Instances)
	assert.Equal(t, 3, s.OrderLen())
}

func TestIgnoredSpeakerNeverCountedNorSplits(t *testing.T) {
	s := run(
		step{0, 4, student(alice)},
		step{5, 30, ignored},
		step{10, 12, student(alice)},
	)
	assert.Equal(t, 1, s.Stats(alice).Instances)
	assert.InDelta(t, 6.0, s.Stats(alice).TotalSeconds, 1e-9)
}

func TestFirstCueAtZeroIsStillTracked(t *testing.T) {
	s := run(
		step{0, 1, student(alice)},
		step{1, 2, student(alice)},
	)
	assert.Equal(t, 1, s.Stats(alice).Instances)
}

func TestNegativeDurationContributesNothing(t *testing.T) {
	s := run(
		step{10, 4, student(alice)},
		step{12, 15, student(alice)},
	)
	st := s.Stats(alice)
	assert.InDelta(t, 3.0, st.TotalSeconds, 1e-9)
	assert.Equal(t, 1, st.Instances)
}

func TestStatsAreMonotonic(t *testing.T) {
	s := NewSegmenter()
	var prev SpeakingStats
	for i, who := range []speaker.Resolution{student(alice), student(bob), student(alice), prof, student(alice)} {
		s.Observe(transcript.Cue{Start: float64(i * 20), End: float64(i*20 + 3)}, who)
		cur := s.Stats(alice)
		assert.GreaterOrEqual(t, cur.TotalSeconds, prev.TotalSeconds)
		assert.GreaterOrEqual(t, cur.Instances, prev.Instances)
		prev = cur
	}
}

func TestUnknownStudentHasZeroStats(t *testing.T) {
	s := run(step{0, 1, student(alice)})
	st := s.Stats(bob)
	assert.True(t, st.IsZero())
	assert.False(t, st.Spoken())
}
