// Package participation turns resolved transcript cues into per-student
// speaking totals and turn ("instance") counts.
package participation

import (
	"github.com/mind-engage/mindengage-participation/internal/speaker"
	"github.com/mind-engage/mindengage-participation/internal/transcript"
)

// GapThreshold is the pause, in seconds, after which a student's next cue
// always starts a new instance.
const GapThreshold = 45.0

// SpeakingStats accumulates one student's speech over one analysis pass.
type SpeakingStats struct {
	TotalSeconds float64 `json:"speaking_seconds"`
	Instances    int     `json:"speaking_instances"`
	LastStart    float64 `json:"last_speak_start"`
	spoken       bool
}

// Spoken reports whether the student had at least one cue in the pass.
func (s SpeakingStats) Spoken() bool { return s.spoken }

// IsZero reports whether there is nothing worth persisting.
func (s SpeakingStats) IsZero() bool { return s.TotalSeconds <= 0 && s.Instances == 0 }

// participant is one entry of the speaking order.
type participant struct {
	graded    bool
	studentID int64
}

// Segmenter decides, cue by cue, where a student's turns begin.
//
// A cue starts a new instance when the student has not spoken yet in the pass,
// when more than GapThreshold seconds passed since the student's previous cue
// started, or when a different roster student spoke in between. Non-graded
// and ignored speakers are kept in the order but never split a turn.
type Segmenter struct {
	order []participant
	stats map[int64]*SpeakingStats
}

func NewSegmenter() *Segmenter {
	return &Segmenter{stats: map[int64]*SpeakingStats{}}
}

// Observe feeds the next cue in transcript order. Unresolved cues are not
// expected here; they are treated like ignored ones.
func (s *Segmenter) Observe(c transcript.Cue, res speaker.Resolution) (newInstance bool) {
	p := participant{graded: res.Graded(), studentID: res.StudentID}
	s.order = append(s.order, p)
	if !p.graded {
		return false
	}

	st, ok := s.stats[p.studentID]
	if !ok {
		st = &SpeakingStats{}
		s.stats[p.studentID] = st
	}
	st.TotalSeconds += c.Duration()

	switch {
	case !st.spoken:
		newInstance = true
	case c.Start-st.LastStart > GapThreshold:
		newInstance = true
	default:
		newInstance = s.interrupted(p.studentID)
	}
	if newInstance {
		st.Instances++
	}
	st.LastStart = c.Start
	st.spoken = true
	return newInstance
}

// interrupted scans back from the current (last) entry to the student's
// previous occurrence and reports whether another roster student appears in
// between. No previous occurrence counts as interrupted.
func (s *Segmenter) interrupted(studentID int64) bool {
	cur := len(s.order) - 1
	prev := -1
	for i := cur - 1; i >= 0; i-- {
		if p := s.order[i]; p.graded && p.studentID == studentID {
			prev = i
			break
		}
	}
	if prev < 0 {
		return true
	}
	for _, p := range s.order[prev+1 : cur] {
		if p.graded && p.studentID != studentID {
			return true
		}
	}
	return false
}

// Stats returns a copy of the totals for one student.
func (s *Segmenter) Stats(studentID int64) SpeakingStats {
	if st, ok := s.stats[studentID]; ok {
		return *st
	}
	return SpeakingStats{}
}

// OrderLen is the number of cues observed so far.
func (s *Segmenter) OrderLen() int { return len(s.order) }
