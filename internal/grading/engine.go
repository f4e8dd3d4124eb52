// Package grading folds weekly participation facts into final grades.
package grading

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-participation/internal/timecode"
)

// ErrNotConfigured is returned when a class has no settings yet.
var ErrNotConfigured = errors.New("grading settings not configured")

const (
	SyncPresent  = "Present"
	SyncAbsent   = "Absent"
	SyncVideoOff = "Video Off"

	AsyncCompleted = "Completed"
	AsyncMissed    = "Missed"
)

// Student is the minimal view of a roster row needed for grading.
type Student struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	SortKey          int     `json:"sort_key"`
	ManualAdjustment float64 `json:"manual_adjustment"`
}

// WeeklyFact is one (student, week) row.
type WeeklyFact struct {
	StudentID         int64   `json:"student_id" db:"student_id" yaml:"student_id"`
	Week              int     `json:"week_number" db:"week_number" yaml:"week_number" validate:"gte=1"`
	SyncStatus        string  `json:"sync_status" db:"sync_status" yaml:"sync_status" validate:"sync_status"`
	AsyncStatus       string  `json:"async_status" db:"async_status" yaml:"async_status" validate:"async_status"`
	SpeakingSeconds   float64 `json:"speaking_time" db:"speaking_time" yaml:"speaking_time" validate:"finite,gte=0"`
	SpeakingInstances int     `json:"speaking_instances" db:"speaking_instances" yaml:"speaking_instances" validate:"gte=0"`
}

// Result is one student's row of the grade report.
type Result struct {
	StudentID        int64   `json:"student_id"`
	Name             string  `json:"name"`
	Absences         int     `json:"absences"`
	VideoOff         int     `json:"video_off"`
	AsyncMisses      int     `json:"async_misses"`
	TotalInstances   int     `json:"total_instances"`
	CappedInstances  float64 `json:"capped_instances"`
	TotalTime        float64 `json:"total_time"`
	TotalTimeDisplay string  `json:"total_time_display"`
	RawPoints        float64 `json:"raw_points"`
	ManualAdjustment float64 `json:"manual_adjustment"`
	FinalGrade       float64 `json:"final_grade"`
}

// Averages are class-wide means over all result rows.
type Averages struct {
	Absences         float64 `json:"absences"`
	VideoOff         float64 `json:"video_off"`
	AsyncMisses      float64 `json:"async_misses"`
	TotalTime        string  `json:"total_time"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	CappedInstances  float64 `json:"capped_instances"`
	FinalGrade       float64 `json:"final_grade"`
}

type Report struct {
	Results  []Result  `json:"results"`
	Averages *Averages `json:"averages,omitempty"` // nil when there are no students
}

// Compute grades every student from the full fact history. It has no side
// effects; facts for students not in the list are ignored.
func Compute(students []Student, facts []WeeklyFact, settings *Settings) (Report, error) {
	if settings == nil {
		return Report{}, ErrNotConfigured
	}
	byStudent := make(map[int64][]WeeklyFact, len(students))
	for _, f := range facts {
		byStudent[f.StudentID] = append(byStudent[f.StudentID], f)
	}

	ordered := SortStudents(students)
	rep := Report{Results: make([]Result, 0, len(ordered))}
	for _, st := range ordered {
		rep.Results = append(rep.Results, gradeStudent(st, byStudent[st.ID], *settings))
	}
	rep.Averages = average(rep.Results)
	return rep, nil
}

func gradeStudent(st Student, facts []WeeklyFact, s Settings) Result {
	r := Result{StudentID: st.ID, Name: st.Name, ManualAdjustment: st.ManualAdjustment}
	for _, f := range facts {
		switch f.SyncStatus {
		case SyncAbsent:
			r.Absences++
		case SyncVideoOff:
			r.VideoOff++
		}
		if f.AsyncStatus == AsyncMissed {
			r.AsyncMisses++
		}
		r.TotalInstances += f.SpeakingInstances
		// the cap applies to each week, not to the total
		r.CappedInstances += math.Min(float64(f.SpeakingInstances), s.MaxInstancesPerWeek)
		r.TotalTime += f.SpeakingSeconds
	}
	r.TotalTimeDisplay = timecode.Format(r.TotalTime)
	r.RawPoints = r.CappedInstances*s.InstanceWeight + (r.TotalTime/60)*s.TimeWeight
	r.FinalGrade = FinalGrade(r, s)
	return r
}

// FinalGrade applies the bonus cap, penalties and manual adjustment, then
// clamps to [0, 100] and rounds to two decimals.
func FinalGrade(r Result, s Settings) float64 {
	grade := s.BaseScore
	grade += math.Min(r.RawPoints, s.SpreadPoints)
	grade -= excess(r.Absences, s.FreeSyncAbsences) * s.SyncPenalty
	grade -= excess(r.AsyncMisses, s.FreeAsyncMisses) * s.AsyncPenalty
	grade -= excess(r.VideoOff, s.FreeVideoOff) * s.VideoOffPenalty
	grade += r.ManualAdjustment
	if math.IsNaN(grade) {
		return 0
	}
	return Round(math.Max(0, math.Min(100, grade)), 2)
}

func excess(n int, free float64) float64 {
	return math.Max(0, float64(n)-free)
}

func average(rs []Result) *Averages {
	if len(rs) == 0 {
		return nil
	}
	var abs, vid, async, tt, capped, grade float64
	for _, r := range rs {
		abs += float64(r.Absences)
		vid += float64(r.VideoOff)
		async += float64(r.AsyncMisses)
		tt += r.TotalTime
		capped += r.CappedInstances
		grade += r.FinalGrade
	}
	n := float64(len(rs))
	return &Averages{
		Absences:         Round(abs/n, 1),
		VideoOff:         Round(vid/n, 1),
		AsyncMisses:      Round(async/n, 1),
		TotalTimeSeconds: tt / n,
		TotalTime:        timecode.Format(tt / n),
		CappedInstances:  Round(capped/n, 1),
		FinalGrade:       Round(grade/n, 2),
	}
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// SortStudents orders by SortKey, then ID. The input is not modified.
func SortStudents(students []Student) []Student {
	out := append([]Student(nil), students...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortKey != out[j].SortKey {
			return out[i].SortKey < out[j].SortKey
		}
		return out[i].ID < out[j].ID
	})
	return out
}
