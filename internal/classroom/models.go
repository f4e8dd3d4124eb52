// Package classroom owns classes, rosters, aliases and weekly facts, and
// runs transcript analysis and grading against them.
package classroom

import (
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

// MaxRoster bounds roster creation.
const MaxRoster = 200

type Class struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name" validate:"required,max=200"`
	Semester  string `json:"semester" db:"semester" validate:"max=100"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}

type Student struct {
	ID               int64   `json:"id" db:"id"`
	ClassID          int64   `json:"class_id" db:"class_id"`
	Name             string  `json:"name" db:"name"`
	SortKey          int     `json:"sort_key" db:"sort_key"`
	ManualAdjustment float64 `json:"manual_adjustment" db:"manual_adjustment"`
}

func (s Student) grading() grading.Student {
	return grading.Student{ID: s.ID, Name: s.Name, SortKey: s.SortKey, ManualAdjustment: s.ManualAdjustment}
}

func gradingStudents(in []Student) []grading.Student {
	out := make([]grading.Student, 0, len(in))
	for _, s := range in {
		out = append(out, s.grading())
	}
	return out
}

func rosterEntries(in []Student) []speaker.RosterEntry {
	out := make([]speaker.RosterEntry, 0, len(in))
	for _, s := range in {
		out = append(out, speaker.RosterEntry{ID: s.ID, Label: s.Name})
	}
	return out
}

// StatusUpdate is one student's attendance entry for a week. Empty strings
// clear the stored status.
type StatusUpdate struct {
	StudentID   int64  `json:"student_id"`
	SyncStatus  string `json:"sync_status" validate:"sync_status"`
	AsyncStatus string `json:"async_status" validate:"async_status"`
}

// WeekRow joins a student with their fact for one week. Fact is the zero
// value (apart from IDs) when nothing is recorded.
type WeekRow struct {
	Student Student            `json:"student"`
	Fact    grading.WeeklyFact `json:"fact"`
}

type WeekView struct {
	Class Class     `json:"class"`
	Week  int       `json:"week"`
	Rows  []WeekRow `json:"rows"`
}

type GradesView struct {
	Class    Class            `json:"class"`
	Settings grading.Settings `json:"settings"`
	Report   grading.Report   `json:"report"`
}
