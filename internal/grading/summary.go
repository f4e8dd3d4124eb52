package grading

// DefaultWeeks is the length of a term in weeks.
const DefaultWeeks = 13

// SummaryRow is one student's facts keyed by week number. Weeks without a
// row are absent from the map.
type SummaryRow struct {
	Student Student            `json:"student"`
	Weeks   map[int]WeeklyFact `json:"weeks"`
}

type Summary struct {
	Weeks []int        `json:"weeks"`
	Rows  []SummaryRow `json:"rows"`
}

// BuildSummary lays the fact history out as a student × week grid for weeks
// 1..weeks. Facts outside that range or for unknown students are dropped.
func BuildSummary(students []Student, facts []WeeklyFact, weeks int) Summary {
	if weeks <= 0 {
		weeks = DefaultWeeks
	}
	sum := Summary{Weeks: make([]int, 0, weeks)}
	for w := 1; w <= weeks; w++ {
		sum.Weeks = append(sum.Weeks, w)
	}

	idx := map[int64]int{}
	for _, st := range SortStudents(students) {
		idx[st.ID] = len(sum.Rows)
		sum.Rows = append(sum.Rows, SummaryRow{Student: st, Weeks: map[int]WeeklyFact{}})
	}
	for _, f := range facts {
		i, ok := idx[f.StudentID]
		if !ok || f.Week < 1 || f.Week > weeks {
			continue
		}
		sum.Rows[i].Weeks[f.Week] = f
	}
	return sum
}
