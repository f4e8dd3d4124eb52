package rbac

const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleAssistant  = "assistant"
)

const (
	PermClassView   = "class:view"
	PermClassCreate = "class:create"
	PermRosterWrite = "roster:write"
	PermWeekWrite   = "week:write"
	PermAnalyze     = "transcript:analyze"
	PermAliasWrite  = "aliases:write"
	PermGradesView  = "grades:view"
	PermGradesWrite = "grades:write"
	PermEventsView  = "events:view"
)

// AllPermissions lists every concrete permission in display order.
var AllPermissions = []string{
	PermClassView, PermClassCreate, PermRosterWrite, PermWeekWrite, PermAnalyze,
	PermAliasWrite, PermGradesView, PermGradesWrite, PermEventsView,
}

// Default policy. Assistants take attendance and run transcripts but do not
// touch grading.
var RolePermissions = map[string][]string{
	RoleAssistant: {
		PermClassView,
		PermWeekWrite,
		PermAnalyze,
		PermAliasWrite,
	},
	RoleInstructor: {
		"class:*",
		PermRosterWrite,
		PermWeekWrite,
		PermAnalyze,
		PermAliasWrite,
		"grades:*",
	},
	RoleAdmin: {
		"*", // everything
	},
}
