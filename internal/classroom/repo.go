package classroom

import (
	"context"

	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/participation"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
)

// Store is the persistence collaborator. Every method returns an error
// wrapping ErrNotFound when the class does not exist.
type Store interface {
	CreateClass(ctx context.Context, c Class) (Class, error)
	GetClass(ctx context.Context, id int64) (Class, error)
	ListClasses(ctx context.Context) ([]Class, error)

	// ReplaceRoster drops the current students (and their facts) and creates
	// Student-1..Student-n.
	ReplaceRoster(ctx context.Context, classID int64, n int) ([]Student, error)
	ListStudents(ctx context.Context, classID int64) ([]Student, error)
	SetManualAdjustments(ctx context.Context, classID int64, adj map[int64]float64) error

	ListAliases(ctx context.Context, classID int64) ([]speaker.AliasRule, error)
	// PutAliases inserts or replaces rules by case-insensitive alias.
	PutAliases(ctx context.Context, classID int64, rules []speaker.AliasRule) error

	// GetSettings wraps grading.ErrNotConfigured when no row exists.
	GetSettings(ctx context.Context, classID int64) (grading.Settings, error)
	// EnsureSettings creates the default row if missing and returns the stored one.
	EnsureSettings(ctx context.Context, classID int64) (grading.Settings, error)
	PutSettings(ctx context.Context, classID int64, s grading.Settings) error

	ListFacts(ctx context.Context, classID int64) ([]grading.WeeklyFact, error)
	WeekFacts(ctx context.Context, classID int64, week int) ([]grading.WeeklyFact, error)
	SaveStatuses(ctx context.Context, classID int64, week int, updates []StatusUpdate) error
	// UpsertSpeaking writes only the speaking fields of each (student, week)
	// row, all or nothing.
	UpsertSpeaking(ctx context.Context, classID int64, week int, ups []participation.Upsert) error
}
