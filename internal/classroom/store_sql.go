package classroom

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-participation/internal/db"
	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/participation"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(d *sqlx.DB) *SQLStore {
	return &SQLStore{db: d}
}

var (
	settingsCols   = strings.Join(grading.SettingsFields, ", ")
	settingsInsert = buildSettingsUpsert()
)

func buildSettingsUpsert() string {
	ph := make([]string, 0, len(grading.SettingsFields)+1)
	set := make([]string, 0, len(grading.SettingsFields))
	ph = append(ph, "$1")
	for i, f := range grading.SettingsFields {
		ph = append(ph, fmt.Sprintf("$%d", i+2))
		set = append(set, fmt.Sprintf("%s=EXCLUDED.%s", f, f))
	}
	return fmt.Sprintf(`INSERT INTO settings (class_id, %s) VALUES (%s)
		ON CONFLICT (class_id) DO UPDATE SET %s`,
		settingsCols, strings.Join(ph, ","), strings.Join(set, ", "))
}

func settingsArgs(classID int64, s grading.Settings) []any {
	args := []any{classID}
	for _, f := range grading.SettingsFields {
		p, _ := s.Field(f)
		args = append(args, *p)
	}
	return args
}

type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func classExists(ctx context.Context, q queryer, id int64) error {
	var one int
	if err := q.GetContext(ctx, &one, `SELECT 1 FROM classes WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrNotFound, "class %d", id)
		}
		return errors.Wrap(err, "lookup class")
	}
	return nil
}

func (s *SQLStore) CreateClass(ctx context.Context, c Class) (Class, error) {
	c.CreatedAt = time.Now().Unix()
	err := db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx,
			`INSERT INTO classes (name, semester, created_at) VALUES ($1,$2,$3) RETURNING id`,
			c.Name, c.Semester, c.CreatedAt).Scan(&c.ID); err != nil {
			return errors.Wrap(err, "insert class")
		}
		_, err := tx.ExecContext(ctx, settingsInsert, settingsArgs(c.ID, grading.DefaultSettings())...)
		return errors.Wrap(err, "insert default settings")
	})
	if err != nil {
		return Class{}, err
	}
	return c, nil
}

func (s *SQLStore) GetClass(ctx context.Context, id int64) (Class, error) {
	var c Class
	err := s.db.GetContext(ctx, &c, `SELECT id, name, semester, created_at FROM classes WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, errors.Wrapf(ErrNotFound, "class %d", id)
	}
	return c, errors.Wrap(err, "get class")
}

func (s *SQLStore) ListClasses(ctx context.Context) ([]Class, error) {
	out := []Class{}
	err := s.db.SelectContext(ctx, &out, `SELECT id, name, semester, created_at FROM classes ORDER BY id`)
	return out, errors.Wrap(err, "list classes")
}

func (s *SQLStore) ReplaceRoster(ctx context.Context, classID int64, n int) ([]Student, error) {
	if n < 1 || n > MaxRoster {
		return nil, errors.Wrapf(ErrInvalid, "num_students must be between 1 and %d", MaxRoster)
	}
	err := db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := classExists(ctx, tx, classID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM weekly_data WHERE student_id IN (SELECT id FROM students WHERE class_id=$1)`, classID); err != nil {
			return errors.Wrap(err, "clear weekly data")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE class_id=$1`, classID); err != nil {
			return errors.Wrap(err, "clear students")
		}
		for i := 1; i <= n; i++ {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO students (class_id, name, sort_key) VALUES ($1,$2,$3)`,
				classID, fmt.Sprintf("Student-%d", i), i); err != nil {
				return errors.Wrap(err, "insert student")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListStudents(ctx, classID)
}

func (s *SQLStore) ListStudents(ctx context.Context, classID int64) ([]Student, error) {
	if err := classExists(ctx, s.db, classID); err != nil {
		return nil, err
	}
	out := []Student{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, class_id, name, sort_key, manual_adjustment FROM students
		 WHERE class_id=$1 ORDER BY sort_key, id`, classID)
	return out, errors.Wrap(err, "list students")
}

func (s *SQLStore) SetManualAdjustments(ctx context.Context, classID int64, adj map[int64]float64) error {
	return db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := classExists(ctx, tx, classID); err != nil {
			return err
		}
		for id, v := range adj {
			res, err := tx.ExecContext(ctx,
				`UPDATE students SET manual_adjustment=$1 WHERE id=$2 AND class_id=$3`, v, id, classID)
			if err != nil {
				return errors.Wrap(err, "update manual adjustment")
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return errors.Wrapf(ErrNotFound, "student %d", id)
			}
		}
		return nil
	})
}

func (s *SQLStore) ListAliases(ctx context.Context, classID int64) ([]speaker.AliasRule, error) {
	if err := classExists(ctx, s.db, classID); err != nil {
		return nil, err
	}
	out := []speaker.AliasRule{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT display AS alias, resolution FROM speaker_aliases WHERE class_id=$1 ORDER BY alias`, classID)
	return out, errors.Wrap(err, "list aliases")
}

func (s *SQLStore) PutAliases(ctx context.Context, classID int64, rules []speaker.AliasRule) error {
	return db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := classExists(ctx, tx, classID); err != nil {
			return err
		}
		for _, r := range rules {
			display := strings.TrimSpace(r.Alias)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO speaker_aliases (class_id, alias, display, resolution) VALUES ($1,$2,$3,$4)
				 ON CONFLICT (class_id, alias) DO UPDATE SET display=EXCLUDED.display, resolution=EXCLUDED.resolution`,
				classID, strings.ToLower(display), display, strings.TrimSpace(r.Resolution)); err != nil {
				return errors.Wrap(err, "upsert alias")
			}
		}
		return nil
	})
}

func (s *SQLStore) GetSettings(ctx context.Context, classID int64) (grading.Settings, error) {
	if err := classExists(ctx, s.db, classID); err != nil {
		return grading.Settings{}, err
	}
	var st grading.Settings
	err := s.db.GetContext(ctx, &st, `SELECT `+settingsCols+` FROM settings WHERE class_id=$1`, classID)
	if errors.Is(err, sql.ErrNoRows) {
		return grading.Settings{}, errors.Wrapf(grading.ErrNotConfigured, "class %d", classID)
	}
	return st, errors.Wrap(err, "get settings")
}

func (s *SQLStore) EnsureSettings(ctx context.Context, classID int64) (grading.Settings, error) {
	st, err := s.GetSettings(ctx, classID)
	if !errors.Is(err, grading.ErrNotConfigured) {
		return st, err
	}
	def := grading.DefaultSettings()
	args := settingsArgs(classID, def)
	ph := make([]string, len(args))
	for i := range args {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (class_id, `+settingsCols+`) VALUES (`+strings.Join(ph, ",")+`)
		 ON CONFLICT (class_id) DO NOTHING`, args...); err != nil {
		return grading.Settings{}, errors.Wrap(err, "ensure settings")
	}
	return s.GetSettings(ctx, classID)
}

func (s *SQLStore) PutSettings(ctx context.Context, classID int64, st grading.Settings) error {
	if err := classExists(ctx, s.db, classID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, settingsInsert, settingsArgs(classID, st)...)
	return errors.Wrap(err, "put settings")
}

const factCols = `w.student_id, w.week_number, w.sync_status, w.async_status, w.speaking_time, w.speaking_instances`

func (s *SQLStore) ListFacts(ctx context.Context, classID int64) ([]grading.WeeklyFact, error) {
	if err := classExists(ctx, s.db, classID); err != nil {
		return nil, err
	}
	out := []grading.WeeklyFact{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+factCols+` FROM weekly_data w JOIN students s ON s.id = w.student_id
		 WHERE s.class_id=$1 ORDER BY w.student_id, w.week_number`, classID)
	return out, errors.Wrap(err, "list facts")
}

func (s *SQLStore) WeekFacts(ctx context.Context, classID int64, week int) ([]grading.WeeklyFact, error) {
	if err := classExists(ctx, s.db, classID); err != nil {
		return nil, err
	}
	out := []grading.WeeklyFact{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+factCols+` FROM weekly_data w JOIN students s ON s.id = w.student_id
		 WHERE s.class_id=$1 AND w.week_number=$2 ORDER BY w.student_id`, classID, week)
	return out, errors.Wrap(err, "week facts")
}

// rosterIDs returns the ids of the class's students inside tx.
func rosterIDs(ctx context.Context, tx *sqlx.Tx, classID int64) (map[int64]struct{}, error) {
	var ids []int64
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM students WHERE class_id=$1`, classID); err != nil {
		return nil, errors.Wrap(err, "list roster ids")
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *SQLStore) SaveStatuses(ctx context.Context, classID int64, week int, updates []StatusUpdate) error {
	return db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := classExists(ctx, tx, classID); err != nil {
			return err
		}
		ids, err := rosterIDs(ctx, tx, classID)
		if err != nil {
			return err
		}
		for _, u := range updates {
			if _, ok := ids[u.StudentID]; !ok {
				return errors.Wrapf(ErrNotFound, "student %d", u.StudentID)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO weekly_data (student_id, week_number, sync_status, async_status) VALUES ($1,$2,$3,$4)
				 ON CONFLICT (student_id, week_number) DO UPDATE
				 SET sync_status=EXCLUDED.sync_status, async_status=EXCLUDED.async_status`,
				u.StudentID, week, u.SyncStatus, u.AsyncStatus); err != nil {
				return errors.Wrap(err, "upsert statuses")
			}
		}
		return nil
	})
}

func (s *SQLStore) UpsertSpeaking(ctx context.Context, classID int64, week int, ups []participation.Upsert) error {
	return db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := classExists(ctx, tx, classID); err != nil {
			return err
		}
		ids, err := rosterIDs(ctx, tx, classID)
		if err != nil {
			return err
		}
		for _, u := range ups {
			if _, ok := ids[u.StudentID]; !ok {
				return errors.Wrapf(ErrNotFound, "student %d", u.StudentID)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO weekly_data (student_id, week_number, speaking_time, speaking_instances) VALUES ($1,$2,$3,$4)
				 ON CONFLICT (student_id, week_number) DO UPDATE
				 SET speaking_time=EXCLUDED.speaking_time, speaking_instances=EXCLUDED.speaking_instances`,
				u.StudentID, week, u.SpeakingSeconds, u.SpeakingInstances); err != nil {
				return errors.Wrap(err, "upsert speaking")
			}
		}
		return nil
	})
}
