package classroom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/lock"
	"github.com/mind-engage/mindengage-participation/internal/participation"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
	"github.com/mind-engage/mindengage-participation/internal/storage"
	syncx "github.com/mind-engage/mindengage-participation/internal/sync"
	"github.com/mind-engage/mindengage-participation/internal/validate"
)

type Service struct {
	store    Store
	analyzer *participation.Analyzer
	locks    lock.Locker
	events   syncx.Appender
	blobs    storage.BlobStore
	log      logrus.FieldLogger
	weeks    int
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option        { return func(s *Service) { s.locks = l } }
func WithEvents(e syncx.Appender) Option     { return func(s *Service) { s.events = e } }
func WithArchive(b storage.BlobStore) Option { return func(s *Service) { s.blobs = b } }
func WithWeeks(n int) Option                 { return func(s *Service) { s.weeks = n } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	l := logrus.New()
	l.SetOutput(io.Discard)
	s := &Service{store: store, locks: lock.NewKeyed(), log: l, weeks: grading.DefaultWeeks}
	for _, o := range opts {
		o(s)
	}
	s.analyzer = participation.NewAnalyzer(s.log)
	return s
}

func (s *Service) Weeks() int { return s.weeks }

func (s *Service) CreateClass(ctx context.Context, c Class) (Class, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Semester = strings.TrimSpace(c.Semester)
	if err := validate.Struct(c); err != nil {
		return Class{}, err
	}
	return s.store.CreateClass(ctx, c)
}

func (s *Service) ListClasses(ctx context.Context) ([]Class, error) {
	return s.store.ListClasses(ctx)
}

func (s *Service) CreateRoster(ctx context.Context, classID int64, n int) ([]Student, error) {
	students, err := s.store.ReplaceRoster(ctx, classID, n)
	if err != nil {
		return nil, err
	}
	s.record(ctx, syncx.TypeRosterReplaced, fmt.Sprint(classID), map[string]any{"num_students": n})
	return students, nil
}

// WeekView returns the roster with its facts for week, creating the class
// settings row on first visit.
func (s *Service) WeekView(ctx context.Context, classID int64, week int) (WeekView, error) {
	if err := s.checkWeek(week); err != nil {
		return WeekView{}, err
	}
	c, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return WeekView{}, err
	}
	if _, err := s.store.EnsureSettings(ctx, classID); err != nil {
		return WeekView{}, err
	}
	students, err := s.store.ListStudents(ctx, classID)
	if err != nil {
		return WeekView{}, err
	}
	facts, err := s.store.WeekFacts(ctx, classID, week)
	if err != nil {
		return WeekView{}, err
	}
	byID := make(map[int64]grading.WeeklyFact, len(facts))
	for _, f := range facts {
		byID[f.StudentID] = f
	}
	v := WeekView{Class: c, Week: week, Rows: make([]WeekRow, 0, len(students))}
	for _, st := range students {
		f, ok := byID[st.ID]
		if !ok {
			f = grading.WeeklyFact{StudentID: st.ID, Week: week}
		}
		v.Rows = append(v.Rows, WeekRow{Student: st, Fact: f})
	}
	return v, nil
}

func (s *Service) SaveWeek(ctx context.Context, classID int64, week int, updates []StatusUpdate) error {
	if err := s.checkWeek(week); err != nil {
		return err
	}
	for _, u := range updates {
		if err := validate.Struct(u); err != nil {
			return errors.WithMessagef(err, "student %d", u.StudentID)
		}
	}
	if err := s.store.SaveStatuses(ctx, classID, week, updates); err != nil {
		return err
	}
	s.record(ctx, syncx.TypeWeekSaved, fmt.Sprintf("%d:%d", classID, week), map[string]any{"updates": len(updates)})
	return nil
}

// AnalyzeTranscript archives the transcript and runs one analysis pass for
// the class week. When speakers are unresolved nothing is written and the
// error is a *participation.UnresolvedError; the outcome still lists them.
func (s *Service) AnalyzeTranscript(ctx context.Context, classID int64, week int, text string) (participation.Outcome, error) {
	if err := s.checkWeek(week); err != nil {
		return participation.Outcome{}, err
	}
	if _, err := s.store.GetClass(ctx, classID); err != nil {
		return participation.Outcome{}, err
	}
	if s.blobs != nil {
		if _, err := s.blobs.Put(storage.TranscriptKey(classID, week), strings.NewReader(text)); err != nil {
			return participation.Outcome{}, errors.Wrap(err, "archive transcript")
		}
	}
	return s.analyze(ctx, classID, week, text)
}

// Reanalyze reruns the pass on the last archived transcript, typically after
// aliases were added.
func (s *Service) Reanalyze(ctx context.Context, classID int64, week int) (participation.Outcome, error) {
	if err := s.checkWeek(week); err != nil {
		return participation.Outcome{}, err
	}
	if s.blobs == nil {
		return participation.Outcome{}, errors.Wrap(ErrNotFound, "no transcript archive configured")
	}
	if _, err := s.store.GetClass(ctx, classID); err != nil {
		return participation.Outcome{}, err
	}
	rc, err := s.blobs.Get(storage.TranscriptKey(classID, week))
	if err != nil {
		return participation.Outcome{}, errors.Wrapf(ErrNotFound, "no transcript for week %d", week)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return participation.Outcome{}, errors.Wrap(err, "read archived transcript")
	}
	return s.analyze(ctx, classID, week, string(b))
}

func (s *Service) analyze(ctx context.Context, classID int64, week int, text string) (participation.Outcome, error) {
	unlock, err := s.locks.Lock(ctx, lock.AnalysisKey(classID, week))
	if err != nil {
		return participation.Outcome{}, errors.Wrap(err, "acquire analysis lock")
	}
	defer unlock()

	students, err := s.store.ListStudents(ctx, classID)
	if err != nil {
		return participation.Outcome{}, err
	}
	aliases, err := s.store.ListAliases(ctx, classID)
	if err != nil {
		return participation.Outcome{}, err
	}
	out, err := s.analyzer.Analyze(participation.Input{
		ClassID:    classID,
		Week:       week,
		Transcript: text,
		Roster:     rosterEntries(students),
		Aliases:    aliases,
	})
	if err != nil {
		return participation.Outcome{}, errors.WithMessage(ErrInvalid, err.Error())
	}
	if out.NeedsAliases() {
		return out, &participation.UnresolvedError{Labels: out.Unresolved}
	}
	if err := s.store.UpsertSpeaking(ctx, classID, week, out.Upserts); err != nil {
		return participation.Outcome{}, err
	}
	s.record(ctx, syncx.TypeTranscriptAnalyzed, fmt.Sprintf("%d:%d", classID, week), out.Upserts)
	return out, nil
}

func (s *Service) Aliases(ctx context.Context, classID int64) ([]speaker.AliasRule, error) {
	return s.store.ListAliases(ctx, classID)
}

// PutAliases stores rules whose resolution is a sentinel or a current roster
// label. Any invalid rule rejects the whole batch.
func (s *Service) PutAliases(ctx context.Context, classID int64, rules []speaker.AliasRule) error {
	students, err := s.store.ListStudents(ctx, classID)
	if err != nil {
		return err
	}
	roster := rosterEntries(students)
	var flds []validate.FieldError
	for i, r := range rules {
		if strings.TrimSpace(r.Alias) == "" {
			flds = append(flds, validate.FieldError{Field: fmt.Sprintf("aliases[%d].alias", i), Error: "alias is required"})
			continue
		}
		if !speaker.ValidResolution(r.Resolution, roster) {
			flds = append(flds, validate.FieldError{
				Field: fmt.Sprintf("aliases[%d].resolution", i),
				Error: fmt.Sprintf("resolution %q is not a roster student, %s or %s", r.Resolution, speaker.Professor, speaker.Ignore),
			})
		}
	}
	if len(flds) > 0 {
		return validate.NewValidationError(errors.Wrap(validate.ErrInvalid, "aliases"), flds...)
	}
	if err := s.store.PutAliases(ctx, classID, rules); err != nil {
		return err
	}
	s.record(ctx, syncx.TypeAliasesUpdated, fmt.Sprint(classID), rules)
	return nil
}

// Grades computes the report from the full fact history. A class without a
// settings row yields grading.ErrNotConfigured.
func (s *Service) Grades(ctx context.Context, classID int64) (GradesView, error) {
	c, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return GradesView{}, err
	}
	st, err := s.store.GetSettings(ctx, classID)
	if err != nil {
		return GradesView{}, err
	}
	students, err := s.store.ListStudents(ctx, classID)
	if err != nil {
		return GradesView{}, err
	}
	facts, err := s.store.ListFacts(ctx, classID)
	if err != nil {
		return GradesView{}, err
	}
	rep, err := grading.Compute(gradingStudents(students), facts, &st)
	if err != nil {
		return GradesView{}, err
	}
	return GradesView{Class: c, Settings: st, Report: rep}, nil
}

// UpdateGrading applies the settings fields present in form and the given
// manual adjustments, then returns the recomputed report.
func (s *Service) UpdateGrading(ctx context.Context, classID int64, form url.Values, adj map[int64]float64) (GradesView, error) {
	var flds []validate.FieldError
	for id, v := range adj {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			name := fmt.Sprintf("manual_adjustment_%d", id)
			flds = append(flds, validate.FieldError{Field: name, Error: name + " must be a finite number"})
		}
	}
	if len(flds) > 0 {
		return GradesView{}, validate.NewValidationError(errors.Wrap(validate.ErrInvalid, "manual adjustments"), flds...)
	}
	st, err := s.store.EnsureSettings(ctx, classID)
	if err != nil {
		return GradesView{}, err
	}
	if err := st.ApplyForm(form); err != nil {
		return GradesView{}, err
	}
	if err := s.store.PutSettings(ctx, classID, st); err != nil {
		return GradesView{}, err
	}
	if len(adj) > 0 {
		if err := s.store.SetManualAdjustments(ctx, classID, adj); err != nil {
			return GradesView{}, err
		}
	}
	s.record(ctx, syncx.TypeSettingsUpdated, fmt.Sprint(classID), st)
	return s.Grades(ctx, classID)
}

func (s *Service) Summary(ctx context.Context, classID int64) (grading.Summary, error) {
	students, err := s.store.ListStudents(ctx, classID)
	if err != nil {
		return grading.Summary{}, err
	}
	facts, err := s.store.ListFacts(ctx, classID)
	if err != nil {
		return grading.Summary{}, err
	}
	return grading.BuildSummary(gradingStudents(students), facts, s.weeks), nil
}

func (s *Service) checkWeek(week int) error {
	if week < 1 || week > s.weeks {
		return errors.Wrapf(ErrInvalid, "week must be between 1 and %d", s.weeks)
	}
	return nil
}

// record appends to the event log. Failures are only logged.
func (s *Service) record(ctx context.Context, typ, key string, payload any) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).WithField("type", typ).Warn("marshal event")
		return
	}
	ev, err := s.events.Append(ctx, syncx.Event{Type: typ, Key: key, DataJSON: string(data)})
	if err != nil {
		s.log.WithError(err).WithField("type", typ).Warn("append event")
		return
	}
	s.log.WithFields(logrus.Fields{"type": typ, "key": key, "event_id": ev.ID}).Debug("event recorded")
}
