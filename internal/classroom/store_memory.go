package classroom

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/participation"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
)

type factKey struct {
	student int64
	week    int
}

type memoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	classes  map[int64]Class
	students map[int64]Student
	aliases  map[int64]map[string]speaker.AliasRule // class -> lower(alias) -> rule
	settings map[int64]grading.Settings
	facts    map[factKey]grading.WeeklyFact
}

// NewInMemoryStore is used by tests and by MODE=dev without a database.
func NewInMemoryStore() Store {
	return &memoryStore{
		classes:  map[int64]Class{},
		students: map[int64]Student{},
		aliases:  map[int64]map[string]speaker.AliasRule{},
		settings: map[int64]grading.Settings{},
		facts:    map[factKey]grading.WeeklyFact{},
	}
}

func (m *memoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryStore) class(id int64) error {
	if _, ok := m.classes[id]; !ok {
		return errors.Wrapf(ErrNotFound, "class %d", id)
	}
	return nil
}

func (m *memoryStore) CreateClass(_ context.Context, c Class) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	c.CreatedAt = time.Now().Unix()
	m.classes[c.ID] = c
	m.settings[c.ID] = grading.DefaultSettings()
	return c, nil
}

func (m *memoryStore) GetClass(_ context.Context, id int64) (Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.class(id); err != nil {
		return Class{}, err
	}
	return m.classes[id], nil
}

func (m *memoryStore) ListClasses(context.Context) ([]Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) ReplaceRoster(ctx context.Context, classID int64, n int) ([]Student, error) {
	if n < 1 || n > MaxRoster {
		return nil, errors.Wrapf(ErrInvalid, "num_students must be between 1 and %d", MaxRoster)
	}
	m.mu.Lock()
	if err := m.class(classID); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	for id, s := range m.students {
		if s.ClassID != classID {
			continue
		}
		delete(m.students, id)
		for k := range m.facts {
			if k.student == id {
				delete(m.facts, k)
			}
		}
	}
	for i := 1; i <= n; i++ {
		id := m.id()
		m.students[id] = Student{ID: id, ClassID: classID, Name: fmt.Sprintf("Student-%d", i), SortKey: i}
	}
	m.mu.Unlock()
	return m.ListStudents(ctx, classID)
}

func (m *memoryStore) ListStudents(_ context.Context, classID int64) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.class(classID); err != nil {
		return nil, err
	}
	out := []Student{}
	for _, s := range m.students {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortKey != out[j].SortKey {
			return out[i].SortKey < out[j].SortKey
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) SetManualAdjustments(_ context.Context, classID int64, adj map[int64]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.class(classID); err != nil {
		return err
	}
	for id := range adj {
		if s, ok := m.students[id]; !ok || s.ClassID != classID {
			return errors.Wrapf(ErrNotFound, "student %d", id)
		}
	}
	for id, v := range adj {
		s := m.students[id]
		s.ManualAdjustment = v
		m.students[id] = s
	}
	return nil
}

func (m *memoryStore) ListAliases(_ context.Context, classID int64) ([]speaker.AliasRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.class(classID); err != nil {
		return nil, err
	}
	out := []speaker.AliasRule{}
	for _, r := range m.aliases[classID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Alias) < strings.ToLower(out[j].Alias) })
	return out, nil
}

func (m *memoryStore) PutAliases(_ context.Context, classID int64, rules []speaker.AliasRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.class(classID); err != nil {
		return err
	}
	if m.aliases[classID] == nil {
		m.aliases[classID] = map[string]speaker.AliasRule{}
	}
	for _, r := range rules {
		a := strings.TrimSpace(r.Alias)
		m.aliases[classID][strings.ToLower(a)] = speaker.AliasRule{Alias: a, Resolution: strings.TrimSpace(r.Resolution)}
	}
	return nil
}

func (m *memoryStore) GetSettings(_ context.Context, classID int64) (grading.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.class(classID); err != nil {
		return grading.Settings{}, err
	}
	s, ok := m.settings[classID]
	if !ok {
		return grading.Settings{}, errors.Wrapf(grading.ErrNotConfigured, "class %d", classID)
	}
	return s, nil
}

func (m *memoryStore) EnsureSettings(_ context.Context, classID int64) (grading.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.class(classID); err != nil {
		return grading.Settings{}, err
	}
	s, ok := m.settings[classID]
	if !ok {
		s = grading.DefaultSettings()
		m.settings[classID] = s
	}
	return s, nil
}

func (m *memoryStore) PutSettings(_ context.Context, classID int64, s grading.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.class(classID); err != nil {
		return err
	}
	m.settings[classID] = s
	return nil
}

func (m *memoryStore) collectFacts(classID int64, week int) []grading.WeeklyFact {
	out := []grading.WeeklyFact{}
	for k, f := range m.facts {
		if s, ok := m.students[k.student]; !ok || s.ClassID != classID {
			continue
		}
		if week > 0 && k.week != week {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].Week < out[j].Week
	})
	return out
}

func (m *memoryStore) ListFacts(_ context.Context, classID int64) ([]grading.WeeklyFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.class(classID); err != nil {
		return nil, err
	}
	return m.collectFacts(classID, 0), nil
}

func (m *memoryStore) WeekFacts(_ context.Context, classID int64, week int) ([]grading.WeeklyFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.class(classID); err != nil {
		return nil, err
	}
	return m.collectFacts(classID, week), nil
}

// checkRoster must be called with mu held.
func (m *memoryStore) checkRoster(classID int64, ids []int64) error {
	if err := m.class(classID); err != nil {
		return err
	}
	for _, id := range ids {
		if s, ok := m.students[id]; !ok || s.ClassID != classID {
			return errors.Wrapf(ErrNotFound, "student %d", id)
		}
	}
	return nil
}

func (m *memoryStore) SaveStatuses(_ context.Context, classID int64, week int, updates []StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, u.StudentID)
	}
	if err := m.checkRoster(classID, ids); err != nil {
		return err
	}
	for _, u := range updates {
		k := factKey{u.StudentID, week}
		f := m.facts[k]
		f.StudentID, f.Week = u.StudentID, week
		f.SyncStatus, f.AsyncStatus = u.SyncStatus, u.AsyncStatus
		m.facts[k] = f
	}
	return nil
}

func (m *memoryStore) UpsertSpeaking(_ context.Context, classID int64, week int, ups []participation.Upsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(ups))
	for _, u := range ups {
		ids = append(ids, u.StudentID)
	}
	if err := m.checkRoster(classID, ids); err != nil {
		return err
	}
	for _, u := range ups {
		k := factKey{u.StudentID, week}
		f := m.facts[k]
		f.StudentID, f.Week = u.StudentID, week
		f.SpeakingSeconds, f.SpeakingInstances = u.SpeakingSeconds, u.SpeakingInstances
		m.facts[k] = f
	}
	return nil
}
