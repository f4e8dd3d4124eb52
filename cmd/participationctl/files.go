package main

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
	"github.com/mind-engage/mindengage-participation/internal/validate"
)

// rosterLine is one parsed roster entry: label[,id[,manual_adjustment]].
type rosterLine struct {
	Label      string
	ID         int64
	Adjustment float64
	Order      int
}

// parseRoster reads one student per line. Blank lines and lines starting
// with # are skipped. Without an explicit id, the 1-based position is used.
func parseRoster(r io.Reader) ([]rosterLine, error) {
	var out []rosterLine
	seen := map[int64]bool{}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		e := rosterLine{Label: strings.TrimSpace(parts[0]), Order: len(out) + 1}
		e.ID = int64(e.Order)
		if e.Label == "" {
			return nil, errors.Errorf("roster line %d: empty label", n)
		}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			id, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "roster line %d: id", n)
			}
			e.ID = id
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			v, ok := grading.ParseFinite(parts[2])
			if !ok {
				return nil, errors.Errorf("roster line %d: manual adjustment %q is not a finite number", n, strings.TrimSpace(parts[2]))
			}
			e.Adjustment = v
		}
		if seen[e.ID] {
			return nil, errors.Errorf("roster line %d: duplicate id %d", n, e.ID)
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out, sc.Err()
}

func rosterEntries(lines []rosterLine) []speaker.RosterEntry {
	out := make([]speaker.RosterEntry, 0, len(lines))
	for _, l := range lines {
		out = append(out, speaker.RosterEntry{ID: l.ID, Label: l.Label})
	}
	return out
}

func gradingStudents(lines []rosterLine) []grading.Student {
	out := make([]grading.Student, 0, len(lines))
	for _, l := range lines {
		out = append(out, grading.Student{ID: l.ID, Name: l.Label, SortKey: l.Order, ManualAdjustment: l.Adjustment})
	}
	return out
}

// parseAliases reads a YAML mapping of alias to resolution.
func parseAliases(r io.Reader) ([]speaker.AliasRule, error) {
	var m map[string]string
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "aliases yaml")
	}
	out := make([]speaker.AliasRule, 0, len(m))
	for a, res := range m {
		out = append(out, speaker.AliasRule{Alias: a, Resolution: res})
	}
	return out, nil
}

// parseSettings reads YAML settings on top of the defaults.
func parseSettings(r io.Reader) (grading.Settings, error) {
	s := grading.DefaultSettings()
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return grading.Settings{}, errors.Wrap(err, "settings yaml")
	}
	if err := s.Validate(); err != nil {
		return grading.Settings{}, err
	}
	return s, nil
}

// parseFacts reads a YAML list of weekly facts.
func parseFacts(r io.Reader) ([]grading.WeeklyFact, error) {
	var facts []grading.WeeklyFact
	if err := yaml.NewDecoder(r).Decode(&facts); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "facts yaml")
	}
	for i, f := range facts {
		if err := validate.Struct(f); err != nil {
			return nil, errors.WithMessagef(err, "fact %d", i)
		}
	}
	return facts, nil
}

func withFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := parse(f)
	if err != nil {
		return zero, errors.WithMessage(err, path)
	}
	return v, nil
}
