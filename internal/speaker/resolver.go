// Package speaker maps raw transcript speaker labels to roster identities.
package speaker

import (
	"strings"
)

// Alias resolution sentinels. Any other resolution value names a roster label.
const (
	Professor = "PROFESSOR"
	Ignore    = "IGNORE"
)

type Kind int

const (
	Unresolved Kind = iota
	Roster
	NonGraded
	Ignored
)

func (k Kind) String() string {
	switch k {
	case Roster:
		return "roster"
	case NonGraded:
		return "non_graded"
	case Ignored:
		return "ignored"
	default:
		return "unresolved"
	}
}

type RosterEntry struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

type AliasRule struct {
	Alias      string `json:"alias" yaml:"alias" db:"alias"`
	Resolution string `json:"resolution" yaml:"resolution" db:"resolution"`
}

// Resolution is the outcome of resolving one raw label.
type Resolution struct {
	Kind      Kind
	StudentID int64  // set when Kind == Roster
	Label     string // raw label as it appeared
}

// Graded reports whether the label belongs to a roster student.
func (r Resolution) Graded() bool { return r.Kind == Roster }

type Resolver struct {
	roster  map[string]int64
	aliases map[string]string
}

func key(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func NewResolver(roster []RosterEntry, aliases []AliasRule) *Resolver {
	r := &Resolver{
		roster:  make(map[string]int64, len(roster)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, e := range roster {
		r.roster[key(e.Label)] = e.ID
	}
	for _, a := range aliases {
		if k := key(a.Alias); k != "" {
			r.aliases[k] = strings.TrimSpace(a.Resolution)
		}
	}
	return r
}

// Resolve checks the roster first, then alias rules. The bare PROFESSOR label
// is non-graded without needing a rule. An alias pointing at a label that is
// no longer on the roster leaves the speaker unresolved.
func (r *Resolver) Resolve(label string) Resolution {
	k := key(label)
	if id, ok := r.roster[k]; ok {
		return Resolution{Kind: Roster, StudentID: id, Label: label}
	}
	target, ok := r.aliases[k]
	if !ok {
		if k == key(Professor) {
			return Resolution{Kind: NonGraded, Label: label}
		}
		return Resolution{Kind: Unresolved, Label: label}
	}
	switch strings.ToUpper(target) {
	case Professor:
		return Resolution{Kind: NonGraded, Label: label}
	case Ignore:
		return Resolution{Kind: Ignored, Label: label}
	}
	if id, ok := r.roster[key(target)]; ok {
		return Resolution{Kind: Roster, StudentID: id, Label: label}
	}
	return Resolution{Kind: Unresolved, Label: label}
}

// Unresolved returns the labels that resolve to nothing, deduplicated
// case-insensitively and in input order.
func (r *Resolver) Unresolved(labels []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, l := range labels {
		k := key(l)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if r.Resolve(l).Kind == Unresolved {
			out = append(out, l)
		}
	}
	return out
}

// ValidResolution reports whether v can be stored as an alias target.
func ValidResolution(v string, roster []RosterEntry) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case Professor, Ignore:
		return true
	}
	for _, e := range roster {
		if key(e.Label) == key(v) {
			return true
		}
	}
	return false
}
