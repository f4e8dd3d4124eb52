package participation

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-participation/internal/speaker"
	"github.com/mind-engage/mindengage-participation/internal/transcript"
)

// Input is everything one analysis pass needs.
type Input struct {
	ClassID    int64
	Week       int
	Transcript string
	Roster     []speaker.RosterEntry
	Aliases    []speaker.AliasRule
}

// Upsert is the speaking part of one student's weekly fact.
type Upsert struct {
	StudentID         int64   `json:"student_id"`
	SpeakingSeconds   float64 `json:"speaking_seconds"`
	SpeakingInstances int     `json:"speaking_instances"`
}

// Outcome is either a non-empty Unresolved list (nothing was scored) or the
// per-student results of a full pass.
type Outcome struct {
	Week       int                     `json:"week"`
	Unresolved []string                `json:"unresolved,omitempty"`
	Stats      map[int64]SpeakingStats `json:"stats,omitempty"`
	Upserts    []Upsert                `json:"upserts,omitempty"`
	Cues       int                     `json:"cues"`
	Skipped    int                     `json:"skipped_lines"`
}

// NeedsAliases reports whether the caller must map speakers before scoring.
func (o Outcome) NeedsAliases() bool { return len(o.Unresolved) > 0 }

// UnresolvedError carries the labels that blocked a pass.
type UnresolvedError struct {
	Labels []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved speakers: %s", strings.Join(e.Labels, ", "))
}

var ErrInvalidInput = errors.New("invalid analysis input")

type Analyzer struct {
	log logrus.FieldLogger
}

func NewAnalyzer(log logrus.FieldLogger) *Analyzer {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Analyzer{log: log}
}

// Analyze runs one pass over the transcript. The cue sequence is scanned
// twice: once to collect unresolved labels, and, only if there are none, once
// more to segment and total.
func (a *Analyzer) Analyze(in Input) (Outcome, error) {
	if err := validate(in); err != nil {
		return Outcome{}, err
	}
	log := a.log.WithFields(logrus.Fields{"class_id": in.ClassID, "week": in.Week})
	src := transcript.FromText(in.Transcript, transcript.WithLogger(log))
	res := speaker.NewResolver(in.Roster, in.Aliases)

	out := Outcome{Week: in.Week}
	if un := res.Unresolved(transcript.Labels(src.Cues())); len(un) > 0 {
		out.Unresolved = un
		out.Cues = src.Stats().Cues
		out.Skipped = src.Stats().Skipped()
		log.WithField("unresolved", len(un)).Info("analysis blocked on unresolved speakers")
		return out, nil
	}

	seg := NewSegmenter()
	for c := range src.Cues() {
		seg.Observe(c, res.Resolve(c.Speaker))
	}

	out.Stats = make(map[int64]SpeakingStats, len(in.Roster))
	for _, e := range in.Roster {
		st := seg.Stats(e.ID)
		out.Stats[e.ID] = st
		if st.IsZero() {
			continue
		}
		out.Upserts = append(out.Upserts, Upsert{
			StudentID:         e.ID,
			SpeakingSeconds:   st.TotalSeconds,
			SpeakingInstances: st.Instances,
		})
	}
	sort.Slice(out.Upserts, func(i, j int) bool { return out.Upserts[i].StudentID < out.Upserts[j].StudentID })
	out.Cues = src.Stats().Cues
	out.Skipped = src.Stats().Skipped()
	log.WithFields(logrus.Fields{
		"cues":    out.Cues,
		"skipped": out.Skipped,
		"upserts": len(out.Upserts),
	}).Info("transcript analyzed")
	return out, nil
}

func validate(in Input) error {
	if in.Week < 1 {
		return errors.Wrapf(ErrInvalidInput, "week %d", in.Week)
	}
	ids := make(map[int64]struct{}, len(in.Roster))
	for _, e := range in.Roster {
		if strings.TrimSpace(e.Label) == "" {
			return errors.Wrapf(ErrInvalidInput, "roster entry %d has no label", e.ID)
		}
		if _, dup := ids[e.ID]; dup {
			return errors.Wrapf(ErrInvalidInput, "duplicate roster id %d", e.ID)
		}
		ids[e.ID] = struct{}{}
	}
	return nil
}
