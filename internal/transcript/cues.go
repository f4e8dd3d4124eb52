// Package transcript extracts timed, speaker-attributed cues from caption text.
//
// A cue is a line holding a "<start> --> <end>" marker followed by a
// "<speaker>: <utterance>" line. Anything else is skipped.
package transcript

import (
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-participation/internal/timecode"
)

const marker = "-->"

// Cue is one transcript entry. End may precede Start in bad input.
type Cue struct {
	Start   float64
	End     float64
	Speaker string
	Line    int // 1-based line of the time marker
}

// Duration is End-Start clamped at zero.
func (c Cue) Duration() float64 {
	if d := c.End - c.Start; d > 0 {
		return d
	}
	return 0
}

// Stats counts what the most recent complete scan saw.
type Stats struct {
	Cues          int
	NoSpeakerLine int
	NoLabel       int
	BadTimestamp  int
}

// Skipped is the number of marker lines that did not produce a cue.
func (s Stats) Skipped() int { return s.NoSpeakerLine + s.NoLabel + s.BadTimestamp }

type Option func(*Source)

// WithLogger reports skipped lines at debug level.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Source) { s.log = l } }

// Source holds a transcript's lines, which are never modified. Every call to
// Cues starts a new scan; a scan that runs to completion replaces the
// counters returned by Stats.
type Source struct {
	lines []string
	log   logrus.FieldLogger
	stats Stats
}

func NewSource(lines []string, opts ...Option) *Source {
	s := &Source{lines: lines}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FromText splits text into lines and wraps it in a Source.
func FromText(text string, opts ...Option) *Source {
	return NewSource(SplitLines(text), opts...)
}

// SplitLines splits on \n, \r\n and \r without producing a trailing empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Stats returns the counters of the last scan that ran to completion.
func (s *Source) Stats() Stats { return s.stats }

// Cues yields cues lazily in transcript order. The sequence is finite and can
// be ranged over any number of times; it must not be consumed concurrently.
func (s *Source) Cues() iter.Seq[Cue] {
	return func(yield func(Cue) bool) {
		var st Stats
		for i, line := range s.lines {
			if !strings.Contains(line, marker) {
				continue
			}
			if i+1 >= len(s.lines) || strings.Contains(s.lines[i+1], marker) {
				st.NoSpeakerLine++
				s.skip(i, "no speaker line")
				continue
			}
			c, reason := parseCue(line, s.lines[i+1])
			switch reason {
			case "":
			case "no label":
				st.NoLabel++
				s.skip(i, reason)
				continue
			default:
				st.BadTimestamp++
				s.skip(i, reason)
				continue
			}
			c.Line = i + 1
			st.Cues++
			if !yield(c) {
				return
			}
		}
		s.stats = st
	}
}

func (s *Source) skip(idx int, reason string) {
	if s.log == nil {
		return
	}
	s.log.WithFields(logrus.Fields{"line": idx + 1, "reason": reason}).Debug("transcript: skipped cue")
}

func parseCue(timing, speakerLine string) (Cue, string) {
	label, _, found := strings.Cut(speakerLine, ":")
	label = strings.TrimSpace(label)
	if !found || label == "" {
		return Cue{}, "no label"
	}
	parts := strings.Split(timing, marker)
	start, ok := timecode.ParseStrict(parts[0])
	if !ok {
		return Cue{}, "bad start timestamp"
	}
	// VTT may carry cue settings after the end time ("align:start ...").
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return Cue{}, "bad end timestamp"
	}
	end, ok := timecode.ParseStrict(endFields[0])
	if !ok {
		return Cue{}, "bad end timestamp"
	}
	return Cue{Start: start, End: end, Speaker: label}, ""
}

// Labels returns the distinct speaker labels of seq in first-seen order.
func Labels(seq iter.Seq[Cue]) []string {
	seen := map[string]struct{}{}
	var out []string
	for c := range seq {
		if _, ok := seen[c.Speaker]; ok {
			continue
		}
		seen[c.Speaker] = struct{}{}
		out = append(out, c.Speaker)
	}
	return out
}
