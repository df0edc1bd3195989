// Package script defines the immutable line sequence a performance session
// tracks against. A Script is created once from a setlist snapshot when a
// rehearsal or show starts and never mutated afterwards; every component of
// the tracker shares the same instance.
package script

import (
	"fmt"
	"strings"
)

// Line is one unit of script text, typically a sentence or beat, at a
// fixed ordinal position.
type Line struct {
	// ID is a stable identifier for the line, unique within the script.
	ID string

	// Index is the zero-based ordinal position. Indices are contiguous.
	Index int

	// Text is the line content as the performer wrote it.
	Text string

	// AnchorPhrase, when non-empty, is a phrase that triggers an
	// unconditional jump to this line when spoken, bypassing fuzzy
	// matching.
	AnchorPhrase string

	// ExitPhrase, when non-empty, marks the wording the performer uses to
	// leave this block; exposed to the matcher as extra vocabulary.
	ExitPhrase string

	// WordCount is precomputed at construction for pace estimates.
	WordCount int
}

// Script is an ordered, immutable sequence of lines.
type Script struct {
	title string
	lines []Line
}

// New builds a Script from raw lines, assigning contiguous zero-based
// indices and precomputing word counts. Lines with empty text are
// rejected: a zero-word line would break pace estimation.
func New(title string, lines []Line) (*Script, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("script: no lines")
	}

	owned := make([]Line, len(lines))
	seen := make(map[string]int, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l.Text) == "" {
			return nil, fmt.Errorf("script: line %d has empty text", i)
		}
		if l.ID == "" {
			l.ID = fmt.Sprintf("line-%d", i)
		}
		if prev, dup := seen[l.ID]; dup {
			return nil, fmt.Errorf("script: duplicate line id %q (lines %d and %d)", l.ID, prev, i)
		}
		seen[l.ID] = i

		l.Index = i
		l.WordCount = len(strings.Fields(l.Text))
		owned[i] = l
	}

	return &Script{title: title, lines: owned}, nil
}

// Title returns the setlist title, possibly empty.
func (s *Script) Title() string { return s.title }

// Len returns the number of lines.
func (s *Script) Len() int { return len(s.lines) }

// Line returns the line at index i. The index is clamped to the valid
// range rather than panicking: an out-of-range read mid-show must never
// take the prompter down.
func (s *Script) Line(i int) Line {
	return s.lines[s.Clamp(i)]
}

// Lines returns the full ordered line slice. Callers must treat it as
// read-only.
func (s *Script) Lines() []Line { return s.lines }

// Clamp returns i forced into [0, Len()-1].
func (s *Script) Clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(s.lines) {
		return len(s.lines) - 1
	}
	return i
}

// IndexOfBlock returns the index of the line with the given ID and true,
// or (0, false) when no such line exists.
func (s *Script) IndexOfBlock(blockID string) (int, bool) {
	for _, l := range s.lines {
		if l.ID == blockID {
			return l.Index, true
		}
	}
	return 0, false
}

// AnchorPhrases returns every non-empty anchor phrase paired with its line
// ID, in script order. Used both by the matcher for spoken-anchor detection
// and by STT adapters as keyword boosts.
func (s *Script) AnchorPhrases() map[string]string {
	out := make(map[string]string)
	for _, l := range s.lines {
		if l.AnchorPhrase != "" {
			out[l.AnchorPhrase] = l.ID
		}
	}
	return out
}

// AverageWordsPerLine returns the mean precomputed word count.
func (s *Script) AverageWordsPerLine() float64 {
	total := 0
	for _, l := range s.lines {
		total += l.WordCount
	}
	return float64(total) / float64(len(s.lines))
}

// BaseSecondsPerLine derives the unadapted scroll pace from a target
// words-per-minute delivery rate: averageWords / wpm minutes per line.
// A non-positive wpm falls back to 140, a typical conversational rate.
func (s *Script) BaseSecondsPerLine(wordsPerMinute float64) float64 {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 140
	}
	return s.AverageWordsPerLine() / wordsPerMinute * 60
}
