// Package match maps incremental transcript fragments onto a position in
// an ordered script. It combines token-level Jaro-Winkler similarity with
// Double Metaphone phonetic gating (for anchor phrases) so that paraphrase
// and STT mishearings still land on the right line, while crowd work and
// ad-libs decay confidence toward zero instead of forcing a false match.
//
// The matcher is deliberately monotone-friendly: candidate lines behind
// the last stable position are penalised per line of regression, so common
// words recurring earlier in the script cannot drag the position backwards.
//
// A Matcher is not safe for concurrent use; callers serialise access on
// the session loop.
package match

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/tightfive/stagetrack/internal/script"
)

const (
	defaultAheadWindow     = 5
	defaultBehindWindow    = 2
	defaultTokenSimilarity = 0.85
	defaultMinConfidence   = 0.30
	defaultBehindPenalty   = 0.15
	defaultAheadPenalty    = 0.05
	defaultAnchorThreshold = 0.85
	defaultConfidenceDecay = 0.7
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithSearchWindow sets how many lines ahead of and behind the current
// position are considered as match candidates. Defaults: 5 ahead, 2 behind.
func WithSearchWindow(ahead, behind int) Option {
	return func(m *Matcher) {
		if ahead > 0 {
			m.aheadWindow = ahead
		}
		if behind >= 0 {
			m.behindWindow = behind
		}
	}
}

// WithMinConfidence sets the score below which a fragment is treated as
// off-script: the position holds and confidence decays. Default: 0.30.
func WithMinConfidence(threshold float64) Option {
	return func(m *Matcher) {
		m.minConfidence = threshold
	}
}

// WithAnchorThreshold sets the minimum Jaro-Winkler score for a spoken
// phrase to count as an anchor-phrase hit. Default: 0.85.
func WithAnchorThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.anchorThreshold = threshold
	}
}

// anchor is a precomputed anchor phrase bound to a script block.
type anchor struct {
	blockID string
	phrase  string
	tokens  []string
	codes   map[string]struct{}
}

// Matcher tracks the most likely current script position across
// successive transcript fragments.
type Matcher struct {
	scr        *script.Script
	lineTokens [][]string
	anchors    []anchor

	aheadWindow     int
	behindWindow    int
	tokenSimilarity float64
	minConfidence   float64
	behindPenalty   float64
	aheadPenalty    float64
	anchorThreshold float64
	confidenceDecay float64

	current    int
	confidence float64
}

// New creates a Matcher positioned at line 0 of s. Line text and exit
// phrases are tokenised once here; anchor phrases additionally get their
// Double Metaphone codes precomputed.
func New(s *script.Script, opts ...Option) *Matcher {
	m := &Matcher{
		scr:             s,
		aheadWindow:     defaultAheadWindow,
		behindWindow:    defaultBehindWindow,
		tokenSimilarity: defaultTokenSimilarity,
		minConfidence:   defaultMinConfidence,
		behindPenalty:   defaultBehindPenalty,
		aheadPenalty:    defaultAheadPenalty,
		anchorThreshold: defaultAnchorThreshold,
		confidenceDecay: defaultConfidenceDecay,
	}
	for _, o := range opts {
		o(m)
	}

	m.lineTokens = make([][]string, s.Len())
	for _, l := range s.Lines() {
		text := l.Text
		if l.ExitPhrase != "" {
			text += " " + l.ExitPhrase
		}
		m.lineTokens[l.Index] = tokenize(text)

		if l.AnchorPhrase != "" {
			tokens := tokenize(l.AnchorPhrase)
			m.anchors = append(m.anchors, anchor{
				blockID: l.ID,
				phrase:  strings.Join(tokens, " "),
				tokens:  tokens,
				codes:   codesForTokens(tokens),
			})
		}
	}
	return m
}

// Lines returns the script lines the matcher operates over.
func (m *Matcher) Lines() []script.Line { return m.scr.Lines() }

// CurrentIndex returns the last stable line index.
func (m *Matcher) CurrentIndex() int { return m.current }

// CurrentConfidence returns the confidence of the last stable position,
// in [0, 1].
func (m *Matcher) CurrentConfidence() float64 { return m.confidence }

// IngestTranscript scores fragment against the lines surrounding the
// current position and returns the best-guess line index with a
// confidence in [0, 1].
//
// When nothing nearby resembles the fragment, the position holds and the
// reported confidence decays toward zero, the "off script" signal the
// scroll control law pauses on. IngestTranscript never fails.
func (m *Matcher) IngestTranscript(fragment string) (int, float64) {
	tokens := tokenize(fragment)
	if len(tokens) == 0 {
		m.confidence = clamp01(m.confidence * m.confidenceDecay)
		return m.current, m.confidence
	}

	lo := m.scr.Clamp(m.current - m.behindWindow)
	hi := m.scr.Clamp(m.current + m.aheadWindow)

	bestIdx := m.current
	bestScore := 0.0
	for i := lo; i <= hi; i++ {
		score := m.coverage(tokens, m.lineTokens[i])

		// Forward-progress bias: regressing costs per line, and skipping
		// far ahead costs a little, so adjacent forward lines win ties.
		if i < m.current {
			score -= m.behindPenalty * float64(m.current-i)
		} else if i > m.current+1 {
			score -= m.aheadPenalty * float64(i-m.current-1)
		}

		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestScore < m.minConfidence {
		m.confidence = clamp01(m.confidence * m.confidenceDecay)
		return m.current, m.confidence
	}

	m.current = bestIdx
	m.confidence = clamp01(bestScore)
	return m.current, m.confidence
}

// DetectAnchor reports whether fragment contains a spoken anchor phrase,
// returning the bound block ID. Detection slides a window of the anchor's
// token length across the fragment and accepts a Jaro-Winkler score at or
// above the anchor threshold, gated on Double Metaphone code overlap so a
// coincidentally similar spelling does not trigger a jump.
func (m *Matcher) DetectAnchor(fragment string) (blockID string, ok bool) {
	tokens := tokenize(fragment)
	if len(tokens) == 0 {
		return "", false
	}

	for _, a := range m.anchors {
		n := len(a.tokens)
		if n == 0 || n > len(tokens) {
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			window := strings.Join(tokens[i:i+n], " ")
			if !codesOverlap(codesForTokens(tokens[i:i+n]), a.codes) {
				continue
			}
			if matchr.JaroWinkler(window, a.phrase, false) >= m.anchorThreshold {
				return a.blockID, true
			}
		}
	}
	return "", false
}

// JumpToBlock snaps the position to the line with the given block ID,
// bypassing all matching heuristics. Unknown IDs are ignored and reported
// via the return value.
func (m *Matcher) JumpToBlock(blockID string) bool {
	idx, ok := m.scr.IndexOfBlock(blockID)
	if !ok {
		return false
	}
	m.current = idx
	m.confidence = 1
	return true
}

// Reset repositions to index (clamped to the valid range) with full
// confidence. Used for manual navigation.
func (m *Matcher) Reset(index int) {
	m.current = m.scr.Clamp(index)
	m.confidence = 1
}

// coverage returns the fraction of fragment tokens that fuzzily match
// some token of the candidate line.
func (m *Matcher) coverage(fragment, line []string) float64 {
	if len(line) == 0 {
		return 0
	}
	matched := 0
	for _, ft := range fragment {
		for _, lt := range line {
			if matchr.JaroWinkler(ft, lt, false) >= m.tokenSimilarity {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(fragment))
}

// tokenize lowercases, strips punctuation, and splits on whitespace.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// codesForTokens returns the union of all Double Metaphone codes for the
// tokens, excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
