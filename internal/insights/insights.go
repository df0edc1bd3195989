// Package insights turns the evidence gathered during a performance into
// a post-show report: where the tracker lost the performer, whether the
// set rushed or dragged, and which bits would benefit from an anchor
// phrase. Collection happens live on the session loop; analysis is a pure
// pass over the collected samples at teardown.
package insights

import (
	"fmt"
	"time"

	"github.com/tightfive/stagetrack/internal/script"
)

const (
	// struggledConfidence is the per-sample confidence below which the
	// tracker counts as having lost the performer.
	struggledConfidence = 0.5

	// struggledMinRun is the number of consecutive low-confidence
	// samples that makes a struggled section. Shorter dips are normal
	// ad-lib texture.
	struggledMinRun = 5

	// steadySlopeWPM is the pace-trend slope magnitude, in words per
	// minute per minute, under which the set reads as steady.
	steadySlopeWPM = 2.0
)

// Sample is one voice-match observation.
type Sample struct {
	At         time.Time
	LineIndex  int
	Confidence float64
}

// PaceSample is one speaking-rate observation.
type PaceSample struct {
	At  time.Time
	WPM float64
}

// StruggledSection is a sustained run of low-confidence tracking.
type StruggledSection struct {
	StartLine     int     `json:"start_line"`
	EndLine       int     `json:"end_line"`
	Samples       int     `json:"samples"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// PaceDirection categorises the pace trend over the set.
type PaceDirection string

const (
	PaceSteady   PaceDirection = "steady"
	PaceRushing  PaceDirection = "rushing"
	PaceDragging PaceDirection = "dragging"
)

// PaceTrend is the least-squares fit of speaking rate over the set.
type PaceTrend struct {
	Direction PaceDirection `json:"direction"`

	// SlopeWPMPerMinute is the fitted change in words per minute for
	// each minute of stage time.
	SlopeWPMPerMinute float64 `json:"slope_wpm_per_minute"`
}

// AnchorSuggestion proposes marking a line with an anchor phrase so the
// tracker can re-lock faster next time.
type AnchorSuggestion struct {
	LineIndex int    `json:"line_index"`
	LineID    string `json:"line_id"`
	Reason    string `json:"reason"`
}

// Severity ranks how urgently an insight deserves the performer's
// attention.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Insight is one human-readable takeaway from the set. The report's
// insight list is ordered warnings first, each backed by a structured
// field elsewhere in the Report.
type Insight struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// Score is the one-word verdict on how well tracking held.
type Score string

const (
	ScoreTight     Score = "tight"
	ScoreSolid     Score = "solid"
	ScoreRough     Score = "rough"
	ScoreStruggled Score = "struggled"
)

// Report is the post-show summary returned at session teardown and sent
// to the client as JSON.
type Report struct {
	Duration          time.Duration      `json:"duration"`
	SampleCount       int                `json:"sample_count"`
	AvgConfidence     float64            `json:"avg_confidence"`
	StruggledSections []StruggledSection `json:"struggled_sections,omitempty"`
	PaceTrend         PaceTrend          `json:"pace_trend"`
	AnchorSuggestions []AnchorSuggestion `json:"anchor_suggestions,omitempty"`
	Corrections       int                `json:"corrections"`
	AutoPauses        int                `json:"auto_pauses"`
	AnchorJumps       int                `json:"anchor_jumps"`
	Score             Score              `json:"score"`
	Insights          []Insight          `json:"insights,omitempty"`
}

// Analyze builds a report from collected evidence. It never fails: an
// empty sample set yields an empty steady report.
func Analyze(scr *script.Script, samples []Sample, pace []PaceSample, corrections, autoPauses, anchorJumps int) Report {
	r := Report{
		SampleCount: len(samples),
		Corrections: corrections,
		AutoPauses:  autoPauses,
		AnchorJumps: anchorJumps,
		PaceTrend:   paceTrend(pace),
	}
	if len(samples) > 0 {
		r.Duration = samples[len(samples)-1].At.Sub(samples[0].At)
		total := 0.0
		for _, s := range samples {
			total += s.Confidence
		}
		r.AvgConfidence = total / float64(len(samples))
	}

	r.StruggledSections = struggledSections(samples)
	r.AnchorSuggestions = anchorSuggestions(scr, r.StruggledSections)
	r.Score = score(r.AvgConfidence, corrections, len(r.StruggledSections))
	r.Insights = insightList(r)
	return r
}

// insightList flattens the structured report into the ordered takeaway
// list shown after the set, warnings first.
func insightList(r Report) []Insight {
	var out []Insight
	for _, sec := range r.StruggledSections {
		out = append(out, Insight{
			Severity: SeverityWarning,
			Category: "tracking",
			Title:    "Tracking lost you",
			Message: fmt.Sprintf("confidence averaged %.2f across lines %d-%d over %d samples",
				sec.AvgConfidence, sec.StartLine, sec.EndLine, sec.Samples),
		})
	}
	switch r.PaceTrend.Direction {
	case PaceRushing:
		out = append(out, Insight{
			Severity: SeverityInfo,
			Category: "pace",
			Title:    "You sped up through the set",
			Message:  fmt.Sprintf("delivery gained %.1f WPM per minute of stage time", r.PaceTrend.SlopeWPMPerMinute),
		})
	case PaceDragging:
		out = append(out, Insight{
			Severity: SeverityInfo,
			Category: "pace",
			Title:    "You slowed down through the set",
			Message:  fmt.Sprintf("delivery lost %.1f WPM per minute of stage time", -r.PaceTrend.SlopeWPMPerMinute),
		})
	}
	for _, a := range r.AnchorSuggestions {
		out = append(out, Insight{
			Severity: SeverityInfo,
			Category: "anchors",
			Title:    fmt.Sprintf("Consider an anchor phrase on line %d", a.LineIndex),
			Message:  a.Reason,
		})
	}
	return out
}

// struggledSections scans for runs of at least struggledMinRun
// consecutive samples below the confidence floor.
func struggledSections(samples []Sample) []StruggledSection {
	var sections []StruggledSection
	runStart := -1
	flush := func(end int) {
		if runStart < 0 || end-runStart < struggledMinRun {
			runStart = -1
			return
		}
		sec := StruggledSection{
			StartLine: samples[runStart].LineIndex,
			EndLine:   samples[runStart].LineIndex,
			Samples:   end - runStart,
		}
		total := 0.0
		for _, s := range samples[runStart:end] {
			total += s.Confidence
			if s.LineIndex < sec.StartLine {
				sec.StartLine = s.LineIndex
			}
			if s.LineIndex > sec.EndLine {
				sec.EndLine = s.LineIndex
			}
		}
		sec.AvgConfidence = total / float64(sec.Samples)
		sections = append(sections, sec)
		runStart = -1
	}

	for i, s := range samples {
		if s.Confidence < struggledConfidence {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(samples))
	return sections
}

// anchorSuggestions proposes one anchor per struggled section, at the
// line where the tracker first lost lock, skipping lines that already
// carry one. Duplicate lines across sections collapse to one suggestion.
func anchorSuggestions(scr *script.Script, sections []StruggledSection) []AnchorSuggestion {
	var out []AnchorSuggestion
	seen := make(map[int]struct{}, len(sections))
	for _, sec := range sections {
		line := scr.Line(sec.StartLine)
		if line.AnchorPhrase != "" {
			continue
		}
		if _, dup := seen[line.Index]; dup {
			continue
		}
		seen[line.Index] = struct{}{}
		out = append(out, AnchorSuggestion{
			LineIndex: line.Index,
			LineID:    line.ID,
			Reason:    "tracking lost lock here; an anchor phrase would let the set re-sync instantly",
		})
	}
	return out
}

// paceTrend fits WPM against minutes of stage time by least squares.
func paceTrend(pace []PaceSample) PaceTrend {
	if len(pace) < 2 {
		return PaceTrend{Direction: PaceSteady}
	}

	t0 := pace[0].At
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range pace {
		x := p.At.Sub(t0).Minutes()
		sumX += x
		sumY += p.WPM
		sumXY += x * p.WPM
		sumXX += x * x
	}
	n := float64(len(pace))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return PaceTrend{Direction: PaceSteady}
	}
	slope := (n*sumXY - sumX*sumY) / denom

	trend := PaceTrend{SlopeWPMPerMinute: slope, Direction: PaceSteady}
	switch {
	case slope > steadySlopeWPM:
		trend.Direction = PaceRushing
	case slope < -steadySlopeWPM:
		trend.Direction = PaceDragging
	}
	return trend
}

func score(avgConfidence float64, corrections, struggled int) Score {
	switch {
	case avgConfidence >= 0.8 && corrections == 0 && struggled == 0:
		return ScoreTight
	case avgConfidence >= 0.6:
		return ScoreSolid
	case avgConfidence >= 0.4:
		return ScoreRough
	default:
		return ScoreStruggled
	}
}
