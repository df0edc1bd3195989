package insights_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/tightfive/stagetrack/internal/insights"
	"github.com/tightfive/stagetrack/internal/script"
)

var showStart = time.Date(2026, time.March, 14, 21, 0, 0, 0, time.UTC)

func twentyLineSet(t *testing.T, anchorOn int) *script.Script {
	t.Helper()
	lines := make([]script.Line, 20)
	for i := range lines {
		lines[i] = script.Line{Text: fmt.Sprintf("bit number %d about the neighbours", i)}
	}
	if anchorOn >= 0 {
		lines[anchorOn].ID = "marked"
		lines[anchorOn].AnchorPhrase = "bit number"
	}
	s, err := script.New("headline set", lines)
	if err != nil {
		t.Fatalf("script.New: %v", err)
	}
	return s
}

// matchStream emits n samples 0.5s apart, five per line, with conf
// deciding each sample's confidence.
func matchStream(n int, conf func(i int) float64) []insights.Sample {
	out := make([]insights.Sample, n)
	for i := range out {
		out[i] = insights.Sample{
			At:         showStart.Add(time.Duration(i) * 500 * time.Millisecond),
			LineIndex:  i / 5,
			Confidence: conf(i),
		}
	}
	return out
}

func TestAnalyze_SingleLowRunYieldsOneSectionAndOneSuggestion(t *testing.T) {
	t.Parallel()

	samples := matchStream(100, func(i int) float64 {
		if i >= 40 && i < 50 {
			return 0.2
		}
		return 0.9
	})
	r := insights.Analyze(twentyLineSet(t, -1), samples, nil, 0, 0, 0)

	if len(r.StruggledSections) != 1 {
		t.Fatalf("StruggledSections = %d, want exactly 1", len(r.StruggledSections))
	}
	sec := r.StruggledSections[0]
	if sec.StartLine != 8 || sec.EndLine != 9 || sec.Samples != 10 {
		t.Errorf("section = %+v, want lines 8-9 over 10 samples", sec)
	}
	if math.Abs(sec.AvgConfidence-0.2) > 1e-9 {
		t.Errorf("section AvgConfidence = %v, want 0.2", sec.AvgConfidence)
	}

	if len(r.AnchorSuggestions) != 1 {
		t.Fatalf("AnchorSuggestions = %d, want exactly 1", len(r.AnchorSuggestions))
	}
	if r.AnchorSuggestions[0].LineIndex != 8 {
		t.Errorf("suggestion line = %d, want 8", r.AnchorSuggestions[0].LineIndex)
	}

	if math.Abs(r.AvgConfidence-0.83) > 1e-9 {
		t.Errorf("AvgConfidence = %v, want 0.83", r.AvgConfidence)
	}
	// High average but a genuine lost-lock section: solid, not tight.
	if r.Score != insights.ScoreSolid {
		t.Errorf("Score = %v, want solid", r.Score)
	}
}

func TestAnalyze_ShortDipsAreNotSections(t *testing.T) {
	t.Parallel()

	samples := matchStream(30, func(i int) float64 {
		if i >= 10 && i < 14 {
			return 0.45
		}
		return 0.9
	})
	r := insights.Analyze(twentyLineSet(t, -1), samples, nil, 0, 0, 0)

	if len(r.StruggledSections) != 0 {
		t.Errorf("StruggledSections = %v, want none for a 4-sample dip", r.StruggledSections)
	}
	if r.Score != insights.ScoreTight {
		t.Errorf("Score = %v, want tight", r.Score)
	}
}

func TestAnalyze_RunAtEndOfSetIsFlushed(t *testing.T) {
	t.Parallel()

	samples := matchStream(30, func(i int) float64 {
		if i >= 24 {
			return 0.3
		}
		return 0.9
	})
	r := insights.Analyze(twentyLineSet(t, -1), samples, nil, 0, 0, 0)

	if len(r.StruggledSections) != 1 {
		t.Fatalf("StruggledSections = %d, want 1 (run ends with the set)", len(r.StruggledSections))
	}
	if got := r.StruggledSections[0].Samples; got != 6 {
		t.Errorf("section Samples = %d, want 6", got)
	}
}

func TestAnalyze_NoSuggestionWhenAnchorExists(t *testing.T) {
	t.Parallel()

	samples := matchStream(100, func(i int) float64 {
		if i >= 40 && i < 50 {
			return 0.2
		}
		return 0.9
	})
	r := insights.Analyze(twentyLineSet(t, 8), samples, nil, 0, 0, 0)

	if len(r.AnchorSuggestions) != 0 {
		t.Errorf("AnchorSuggestions = %v, want none (line 8 already anchored)", r.AnchorSuggestions)
	}
}

func TestAnalyze_PaceTrend(t *testing.T) {
	t.Parallel()

	ramp := func(perMinute float64) []insights.PaceSample {
		out := make([]insights.PaceSample, 11)
		for i := range out {
			out[i] = insights.PaceSample{
				At:  showStart.Add(time.Duration(i) * time.Minute),
				WPM: 120 + perMinute*float64(i),
			}
		}
		return out
	}

	cases := []struct {
		perMinute float64
		want      insights.PaceDirection
	}{
		{3.0, insights.PaceRushing},
		{-3.0, insights.PaceDragging},
		{0.0, insights.PaceSteady},
		{1.0, insights.PaceSteady},
	}
	for _, tc := range cases {
		r := insights.Analyze(twentyLineSet(t, -1), nil, ramp(tc.perMinute), 0, 0, 0)
		if r.PaceTrend.Direction != tc.want {
			t.Errorf("slope %v: Direction = %v, want %v", tc.perMinute, r.PaceTrend.Direction, tc.want)
		}
		if math.Abs(r.PaceTrend.SlopeWPMPerMinute-tc.perMinute) > 1e-6 {
			t.Errorf("slope %v: fitted %v", tc.perMinute, r.PaceTrend.SlopeWPMPerMinute)
		}
	}
}

func TestAnalyze_InsightListOrdersWarningsFirst(t *testing.T) {
	t.Parallel()

	samples := matchStream(100, func(i int) float64 {
		if i >= 40 && i < 50 {
			return 0.2
		}
		return 0.9
	})
	ramp := make([]insights.PaceSample, 11)
	for i := range ramp {
		ramp[i] = insights.PaceSample{
			At:  showStart.Add(time.Duration(i) * time.Minute),
			WPM: 120 + 3*float64(i),
		}
	}
	r := insights.Analyze(twentyLineSet(t, -1), samples, ramp, 0, 0, 0)

	if len(r.Insights) != 3 {
		t.Fatalf("Insights = %+v, want 3 (section, pace, anchor)", r.Insights)
	}
	if r.Insights[0].Severity != insights.SeverityWarning || r.Insights[0].Category != "tracking" {
		t.Errorf("first insight = %+v, want a tracking warning", r.Insights[0])
	}
	for _, in := range r.Insights[1:] {
		if in.Severity != insights.SeverityInfo {
			t.Errorf("insight %+v after the warnings, want info severity", in)
		}
	}
	if r.Insights[1].Category != "pace" || r.Insights[2].Category != "anchors" {
		t.Errorf("categories = %q/%q, want pace then anchors",
			r.Insights[1].Category, r.Insights[2].Category)
	}
}

func TestAnalyze_EmptyEvidence(t *testing.T) {
	t.Parallel()

	r := insights.Analyze(twentyLineSet(t, -1), nil, nil, 0, 0, 0)

	if r.Duration != 0 || r.SampleCount != 0 {
		t.Errorf("empty report: Duration %v SampleCount %d, want zero", r.Duration, r.SampleCount)
	}
	if len(r.StruggledSections) != 0 || len(r.AnchorSuggestions) != 0 {
		t.Error("empty report carries sections or suggestions")
	}
	if r.PaceTrend.Direction != insights.PaceSteady {
		t.Errorf("PaceTrend.Direction = %v, want steady", r.PaceTrend.Direction)
	}
}

func TestCollector_ReportRoundTrip(t *testing.T) {
	t.Parallel()

	c := insights.NewCollector()
	for i := 0; i < 20; i++ {
		c.RecordMatch(showStart.Add(time.Duration(i)*time.Second), i/5, 0.9)
	}
	c.RecordPace(showStart, 130)
	c.RecordPace(showStart.Add(time.Minute), 133)
	c.RecordCorrection()
	c.RecordAutoPause()
	c.RecordAutoPause()
	c.RecordAnchorJump()

	r := c.Report(twentyLineSet(t, -1))
	if r.SampleCount != 20 {
		t.Errorf("SampleCount = %d, want 20", r.SampleCount)
	}
	if r.Duration != 19*time.Second {
		t.Errorf("Duration = %v, want 19s", r.Duration)
	}
	if r.Corrections != 1 || r.AutoPauses != 2 || r.AnchorJumps != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/2/1", r.Corrections, r.AutoPauses, r.AnchorJumps)
	}
	// One correction disqualifies tight even at high confidence.
	if r.Score != insights.ScoreSolid {
		t.Errorf("Score = %v, want solid", r.Score)
	}
}
